package domains

import "time"

const (
	AssignmentInvited   = "invited"
	AssignmentStarted   = "started"
	AssignmentCompleted = "completed"
	AssignmentRevoked   = "revoked"
	AssignmentExpired   = "expired"
)

type Assignment struct {
	ID              int64      `json:"id"`
	QuestionnaireID int64      `json:"questionnaire_id"`
	OrganizationID  int64      `json:"organization_id"`
	RespondentEmail string     `json:"respondent_email"`
	RespondentName  *string    `json:"respondent_name,omitempty"`
	State           string     `json:"state"`
	TokenHash       []byte     `json:"-"`
	TokenExpiresAt  *time.Time `json:"token_expires_at,omitempty"`
	InvitedBy       int64      `json:"invited_by"`
	ReminderCount   int        `json:"reminder_count"`
	LastRemindedAt  *time.Time `json:"last_reminded_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Open reports whether the assignment can still be used to answer.
func (a Assignment) Open() bool {
	return a.State == AssignmentInvited || a.State == AssignmentStarted
}

type Recipient struct {
	Email string  `json:"email"`
	Name  *string `json:"name,omitempty"`
}

type AssignmentCreate struct {
	Recipients []Recipient `json:"recipients"`
	ExpiresAt  *time.Time  `json:"expires_at,omitempty"`
}

type AssignmentToSave struct {
	QuestionnaireID int64
	OrganizationID  int64
	InvitedBy       int64
	ExpiresAt       *time.Time
	Recipients      []Recipient
}

type Invitation struct {
	AssignmentID int64     `json:"assignment_id"`
	Email        string    `json:"email"`
	Name         *string   `json:"name,omitempty"`
	Token        string    `json:"token"`
	Link         string    `json:"link"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type InvitationTokenPayload struct {
	AssignmentID    int64
	QuestionnaireID int64
	OrganizationID  int64
	Email           string
	ExpiresAt       *time.Time
}

type InvitationTokenGenerator func(payload InvitationTokenPayload) (token string, hash []byte, expiresAt time.Time, err error)

type AccessRequest struct {
	Token string `json:"token"`
}

type QuestionnaireAccess struct {
	Questionnaire Questionnaire `json:"questionnaire"`
	Assignment    Assignment    `json:"assignment"`
}

type StartResult struct {
	Questionnaire Questionnaire `json:"questionnaire"`
	Assignment    Assignment    `json:"assignment"`
	Response      Response      `json:"response"`
}

// ReminderCandidate is an open assignment paired with the automation that may remind it.
type ReminderCandidate struct {
	Assignment         Assignment
	AutomationID       int64
	TemplateID         int64
	MaxReminders       int
	QuestionnaireTitle string
	OrganizationName   string
}
