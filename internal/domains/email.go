package domains

import (
	"time"
)

const (
	EmailScheduled = "scheduled"
	EmailSending   = "sending"
	EmailSent      = "sent"
	EmailFailed    = "failed"
	EmailCancelled = "cancelled"
)

const (
	EmailKindManual     = "manual"
	EmailKindInvitation = "invitation"
	EmailKindReminder   = "reminder"
	EmailKindCompletion = "completion"
)

const (
	TriggerAssignmentCreated = "assignment_created"
	TriggerReminder          = "reminder"
	TriggerResponseSubmitted = "response_submitted"
)

type EmailTemplate struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Subject        string    `json:"subject"`
	BodyHTML       string    `json:"body_html"`
	BodyText       *string   `json:"body_text,omitempty"`
	Category       *string   `json:"category,omitempty"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type EmailTemplateInput struct {
	Name     string  `json:"name"`
	Subject  string  `json:"subject"`
	BodyHTML string  `json:"body_html"`
	BodyText *string `json:"body_text,omitempty"`
	Category *string `json:"category,omitempty"`
}

type EmailLog struct {
	ID             int64             `json:"id"`
	OrganizationID int64             `json:"organization_id"`
	TemplateID     *int64            `json:"template_id,omitempty"`
	AssignmentID   *int64            `json:"assignment_id,omitempty"`
	Kind           string            `json:"kind"`
	Recipient      string            `json:"recipient"`
	Subject        string            `json:"subject"`
	BodyHTML       string            `json:"-"`
	BodyText       string            `json:"-"`
	Status         string            `json:"status"`
	TrackingID     string            `json:"tracking_id"`
	Variables      map[string]string `json:"variables,omitempty"`
	SendAt         time.Time         `json:"send_at"`
	ClaimedUntil   *time.Time        `json:"claimed_until,omitempty"`
	SentAt         *time.Time        `json:"sent_at,omitempty"`
	Attempts       int               `json:"attempts"`
	LastError      *string           `json:"last_error,omitempty"`
	OpenedAt       *time.Time        `json:"opened_at,omitempty"`
	OpenCount      int               `json:"open_count"`
	ClickedAt      *time.Time        `json:"clicked_at,omitempty"`
	ClickCount     int               `json:"click_count"`
	CreatedAt      time.Time         `json:"created_at"`
}

type EmailToQueue struct {
	OrganizationID int64
	TemplateID     *int64
	AssignmentID   *int64
	Kind           string
	Recipient      string
	Subject        string
	BodyHTML       string
	BodyText       string
	TrackingID     string
	Variables      map[string]string
	SendAt         time.Time
}

type EmailSendRequest struct {
	TemplateID *int64            `json:"template_id,omitempty"`
	Subject    *string           `json:"subject,omitempty"`
	BodyHTML   *string           `json:"body_html,omitempty"`
	BodyText   *string           `json:"body_text,omitempty"`
	Recipients []Recipient       `json:"recipients"`
	Variables  map[string]string `json:"variables,omitempty"`
	SendAt     *time.Time        `json:"send_at,omitempty"`
}

type EmailPreviewRequest struct {
	Variables map[string]string `json:"variables,omitempty"`
}

type RenderedEmail struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text"`
}

type EmailLogFilter struct {
	OrganizationID *int64
	Status         string
	TemplateID     *int64
	Limit          int
	Offset         int
}

type EmailAutomation struct {
	ID              int64     `json:"id"`
	OrganizationID  int64     `json:"organization_id"`
	TemplateID      int64     `json:"template_id"`
	QuestionnaireID *int64    `json:"questionnaire_id,omitempty"`
	Trigger         string    `json:"trigger"`
	DelayHours      int       `json:"delay_hours"`
	MaxReminders    int       `json:"max_reminders"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

type EmailAutomationInput struct {
	TemplateID      int64  `json:"template_id"`
	QuestionnaireID *int64 `json:"questionnaire_id,omitempty"`
	Trigger         string `json:"trigger"`
	DelayHours      int    `json:"delay_hours"`
	MaxReminders    int    `json:"max_reminders"`
	IsActive        *bool  `json:"is_active,omitempty"`
}

type EmailAnalyticsCounts struct {
	Sent         int
	Failed       int
	Scheduled    int
	Cancelled    int
	UniqueOpens  int
	UniqueClicks int
	TotalOpens   int
	TotalClicks  int
}

type EmailAnalytics struct {
	Sent         int     `json:"sent"`
	Failed       int     `json:"failed"`
	Scheduled    int     `json:"scheduled"`
	Cancelled    int     `json:"cancelled"`
	UniqueOpens  int     `json:"unique_opens"`
	UniqueClicks int     `json:"unique_clicks"`
	TotalOpens   int     `json:"total_opens"`
	TotalClicks  int     `json:"total_clicks"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	FailureRate  float64 `json:"failure_rate"`
}

func (c EmailAnalyticsCounts) ToEmailAnalytics() EmailAnalytics {
	analytics := EmailAnalytics{
		Sent:         c.Sent,
		Failed:       c.Failed,
		Scheduled:    c.Scheduled,
		Cancelled:    c.Cancelled,
		UniqueOpens:  c.UniqueOpens,
		UniqueClicks: c.UniqueClicks,
		TotalOpens:   c.TotalOpens,
		TotalClicks:  c.TotalClicks,
	}

	if c.Sent > 0 {
		analytics.OpenRate = float64(c.UniqueOpens) / float64(c.Sent)
		analytics.ClickRate = float64(c.UniqueClicks) / float64(c.Sent)
	}
	if attempted := c.Sent + c.Failed; attempted > 0 {
		analytics.FailureRate = float64(c.Failed) / float64(attempted)
	}

	return analytics
}

type DispatchReport struct {
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Reminders int `json:"reminders"`
	Expired   int `json:"expired"`
}
