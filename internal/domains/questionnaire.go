package domains

import (
	"time"
)

const (
	QuestionnaireDraft     = "draft"
	QuestionnairePublished = "published"
	QuestionnaireArchived  = "archived"
)

const (
	QuestionLikert         = "likert"
	QuestionSingleChoice   = "single_choice"
	QuestionMultipleChoice = "multiple_choice"
	QuestionYesNo          = "yes_no"
	QuestionNumber         = "number"
	QuestionText           = "text"
)

type Questionnaire struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	OwnerID        int64      `json:"owner_id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	Category       *string    `json:"category,omitempty"`
	Status         string     `json:"status"`
	Version        int        `json:"version"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Questions      []Question `json:"questions,omitempty"`
}

// AcceptsResponses reports whether new answers may be recorded against the questionnaire.
func (q Questionnaire) AcceptsResponses() bool {
	return q.IsActive && q.Status == QuestionnairePublished
}

type QuestionOption struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

type Question struct {
	ID              int64            `json:"id"`
	QuestionnaireID int64            `json:"questionnaire_id"`
	Code            string           `json:"code"`
	Text            string           `json:"text"`
	Type            string           `json:"type"`
	Options         []QuestionOption `json:"options,omitempty"`
	Required        bool             `json:"required"`
	Position        int              `json:"position"`
	Weight          float64          `json:"weight"`
	ReverseScored   bool             `json:"reverse_scored"`
	Subscale        *string          `json:"subscale,omitempty"`
	MinValue        *float64         `json:"min_value,omitempty"`
	MaxValue        *float64         `json:"max_value,omitempty"`
}

// Scored reports whether the question contributes to a numeric score.
func (q Question) Scored() bool {
	return q.Type != QuestionText
}

type QuestionInput struct {
	Code          string           `json:"code"`
	Text          string           `json:"text"`
	Type          string           `json:"type"`
	Options       []QuestionOption `json:"options,omitempty"`
	Required      *bool            `json:"required,omitempty"`
	Weight        *float64         `json:"weight,omitempty"`
	ReverseScored bool             `json:"reverse_scored"`
	Subscale      *string          `json:"subscale,omitempty"`
	MinValue      *float64         `json:"min_value,omitempty"`
	MaxValue      *float64         `json:"max_value,omitempty"`
}

type QuestionnaireCreate struct {
	Title          string          `json:"title"`
	Description    *string         `json:"description,omitempty"`
	Category       *string         `json:"category,omitempty"`
	OrganizationID *int64          `json:"organization_id,omitempty"`
	Questions      []QuestionInput `json:"questions"`
}

type QuestionnaireToSave struct {
	OrganizationID int64
	OwnerID        int64
	Title          string
	Description    *string
	Category       *string
	Questions      []Question
}

type QuestionnaireUpdate struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
}

func (u QuestionnaireUpdate) HasChanges() bool {
	return u.Title != nil || u.Description != nil || u.Category != nil
}

type QuestionnaireFilter struct {
	OrganizationID *int64
	Status         string
	Category       string
}

type QuestionOrder struct {
	QuestionIDs []int64 `json:"question_ids"`
}

type QuestionnaireSummary struct {
	Questionnaire
	QuestionCount int `json:"question_count"`
}
