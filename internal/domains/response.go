package domains

import (
	"encoding/json"
	"time"
)

const (
	ResponseInProgress = "in_progress"
	ResponseSubmitted  = "submitted"
)

type AnswerInput struct {
	QuestionID   int64           `json:"question_id,omitempty"`
	QuestionCode string          `json:"question_code,omitempty"`
	ValueText    *string         `json:"value_text,omitempty"`
	ValueNumber  *float64        `json:"value_number,omitempty"`
	ValueBool    *bool           `json:"value_bool,omitempty"`
	ValueJSON    json.RawMessage `json:"value_json,omitempty"`
}

type Answer struct {
	QuestionID   int64           `json:"question_id"`
	QuestionCode string          `json:"question_code"`
	ValueText    *string         `json:"value_text,omitempty"`
	ValueNumber  *float64        `json:"value_number,omitempty"`
	ValueBool    *bool           `json:"value_bool,omitempty"`
	ValueJSON    json.RawMessage `json:"value_json,omitempty"`
}

type Response struct {
	ID              int64        `json:"id"`
	QuestionnaireID int64        `json:"questionnaire_id"`
	AssignmentID    *int64       `json:"assignment_id,omitempty"`
	RespondentID    *int64       `json:"respondent_id,omitempty"`
	State           string       `json:"state"`
	StartedAt       time.Time    `json:"started_at"`
	SubmittedAt     *time.Time   `json:"submitted_at,omitempty"`
	TotalScore      *float64     `json:"total_score,omitempty"`
	Severity        *string      `json:"severity,omitempty"`
	Label           *string      `json:"label,omitempty"`
	ScoreDetails    *ScoreResult `json:"score_details,omitempty"`
}

type ResponseDetails struct {
	Response Response `json:"response"`
	Answers  []Answer `json:"answers"`
}

type ResponseToSave struct {
	QuestionnaireID int64
	AssignmentID    *int64
	RespondentID    *int64
	SubmittedAt     time.Time
	Answers         []Answer
	Score           ScoreResult
}

type ResponseSubmission struct {
	Token   string        `json:"token,omitempty"`
	Answers []AnswerInput `json:"answers"`
}

type ResponseFilter struct {
	State string
	Limit int
}
