package domains

import "time"

const (
	ScoringSum      = "sum"
	ScoringAverage  = "average"
	ScoringWeighted = "weighted"
	ScoringFormula  = "formula"
)

type ScoreRange struct {
	Min            float64 `json:"min"`
	Max            float64 `json:"max"`
	Label          string  `json:"label"`
	Severity       string  `json:"severity,omitempty"`
	Recommendation string  `json:"recommendation,omitempty"`
}

type ScoringConfig struct {
	QuestionnaireID int64        `json:"questionnaire_id"`
	Method          string       `json:"method"`
	Formula         *string      `json:"formula,omitempty"`
	Ranges          []ScoreRange `json:"ranges"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

type ScoringConfigInput struct {
	Method  string       `json:"method"`
	Formula *string      `json:"formula,omitempty"`
	Ranges  []ScoreRange `json:"ranges"`
}

type ScoreItem struct {
	QuestionID int64   `json:"question_id"`
	Code       string  `json:"code"`
	Raw        float64 `json:"raw"`
	Value      float64 `json:"value"`
	Weight     float64 `json:"weight"`
}

type ScoreResult struct {
	Method          string             `json:"method"`
	Total           float64            `json:"total"`
	MaxPossible     float64            `json:"max_possible"`
	Percentage      float64            `json:"percentage"`
	AnsweredCount   int                `json:"answered_count"`
	ScoredCount     int                `json:"scored_count"`
	MissingRequired []string           `json:"missing_required,omitempty"`
	Items           []ScoreItem        `json:"items"`
	Subscales       map[string]float64 `json:"subscales,omitempty"`
	Label           string             `json:"label,omitempty"`
	Severity        string             `json:"severity,omitempty"`
	Recommendation  string             `json:"recommendation,omitempty"`
}

type ScorePreviewRequest struct {
	Answers []AnswerInput       `json:"answers"`
	Config  *ScoringConfigInput `json:"config,omitempty"`
}
