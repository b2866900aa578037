package domains

type AssignmentCounts struct {
	Total     int
	Started   int
	Completed int
	Revoked   int
	Expired   int
}

type ScoreStatistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

type QuestionStatistics struct {
	QuestionID  int64   `json:"question_id"`
	Code        string  `json:"code"`
	AnswerCount int     `json:"answer_count"`
	Mean        float64 `json:"mean"`
}

type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type QuestionnaireAnalytics struct {
	QuestionnaireID      int64                `json:"questionnaire_id"`
	AssignmentsTotal     int                  `json:"assignments_total"`
	AssignmentsStarted   int                  `json:"assignments_started"`
	AssignmentsCompleted int                  `json:"assignments_completed"`
	CompletionRate       float64              `json:"completion_rate"`
	ResponsesSubmitted   int                  `json:"responses_submitted"`
	ResponsesInProgress  int                  `json:"responses_in_progress"`
	Scores               ScoreStatistics      `json:"scores"`
	SeverityDistribution map[string]int       `json:"severity_distribution"`
	Questions            []QuestionStatistics `json:"questions"`
	Trend                []DailyCount         `json:"trend"`
}
