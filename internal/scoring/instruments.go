package scoring

import (
	"fmt"

	"mindtrack/internal/domains"
)

// Instrument is a ready-made questionnaire together with its scoring configuration.
type Instrument struct {
	Questionnaire domains.Questionnaire
	Scoring       domains.ScoringConfig
}

var frequencyOptions = []domains.QuestionOption{
	{Label: "Not at all", Value: 0},
	{Label: "Several days", Value: 1},
	{Label: "More than half the days", Value: 2},
	{Label: "Nearly every day", Value: 3},
}

var phq9Items = []string{
	"Little interest or pleasure in doing things",
	"Feeling down, depressed, or hopeless",
	"Trouble falling or staying asleep, or sleeping too much",
	"Feeling tired or having little energy",
	"Poor appetite or overeating",
	"Feeling bad about yourself, or that you are a failure or have let yourself or your family down",
	"Trouble concentrating on things, such as reading the newspaper or watching television",
	"Moving or speaking so slowly that other people could have noticed, or the opposite",
	"Thoughts that you would be better off dead, or of hurting yourself",
}

var gad7Items = []string{
	"Feeling nervous, anxious, or on edge",
	"Not being able to stop or control worrying",
	"Worrying too much about different things",
	"Trouble relaxing",
	"Being so restless that it is hard to sit still",
	"Becoming easily annoyed or irritable",
	"Feeling afraid, as if something awful might happen",
}

func PHQ9() Instrument {
	return buildInstrument("PHQ-9", "Patient Health Questionnaire (depression)", "depression", "phq", phq9Items, []domains.ScoreRange{
		{Min: 0, Max: 4, Label: "Minimal depression", Severity: "minimal", Recommendation: "Monitor; may not require treatment."},
		{Min: 5, Max: 9, Label: "Mild depression", Severity: "mild", Recommendation: "Watchful waiting; repeat at follow-up."},
		{Min: 10, Max: 14, Label: "Moderate depression", Severity: "moderate", Recommendation: "Consider counseling, follow-up and/or pharmacotherapy."},
		{Min: 15, Max: 19, Label: "Moderately severe depression", Severity: "moderately_severe", Recommendation: "Active treatment with pharmacotherapy and/or psychotherapy."},
		{Min: 20, Max: 27, Label: "Severe depression", Severity: "severe", Recommendation: "Immediate initiation of pharmacotherapy and expedited referral."},
	})
}

func GAD7() Instrument {
	return buildInstrument("GAD-7", "Generalized Anxiety Disorder scale", "anxiety", "gad", gad7Items, []domains.ScoreRange{
		{Min: 0, Max: 4, Label: "Minimal anxiety", Severity: "minimal"},
		{Min: 5, Max: 9, Label: "Mild anxiety", Severity: "mild", Recommendation: "Monitor symptoms."},
		{Min: 10, Max: 14, Label: "Moderate anxiety", Severity: "moderate", Recommendation: "Further evaluation recommended."},
		{Min: 15, Max: 21, Label: "Severe anxiety", Severity: "severe", Recommendation: "Active treatment recommended."},
	})
}

func buildInstrument(title, description, category, prefix string, items []string, ranges []domains.ScoreRange) Instrument {
	desc := description
	cat := category
	questions := make([]domains.Question, 0, len(items))
	for i, text := range items {
		options := make([]domains.QuestionOption, len(frequencyOptions))
		copy(options, frequencyOptions)
		questions = append(questions, domains.Question{
			Code:     fmt.Sprintf("%s%d", prefix, i+1),
			Text:     text,
			Type:     domains.QuestionLikert,
			Options:  options,
			Required: true,
			Position: i + 1,
			Weight:   1,
		})
	}

	return Instrument{
		Questionnaire: domains.Questionnaire{
			Title:       title,
			Description: &desc,
			Category:    &cat,
			Status:      domains.QuestionnairePublished,
			Version:     1,
			IsActive:    true,
			Questions:   questions,
		},
		Scoring: domains.ScoringConfig{
			Method: domains.ScoringSum,
			Ranges: ranges,
		},
	}
}
