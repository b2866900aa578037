package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mindtrack/internal/domains"
	"mindtrack/internal/scoring"
	"mindtrack/internal/storage/memory"
)

func TestScoringService_Config(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuestionnaireStore(orgID, clinician.UserID)
	svc := NewScoringService(store, store, scoring.NewEngine())

	cfg, err := svc.GetConfig(ctx, clinician, phq9ID)
	require.NoError(t, err)
	assert.Equal(t, domains.ScoringSum, cfg.Method)
	assert.Len(t, cfg.Ranges, 5)

	_, err = svc.GetConfig(ctx, respondent, phq9ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.SaveConfig(ctx, clinician, phq9ID, domains.ScoringConfigInput{Method: domains.ScoringFormula})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SaveConfig(ctx, clinician, phq9ID, domains.ScoringConfigInput{
		Method: domains.ScoringSum,
		Ranges: []domains.ScoreRange{{Min: 0, Max: 10, Label: "a"}, {Min: 5, Max: 20, Label: "b"}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SaveConfig(ctx, clinician, phq9ID, domains.ScoringConfigInput{Method: domains.ScoringFormula, Formula: ptr("sum > 3")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SaveConfig(ctx, clinician, phq9ID, domains.ScoringConfigInput{Method: domains.ScoringFormula, Formula: ptr("gad1 + sum")})
	assert.ErrorIs(t, err, ErrValidation)

	saved, err := svc.SaveConfig(ctx, clinician, phq9ID, domains.ScoringConfigInput{
		Method:  domains.ScoringFormula,
		Formula: ptr("phq1 * 2 + sum"),
		Ranges:  []domains.ScoreRange{{Min: 20, Max: 100, Label: "high"}, {Min: 0, Max: 19, Label: "low"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "low", saved.Ranges[0].Label)
}

func TestScoringService_ConfigDefaultsWhenMissing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuestionnaireStore(orgID, clinician.UserID)
	questionnaires := NewQuestionnaireService(store)
	created, err := questionnaires.Create(ctx, clinician, domains.QuestionnaireCreate{Title: "Custom", Questions: []domains.QuestionInput{likertInput("c1")}})
	require.NoError(t, err)

	svc := NewScoringService(store, store, scoring.NewEngine())
	cfg, err := svc.GetConfig(ctx, clinician, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domains.ScoringSum, cfg.Method)
	assert.Empty(t, cfg.Ranges)
}

func TestScoringService_Preview(t *testing.T) {
	ctx := context.Background()
	store := memory.NewQuestionnaireStore(orgID, clinician.UserID)
	svc := NewScoringService(store, store, scoring.NewEngine())

	partial := phqAnswers(3)[:4]
	result, err := svc.Preview(ctx, clinician, phq9ID, domains.ScorePreviewRequest{Answers: partial})
	require.NoError(t, err)
	assert.Equal(t, 12.0, result.Total)
	assert.Equal(t, "moderate", result.Severity)
	assert.Len(t, result.MissingRequired, 5)

	result, err = svc.Preview(ctx, clinician, phq9ID, domains.ScorePreviewRequest{
		Answers: partial,
		Config:  &domains.ScoringConfigInput{Method: domains.ScoringAverage},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, result.Total)
	assert.Empty(t, result.Severity)

	stored, err := svc.GetConfig(ctx, clinician, phq9ID)
	require.NoError(t, err)
	assert.Equal(t, domains.ScoringSum, stored.Method, "preview does not persist its config")

	_, err = svc.Preview(ctx, clinician, phq9ID, domains.ScorePreviewRequest{
		Answers: []domains.AnswerInput{{QuestionCode: "nope", ValueNumber: ptr(1.0)}},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Preview(ctx, clinician, phq9ID, domains.ScorePreviewRequest{
		Answers: partial,
		Config:  &domains.ScoringConfigInput{Method: domains.ScoringFormula, Formula: ptr("sum / 0")},
	})
	assert.ErrorIs(t, err, ErrValidation)
}

type emailCountsStub struct {
	counts domains.EmailAnalyticsCounts
	orgID  int64
}

func (s *emailCountsStub) EmailCounts(_ context.Context, organizationID int64, _ *int64) (domains.EmailAnalyticsCounts, error) {
	s.orgID = organizationID
	return s.counts, nil
}

func TestAnalyticsService_Questionnaire(t *testing.T) {
	ctx := context.Background()
	f := newResponseFixture(t)
	f.notifier.On("ResponseSubmitted", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return()

	for i, value := range []float64{0, 1, 3} {
		inv := f.assign(t, "p"+strconv.Itoa(i)+"@example.com")[0]
		_, err := f.svc.SubmitByToken(ctx, domains.ResponseSubmission{Token: inv.Token, Answers: phqAnswers(value)})
		require.NoError(t, err)
	}
	f.assign(t, "pending@example.com")

	svc := NewAnalyticsService(f.store, f.assignments, f.responses, &emailCountsStub{})
	svc.now = clock(time.Now())

	report, err := svc.Questionnaire(ctx, clinician, phq9ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, report.AssignmentsTotal)
	assert.Equal(t, 3, report.AssignmentsCompleted)
	assert.Equal(t, 3, report.ResponsesSubmitted)
	assert.InDelta(t, 0.75, report.CompletionRate, 0.001)
	assert.Equal(t, 3, report.Scores.Count)
	assert.Equal(t, 9.0, report.Scores.Median)
	assert.Equal(t, 27.0, report.Scores.Max)
	assert.Len(t, report.Trend, 30)

	_, err = svc.Questionnaire(ctx, clinician, phq9ID, 400)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Questionnaire(ctx, respondent, phq9ID, 7)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAnalyticsService_Email(t *testing.T) {
	ctx := context.Background()
	stub := &emailCountsStub{counts: domains.EmailAnalyticsCounts{Sent: 8, Failed: 2, UniqueOpens: 4, UniqueClicks: 2}}
	svc := NewAnalyticsService(nil, nil, nil, stub)

	report, err := svc.Email(ctx, clinician, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, orgID, stub.orgID)
	assert.InDelta(t, 0.5, report.OpenRate, 0.001)
	assert.InDelta(t, 0.25, report.ClickRate, 0.001)
	assert.InDelta(t, 0.2, report.FailureRate, 0.001)

	_, err = svc.Email(ctx, clinician, &otherOrgID, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Email(ctx, admin, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Email(ctx, admin, &otherOrgID, nil)
	require.NoError(t, err)
	assert.Equal(t, otherOrgID, stub.orgID)
}
