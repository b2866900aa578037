package service

import (
	"context"
	"time"

	"mindtrack/internal/domains"
	"mindtrack/internal/scoring"
)

const (
	defaultTrendDays = 30
	maxTrendDays     = 365
)

type AnalyticsService struct {
	questionnaires QuestionnaireReader
	assignments    AssignmentCounter
	responses      ResponseLister
	emails         EmailCounter
	now            func() time.Time
}

type AssignmentCounter interface {
	CountAssignments(ctx context.Context, questionnaireID int64) (domains.AssignmentCounts, error)
}

type ResponseLister interface {
	ListResponses(ctx context.Context, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error)
}

type EmailCounter interface {
	EmailCounts(ctx context.Context, organizationID int64, templateID *int64) (domains.EmailAnalyticsCounts, error)
}

func NewAnalyticsService(questionnaires QuestionnaireReader, assignments AssignmentCounter, responses ResponseLister, emails EmailCounter) *AnalyticsService {
	return &AnalyticsService{
		questionnaires: questionnaires,
		assignments:    assignments,
		responses:      responses,
		emails:         emails,
		now:            time.Now,
	}
}

func (s *AnalyticsService) Questionnaire(ctx context.Context, caller domains.Principal, questionnaireID int64, days int) (domains.QuestionnaireAnalytics, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return domains.QuestionnaireAnalytics{}, err
	}
	if err := authorizeQuestionnaire(caller, q, true); err != nil {
		return domains.QuestionnaireAnalytics{}, err
	}
	switch {
	case days <= 0:
		days = defaultTrendDays
	case days > maxTrendDays:
		return domains.QuestionnaireAnalytics{}, validationf("days must not exceed %d", maxTrendDays)
	}

	counts, err := s.assignments.CountAssignments(ctx, questionnaireID)
	if err != nil {
		return domains.QuestionnaireAnalytics{}, err
	}
	responses, err := s.responses.ListResponses(ctx, questionnaireID, domains.ResponseFilter{})
	if err != nil {
		return domains.QuestionnaireAnalytics{}, err
	}

	return scoring.Summarize(q.ID, q.Questions, responses, counts, s.now().UTC(), days), nil
}

func (s *AnalyticsService) Email(ctx context.Context, caller domains.Principal, organizationID *int64, templateID *int64) (domains.EmailAnalytics, error) {
	if !caller.CanManage() {
		return domains.EmailAnalytics{}, ErrForbidden
	}
	orgID, err := organizationFor(caller, organizationID)
	if err != nil {
		return domains.EmailAnalytics{}, err
	}
	counts, err := s.emails.EmailCounts(ctx, orgID, templateID)
	if err != nil {
		return domains.EmailAnalytics{}, err
	}
	return counts.ToEmailAnalytics(), nil
}
