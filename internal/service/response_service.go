package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"mindtrack/internal/domains"
	"mindtrack/internal/metrics"
	"mindtrack/internal/scoring"
	"mindtrack/internal/storage"
)

type ResponseService struct {
	questionnaires QuestionnaireReader
	configs        ScoringConfigReader
	assignments    AssignmentProvider
	responses      ResponseProvider
	users          UserReader
	notifier       AutomationNotifier
	tokens         *InvitationTokens
	engine         *scoring.Engine
	now            func() time.Time
}

type AssignmentProvider interface {
	SaveAssignments(ctx context.Context, batch domains.AssignmentToSave, generator domains.InvitationTokenGenerator) ([]domains.Invitation, error)
	GetAssignment(ctx context.Context, id int64) (domains.Assignment, error)
	GetAssignmentByTokenHash(ctx context.Context, hash []byte) (domains.Assignment, error)
	ListAssignments(ctx context.Context, questionnaireID int64) ([]domains.Assignment, error)
	RevokeAssignment(ctx context.Context, questionnaireID, id int64) (domains.Assignment, error)
	ExpireAssignments(ctx context.Context, now time.Time) (int, error)
}

type ResponseProvider interface {
	StartResponse(ctx context.Context, assignment domains.Assignment) (domains.Response, error)
	SaveResponse(ctx context.Context, payload domains.ResponseToSave) (domains.Response, error)
	ListResponses(ctx context.Context, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error)
	GetResponse(ctx context.Context, id int64) (domains.ResponseDetails, error)
	UpdateResponseScore(ctx context.Context, id int64, score domains.ScoreResult) (domains.Response, error)
}

type UserReader interface {
	GetUserByID(ctx context.Context, id int64) (domains.User, error)
}

// AutomationNotifier queues the emails that automations attach to lifecycle events.
// Failures are logged by the implementation and never fail the triggering call.
type AutomationNotifier interface {
	AssignmentsCreated(ctx context.Context, q domains.Questionnaire, invitations []domains.Invitation)
	ResponseSubmitted(ctx context.Context, q domains.Questionnaire, recipient domains.Recipient, assignmentID *int64, response domains.Response)
}

type ResponseServiceDeps struct {
	Questionnaires QuestionnaireReader
	Configs        ScoringConfigReader
	Assignments    AssignmentProvider
	Responses      ResponseProvider
	Users          UserReader
	Notifier       AutomationNotifier
	Tokens         *InvitationTokens
	Engine         *scoring.Engine
}

func NewResponseService(deps ResponseServiceDeps) *ResponseService {
	return &ResponseService{
		questionnaires: deps.Questionnaires,
		configs:        deps.Configs,
		assignments:    deps.Assignments,
		responses:      deps.Responses,
		users:          deps.Users,
		notifier:       deps.Notifier,
		tokens:         deps.Tokens,
		engine:         deps.Engine,
		now:            time.Now,
	}
}

// Assign invites recipients to a published questionnaire. The whole batch fails when
// one recipient already has an open assignment for it.
func (s *ResponseService) Assign(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.AssignmentCreate) ([]domains.Invitation, error) {
	q, err := s.manageableQuestionnaire(ctx, caller, questionnaireID)
	if err != nil {
		return nil, err
	}
	if !q.AcceptsResponses() {
		return nil, ErrQuestionnaireClosed
	}
	if len(input.Recipients) == 0 {
		return nil, validationf("at least one recipient is required")
	}
	if input.ExpiresAt != nil && !input.ExpiresAt.After(s.now()) {
		return nil, validationf("expires_at must be in the future")
	}

	seen := make(map[string]bool, len(input.Recipients))
	recipients := make([]domains.Recipient, 0, len(input.Recipients))
	for _, r := range input.Recipients {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, validationf("recipient %q is not a valid email", r.Email)
		}
		if seen[email] {
			return nil, validationf("recipient %s is listed twice", email)
		}
		seen[email] = true
		recipients = append(recipients, domains.Recipient{Email: email, Name: trimmedOrNil(r.Name)})
	}

	invitations, err := s.assignments.SaveAssignments(ctx, domains.AssignmentToSave{
		QuestionnaireID: q.ID,
		OrganizationID:  q.OrganizationID,
		InvitedBy:       caller.UserID,
		ExpiresAt:       input.ExpiresAt,
		Recipients:      recipients,
	}, s.tokens.Generate)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, ErrAssignmentExists
		case errors.Is(err, ErrInvitationExpired):
			return nil, validationf("expires_at must be in the future")
		default:
			slog.Error("save assignments failed", "err", err, "questionnaire_id", q.ID)
			return nil, err
		}
	}

	for i := range invitations {
		invitations[i].Link = s.tokens.Link(invitations[i].Token)
	}
	slog.Info("questionnaire assigned", "questionnaire_id", q.ID, "recipients", len(invitations))

	if s.notifier != nil {
		s.notifier.AssignmentsCreated(ctx, q, invitations)
	}
	return invitations, nil
}

func (s *ResponseService) ListAssignments(ctx context.Context, caller domains.Principal, questionnaireID int64) ([]domains.Assignment, error) {
	if _, err := s.manageableQuestionnaire(ctx, caller, questionnaireID); err != nil {
		return nil, err
	}
	return s.assignments.ListAssignments(ctx, questionnaireID)
}

func (s *ResponseService) Revoke(ctx context.Context, caller domains.Principal, questionnaireID, assignmentID int64) (domains.Assignment, error) {
	if _, err := s.manageableQuestionnaire(ctx, caller, questionnaireID); err != nil {
		return domains.Assignment{}, err
	}
	a, err := s.assignments.RevokeAssignment(ctx, questionnaireID, assignmentID)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return domains.Assignment{}, ErrAssignmentNotOpen
		}
		return domains.Assignment{}, err
	}
	slog.Info("assignment revoked", "assignment_id", a.ID, "questionnaire_id", questionnaireID)
	return a, nil
}

// Access resolves an invitation token to the questionnaire it opens.
func (s *ResponseService) Access(ctx context.Context, token string) (domains.QuestionnaireAccess, error) {
	a, q, err := s.resolve(ctx, token)
	if err != nil {
		return domains.QuestionnaireAccess{}, err
	}
	return domains.QuestionnaireAccess{Questionnaire: q, Assignment: a}, nil
}

func (s *ResponseService) Start(ctx context.Context, token string) (domains.StartResult, error) {
	a, q, err := s.resolve(ctx, token)
	if err != nil {
		return domains.StartResult{}, err
	}

	response, err := s.responses.StartResponse(ctx, a)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return domains.StartResult{}, ErrInvitationClosed
		}
		slog.Error("start response failed", "err", err, "assignment_id", a.ID)
		return domains.StartResult{}, err
	}
	if a.State == domains.AssignmentInvited {
		a.State = domains.AssignmentStarted
	}
	return domains.StartResult{Questionnaire: q, Assignment: a, Response: response}, nil
}

func (s *ResponseService) SubmitByToken(ctx context.Context, submission domains.ResponseSubmission) (domains.Response, error) {
	a, q, err := s.resolve(ctx, submission.Token)
	if err != nil {
		return domains.Response{}, err
	}

	assignmentID := a.ID
	response, err := s.submit(ctx, q, submission.Answers, &assignmentID, nil)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return domains.Response{}, ErrInvitationClosed
		}
		return domains.Response{}, err
	}

	if s.notifier != nil {
		s.notifier.ResponseSubmitted(ctx, q, domains.Recipient{Email: a.RespondentEmail, Name: a.RespondentName}, &assignmentID, response)
	}
	return response, nil
}

// Submit records answers from an authenticated respondent without an invitation.
func (s *ResponseService) Submit(ctx context.Context, caller domains.Principal, questionnaireID int64, answers []domains.AnswerInput) (domains.Response, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return domains.Response{}, err
	}
	if err := authorizeQuestionnaire(caller, q, false); err != nil {
		return domains.Response{}, err
	}
	if !q.AcceptsResponses() {
		return domains.Response{}, ErrQuestionnaireClosed
	}

	respondentID := caller.UserID
	response, err := s.submit(ctx, q, answers, nil, &respondentID)
	if err != nil {
		return domains.Response{}, err
	}

	if s.notifier != nil && s.users != nil {
		user, err := s.users.GetUserByID(ctx, caller.UserID)
		if err != nil {
			slog.Warn("load respondent for notification failed", "err", err, "user_id", caller.UserID)
		} else {
			name := user.FullName
			s.notifier.ResponseSubmitted(ctx, q, domains.Recipient{Email: user.Email, Name: &name}, nil, response)
		}
	}
	return response, nil
}

func (s *ResponseService) submit(ctx context.Context, q domains.Questionnaire, inputs []domains.AnswerInput, assignmentID, respondentID *int64) (domains.Response, error) {
	answers, err := scoring.NormalizeAnswers(q.Questions, inputs, true)
	if err != nil {
		return domains.Response{}, &ValidationError{Message: err.Error()}
	}

	cfg, err := loadScoringConfig(ctx, s.configs, q.ID)
	if err != nil {
		return domains.Response{}, err
	}
	result, err := score(s.engine, q.Questions, answers, cfg)
	if err != nil {
		return domains.Response{}, err
	}

	response, err := s.responses.SaveResponse(ctx, domains.ResponseToSave{
		QuestionnaireID: q.ID,
		AssignmentID:    assignmentID,
		RespondentID:    respondentID,
		SubmittedAt:     s.now().UTC(),
		Answers:         answers,
		Score:           result,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrStateConflict) {
			slog.Error("save response failed", "err", err, "questionnaire_id", q.ID)
		}
		return domains.Response{}, err
	}

	metrics.RecordSubmission()
	slog.Info("response submitted",
		"response_id", response.ID,
		"questionnaire_id", q.ID,
		"total", result.Total,
		"severity", result.Severity,
	)
	return response, nil
}

func (s *ResponseService) ListResponses(ctx context.Context, caller domains.Principal, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error) {
	if _, err := s.manageableQuestionnaire(ctx, caller, questionnaireID); err != nil {
		return nil, err
	}
	switch filter.State {
	case "", domains.ResponseInProgress, domains.ResponseSubmitted:
	default:
		return nil, validationf("unknown state %q", filter.State)
	}
	return s.responses.ListResponses(ctx, questionnaireID, filter)
}

// GetResponse is available to the questionnaire's managers and to the respondent who
// submitted it.
func (s *ResponseService) GetResponse(ctx context.Context, caller domains.Principal, id int64) (domains.ResponseDetails, error) {
	details, err := s.responses.GetResponse(ctx, id)
	if err != nil {
		return domains.ResponseDetails{}, err
	}
	if r := details.Response; r.RespondentID != nil && *r.RespondentID == caller.UserID {
		return details, nil
	}
	if _, err := s.manageableQuestionnaire(ctx, caller, details.Response.QuestionnaireID); err != nil {
		return domains.ResponseDetails{}, err
	}
	return details, nil
}

// Rescore recomputes a submitted response against the current questions and config.
func (s *ResponseService) Rescore(ctx context.Context, caller domains.Principal, id int64) (domains.Response, error) {
	details, err := s.responses.GetResponse(ctx, id)
	if err != nil {
		return domains.Response{}, err
	}
	q, err := s.manageableQuestionnaire(ctx, caller, details.Response.QuestionnaireID)
	if err != nil {
		return domains.Response{}, err
	}
	if details.Response.State != domains.ResponseSubmitted {
		return domains.Response{}, validationf("only submitted responses can be rescored")
	}

	cfg, err := loadScoringConfig(ctx, s.configs, q.ID)
	if err != nil {
		return domains.Response{}, err
	}
	result, err := score(s.engine, q.Questions, details.Answers, cfg)
	if err != nil {
		return domains.Response{}, err
	}
	return s.responses.UpdateResponseScore(ctx, id, result)
}

func (s *ResponseService) ExpireAssignments(ctx context.Context) (int, error) {
	expired, err := s.assignments.ExpireAssignments(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		slog.Info("assignments expired", "count", expired)
	}
	return expired, nil
}

func (s *ResponseService) resolve(ctx context.Context, token string) (domains.Assignment, domains.Questionnaire, error) {
	assignmentID, questionnaireID, err := s.tokens.Parse(token)
	if err != nil {
		return domains.Assignment{}, domains.Questionnaire{}, err
	}

	a, err := s.assignments.GetAssignmentByTokenHash(ctx, HashToken(token))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("resolve invitation failed", "err", err)
			return domains.Assignment{}, domains.Questionnaire{}, err
		}
		// Completed and revoked assignments drop their hash; tell those apart from forgeries.
		if prior, err := s.assignments.GetAssignment(ctx, assignmentID); err == nil && !prior.Open() {
			return domains.Assignment{}, domains.Questionnaire{}, ErrInvitationClosed
		}
		return domains.Assignment{}, domains.Questionnaire{}, ErrInvitationInvalid
	}

	if a.ID != assignmentID || a.QuestionnaireID != questionnaireID {
		slog.Warn("invitation token mismatch", "assignment_id", assignmentID, "stored_id", a.ID)
		return domains.Assignment{}, domains.Questionnaire{}, ErrInvitationInvalid
	}
	if a.State == domains.AssignmentExpired || (a.TokenExpiresAt != nil && !s.now().Before(*a.TokenExpiresAt)) {
		return domains.Assignment{}, domains.Questionnaire{}, ErrInvitationExpired
	}
	if !a.Open() {
		return domains.Assignment{}, domains.Questionnaire{}, ErrInvitationClosed
	}

	q, err := s.questionnaires.GetQuestionnaire(ctx, a.QuestionnaireID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domains.Assignment{}, domains.Questionnaire{}, ErrQuestionnaireClosed
		}
		return domains.Assignment{}, domains.Questionnaire{}, err
	}
	if !q.AcceptsResponses() {
		return domains.Assignment{}, domains.Questionnaire{}, ErrQuestionnaireClosed
	}
	return a, q, nil
}

func (s *ResponseService) manageableQuestionnaire(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if err := authorizeQuestionnaire(caller, q, true); err != nil {
		return domains.Questionnaire{}, err
	}
	return q, nil
}
