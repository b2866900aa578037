package httptransport

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"

	"mindtrack/internal/domains"
)

type authMock struct {
	mock.Mock
}

func (m *authMock) Register(ctx context.Context, caller *domains.Principal, input domains.UserCreate) (domains.User, error) {
	args := m.Called(ctx, caller, input)
	return args.Get(0).(domains.User), args.Error(1)
}

func (m *authMock) Login(ctx context.Context, email string, password string) (domains.TokenPair, domains.User, error) {
	args := m.Called(ctx, email, password)
	return args.Get(0).(domains.TokenPair), args.Get(1).(domains.User), args.Error(2)
}

func (m *authMock) Refresh(ctx context.Context, refreshToken string) (domains.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(domains.TokenPair), args.Error(1)
}

func (m *authMock) Me(ctx context.Context, userID int64) (domains.User, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domains.User), args.Error(1)
}

// Authenticate accepts the fixed bearer tokens used across the handler tests.
func (m *authMock) Authenticate(token string) (domains.Principal, error) {
	switch token {
	case clinicianToken:
		return clinician, nil
	case respondentToken:
		return respondent, nil
	}
	return domains.Principal{}, errors.New("invalid token")
}

type questionnaireMock struct {
	mock.Mock
}

func (m *questionnaireMock) Create(ctx context.Context, caller domains.Principal, input domains.QuestionnaireCreate) (domains.Questionnaire, error) {
	args := m.Called(ctx, caller, input)
	return args.Get(0).(domains.Questionnaire), args.Error(1)
}

func (m *questionnaireMock) Get(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.Questionnaire), args.Error(1)
}

func (m *questionnaireMock) List(ctx context.Context, caller domains.Principal, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error) {
	args := m.Called(ctx, caller, filter)
	return args.Get(0).([]domains.QuestionnaireSummary), args.Error(1)
}

func (m *questionnaireMock) Update(ctx context.Context, caller domains.Principal, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error) {
	args := m.Called(ctx, caller, id, update)
	return args.Get(0).(domains.Questionnaire), args.Error(1)
}

func (m *questionnaireMock) Delete(ctx context.Context, caller domains.Principal, id int64) error {
	return m.Called(ctx, caller, id).Error(0)
}

func (m *questionnaireMock) Publish(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.Questionnaire), args.Error(1)
}

func (m *questionnaireMock) Archive(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.Questionnaire), args.Error(1)
}

func (m *questionnaireMock) AddQuestion(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.QuestionInput) (domains.Question, error) {
	args := m.Called(ctx, caller, questionnaireID, input)
	return args.Get(0).(domains.Question), args.Error(1)
}

func (m *questionnaireMock) UpdateQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64, input domains.QuestionInput) (domains.Question, error) {
	args := m.Called(ctx, caller, questionnaireID, questionID, input)
	return args.Get(0).(domains.Question), args.Error(1)
}

func (m *questionnaireMock) DeleteQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64) error {
	return m.Called(ctx, caller, questionnaireID, questionID).Error(0)
}

func (m *questionnaireMock) ReorderQuestions(ctx context.Context, caller domains.Principal, questionnaireID int64, order domains.QuestionOrder) ([]domains.Question, error) {
	args := m.Called(ctx, caller, questionnaireID, order)
	return args.Get(0).([]domains.Question), args.Error(1)
}

type responseMock struct {
	mock.Mock
}

func (m *responseMock) Assign(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.AssignmentCreate) ([]domains.Invitation, error) {
	args := m.Called(ctx, caller, questionnaireID, input)
	return args.Get(0).([]domains.Invitation), args.Error(1)
}

func (m *responseMock) ListAssignments(ctx context.Context, caller domains.Principal, questionnaireID int64) ([]domains.Assignment, error) {
	args := m.Called(ctx, caller, questionnaireID)
	return args.Get(0).([]domains.Assignment), args.Error(1)
}

func (m *responseMock) Revoke(ctx context.Context, caller domains.Principal, questionnaireID, assignmentID int64) (domains.Assignment, error) {
	args := m.Called(ctx, caller, questionnaireID, assignmentID)
	return args.Get(0).(domains.Assignment), args.Error(1)
}

func (m *responseMock) Access(ctx context.Context, token string) (domains.QuestionnaireAccess, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domains.QuestionnaireAccess), args.Error(1)
}

func (m *responseMock) Start(ctx context.Context, token string) (domains.StartResult, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(domains.StartResult), args.Error(1)
}

func (m *responseMock) SubmitByToken(ctx context.Context, submission domains.ResponseSubmission) (domains.Response, error) {
	args := m.Called(ctx, submission)
	return args.Get(0).(domains.Response), args.Error(1)
}

func (m *responseMock) Submit(ctx context.Context, caller domains.Principal, questionnaireID int64, answers []domains.AnswerInput) (domains.Response, error) {
	args := m.Called(ctx, caller, questionnaireID, answers)
	return args.Get(0).(domains.Response), args.Error(1)
}

func (m *responseMock) ListResponses(ctx context.Context, caller domains.Principal, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error) {
	args := m.Called(ctx, caller, questionnaireID, filter)
	return args.Get(0).([]domains.Response), args.Error(1)
}

func (m *responseMock) GetResponse(ctx context.Context, caller domains.Principal, id int64) (domains.ResponseDetails, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.ResponseDetails), args.Error(1)
}

func (m *responseMock) Rescore(ctx context.Context, caller domains.Principal, id int64) (domains.Response, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.Response), args.Error(1)
}

type emailMock struct {
	mock.Mock
}

func (m *emailMock) Send(ctx context.Context, caller domains.Principal, req domains.EmailSendRequest) ([]domains.EmailLog, error) {
	args := m.Called(ctx, caller, req)
	return args.Get(0).([]domains.EmailLog), args.Error(1)
}

func (m *emailMock) Cancel(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.EmailLog), args.Error(1)
}

func (m *emailMock) GetLog(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error) {
	args := m.Called(ctx, caller, id)
	return args.Get(0).(domains.EmailLog), args.Error(1)
}

func (m *emailMock) ListLogs(ctx context.Context, caller domains.Principal, filter domains.EmailLogFilter) ([]domains.EmailLog, error) {
	args := m.Called(ctx, caller, filter)
	return args.Get(0).([]domains.EmailLog), args.Error(1)
}

func (m *emailMock) TrackOpen(ctx context.Context, trackingID string) error {
	return m.Called(ctx, trackingID).Error(0)
}

func (m *emailMock) TrackClick(ctx context.Context, trackingID, target string) (string, error) {
	args := m.Called(ctx, trackingID, target)
	return args.String(0), args.Error(1)
}

type jobsMock struct {
	mock.Mock
}

func (m *jobsMock) RunAll(ctx context.Context) (domains.DispatchReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(domains.DispatchReport), args.Error(1)
}
