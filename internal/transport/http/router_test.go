package httptransport

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
	"mindtrack/internal/mailer"
	"mindtrack/internal/service"
	"mindtrack/internal/storage"
)

const (
	clinicianToken  = "clinician-token"
	respondentToken = "respondent-token"
	cronSecret      = "cron-secret"
)

var (
	orgID      = int64(7)
	clinician  = domains.Principal{UserID: 1, Role: domains.RoleClinician, OrganizationID: &orgID}
	respondent = domains.Principal{UserID: 2, Role: domains.RoleRespondent, OrganizationID: &orgID}
)

type routerFixture struct {
	router         *mux.Router
	auth           *authMock
	questionnaires *questionnaireMock
	responses      *responseMock
	emails         *emailMock
	jobs           *jobsMock
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		auth:           new(authMock),
		questionnaires: new(questionnaireMock),
		responses:      new(responseMock),
		emails:         new(emailMock),
		jobs:           new(jobsMock),
	}
	f.router = Router(Services{
		Auth:           f.auth,
		Questionnaires: f.questionnaires,
		Responses:      f.responses,
		Emails:         f.emails,
		Jobs:           f.jobs,
	}, Options{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Limiter:    httpx.NewRateLimiter(1000, 1000),
		CronSecret: cronSecret,
		RefreshTTL: 3600,
	})
	t.Cleanup(func() {
		f.auth.AssertExpectations(t)
		f.questionnaires.AssertExpectations(t)
		f.responses.AssertExpectations(t)
		f.emails.AssertExpectations(t)
		f.jobs.AssertExpectations(t)
	})
	return f
}

func (f *routerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mindtrack_http_requests_total")
}

func TestAuthHandlers_Login(t *testing.T) {
	f := newRouterFixture(t)
	pair := domains.TokenPair{AccessToken: "a", RefreshToken: "r", ExpiresIn: 900}
	f.auth.On("Login", mock.Anything, "doc@example.com", "secret123").
		Return(pair, domains.User{ID: 1, Email: "doc@example.com"}, nil).Once()
	f.auth.On("Login", mock.Anything, "doc@example.com", "wrong").
		Return(domains.TokenPair{}, domains.User{}, fmt.Errorf("login: %w", service.ErrPasswordIncorrect)).Once()

	rec := f.do(http.MethodPost, "/api/auth/login", "", `{"email":"doc@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "a", body.AccessToken)
	assert.Equal(t, int64(1), body.User.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, refreshCookie, cookies[0].Name)
	assert.Equal(t, "r", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	rec = f.do(http.MethodPost, "/api/auth/login", "", `{"email":"doc@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, service.ErrPasswordIncorrect.Error(), decodeError(t, rec))

	rec = f.do(http.MethodPost, "/api/auth/login", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_RefreshFromCookie(t *testing.T) {
	f := newRouterFixture(t)
	f.auth.On("Refresh", mock.Anything, "from-cookie").Return(domains.TokenPair{AccessToken: "new"}, nil).Once()
	f.auth.On("Refresh", mock.Anything, "from-body").Return(domains.TokenPair{}, service.ErrTokenIncorrect).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookie, Value: "from-cookie"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"access_token":"new"`)

	rec = f.do(http.MethodPost, "/api/auth/refresh", "", `{"refreshToken":"from-body"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/refresh", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_RegisterPassesCaller(t *testing.T) {
	f := newRouterFixture(t)
	input := domains.UserCreate{FullName: "Sam", Email: "sam@example.com", Password: "longenough"}

	f.auth.On("Register", mock.Anything, (*domains.Principal)(nil), input).
		Return(domains.User{ID: 3}, nil).Once()
	f.auth.On("Register", mock.Anything, mock.MatchedBy(func(p *domains.Principal) bool {
		return p != nil && p.UserID == clinician.UserID
	}), input).Return(domains.User{}, service.ErrEmailTaken).Once()

	body := `{"full_name":"Sam","email":"sam@example.com","password":"longenough"}`
	rec := f.do(http.MethodPost, "/api/auth/register", "", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/auth/register", clinicianToken, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandlers_Me(t *testing.T) {
	f := newRouterFixture(t)
	f.auth.On("Me", mock.Anything, clinician.UserID).Return(domains.User{ID: 1, FullName: "Dr Who"}, nil).Once()

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/auth/me", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/auth/me", "bogus", "").Code)

	rec := f.do(http.MethodGet, "/api/auth/me", clinicianToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Dr Who")
}

func TestQuestionnaireHandlers_RolesAndErrors(t *testing.T) {
	f := newRouterFixture(t)
	published := domains.Questionnaire{ID: 5, Title: "PHQ-9", Status: domains.QuestionnairePublished}

	f.questionnaires.On("List", mock.Anything, respondent, domains.QuestionnaireFilter{Status: "published", Category: "depression"}).
		Return([]domains.QuestionnaireSummary{{Questionnaire: published, QuestionCount: 9}}, nil).Once()
	f.questionnaires.On("Publish", mock.Anything, clinician, int64(5)).Return(published, nil).Once()
	f.questionnaires.On("Publish", mock.Anything, clinician, int64(6)).Return(domains.Questionnaire{}, service.ErrQuestionnaireEmpty).Once()
	f.questionnaires.On("Get", mock.Anything, clinician, int64(404)).Return(domains.Questionnaire{}, fmt.Errorf("get questionnaire: %w", storage.ErrNotFound)).Once()
	f.questionnaires.On("AddQuestion", mock.Anything, clinician, int64(5), mock.Anything).
		Return(domains.Question{}, &service.ValidationError{Message: "options must have distinct values"}).Once()

	rec := f.do(http.MethodGet, "/api/questionnaires?status=published&category=depression", respondentToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"question_count":9`)

	rec = f.do(http.MethodPost, "/api/questionnaires", respondentToken, `{"title":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/5/publish", clinicianToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/6/publish", clinicianToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/questionnaires/404", clinicianToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/5/questions", clinicianToken, `{"code":"q1","type":"likert"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "options must have distinct values", decodeError(t, rec))

	rec = f.do(http.MethodGet, "/api/questionnaires", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestQuestionnaireHandlers_ReorderAndDeleteQuestion(t *testing.T) {
	f := newRouterFixture(t)
	f.questionnaires.On("ReorderQuestions", mock.Anything, clinician, int64(5), domains.QuestionOrder{QuestionIDs: []int64{3, 1, 2}}).
		Return([]domains.Question{{ID: 3}, {ID: 1}, {ID: 2}}, nil).Once()
	f.questionnaires.On("DeleteQuestion", mock.Anything, clinician, int64(5), int64(2)).Return(service.ErrQuestionnaireLocked).Once()

	rec := f.do(http.MethodPut, "/api/questionnaires/5/questions/order", clinicianToken, `{"question_ids":[3,1,2]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodDelete, "/api/questionnaires/5/questions/2", clinicianToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResponseHandlers_PublicFlow(t *testing.T) {
	f := newRouterFixture(t)
	access := domains.QuestionnaireAccess{Questionnaire: domains.Questionnaire{ID: 5, Title: "PHQ-9"}}
	f.responses.On("Access", mock.Anything, "tok").Return(access, nil).Twice()
	f.responses.On("Access", mock.Anything, "old").Return(domains.QuestionnaireAccess{}, service.ErrInvitationExpired).Once()
	f.responses.On("Start", mock.Anything, "tok").Return(domains.StartResult{}, nil).Once()

	score := 12.0
	f.responses.On("SubmitByToken", mock.Anything, mock.MatchedBy(func(s domains.ResponseSubmission) bool {
		return s.Token == "tok" && len(s.Answers) == 1 && s.Answers[0].QuestionCode == "phq1"
	})).Return(domains.Response{ID: 9, TotalScore: &score}, nil).Once()
	f.responses.On("SubmitByToken", mock.Anything, mock.Anything).Return(domains.Response{}, service.ErrInvitationClosed).Once()

	rec := f.do(http.MethodGet, "/api/public/access?token=tok", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PHQ-9")

	rec = f.do(http.MethodPost, "/api/public/access", "", `{"token":"tok"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/public/access?token=old", "", "")
	assert.Equal(t, http.StatusGone, rec.Code)

	rec = f.do(http.MethodGet, "/api/public/access", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/api/public/start", "", `{"token":"tok"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/public/submit", "", `{"token":"tok","answers":[{"question_code":"phq1","value_number":3}]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_score":12`)

	rec = f.do(http.MethodPost, "/api/public/submit", "", `{"token":"tok","answers":[]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/public/submit", "", `{"answers":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResponseHandlers_AssignAndSubmit(t *testing.T) {
	f := newRouterFixture(t)
	f.responses.On("Assign", mock.Anything, clinician, int64(5), mock.MatchedBy(func(in domains.AssignmentCreate) bool {
		return len(in.Recipients) == 1 && in.Recipients[0].Email == "p@example.com"
	})).Return([]domains.Invitation{{AssignmentID: 1, Token: "t"}}, nil).Once()
	f.responses.On("Assign", mock.Anything, clinician, int64(6), mock.Anything).Return([]domains.Invitation(nil), service.ErrAssignmentExists).Once()
	f.responses.On("Submit", mock.Anything, respondent, int64(5), mock.Anything).Return(domains.Response{ID: 4}, nil).Once()
	f.responses.On("ListResponses", mock.Anything, clinician, int64(5), domains.ResponseFilter{State: "submitted", Limit: 10}).
		Return([]domains.Response{{ID: 4}}, nil).Once()

	rec := f.do(http.MethodPost, "/api/questionnaires/5/assignments", clinicianToken, `{"recipients":[{"email":"p@example.com"}]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/6/assignments", clinicianToken, `{"recipients":[{"email":"p@example.com"}]}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/5/assignments", respondentToken, `{"recipients":[]}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/questionnaires/5/responses", respondentToken, `{"answers":[{"question_id":1,"value_number":2}]}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodGet, "/api/questionnaires/5/responses?state=submitted&limit=10", clinicianToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/questionnaires/5/responses?limit=-1", clinicianToken, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEmailHandlers_Tracking(t *testing.T) {
	f := newRouterFixture(t)
	f.emails.On("TrackOpen", mock.Anything, "known").Return(nil).Once()
	f.emails.On("TrackOpen", mock.Anything, "unknown").Return(storage.ErrNotFound).Once()
	f.emails.On("TrackClick", mock.Anything, "known", "https://example.com/a?b=1").Return("https://example.com/a?b=1", nil).Once()
	f.emails.On("TrackClick", mock.Anything, "known", "javascript:alert(1)").Return("", service.ErrUnsafeRedirect).Once()
	f.emails.On("TrackClick", mock.Anything, "unknown", "https://example.com").Return("", storage.ErrNotFound).Once()

	for _, id := range []string{"known", "unknown"} {
		rec := f.do(http.MethodGet, "/api/email/track/open/"+id, "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
		assert.Equal(t, mailer.TransparentGIF, rec.Body.Bytes())
	}

	rec := f.do(http.MethodGet, "/api/email/track/click/known?url=https%3A%2F%2Fexample.com%2Fa%3Fb%3D1", "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/a?b=1", rec.Header().Get("Location"))

	rec = f.do(http.MethodGet, "/api/email/track/click/known?url=javascript%3Aalert(1)", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/email/track/click/unknown?url=https%3A%2F%2Fexample.com", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEmailHandlers_SendAndLogs(t *testing.T) {
	f := newRouterFixture(t)
	tpl := int64(3)
	f.emails.On("Send", mock.Anything, clinician, mock.MatchedBy(func(req domains.EmailSendRequest) bool {
		return req.SendAt == nil && *req.TemplateID == tpl
	})).Return([]domains.EmailLog{{ID: 1, Status: domains.EmailSent}}, nil).Once()
	f.emails.On("Send", mock.Anything, clinician, mock.MatchedBy(func(req domains.EmailSendRequest) bool {
		return req.SendAt != nil
	})).Return([]domains.EmailLog{{ID: 2, Status: domains.EmailScheduled}}, nil).Once()
	f.emails.On("ListLogs", mock.Anything, clinician, domains.EmailLogFilter{Status: "failed", TemplateID: &tpl, Limit: 20}).
		Return([]domains.EmailLog{}, nil).Once()
	f.emails.On("Cancel", mock.Anything, clinician, int64(1)).Return(domains.EmailLog{}, service.ErrEmailNotCancellable).Once()

	rec := f.do(http.MethodPost, "/api/email/send", clinicianToken, `{"template_id":3,"recipients":[{"email":"a@example.com"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/email/send", clinicianToken, `{"template_id":3,"recipients":[{"email":"a@example.com"}],"send_at":"2030-01-01T09:00:00Z"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(http.MethodGet, "/api/email/logs?status=failed&template_id=3&limit=20", clinicianToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/email/logs/1/cancel", clinicianToken, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/api/email/logs", respondentToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEmailHandlers_Cron(t *testing.T) {
	f := newRouterFixture(t)
	f.jobs.On("RunAll", mock.Anything).Return(domains.DispatchReport{Sent: 3, Reminders: 1, Expired: 2}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/cron/email", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/cron/email", nil)
	req.Header.Set(httpx.CronSecretHeader, cronSecret)
	rec = httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sent":3,"failed":0,"retried":0,"reminders":1,"expired":2}`, rec.Body.String())
}

func TestResponseHandlers_RespondentReadsOwnResponse(t *testing.T) {
	f := newRouterFixture(t)
	respondentID := respondent.UserID
	f.responses.On("GetResponse", mock.Anything, respondent, int64(31)).
		Return(domains.ResponseDetails{Response: domains.Response{ID: 31, RespondentID: &respondentID, State: domains.ResponseSubmitted}}, nil).Once()
	f.responses.On("GetResponse", mock.Anything, respondent, int64(32)).
		Return(domains.ResponseDetails{}, fmt.Errorf("get response: %w", service.ErrForbidden)).Once()

	rec := f.do(http.MethodGet, "/api/responses/31", respondentToken, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body domains.ResponseDetails
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(31), body.Response.ID)

	rec = f.do(http.MethodGet, "/api/responses/32", respondentToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/api/responses/31/rescore", respondentToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "rescoring stays with managers")

	rec = f.do(http.MethodGet, "/api/responses/31", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
