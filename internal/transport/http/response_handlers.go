package httptransport

import (
	"context"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
)

type ResponseHandlers struct {
	service   ResponseServices
	analytics AnalyticsServices
}

type ResponseServices interface {
	Assign(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.AssignmentCreate) ([]domains.Invitation, error)
	ListAssignments(ctx context.Context, caller domains.Principal, questionnaireID int64) ([]domains.Assignment, error)
	Revoke(ctx context.Context, caller domains.Principal, questionnaireID, assignmentID int64) (domains.Assignment, error)
	Access(ctx context.Context, token string) (domains.QuestionnaireAccess, error)
	Start(ctx context.Context, token string) (domains.StartResult, error)
	SubmitByToken(ctx context.Context, submission domains.ResponseSubmission) (domains.Response, error)
	Submit(ctx context.Context, caller domains.Principal, questionnaireID int64, answers []domains.AnswerInput) (domains.Response, error)
	ListResponses(ctx context.Context, caller domains.Principal, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error)
	GetResponse(ctx context.Context, caller domains.Principal, id int64) (domains.ResponseDetails, error)
	Rescore(ctx context.Context, caller domains.Principal, id int64) (domains.Response, error)
}

type AnalyticsServices interface {
	Questionnaire(ctx context.Context, caller domains.Principal, questionnaireID int64, days int) (domains.QuestionnaireAnalytics, error)
	Email(ctx context.Context, caller domains.Principal, organizationID *int64, templateID *int64) (domains.EmailAnalytics, error)
}

func NewResponseHandlers(service ResponseServices, analytics AnalyticsServices) *ResponseHandlers {
	return &ResponseHandlers{service: service, analytics: analytics}
}

func (h *ResponseHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := readBody[domains.AssignmentCreate](w, r)
	if !ok {
		return
	}
	invitations, err := h.service.Assign(r.Context(), p, id, input)
	if err != nil {
		writeError(w, r, "Assign", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invitations)
}

func (h *ResponseHandlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignments, err := h.service.ListAssignments(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "ListAssignments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignments)
}

func (h *ResponseHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	assignmentID, ok := pathID(w, r, "assignmentId")
	if !ok {
		return
	}
	assignment, err := h.service.Revoke(r.Context(), p, id, assignmentID)
	if err != nil {
		writeError(w, r, "Revoke", err)
		return
	}
	httpx.JSON(w, http.StatusOK, assignment)
}

// invitationToken reads the token from the query string, falling back to a JSON body on POST.
func invitationToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method != http.MethodGet {
		request, ok := readBody[domains.AccessRequest](w, r)
		if !ok {
			return "", false
		}
		token = request.Token
	}
	if token == "" {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return "", false
	}
	return token, true
}

func (h *ResponseHandlers) Access(w http.ResponseWriter, r *http.Request) {
	token, ok := invitationToken(w, r)
	if !ok {
		return
	}
	access, err := h.service.Access(r.Context(), token)
	if err != nil {
		writeError(w, r, "AccessByToken", err)
		return
	}
	httpx.JSON(w, http.StatusOK, access)
}

func (h *ResponseHandlers) Start(w http.ResponseWriter, r *http.Request) {
	token, ok := invitationToken(w, r)
	if !ok {
		return
	}
	started, err := h.service.Start(r.Context(), token)
	if err != nil {
		writeError(w, r, "StartByToken", err)
		return
	}
	httpx.JSON(w, http.StatusOK, started)
}

func (h *ResponseHandlers) SubmitByToken(w http.ResponseWriter, r *http.Request) {
	submission, ok := readBody[domains.ResponseSubmission](w, r)
	if !ok {
		return
	}
	if submission.Token == "" {
		submission.Token = r.URL.Query().Get("token")
	}
	if submission.Token == "" {
		httpx.Error(w, http.StatusBadRequest, "token is required")
		return
	}
	response, err := h.service.SubmitByToken(r.Context(), submission)
	if err != nil {
		writeError(w, r, "SubmitByToken", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, response)
}

func (h *ResponseHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	body, ok := readBody[AnswersRequest](w, r)
	if !ok {
		return
	}
	response, err := h.service.Submit(r.Context(), p, id, body.Answers)
	if err != nil {
		writeError(w, r, "Submit", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, response)
}

func (h *ResponseHandlers) ListResponses(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 0)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	responses, err := h.service.ListResponses(r.Context(), p, id, domains.ResponseFilter{
		State: r.URL.Query().Get("state"),
		Limit: limit,
	})
	if err != nil {
		writeError(w, r, "ListResponses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, responses)
}

func (h *ResponseHandlers) GetResponse(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	details, err := h.service.GetResponse(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetResponse", err)
		return
	}
	httpx.JSON(w, http.StatusOK, details)
}

func (h *ResponseHandlers) Rescore(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	response, err := h.service.Rescore(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "Rescore", err)
		return
	}
	httpx.JSON(w, http.StatusOK, response)
}

func (h *ResponseHandlers) QuestionnaireAnalytics(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	days, err := httpx.QueryInt(r, "days", 0)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.analytics.Questionnaire(r.Context(), p, id, days)
	if err != nil {
		writeError(w, r, "QuestionnaireAnalytics", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *ResponseHandlers) EmailAnalytics(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, err := httpx.QueryID(r, "organization_id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	templateID, err := httpx.QueryID(r, "template_id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	report, err := h.analytics.Email(r.Context(), p, orgID, templateID)
	if err != nil {
		writeError(w, r, "EmailAnalytics", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
