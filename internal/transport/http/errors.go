package httptransport

import (
	"errors"
	"log/slog"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
	"mindtrack/internal/service"
	"mindtrack/internal/storage"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{storage.ErrNotFound, http.StatusNotFound},
	{service.ErrForbidden, http.StatusForbidden},
	{service.ErrUserDisabled, http.StatusForbidden},
	{service.ErrPasswordIncorrect, http.StatusUnauthorized},
	{service.ErrTokenIncorrect, http.StatusUnauthorized},
	{service.ErrInvitationInvalid, http.StatusUnauthorized},
	{service.ErrInvitationExpired, http.StatusGone},
	{service.ErrInvitationClosed, http.StatusConflict},
	{service.ErrEmailTaken, http.StatusConflict},
	{service.ErrAssignmentExists, http.StatusConflict},
	{service.ErrAssignmentNotOpen, http.StatusConflict},
	{service.ErrQuestionnaireClosed, http.StatusConflict},
	{service.ErrQuestionnaireEmpty, http.StatusConflict},
	{service.ErrQuestionnaireLocked, http.StatusConflict},
	{service.ErrEmailNotCancellable, http.StatusConflict},
	{service.ErrUnsafeRedirect, http.StatusBadRequest},
	{storage.ErrConflict, http.StatusConflict},
	{storage.ErrStateConflict, http.StatusConflict},
	{storage.ErrReferenceMissing, http.StatusBadRequest},
}

// writeError translates service and storage errors into a status code and a client message.
// Anything unrecognised is logged and reported as a 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		httpx.Error(w, http.StatusBadRequest, validation.Message)
		return
	}
	if errors.Is(err, service.ErrValidation) {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			httpx.Error(w, e.status, e.err.Error())
			return
		}
	}
	slog.Error(op+" failed", "err", err, "path", r.URL.Path)
	httpx.Error(w, http.StatusInternalServerError, "internal server error")
}

func caller(w http.ResponseWriter, r *http.Request) (domains.Principal, bool) {
	p, ok := httpx.PrincipalFromContext(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "Unauthorized")
	}
	return p, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := httpx.PathID(r, name)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	return id, true
}

func readBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	body, err := httpx.ReadBody[T](r)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return body, false
	}
	return body, true
}
