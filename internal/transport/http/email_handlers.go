package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
	"mindtrack/internal/mailer"
	"mindtrack/internal/storage"
)

type EmailHandlers struct {
	service EmailServices
	jobs    CronJobs
}

type EmailServices interface {
	Send(ctx context.Context, caller domains.Principal, req domains.EmailSendRequest) ([]domains.EmailLog, error)
	Cancel(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error)
	GetLog(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error)
	ListLogs(ctx context.Context, caller domains.Principal, filter domains.EmailLogFilter) ([]domains.EmailLog, error)
	TrackOpen(ctx context.Context, trackingID string) error
	TrackClick(ctx context.Context, trackingID, target string) (string, error)
}

// CronJobs runs one pass of expiry, reminders and due email dispatch.
type CronJobs interface {
	RunAll(ctx context.Context) (domains.DispatchReport, error)
}

func NewEmailHandlers(service EmailServices, jobs CronJobs) *EmailHandlers {
	return &EmailHandlers{service: service, jobs: jobs}
}

func (h *EmailHandlers) Send(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	req, ok := readBody[domains.EmailSendRequest](w, r)
	if !ok {
		return
	}
	logs, err := h.service.Send(r.Context(), p, req)
	if err != nil {
		writeError(w, r, "SendEmail", err)
		return
	}
	status := http.StatusOK
	if req.SendAt != nil {
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, logs)
}

func (h *EmailHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	log, err := h.service.Cancel(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "CancelEmail", err)
		return
	}
	httpx.JSON(w, http.StatusOK, log)
}

func (h *EmailHandlers) GetLog(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	log, err := h.service.GetLog(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetEmailLog", err)
		return
	}
	httpx.JSON(w, http.StatusOK, log)
}

func (h *EmailHandlers) ListLogs(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	filter := domains.EmailLogFilter{Status: r.URL.Query().Get("status")}
	var err error
	if filter.OrganizationID, err = httpx.QueryID(r, "organization_id"); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.TemplateID, err = httpx.QueryID(r, "template_id"); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit, err = httpx.QueryInt(r, "limit", 0); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Offset, err = httpx.QueryInt(r, "offset", 0); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := h.service.ListLogs(r.Context(), p, filter)
	if err != nil {
		writeError(w, r, "ListEmailLogs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, logs)
}

// TrackOpen always answers with the pixel so mail clients never render a broken image.
func (h *EmailHandlers) TrackOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["trackingId"]
	if err := h.service.TrackOpen(r.Context(), trackingID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		slog.Error("TrackOpen failed", "err", err, "tracking_id", trackingID)
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(mailer.TransparentGIF)
}

func (h *EmailHandlers) TrackClick(w http.ResponseWriter, r *http.Request) {
	trackingID := mux.Vars(r)["trackingId"]
	redirect, err := h.service.TrackClick(r.Context(), trackingID, r.URL.Query().Get("url"))
	if err != nil {
		writeError(w, r, "TrackClick", err)
		return
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *EmailHandlers) RunCron(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.RunAll(r.Context())
	if err != nil {
		writeError(w, r, "RunCron", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
