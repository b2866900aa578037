package httptransport

import (
	"context"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
)

type TemplateHandlers struct {
	service     TemplateServices
	automations AutomationServices
}

type TemplateServices interface {
	CreateTemplate(ctx context.Context, caller domains.Principal, organizationID *int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error)
	ListTemplates(ctx context.Context, caller domains.Principal, organizationID *int64) ([]domains.EmailTemplate, error)
	GetTemplate(ctx context.Context, caller domains.Principal, id int64) (domains.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, caller domains.Principal, id int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error)
	DeleteTemplate(ctx context.Context, caller domains.Principal, id int64) error
	PreviewTemplate(ctx context.Context, caller domains.Principal, id int64, variables map[string]string) (domains.RenderedEmail, error)
}

type AutomationServices interface {
	Create(ctx context.Context, caller domains.Principal, organizationID *int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error)
	List(ctx context.Context, caller domains.Principal, organizationID *int64) ([]domains.EmailAutomation, error)
	Get(ctx context.Context, caller domains.Principal, id int64) (domains.EmailAutomation, error)
	Update(ctx context.Context, caller domains.Principal, id int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error)
	Delete(ctx context.Context, caller domains.Principal, id int64) error
}

func NewTemplateHandlers(service TemplateServices, automations AutomationServices) *TemplateHandlers {
	return &TemplateHandlers{
		service:     service,
		automations: automations,
	}
}

func organizationQuery(w http.ResponseWriter, r *http.Request) (*int64, bool) {
	orgID, err := httpx.QueryID(r, "organization_id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return orgID, true
}

func (h *TemplateHandlers) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := organizationQuery(w, r)
	if !ok {
		return
	}
	templateData, ok := readBody[domains.EmailTemplateInput](w, r)
	if !ok {
		return
	}
	created, err := h.service.CreateTemplate(r.Context(), p, orgID, templateData)
	if err != nil {
		writeError(w, r, "CreateTemplate", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *TemplateHandlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := organizationQuery(w, r)
	if !ok {
		return
	}
	templates, err := h.service.ListTemplates(r.Context(), p, orgID)
	if err != nil {
		writeError(w, r, "ListTemplates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, templates)
}

func (h *TemplateHandlers) GetTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	template, err := h.service.GetTemplate(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetTemplate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, template)
}

func (h *TemplateHandlers) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := readBody[domains.EmailTemplateInput](w, r)
	if !ok {
		return
	}
	template, err := h.service.UpdateTemplate(r.Context(), p, id, input)
	if err != nil {
		writeError(w, r, "UpdateTemplate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, template)
}

func (h *TemplateHandlers) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteTemplate(r.Context(), p, id); err != nil {
		writeError(w, r, "DeleteTemplate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req domains.EmailPreviewRequest
	if r.ContentLength > 0 {
		if req, ok = readBody[domains.EmailPreviewRequest](w, r); !ok {
			return
		}
	}
	rendered, err := h.service.PreviewTemplate(r.Context(), p, id, req.Variables)
	if err != nil {
		writeError(w, r, "PreviewTemplate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rendered)
}

func (h *TemplateHandlers) CreateAutomation(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := organizationQuery(w, r)
	if !ok {
		return
	}
	input, ok := readBody[domains.EmailAutomationInput](w, r)
	if !ok {
		return
	}
	created, err := h.automations.Create(r.Context(), p, orgID, input)
	if err != nil {
		writeError(w, r, "CreateAutomation", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *TemplateHandlers) ListAutomations(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, ok := organizationQuery(w, r)
	if !ok {
		return
	}
	automations, err := h.automations.List(r.Context(), p, orgID)
	if err != nil {
		writeError(w, r, "ListAutomations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, automations)
}

func (h *TemplateHandlers) GetAutomation(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	automation, err := h.automations.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetAutomation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, automation)
}

func (h *TemplateHandlers) UpdateAutomation(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := readBody[domains.EmailAutomationInput](w, r)
	if !ok {
		return
	}
	automation, err := h.automations.Update(r.Context(), p, id, input)
	if err != nil {
		writeError(w, r, "UpdateAutomation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, automation)
}

func (h *TemplateHandlers) DeleteAutomation(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.automations.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, "DeleteAutomation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
