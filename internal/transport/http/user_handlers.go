package httptransport

import (
	"context"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
)

type OrganizationHandlers struct {
	service OrganizationServices
	users   UserServices
}

type OrganizationServices interface {
	Create(ctx context.Context, caller domains.Principal, input domains.OrganizationCreate) (domains.Organization, error)
	Get(ctx context.Context, caller domains.Principal, id int64) (domains.Organization, error)
	List(ctx context.Context, caller domains.Principal) ([]domains.Organization, error)
	Update(ctx context.Context, caller domains.Principal, id int64, update domains.OrganizationUpdate) (domains.Organization, error)
	Delete(ctx context.Context, caller domains.Principal, id int64) error
}

type UserServices interface {
	ListByOrganization(ctx context.Context, caller domains.Principal, organizationID int64) ([]domains.User, error)
	Get(ctx context.Context, caller domains.Principal, id int64) (domains.User, error)
}

func NewOrganizationHandlers(service OrganizationServices, users UserServices) *OrganizationHandlers {
	return &OrganizationHandlers{service: service, users: users}
}

func (h *OrganizationHandlers) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	input, ok := readBody[domains.OrganizationCreate](w, r)
	if !ok {
		return
	}
	org, err := h.service.Create(r.Context(), p, input)
	if err != nil {
		writeError(w, r, "CreateOrganization", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, org)
}

func (h *OrganizationHandlers) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgs, err := h.service.List(r.Context(), p)
	if err != nil {
		writeError(w, r, "ListOrganizations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, orgs)
}

func (h *OrganizationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	org, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetOrganization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *OrganizationHandlers) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	update, ok := readBody[domains.OrganizationUpdate](w, r)
	if !ok {
		return
	}
	org, err := h.service.Update(r.Context(), p, id, update)
	if err != nil {
		writeError(w, r, "UpdateOrganization", err)
		return
	}
	httpx.JSON(w, http.StatusOK, org)
}

func (h *OrganizationHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, "DeleteOrganization", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrganizationHandlers) Members(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	users, err := h.users.ListByOrganization(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "ListMembers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, users)
}

func (h *OrganizationHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetUser", err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}
