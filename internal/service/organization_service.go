package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugReplacer = regexp.MustCompile(`[^a-z0-9]+`)
)

type OrganizationService struct {
	provider OrganizationProvider
}

type OrganizationProvider interface {
	SaveOrganization(ctx context.Context, org domains.OrganizationCreate) (domains.Organization, error)
	GetOrganization(ctx context.Context, id int64) (domains.Organization, error)
	ListOrganizations(ctx context.Context) ([]domains.Organization, error)
	UpdateOrganization(ctx context.Context, id int64, update domains.OrganizationUpdate) (domains.Organization, error)
	DeleteOrganization(ctx context.Context, id int64) error
}

func NewOrganizationService(provider OrganizationProvider) *OrganizationService {
	return &OrganizationService{provider: provider}
}

func (s *OrganizationService) Create(ctx context.Context, caller domains.Principal, input domains.OrganizationCreate) (domains.Organization, error) {
	if !caller.IsAdmin() {
		return domains.Organization{}, ErrForbidden
	}

	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return domains.Organization{}, validationf("name is required")
	}
	input.Slug = strings.TrimSpace(input.Slug)
	if input.Slug == "" {
		input.Slug = slugify(input.Name)
	}
	if !slugPattern.MatchString(input.Slug) {
		return domains.Organization{}, validationf("slug must contain lowercase letters, digits and dashes")
	}

	org, err := s.provider.SaveOrganization(ctx, input)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domains.Organization{}, validationf("slug %q is already taken", input.Slug)
		}
		slog.Error("save organization failed", "err", err)
		return domains.Organization{}, err
	}
	return org, nil
}

func (s *OrganizationService) Get(ctx context.Context, caller domains.Principal, id int64) (domains.Organization, error) {
	if !caller.InOrganization(id) {
		return domains.Organization{}, ErrForbidden
	}
	return s.provider.GetOrganization(ctx, id)
}

// List returns every organization to admins and the caller's own one to everybody else.
func (s *OrganizationService) List(ctx context.Context, caller domains.Principal) ([]domains.Organization, error) {
	if caller.IsAdmin() {
		return s.provider.ListOrganizations(ctx)
	}
	if caller.OrganizationID == nil {
		return []domains.Organization{}, nil
	}
	org, err := s.provider.GetOrganization(ctx, *caller.OrganizationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return []domains.Organization{}, nil
		}
		return nil, err
	}
	return []domains.Organization{org}, nil
}

func (s *OrganizationService) Update(ctx context.Context, caller domains.Principal, id int64, update domains.OrganizationUpdate) (domains.Organization, error) {
	if !caller.CanManage() || !caller.InOrganization(id) {
		return domains.Organization{}, ErrForbidden
	}
	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return domains.Organization{}, validationf("name must not be empty")
		}
		update.Name = &name
	}
	return s.provider.UpdateOrganization(ctx, id, update)
}

func (s *OrganizationService) Delete(ctx context.Context, caller domains.Principal, id int64) error {
	if !caller.IsAdmin() {
		return ErrForbidden
	}
	return s.provider.DeleteOrganization(ctx, id)
}

func slugify(name string) string {
	return strings.Trim(slugReplacer.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
