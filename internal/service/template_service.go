package service

import (
	"context"
	"log/slog"
	"strings"

	"mindtrack/internal/domains"
	"mindtrack/internal/mailer"
)

type TemplateService struct {
	provider TemplateProvider
}

type TemplateReader interface {
	GetTemplate(ctx context.Context, id int64) (domains.EmailTemplate, error)
}

type TemplateProvider interface {
	TemplateReader
	SaveTemplate(ctx context.Context, organizationID int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error)
	ListTemplates(ctx context.Context, organizationID int64) ([]domains.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, id int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error)
	DeleteTemplate(ctx context.Context, id int64) error
}

func NewTemplateService(provider TemplateProvider) *TemplateService {
	return &TemplateService{
		provider: provider,
	}
}

func (h *TemplateService) CreateTemplate(ctx context.Context, caller domains.Principal, organizationID *int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error) {
	if !caller.CanManage() {
		return domains.EmailTemplate{}, ErrForbidden
	}
	orgID, err := organizationFor(caller, organizationID)
	if err != nil {
		return domains.EmailTemplate{}, err
	}
	input, err = validateTemplate(input)
	if err != nil {
		return domains.EmailTemplate{}, err
	}

	template, err := h.provider.SaveTemplate(ctx, orgID, input)
	if err != nil {
		slog.Error("save template failed", "err", err, "organization_id", orgID)
		return domains.EmailTemplate{}, err
	}
	return template, nil
}

func (h *TemplateService) ListTemplates(ctx context.Context, caller domains.Principal, organizationID *int64) ([]domains.EmailTemplate, error) {
	if !caller.CanManage() {
		return nil, ErrForbidden
	}
	orgID, err := organizationFor(caller, organizationID)
	if err != nil {
		return nil, err
	}
	return h.provider.ListTemplates(ctx, orgID)
}

func (h *TemplateService) GetTemplate(ctx context.Context, caller domains.Principal, id int64) (domains.EmailTemplate, error) {
	template, err := h.provider.GetTemplate(ctx, id)
	if err != nil {
		return domains.EmailTemplate{}, err
	}
	if !caller.CanManage() || !caller.InOrganization(template.OrganizationID) {
		return domains.EmailTemplate{}, ErrForbidden
	}
	return template, nil
}

func (h *TemplateService) UpdateTemplate(ctx context.Context, caller domains.Principal, id int64, input domains.EmailTemplateInput) (domains.EmailTemplate, error) {
	if _, err := h.GetTemplate(ctx, caller, id); err != nil {
		return domains.EmailTemplate{}, err
	}
	input, err := validateTemplate(input)
	if err != nil {
		return domains.EmailTemplate{}, err
	}
	return h.provider.UpdateTemplate(ctx, id, input)
}

func (h *TemplateService) DeleteTemplate(ctx context.Context, caller domains.Principal, id int64) error {
	if _, err := h.GetTemplate(ctx, caller, id); err != nil {
		return err
	}
	return h.provider.DeleteTemplate(ctx, id)
}

// PreviewTemplate renders a stored template with sample values for the standard
// variables, overridden by the ones supplied.
func (h *TemplateService) PreviewTemplate(ctx context.Context, caller domains.Principal, id int64, variables map[string]string) (domains.RenderedEmail, error) {
	template, err := h.GetTemplate(ctx, caller, id)
	if err != nil {
		return domains.RenderedEmail{}, err
	}

	sample := map[string]string{
		mailer.VarRecipientName:      "Alex Example",
		mailer.VarQuestionnaireTitle: "PHQ-9",
		mailer.VarLink:               "https://example.com/q?token=preview",
		mailer.VarOrganizationName:   "Example Clinic",
		mailer.VarExpiresAt:          "2030-01-01",
	}
	rendered, err := mailer.Render(template.Subject, template.BodyHTML, stringValue(template.BodyText), mailer.MergeVariables(sample, variables))
	if err != nil {
		return domains.RenderedEmail{}, &ValidationError{Message: err.Error()}
	}
	return rendered, nil
}

func validateTemplate(input domains.EmailTemplateInput) (domains.EmailTemplateInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Subject = strings.TrimSpace(input.Subject)
	if input.Name == "" {
		return input, validationf("name is required")
	}
	if input.Subject == "" {
		return input, validationf("subject is required")
	}
	if strings.TrimSpace(input.BodyHTML) == "" {
		return input, validationf("body_html is required")
	}
	input.Category = trimmedOrNil(input.Category)
	if err := mailer.Check(input.Subject, input.BodyHTML, input.BodyText); err != nil {
		return input, &ValidationError{Message: err.Error()}
	}
	return input, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
