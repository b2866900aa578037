package service

import (
	"context"
	"errors"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const maxDelayHours = 24 * 90

type AutomationService struct {
	provider       AutomationProvider
	templates      TemplateReader
	questionnaires QuestionnaireReader
}

type AutomationProvider interface {
	SaveAutomation(ctx context.Context, organizationID int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error)
	GetAutomation(ctx context.Context, id int64) (domains.EmailAutomation, error)
	ListAutomations(ctx context.Context, organizationID int64) ([]domains.EmailAutomation, error)
	UpdateAutomation(ctx context.Context, id int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error)
	DeleteAutomation(ctx context.Context, id int64) error
}

func NewAutomationService(provider AutomationProvider, templates TemplateReader, questionnaires QuestionnaireReader) *AutomationService {
	return &AutomationService{provider: provider, templates: templates, questionnaires: questionnaires}
}

func (s *AutomationService) Create(ctx context.Context, caller domains.Principal, organizationID *int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error) {
	if !caller.CanManage() {
		return domains.EmailAutomation{}, ErrForbidden
	}
	orgID, err := organizationFor(caller, organizationID)
	if err != nil {
		return domains.EmailAutomation{}, err
	}
	if err := s.validate(ctx, orgID, input); err != nil {
		return domains.EmailAutomation{}, err
	}
	return s.provider.SaveAutomation(ctx, orgID, input)
}

func (s *AutomationService) List(ctx context.Context, caller domains.Principal, organizationID *int64) ([]domains.EmailAutomation, error) {
	if !caller.CanManage() {
		return nil, ErrForbidden
	}
	orgID, err := organizationFor(caller, organizationID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListAutomations(ctx, orgID)
}

func (s *AutomationService) Get(ctx context.Context, caller domains.Principal, id int64) (domains.EmailAutomation, error) {
	automation, err := s.provider.GetAutomation(ctx, id)
	if err != nil {
		return domains.EmailAutomation{}, err
	}
	if !caller.CanManage() || !caller.InOrganization(automation.OrganizationID) {
		return domains.EmailAutomation{}, ErrForbidden
	}
	return automation, nil
}

func (s *AutomationService) Update(ctx context.Context, caller domains.Principal, id int64, input domains.EmailAutomationInput) (domains.EmailAutomation, error) {
	existing, err := s.Get(ctx, caller, id)
	if err != nil {
		return domains.EmailAutomation{}, err
	}
	if err := s.validate(ctx, existing.OrganizationID, input); err != nil {
		return domains.EmailAutomation{}, err
	}
	return s.provider.UpdateAutomation(ctx, id, input)
}

func (s *AutomationService) Delete(ctx context.Context, caller domains.Principal, id int64) error {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return err
	}
	return s.provider.DeleteAutomation(ctx, id)
}

func (s *AutomationService) validate(ctx context.Context, organizationID int64, input domains.EmailAutomationInput) error {
	switch input.Trigger {
	case domains.TriggerAssignmentCreated, domains.TriggerResponseSubmitted:
	case domains.TriggerReminder:
		if input.MaxReminders < 1 {
			return validationf("reminder automations need max_reminders of at least 1")
		}
		if input.DelayHours < 1 {
			return validationf("reminder automations need delay_hours of at least 1")
		}
	default:
		return validationf("unknown trigger %q", input.Trigger)
	}
	if input.DelayHours < 0 || input.DelayHours > maxDelayHours {
		return validationf("delay_hours must be between 0 and %d", maxDelayHours)
	}
	if input.MaxReminders < 0 {
		return validationf("max_reminders must not be negative")
	}

	template, err := s.templates.GetTemplate(ctx, input.TemplateID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return validationf("template %d does not exist", input.TemplateID)
		}
		return err
	}
	if template.OrganizationID != organizationID {
		return validationf("template %d does not exist", input.TemplateID)
	}

	if input.QuestionnaireID != nil {
		q, err := s.questionnaires.GetQuestionnaire(ctx, *input.QuestionnaireID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return validationf("questionnaire %d does not exist", *input.QuestionnaireID)
			}
			return err
		}
		if q.OrganizationID != organizationID {
			return validationf("questionnaire %d does not exist", *input.QuestionnaireID)
		}
	}
	return nil
}
