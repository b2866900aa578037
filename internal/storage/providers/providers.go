package providers

import "github.com/jackc/pgx/v5/pgxpool"

type Providers struct {
	UserProvider          *UserProvider
	OrganizationProvider  *OrganizationProvider
	QuestionnaireProvider *QuestionnaireProvider
	ScoringProvider       *ScoringProvider
	AssignmentProvider    *AssignmentProvider
	ResponseProvider      *ResponseProvider
	TemplateProvider      *TemplateProvider
	EmailLogProvider      *EmailLogProvider
	AutomationProvider    *AutomationProvider
}

func New(db *pgxpool.Pool) *Providers {
	return &Providers{
		UserProvider:          NewUserProvider(db),
		OrganizationProvider:  NewOrganizationProvider(db),
		QuestionnaireProvider: NewQuestionnaireProvider(db),
		ScoringProvider:       NewScoringProvider(db),
		AssignmentProvider:    NewAssignmentProvider(db),
		ResponseProvider:      NewResponseProvider(db),
		TemplateProvider:      NewTemplateProvider(db),
		EmailLogProvider:      NewEmailLogProvider(db),
		AutomationProvider:    NewAutomationProvider(db),
	}
}
