// Package app wires configuration, storage and services into the pieces the binaries run.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/config"
	"mindtrack/internal/mailer"
	"mindtrack/internal/scheduler"
	"mindtrack/internal/scoring"
	"mindtrack/internal/service"
	"mindtrack/internal/storage"
	"mindtrack/internal/storage/memory"
	"mindtrack/internal/storage/providers"
	httptransport "mindtrack/internal/transport/http"
)

type App struct {
	DB       *pgxpool.Pool
	Services httptransport.Services
	Jobs     *scheduler.Jobs
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	db, err := storage.InitDB(ctx, cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sender, err := mailer.NewSender(cfg.SMTP)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("email sender: %w", err)
	}

	all := providers.New(db)

	var (
		questionnaires service.QuestionnaireProvider = all.QuestionnaireProvider
		configs        service.ScoringProvider       = all.ScoringProvider
	)
	if cfg.Storage.Questionnaires == "memory" {
		store := memory.NewQuestionnaireStore(cfg.Storage.SeedOrganizationID, cfg.Storage.SeedOwnerID)
		questionnaires, configs = store, store
		log.Warn("questionnaires are kept in memory", "organization_id", cfg.Storage.SeedOrganizationID)
	}

	engine := scoring.NewEngine()
	tokens := service.NewInvitationTokens(cfg.JWT.Secret, cfg.Invitations.TTL, cfg.Invitations.PublicBaseURL)

	emails := service.NewEmailService(service.EmailServiceDeps{
		Templates:     all.TemplateProvider,
		Logs:          all.EmailLogProvider,
		Automations:   all.AutomationProvider,
		Reminders:     all.AssignmentProvider,
		Organizations: all.OrganizationProvider,
		Tokens:        tokens,
		Sender:        sender,
		Settings: service.EmailSettings{
			BatchSize:   cfg.Email.BatchSize,
			MaxAttempts: cfg.Email.MaxAttempts,
			APIBaseURL:  cfg.Invitations.APIBaseURL,
		},
	})
	responses := service.NewResponseService(service.ResponseServiceDeps{
		Questionnaires: questionnaires,
		Configs:        configs,
		Assignments:    all.AssignmentProvider,
		Responses:      all.ResponseProvider,
		Users:          all.UserProvider,
		Notifier:       emails,
		Tokens:         tokens,
		Engine:         engine,
	})
	jobs := scheduler.NewJobs(emails, responses, log)

	return &App{
		DB:   db,
		Jobs: jobs,
		Services: httptransport.Services{
			Auth:           service.NewAuthService(all.UserProvider, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL),
			Organizations:  service.NewOrganizationService(all.OrganizationProvider),
			Users:          service.NewUserService(all.UserProvider),
			Questionnaires: service.NewQuestionnaireService(questionnaires),
			Scoring:        service.NewScoringService(questionnaires, configs, engine),
			Responses:      responses,
			Analytics:      service.NewAnalyticsService(questionnaires, all.AssignmentProvider, all.ResponseProvider, all.EmailLogProvider),
			Templates:      service.NewTemplateService(all.TemplateProvider),
			Automations:    service.NewAutomationService(all.AutomationProvider, all.TemplateProvider, questionnaires),
			Emails:         emails,
			Jobs:           jobs,
		},
	}, nil
}
