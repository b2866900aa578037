package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
	"mindtrack/internal/metrics"
)

type Services struct {
	Auth           AuthServices
	Organizations  OrganizationServices
	Users          UserServices
	Questionnaires QuestionnaireServices
	Scoring        ScoringServices
	Responses      ResponseServices
	Analytics      AnalyticsServices
	Templates      TemplateServices
	Automations    AutomationServices
	Emails         EmailServices
	Jobs           CronJobs
}

type Options struct {
	Logger     *slog.Logger
	Limiter    *httpx.RateLimiter
	CronSecret string
	// RefreshTTL is the refresh cookie lifetime in seconds.
	RefreshTTL int
}

func Router(svc Services, opts Options) *mux.Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limiter == nil {
		opts.Limiter = httpx.NewRateLimiter(5, 20)
	}

	authHandler := NewAuthHandlers(svc.Auth, opts.RefreshTTL)
	orgHandler := NewOrganizationHandlers(svc.Organizations, svc.Users)
	questionnaireHandler := NewQuestionnaireHandlers(svc.Questionnaires, svc.Scoring)
	responseHandler := NewResponseHandlers(svc.Responses, svc.Analytics)
	templateHandler := NewTemplateHandlers(svc.Templates, svc.Automations)
	emailHandler := NewEmailHandlers(svc.Emails, svc.Jobs)

	router := mux.NewRouter()
	router.Use(metrics.InstrumentHandler, httpx.WithLogging(opts.Logger))

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	auth := api.PathPrefix("/auth").Subrouter()
	auth.Handle("/login", opts.Limiter.Middleware(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	auth.Handle("/register", opts.Limiter.Middleware(httpx.Optional(svc.Auth)(http.HandlerFunc(authHandler.Register)))).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", authHandler.Refresh).Methods(http.MethodPost)
	auth.Handle("/me", httpx.Protected(svc.Auth)(http.HandlerFunc(authHandler.Me))).Methods(http.MethodGet)

	public := api.PathPrefix("/public").Subrouter()
	public.Use(opts.Limiter.Middleware)
	public.HandleFunc("/access", responseHandler.Access).Methods(http.MethodGet, http.MethodPost)
	public.HandleFunc("/start", responseHandler.Start).Methods(http.MethodPost)
	public.HandleFunc("/submit", responseHandler.SubmitByToken).Methods(http.MethodPost)

	tracking := api.PathPrefix("/email/track").Subrouter()
	tracking.Use(opts.Limiter.Middleware)
	tracking.HandleFunc("/open/{trackingId}", emailHandler.TrackOpen).Methods(http.MethodGet)
	tracking.HandleFunc("/click/{trackingId}", emailHandler.TrackClick).Methods(http.MethodGet)

	cron := api.PathPrefix("/cron").Subrouter()
	cron.Use(httpx.RequireSecret(opts.CronSecret))
	cron.HandleFunc("/email", emailHandler.RunCron).Methods(http.MethodPost, http.MethodGet)

	private := api.NewRoute().Subrouter()
	private.Use(httpx.Protected(svc.Auth))

	private.HandleFunc("/organizations", orgHandler.List).Methods(http.MethodGet)
	private.HandleFunc("/organizations", orgHandler.Create).Methods(http.MethodPost)
	private.HandleFunc("/organizations/{id:[0-9]+}", orgHandler.Get).Methods(http.MethodGet)
	private.HandleFunc("/organizations/{id:[0-9]+}", orgHandler.Update).Methods(http.MethodPut, http.MethodPatch)
	private.HandleFunc("/organizations/{id:[0-9]+}", orgHandler.Delete).Methods(http.MethodDelete)
	private.HandleFunc("/organizations/{id:[0-9]+}/users", orgHandler.Members).Methods(http.MethodGet)
	private.HandleFunc("/users/{id:[0-9]+}", orgHandler.GetUser).Methods(http.MethodGet)

	q := private.PathPrefix("/questionnaires").Subrouter()
	q.HandleFunc("", questionnaireHandler.List).Methods(http.MethodGet)
	q.HandleFunc("/{id:[0-9]+}", questionnaireHandler.Get).Methods(http.MethodGet)
	q.HandleFunc("/{id:[0-9]+}/responses", responseHandler.Submit).Methods(http.MethodPost)

	manage := q.NewRoute().Subrouter()
	manage.Use(httpx.RequireRole(domains.RoleAdmin, domains.RoleClinician))
	manage.HandleFunc("", questionnaireHandler.Create).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}", questionnaireHandler.Update).Methods(http.MethodPut, http.MethodPatch)
	manage.HandleFunc("/{id:[0-9]+}", questionnaireHandler.Delete).Methods(http.MethodDelete)
	manage.HandleFunc("/{id:[0-9]+}/publish", questionnaireHandler.Publish).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/archive", questionnaireHandler.Archive).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/questions", questionnaireHandler.AddQuestion).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/questions/order", questionnaireHandler.ReorderQuestions).Methods(http.MethodPut)
	manage.HandleFunc("/{id:[0-9]+}/questions/{questionId:[0-9]+}", questionnaireHandler.UpdateQuestion).Methods(http.MethodPut, http.MethodPatch)
	manage.HandleFunc("/{id:[0-9]+}/questions/{questionId:[0-9]+}", questionnaireHandler.DeleteQuestion).Methods(http.MethodDelete)
	manage.HandleFunc("/{id:[0-9]+}/scoring", questionnaireHandler.GetScoring).Methods(http.MethodGet)
	manage.HandleFunc("/{id:[0-9]+}/scoring", questionnaireHandler.SaveScoring).Methods(http.MethodPut)
	manage.HandleFunc("/{id:[0-9]+}/scoring/preview", questionnaireHandler.PreviewScore).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/assignments", responseHandler.ListAssignments).Methods(http.MethodGet)
	manage.HandleFunc("/{id:[0-9]+}/assignments", responseHandler.Assign).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/assignments/{assignmentId:[0-9]+}/revoke", responseHandler.Revoke).Methods(http.MethodPost)
	manage.HandleFunc("/{id:[0-9]+}/responses", responseHandler.ListResponses).Methods(http.MethodGet)
	manage.HandleFunc("/{id:[0-9]+}/analytics", responseHandler.QuestionnaireAnalytics).Methods(http.MethodGet)

	// Respondents may read their own response; the service checks ownership.
	private.HandleFunc("/responses/{id:[0-9]+}", responseHandler.GetResponse).Methods(http.MethodGet)

	responses := private.PathPrefix("/responses").Subrouter()
	responses.Use(httpx.RequireRole(domains.RoleAdmin, domains.RoleClinician))
	responses.HandleFunc("/{id:[0-9]+}/rescore", responseHandler.Rescore).Methods(http.MethodPost)

	email := private.PathPrefix("/email").Subrouter()
	email.Use(httpx.RequireRole(domains.RoleAdmin, domains.RoleClinician))
	email.HandleFunc("/templates", templateHandler.ListTemplates).Methods(http.MethodGet)
	email.HandleFunc("/templates", templateHandler.CreateTemplate).Methods(http.MethodPost)
	email.HandleFunc("/templates/{id:[0-9]+}", templateHandler.GetTemplate).Methods(http.MethodGet)
	email.HandleFunc("/templates/{id:[0-9]+}", templateHandler.UpdateTemplate).Methods(http.MethodPut, http.MethodPatch)
	email.HandleFunc("/templates/{id:[0-9]+}", templateHandler.DeleteTemplate).Methods(http.MethodDelete)
	email.HandleFunc("/templates/{id:[0-9]+}/preview", templateHandler.PreviewTemplate).Methods(http.MethodPost)
	email.HandleFunc("/automations", templateHandler.ListAutomations).Methods(http.MethodGet)
	email.HandleFunc("/automations", templateHandler.CreateAutomation).Methods(http.MethodPost)
	email.HandleFunc("/automations/{id:[0-9]+}", templateHandler.GetAutomation).Methods(http.MethodGet)
	email.HandleFunc("/automations/{id:[0-9]+}", templateHandler.UpdateAutomation).Methods(http.MethodPut, http.MethodPatch)
	email.HandleFunc("/automations/{id:[0-9]+}", templateHandler.DeleteAutomation).Methods(http.MethodDelete)
	email.HandleFunc("/send", emailHandler.Send).Methods(http.MethodPost)
	email.HandleFunc("/logs", emailHandler.ListLogs).Methods(http.MethodGet)
	email.HandleFunc("/logs/{id:[0-9]+}", emailHandler.GetLog).Methods(http.MethodGet)
	email.HandleFunc("/logs/{id:[0-9]+}/cancel", emailHandler.Cancel).Methods(http.MethodPost)
	email.HandleFunc("/analytics", responseHandler.EmailAnalytics).Methods(http.MethodGet)

	return router
}
