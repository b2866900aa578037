package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"mindtrack/internal/domains"
	"mindtrack/internal/mailer"
	"mindtrack/internal/metrics"
	"mindtrack/internal/storage"
)

const maxRecipientsPerSend = 500

type EmailLogProvider interface {
	QueueEmails(ctx context.Context, emails []domains.EmailToQueue) ([]domains.EmailLog, error)
	ClaimDueEmails(ctx context.Context, now time.Time, limit int, leaseUntil time.Time) ([]domains.EmailLog, error)
	MarkEmailSent(ctx context.Context, id int64, at time.Time) error
	MarkEmailFailed(ctx context.Context, id int64, reason string, retryAt *time.Time) error
	CancelEmail(ctx context.Context, id int64) (domains.EmailLog, error)
	GetEmailLog(ctx context.Context, id int64) (domains.EmailLog, error)
	ListEmailLogs(ctx context.Context, filter domains.EmailLogFilter) ([]domains.EmailLog, error)
	RecordOpen(ctx context.Context, trackingID string, at time.Time) error
	RecordClick(ctx context.Context, trackingID string, at time.Time) error
}

type AutomationLookup interface {
	ActiveAutomations(ctx context.Context, organizationID, questionnaireID int64, trigger string) ([]domains.EmailAutomation, error)
}

type ReminderProvider interface {
	ListReminderCandidates(ctx context.Context, now time.Time, limit int) ([]domains.ReminderCandidate, error)
	RecordReminder(ctx context.Context, assignmentID int64, at time.Time) error
}

type OrganizationReader interface {
	GetOrganization(ctx context.Context, id int64) (domains.Organization, error)
}

type EmailSettings struct {
	BatchSize    int
	MaxAttempts  int
	APIBaseURL   string
	Lease        time.Duration
	RetryBackoff time.Duration
}

type EmailServiceDeps struct {
	Templates     TemplateReader
	Logs          EmailLogProvider
	Automations   AutomationLookup
	Reminders     ReminderProvider
	Organizations OrganizationReader
	Tokens        *InvitationTokens
	Sender        mailer.Sender
	Settings      EmailSettings
}

type EmailService struct {
	templates     TemplateReader
	logs          EmailLogProvider
	automations   AutomationLookup
	reminders     ReminderProvider
	organizations OrganizationReader
	tokens        *InvitationTokens
	sender        mailer.Sender
	settings      EmailSettings
	now           func() time.Time
}

func NewEmailService(deps EmailServiceDeps) *EmailService {
	settings := deps.Settings
	if settings.BatchSize <= 0 {
		settings.BatchSize = 50
	}
	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 1
	}
	if settings.Lease <= 0 {
		settings.Lease = 5 * time.Minute
	}
	if settings.RetryBackoff <= 0 {
		settings.RetryBackoff = time.Minute
	}
	return &EmailService{
		templates:     deps.Templates,
		logs:          deps.Logs,
		automations:   deps.Automations,
		reminders:     deps.Reminders,
		organizations: deps.Organizations,
		tokens:        deps.Tokens,
		sender:        deps.Sender,
		settings:      settings,
		now:           time.Now,
	}
}

type emailContent struct {
	templateID *int64
	subject    string
	bodyHTML   string
	bodyText   string
}

func contentFromTemplate(t domains.EmailTemplate) emailContent {
	id := t.ID
	return emailContent{templateID: &id, subject: t.Subject, bodyHTML: t.BodyHTML, bodyText: stringValue(t.BodyText)}
}

// Send queues one email per recipient. Emails without a future send_at are delivered
// right away through the dispatcher.
func (s *EmailService) Send(ctx context.Context, caller domains.Principal, req domains.EmailSendRequest) ([]domains.EmailLog, error) {
	if !caller.CanManage() {
		return nil, ErrForbidden
	}

	var (
		content emailContent
		orgID   int64
	)
	if req.TemplateID != nil {
		template, err := s.templates.GetTemplate(ctx, *req.TemplateID)
		if err != nil {
			return nil, err
		}
		if !caller.InOrganization(template.OrganizationID) {
			return nil, ErrForbidden
		}
		content = contentFromTemplate(template)
		orgID = template.OrganizationID
	} else {
		if req.Subject == nil || strings.TrimSpace(*req.Subject) == "" || req.BodyHTML == nil || strings.TrimSpace(*req.BodyHTML) == "" {
			return nil, validationf("template_id or subject and body_html are required")
		}
		if err := mailer.Check(*req.Subject, *req.BodyHTML, req.BodyText); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		content = emailContent{subject: *req.Subject, bodyHTML: *req.BodyHTML, bodyText: stringValue(req.BodyText)}
		id, err := organizationFor(caller, nil)
		if err != nil {
			return nil, err
		}
		orgID = id
	}

	if len(req.Recipients) == 0 {
		return nil, validationf("at least one recipient is required")
	}
	if len(req.Recipients) > maxRecipientsPerSend {
		return nil, validationf("at most %d recipients per request", maxRecipientsPerSend)
	}

	now := s.now().UTC()
	sendAt := now
	scheduled := false
	if req.SendAt != nil && req.SendAt.After(now) {
		sendAt = req.SendAt.UTC()
		scheduled = true
	}

	base := map[string]string{mailer.VarOrganizationName: s.organizationName(ctx, orgID)}
	emails := make([]domains.EmailToQueue, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		email := strings.ToLower(strings.TrimSpace(r.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, validationf("recipient %q is not a valid email", r.Email)
		}
		vars := mailer.MergeVariables(base, map[string]string{mailer.VarRecipientName: recipientName(r.Name, email)}, req.Variables)
		queued, err := s.compose(content, email, vars)
		if err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		queued.OrganizationID = orgID
		queued.Kind = domains.EmailKindManual
		queued.SendAt = sendAt
		emails = append(emails, queued)
	}

	logs, err := s.logs.QueueEmails(ctx, emails)
	if err != nil {
		slog.Error("queue emails failed", "err", err, "organization_id", orgID)
		return nil, err
	}
	slog.Info("emails queued", "count", len(logs), "scheduled", scheduled, "organization_id", orgID)
	if scheduled {
		return logs, nil
	}

	if _, err := s.ProcessDue(ctx); err != nil {
		slog.Error("immediate dispatch failed", "err", err)
	}
	for i := range logs {
		if fresh, err := s.logs.GetEmailLog(ctx, logs[i].ID); err == nil {
			logs[i] = fresh
		}
	}
	return logs, nil
}

func (s *EmailService) compose(content emailContent, recipient string, vars map[string]string) (domains.EmailToQueue, error) {
	rendered, err := mailer.Render(content.subject, content.bodyHTML, content.bodyText, vars)
	if err != nil {
		return domains.EmailToQueue{}, err
	}
	trackingID := uuid.NewString()
	return domains.EmailToQueue{
		TemplateID: content.templateID,
		Recipient:  recipient,
		Subject:    rendered.Subject,
		BodyHTML:   mailer.InjectTracking(rendered.BodyHTML, s.settings.APIBaseURL, trackingID),
		BodyText:   rendered.BodyText,
		TrackingID: trackingID,
		Variables:  vars,
	}, nil
}

func (s *EmailService) Cancel(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error) {
	if _, err := s.GetLog(ctx, caller, id); err != nil {
		return domains.EmailLog{}, err
	}
	cancelled, err := s.logs.CancelEmail(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return domains.EmailLog{}, ErrEmailNotCancellable
		}
		return domains.EmailLog{}, err
	}
	metrics.RecordEmail(cancelled.Kind, domains.EmailCancelled)
	return cancelled, nil
}

func (s *EmailService) GetLog(ctx context.Context, caller domains.Principal, id int64) (domains.EmailLog, error) {
	log, err := s.logs.GetEmailLog(ctx, id)
	if err != nil {
		return domains.EmailLog{}, err
	}
	if !caller.CanManage() || !caller.InOrganization(log.OrganizationID) {
		return domains.EmailLog{}, ErrForbidden
	}
	return log, nil
}

func (s *EmailService) ListLogs(ctx context.Context, caller domains.Principal, filter domains.EmailLogFilter) ([]domains.EmailLog, error) {
	if !caller.CanManage() {
		return nil, ErrForbidden
	}
	if !caller.IsAdmin() {
		if caller.OrganizationID == nil {
			return []domains.EmailLog{}, nil
		}
		filter.OrganizationID = caller.OrganizationID
	}
	switch filter.Status {
	case "", domains.EmailScheduled, domains.EmailSending, domains.EmailSent, domains.EmailFailed, domains.EmailCancelled:
	default:
		return nil, validationf("unknown status %q", filter.Status)
	}
	return s.logs.ListEmailLogs(ctx, filter)
}

func (s *EmailService) TrackOpen(ctx context.Context, trackingID string) error {
	if err := s.logs.RecordOpen(ctx, trackingID, s.now().UTC()); err != nil {
		return err
	}
	metrics.RecordTrackingEvent("open")
	return nil
}

// TrackClick records the click and returns the URL to redirect to.
func (s *EmailService) TrackClick(ctx context.Context, trackingID, target string) (string, error) {
	redirect, ok := mailer.SafeRedirect(target)
	if !ok {
		return "", ErrUnsafeRedirect
	}
	if err := s.logs.RecordClick(ctx, trackingID, s.now().UTC()); err != nil {
		return "", err
	}
	metrics.RecordTrackingEvent("click")
	return redirect, nil
}

// ProcessDue sends the scheduled emails whose time has come. Failed deliveries go back
// to the schedule with a growing delay until MaxAttempts is reached.
func (s *EmailService) ProcessDue(ctx context.Context) (domains.DispatchReport, error) {
	var report domains.DispatchReport
	now := s.now().UTC()

	claimed, err := s.logs.ClaimDueEmails(ctx, now, s.settings.BatchSize, now.Add(s.settings.Lease))
	if err != nil {
		return report, err
	}

	for _, log := range claimed {
		if ctx.Err() != nil {
			break
		}

		sendErr := s.sender.Send(ctx, mailer.Message{
			To:       log.Recipient,
			Subject:  log.Subject,
			BodyHTML: log.BodyHTML,
			BodyText: log.BodyText,
		})
		if sendErr == nil {
			if err := s.logs.MarkEmailSent(ctx, log.ID, s.now().UTC()); err != nil {
				slog.Error("mark email sent failed", "err", err, "email_id", log.ID)
			}
			report.Sent++
			metrics.RecordEmail(log.Kind, domains.EmailSent)
			continue
		}

		slog.Warn("email delivery failed", "err", sendErr, "email_id", log.ID, "attempt", log.Attempts)
		var retryAt *time.Time
		if log.Attempts < s.settings.MaxAttempts {
			at := now.Add(s.backoff(log.Attempts))
			retryAt = &at
			report.Retried++
			metrics.RecordEmail(log.Kind, "retried")
		} else {
			report.Failed++
			metrics.RecordEmail(log.Kind, domains.EmailFailed)
		}
		if err := s.logs.MarkEmailFailed(ctx, log.ID, sendErr.Error(), retryAt); err != nil {
			slog.Error("mark email failed failed", "err", err, "email_id", log.ID)
		}
	}

	if len(claimed) > 0 {
		slog.Info("email dispatch finished", "sent", report.Sent, "retried", report.Retried, "failed", report.Failed)
	}
	return report, nil
}

func (s *EmailService) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 10 {
		attempt = 10
	}
	return s.settings.RetryBackoff * time.Duration(1<<(attempt-1))
}

// ProcessReminders queues a reminder for every open assignment a reminder automation
// says is due, and counts it against the automation's limit.
func (s *EmailService) ProcessReminders(ctx context.Context) (int, error) {
	now := s.now().UTC()
	candidates, err := s.reminders.ListReminderCandidates(ctx, now, s.settings.BatchSize)
	if err != nil {
		return 0, err
	}

	templates := make(map[int64]domains.EmailTemplate)
	queued := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		template, err := s.cachedTemplate(ctx, templates, c.TemplateID)
		if err != nil {
			slog.Warn("reminder template unavailable", "err", err, "automation_id", c.AutomationID)
			continue
		}
		token, err := s.tokens.Reissue(c.Assignment)
		if err != nil {
			slog.Warn("reissue invitation failed", "err", err, "assignment_id", c.Assignment.ID)
			continue
		}

		vars := map[string]string{
			mailer.VarRecipientName:      recipientName(c.Assignment.RespondentName, c.Assignment.RespondentEmail),
			mailer.VarQuestionnaireTitle: c.QuestionnaireTitle,
			mailer.VarLink:               s.tokens.Link(token),
			mailer.VarOrganizationName:   c.OrganizationName,
			mailer.VarExpiresAt:          formatDate(c.Assignment.TokenExpiresAt),
		}
		email, err := s.compose(contentFromTemplate(template), c.Assignment.RespondentEmail, vars)
		if err != nil {
			slog.Warn("render reminder failed", "err", err, "template_id", template.ID)
			continue
		}
		assignmentID := c.Assignment.ID
		email.OrganizationID = c.Assignment.OrganizationID
		email.AssignmentID = &assignmentID
		email.Kind = domains.EmailKindReminder
		email.SendAt = now

		if _, err := s.logs.QueueEmails(ctx, []domains.EmailToQueue{email}); err != nil {
			slog.Error("queue reminder failed", "err", err, "assignment_id", assignmentID)
			continue
		}
		if err := s.reminders.RecordReminder(ctx, assignmentID, now); err != nil {
			slog.Error("record reminder failed", "err", err, "assignment_id", assignmentID)
			continue
		}
		queued++
	}

	if queued > 0 {
		slog.Info("reminders queued", "count", queued)
	}
	return queued, nil
}

// AssignmentsCreated queues invitation emails for the active assignment_created automations.
func (s *EmailService) AssignmentsCreated(ctx context.Context, q domains.Questionnaire, invitations []domains.Invitation) {
	automations, err := s.automations.ActiveAutomations(ctx, q.OrganizationID, q.ID, domains.TriggerAssignmentCreated)
	if err != nil {
		slog.Error("load automations failed", "err", err, "questionnaire_id", q.ID)
		return
	}
	if len(automations) == 0 {
		return
	}

	orgName := s.organizationName(ctx, q.OrganizationID)
	var emails []domains.EmailToQueue
	templates := make(map[int64]domains.EmailTemplate)
	for _, automation := range automations {
		template, err := s.cachedTemplate(ctx, templates, automation.TemplateID)
		if err != nil {
			slog.Warn("automation template unavailable", "err", err, "automation_id", automation.ID)
			continue
		}
		sendAt := s.now().UTC().Add(time.Duration(automation.DelayHours) * time.Hour)
		for _, inv := range invitations {
			expiresAt := inv.ExpiresAt
			vars := map[string]string{
				mailer.VarRecipientName:      recipientName(inv.Name, inv.Email),
				mailer.VarQuestionnaireTitle: q.Title,
				mailer.VarLink:               inv.Link,
				mailer.VarOrganizationName:   orgName,
				mailer.VarExpiresAt:          formatDate(&expiresAt),
			}
			email, err := s.compose(contentFromTemplate(template), inv.Email, vars)
			if err != nil {
				slog.Warn("render invitation failed", "err", err, "template_id", template.ID)
				continue
			}
			assignmentID := inv.AssignmentID
			email.OrganizationID = q.OrganizationID
			email.AssignmentID = &assignmentID
			email.Kind = domains.EmailKindInvitation
			email.SendAt = sendAt
			emails = append(emails, email)
		}
	}
	s.queueAutomated(ctx, emails, domains.TriggerAssignmentCreated)
}

// ResponseSubmitted queues completion emails for the active response_submitted automations.
func (s *EmailService) ResponseSubmitted(ctx context.Context, q domains.Questionnaire, recipient domains.Recipient, assignmentID *int64, response domains.Response) {
	automations, err := s.automations.ActiveAutomations(ctx, q.OrganizationID, q.ID, domains.TriggerResponseSubmitted)
	if err != nil {
		slog.Error("load automations failed", "err", err, "questionnaire_id", q.ID)
		return
	}
	if len(automations) == 0 {
		return
	}

	vars := map[string]string{
		mailer.VarRecipientName:      recipientName(recipient.Name, recipient.Email),
		mailer.VarQuestionnaireTitle: q.Title,
		mailer.VarOrganizationName:   s.organizationName(ctx, q.OrganizationID),
		"Severity":                   stringValue(response.Severity),
		"Label":                      stringValue(response.Label),
	}
	if response.TotalScore != nil {
		vars["Score"] = fmt.Sprintf("%g", *response.TotalScore)
	}

	var emails []domains.EmailToQueue
	templates := make(map[int64]domains.EmailTemplate)
	for _, automation := range automations {
		template, err := s.cachedTemplate(ctx, templates, automation.TemplateID)
		if err != nil {
			slog.Warn("automation template unavailable", "err", err, "automation_id", automation.ID)
			continue
		}
		email, err := s.compose(contentFromTemplate(template), recipient.Email, vars)
		if err != nil {
			slog.Warn("render completion email failed", "err", err, "template_id", template.ID)
			continue
		}
		email.OrganizationID = q.OrganizationID
		email.AssignmentID = assignmentID
		email.Kind = domains.EmailKindCompletion
		email.SendAt = s.now().UTC().Add(time.Duration(automation.DelayHours) * time.Hour)
		emails = append(emails, email)
	}
	s.queueAutomated(ctx, emails, domains.TriggerResponseSubmitted)
}

func (s *EmailService) queueAutomated(ctx context.Context, emails []domains.EmailToQueue, trigger string) {
	if len(emails) == 0 {
		return
	}
	if _, err := s.logs.QueueEmails(ctx, emails); err != nil {
		slog.Error("queue automated emails failed", "err", err, "trigger", trigger)
		return
	}
	slog.Info("automated emails queued", "count", len(emails), "trigger", trigger)
}

func (s *EmailService) cachedTemplate(ctx context.Context, cache map[int64]domains.EmailTemplate, id int64) (domains.EmailTemplate, error) {
	if t, ok := cache[id]; ok {
		return t, nil
	}
	t, err := s.templates.GetTemplate(ctx, id)
	if err != nil {
		return domains.EmailTemplate{}, err
	}
	if !t.IsActive {
		return domains.EmailTemplate{}, fmt.Errorf("template %d: %w", id, storage.ErrNotFound)
	}
	cache[id] = t
	return t, nil
}

func (s *EmailService) organizationName(ctx context.Context, id int64) string {
	if s.organizations == nil {
		return ""
	}
	org, err := s.organizations.GetOrganization(ctx, id)
	if err != nil {
		slog.Warn("load organization failed", "err", err, "organization_id", id)
		return ""
	}
	return org.Name
}

func recipientName(name *string, email string) string {
	if name != nil && strings.TrimSpace(*name) != "" {
		return strings.TrimSpace(*name)
	}
	return email
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
