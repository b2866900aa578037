package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"mindtrack/internal/domains"
	"mindtrack/internal/mailer"
	"mindtrack/internal/storage"
)

var (
	orgID      int64 = 7
	otherOrgID int64 = 8
)

var (
	clinician  = domains.Principal{UserID: 3, Role: domains.RoleClinician, OrganizationID: &orgID}
	outsider   = domains.Principal{UserID: 4, Role: domains.RoleClinician, OrganizationID: &otherOrgID}
	respondent = domains.Principal{UserID: 5, Role: domains.RoleRespondent, OrganizationID: &orgID}
	admin      = domains.Principal{UserID: 1, Role: domains.RoleAdmin}
	fixedNow   = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
)

func clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type userProviderMock struct {
	mock.Mock
}

func (m *userProviderMock) SaveUser(ctx context.Context, user domains.UserToSave) (domains.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(domains.User), args.Error(1)
}

func (m *userProviderMock) GetUserByEmail(ctx context.Context, email string) (domains.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(domains.User), args.Error(1)
}

func (m *userProviderMock) GetUserByID(ctx context.Context, id int64) (domains.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domains.User), args.Error(1)
}

func (m *userProviderMock) CountUsersByOrganization(ctx context.Context, organizationID int64) (int, error) {
	args := m.Called(ctx, organizationID)
	return args.Int(0), args.Error(1)
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) AssignmentsCreated(ctx context.Context, q domains.Questionnaire, invitations []domains.Invitation) {
	m.Called(ctx, q, invitations)
}

func (m *notifierMock) ResponseSubmitted(ctx context.Context, q domains.Questionnaire, recipient domains.Recipient, assignmentID *int64, response domains.Response) {
	m.Called(ctx, q, recipient, assignmentID, response)
}

// fakeAssignments keeps assignments in memory with the same state rules as Postgres.
type fakeAssignments struct {
	mu          sync.Mutex
	nextID      int64
	assignments map[int64]*domains.Assignment
	reminded    []int64
	candidates  []domains.ReminderCandidate
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{assignments: make(map[int64]*domains.Assignment)}
}

func (f *fakeAssignments) SaveAssignments(_ context.Context, batch domains.AssignmentToSave, generator domains.InvitationTokenGenerator) ([]domains.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, r := range batch.Recipients {
		for _, a := range f.assignments {
			if a.QuestionnaireID == batch.QuestionnaireID && a.RespondentEmail == r.Email && a.Open() {
				return nil, fmt.Errorf("insert assignment %s: %w", r.Email, storage.ErrConflict)
			}
		}
	}

	var invitations []domains.Invitation
	for _, r := range batch.Recipients {
		f.nextID++
		token, hash, expiresAt, err := generator(domains.InvitationTokenPayload{
			AssignmentID:    f.nextID,
			QuestionnaireID: batch.QuestionnaireID,
			OrganizationID:  batch.OrganizationID,
			Email:           r.Email,
			ExpiresAt:       batch.ExpiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		exp := expiresAt
		f.assignments[f.nextID] = &domains.Assignment{
			ID:              f.nextID,
			QuestionnaireID: batch.QuestionnaireID,
			OrganizationID:  batch.OrganizationID,
			RespondentEmail: r.Email,
			RespondentName:  r.Name,
			State:           domains.AssignmentInvited,
			TokenHash:       hash,
			TokenExpiresAt:  &exp,
			InvitedBy:       batch.InvitedBy,
		}
		invitations = append(invitations, domains.Invitation{
			AssignmentID: f.nextID,
			Email:        r.Email,
			Name:         r.Name,
			Token:        token,
			ExpiresAt:    expiresAt,
		})
	}
	return invitations, nil
}

func (f *fakeAssignments) GetAssignment(_ context.Context, id int64) (domains.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok {
		return domains.Assignment{}, storage.ErrNotFound
	}
	return *a, nil
}

func (f *fakeAssignments) GetAssignmentByTokenHash(_ context.Context, hash []byte) (domains.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assignments {
		if len(a.TokenHash) > 0 && string(a.TokenHash) == string(hash) {
			return *a, nil
		}
	}
	return domains.Assignment{}, storage.ErrNotFound
}

func (f *fakeAssignments) ListAssignments(_ context.Context, questionnaireID int64) ([]domains.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domains.Assignment
	for _, a := range f.assignments {
		if a.QuestionnaireID == questionnaireID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAssignments) RevokeAssignment(_ context.Context, questionnaireID, id int64) (domains.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok || a.QuestionnaireID != questionnaireID {
		return domains.Assignment{}, storage.ErrNotFound
	}
	if !a.Open() {
		return domains.Assignment{}, storage.ErrStateConflict
	}
	a.State = domains.AssignmentRevoked
	a.TokenHash = nil
	return *a, nil
}

func (f *fakeAssignments) ExpireAssignments(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.assignments {
		if a.Open() && a.TokenExpiresAt != nil && !a.TokenExpiresAt.After(now) {
			a.State = domains.AssignmentExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeAssignments) CountAssignments(_ context.Context, questionnaireID int64) (domains.AssignmentCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var c domains.AssignmentCounts
	for _, a := range f.assignments {
		if a.QuestionnaireID != questionnaireID {
			continue
		}
		c.Total++
		switch a.State {
		case domains.AssignmentStarted:
			c.Started++
		case domains.AssignmentCompleted:
			c.Started++
			c.Completed++
		case domains.AssignmentRevoked:
			c.Revoked++
		case domains.AssignmentExpired:
			c.Expired++
		}
	}
	return c, nil
}

func (f *fakeAssignments) ListReminderCandidates(_ context.Context, _ time.Time, _ int) ([]domains.ReminderCandidate, error) {
	return f.candidates, nil
}

func (f *fakeAssignments) RecordReminder(_ context.Context, assignmentID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reminded = append(f.reminded, assignmentID)
	if a, ok := f.assignments[assignmentID]; ok {
		a.ReminderCount++
		a.LastRemindedAt = &at
	}
	return nil
}

func (f *fakeAssignments) set(id int64, mutate func(a *domains.Assignment)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f.assignments[id])
}

type fakeResponses struct {
	mu          sync.Mutex
	assignments *fakeAssignments
	nextID      int64
	responses   map[int64]*domains.ResponseDetails
}

func newFakeResponses(assignments *fakeAssignments) *fakeResponses {
	return &fakeResponses{assignments: assignments, responses: make(map[int64]*domains.ResponseDetails)}
}

func (f *fakeResponses) openAssignment(id int64) (*domains.Assignment, error) {
	a, ok := f.assignments.assignments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !a.Open() {
		return nil, storage.ErrStateConflict
	}
	return a, nil
}

func (f *fakeResponses) StartResponse(_ context.Context, assignment domains.Assignment) (domains.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments.mu.Lock()
	defer f.assignments.mu.Unlock()

	a, err := f.openAssignment(assignment.ID)
	if err != nil {
		return domains.Response{}, err
	}
	for _, r := range f.responses {
		if r.Response.AssignmentID != nil && *r.Response.AssignmentID == a.ID {
			return r.Response, nil
		}
	}
	f.nextID++
	id := a.ID
	resp := domains.Response{ID: f.nextID, QuestionnaireID: a.QuestionnaireID, AssignmentID: &id, State: domains.ResponseInProgress, StartedAt: fixedNow}
	f.responses[resp.ID] = &domains.ResponseDetails{Response: resp}
	if a.State == domains.AssignmentInvited {
		a.State = domains.AssignmentStarted
	}
	return resp, nil
}

func (f *fakeResponses) SaveResponse(_ context.Context, payload domains.ResponseToSave) (domains.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments.mu.Lock()
	defer f.assignments.mu.Unlock()

	var existing *domains.ResponseDetails
	if payload.AssignmentID != nil {
		a, err := f.openAssignment(*payload.AssignmentID)
		if err != nil {
			return domains.Response{}, err
		}
		a.State = domains.AssignmentCompleted
		a.TokenHash = nil
		for _, r := range f.responses {
			if r.Response.AssignmentID != nil && *r.Response.AssignmentID == a.ID {
				existing = r
			}
		}
	}
	if existing == nil {
		f.nextID++
		existing = &domains.ResponseDetails{Response: domains.Response{
			ID:              f.nextID,
			QuestionnaireID: payload.QuestionnaireID,
			AssignmentID:    payload.AssignmentID,
			StartedAt:       payload.SubmittedAt,
		}}
		f.responses[f.nextID] = existing
	}

	submittedAt := payload.SubmittedAt
	score := payload.Score
	existing.Response.RespondentID = payload.RespondentID
	existing.Response.State = domains.ResponseSubmitted
	existing.Response.SubmittedAt = &submittedAt
	applyScore(&existing.Response, score)
	existing.Answers = payload.Answers
	return existing.Response, nil
}

func (f *fakeResponses) ListResponses(_ context.Context, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domains.Response
	for _, r := range f.responses {
		if r.Response.QuestionnaireID != questionnaireID {
			continue
		}
		if filter.State != "" && r.Response.State != filter.State {
			continue
		}
		out = append(out, r.Response)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeResponses) GetResponse(_ context.Context, id int64) (domains.ResponseDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[id]
	if !ok {
		return domains.ResponseDetails{}, storage.ErrNotFound
	}
	return *r, nil
}

func (f *fakeResponses) UpdateResponseScore(_ context.Context, id int64, score domains.ScoreResult) (domains.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.responses[id]
	if !ok {
		return domains.Response{}, storage.ErrNotFound
	}
	applyScore(&r.Response, score)
	return r.Response, nil
}

func applyScore(r *domains.Response, score domains.ScoreResult) {
	total := score.Total
	r.TotalScore = &total
	r.ScoreDetails = &score
	r.Severity, r.Label = nil, nil
	if score.Severity != "" {
		severity := score.Severity
		r.Severity = &severity
	}
	if score.Label != "" {
		label := score.Label
		r.Label = &label
	}
}

type fakeEmailLogs struct {
	mu     sync.Mutex
	nextID int64
	logs   map[int64]*domains.EmailLog
}

func newFakeEmailLogs() *fakeEmailLogs {
	return &fakeEmailLogs{logs: make(map[int64]*domains.EmailLog)}
}

func (f *fakeEmailLogs) QueueEmails(_ context.Context, emails []domains.EmailToQueue) ([]domains.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domains.EmailLog, 0, len(emails))
	for _, e := range emails {
		f.nextID++
		log := &domains.EmailLog{
			ID:             f.nextID,
			OrganizationID: e.OrganizationID,
			TemplateID:     e.TemplateID,
			AssignmentID:   e.AssignmentID,
			Kind:           e.Kind,
			Recipient:      e.Recipient,
			Subject:        e.Subject,
			BodyHTML:       e.BodyHTML,
			BodyText:       e.BodyText,
			Status:         domains.EmailScheduled,
			TrackingID:     e.TrackingID,
			Variables:      e.Variables,
			SendAt:         e.SendAt,
		}
		f.logs[log.ID] = log
		out = append(out, *log)
	}
	return out, nil
}

func (f *fakeEmailLogs) ClaimDueEmails(_ context.Context, now time.Time, limit int, leaseUntil time.Time) ([]domains.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, l := range f.logs {
		due := l.Status == domains.EmailScheduled && !l.SendAt.After(now)
		expired := l.Status == domains.EmailSending && l.ClaimedUntil != nil && !l.ClaimedUntil.After(now)
		if due || expired {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domains.EmailLog, 0, len(ids))
	for _, id := range ids {
		l := f.logs[id]
		l.Attempts++
		l.Status = domains.EmailSending
		lease := leaseUntil
		l.ClaimedUntil = &lease
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeEmailLogs) MarkEmailSent(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if l.Status != domains.EmailSending {
		return storage.ErrStateConflict
	}
	l.Status = domains.EmailSent
	l.SentAt = &at
	l.ClaimedUntil = nil
	return nil
}

func (f *fakeEmailLogs) MarkEmailFailed(_ context.Context, id int64, reason string, retryAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if l.Status != domains.EmailSending {
		return storage.ErrStateConflict
	}
	l.LastError = &reason
	l.ClaimedUntil = nil
	if retryAt != nil {
		l.Status = domains.EmailScheduled
		l.SendAt = *retryAt
	} else {
		l.Status = domains.EmailFailed
	}
	return nil
}

func (f *fakeEmailLogs) CancelEmail(_ context.Context, id int64) (domains.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return domains.EmailLog{}, storage.ErrNotFound
	}
	if l.Status != domains.EmailScheduled {
		return domains.EmailLog{}, storage.ErrStateConflict
	}
	l.Status = domains.EmailCancelled
	return *l, nil
}

func (f *fakeEmailLogs) GetEmailLog(_ context.Context, id int64) (domains.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.logs[id]
	if !ok {
		return domains.EmailLog{}, storage.ErrNotFound
	}
	return *l, nil
}

func (f *fakeEmailLogs) ListEmailLogs(_ context.Context, filter domains.EmailLogFilter) ([]domains.EmailLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domains.EmailLog
	for _, l := range f.logs {
		if filter.OrganizationID != nil && l.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEmailLogs) track(trackingID string, at time.Time, click bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.TrackingID != trackingID {
			continue
		}
		if click {
			l.ClickCount++
			if l.ClickedAt == nil {
				l.ClickedAt = &at
			}
		} else {
			l.OpenCount++
			if l.OpenedAt == nil {
				l.OpenedAt = &at
			}
		}
		return nil
	}
	return storage.ErrNotFound
}

func (f *fakeEmailLogs) RecordOpen(_ context.Context, trackingID string, at time.Time) error {
	return f.track(trackingID, at, false)
}

func (f *fakeEmailLogs) RecordClick(_ context.Context, trackingID string, at time.Time) error {
	return f.track(trackingID, at, true)
}

func (f *fakeEmailLogs) byKind(kind string) []domains.EmailLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domains.EmailLog
	for _, l := range f.logs {
		if l.Kind == kind {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fakeTemplates map[int64]domains.EmailTemplate

func (f fakeTemplates) GetTemplate(_ context.Context, id int64) (domains.EmailTemplate, error) {
	t, ok := f[id]
	if !ok {
		return domains.EmailTemplate{}, storage.ErrNotFound
	}
	return t, nil
}

type fakeAutomations []domains.EmailAutomation

func (f fakeAutomations) ActiveAutomations(_ context.Context, organizationID, questionnaireID int64, trigger string) ([]domains.EmailAutomation, error) {
	var out []domains.EmailAutomation
	for _, a := range f {
		if a.OrganizationID != organizationID || a.Trigger != trigger || !a.IsActive {
			continue
		}
		if a.QuestionnaireID != nil && *a.QuestionnaireID != questionnaireID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

type fakeOrganizations struct{}

func (fakeOrganizations) GetOrganization(_ context.Context, id int64) (domains.Organization, error) {
	return domains.Organization{ID: id, Name: "Calm Clinic", Slug: "calm-clinic"}, nil
}

// fakeSender fails the first failures sends and records every delivered message.
type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []mailer.Message
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp: connection refused")
	}
	f.sent = append(f.sent, msg)
	return nil
}
