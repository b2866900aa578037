// Package memory keeps questionnaires and their scoring configs in process memory.
// It backs development setups and service tests and comes seeded with the PHQ-9 and
// GAD-7 instruments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mindtrack/internal/domains"
	"mindtrack/internal/scoring"
	"mindtrack/internal/storage"
)

type QuestionnaireStore struct {
	mu             sync.RWMutex
	now            func() time.Time
	nextID         int64
	nextQuestionID int64
	questionnaires map[int64]*domains.Questionnaire
	configs        map[int64]domains.ScoringConfig
}

// NewQuestionnaireStore returns a store seeded with the standard instruments owned by
// ownerID inside organizationID. A zero organizationID yields an empty store.
func NewQuestionnaireStore(organizationID, ownerID int64) *QuestionnaireStore {
	s := &QuestionnaireStore{
		now:            time.Now,
		questionnaires: make(map[int64]*domains.Questionnaire),
		configs:        make(map[int64]domains.ScoringConfig),
	}
	if organizationID == 0 {
		return s
	}
	for _, instrument := range []scoring.Instrument{scoring.PHQ9(), scoring.GAD7()} {
		s.seed(organizationID, ownerID, instrument)
	}
	return s
}

func (s *QuestionnaireStore) seed(organizationID, ownerID int64, instrument scoring.Instrument) {
	now := s.now().UTC()
	s.nextID++
	q := instrument.Questionnaire
	q.ID = s.nextID
	q.OrganizationID = organizationID
	q.OwnerID = ownerID
	q.CreatedAt = now
	q.UpdatedAt = now
	q.Questions = s.assignQuestionIDs(q.ID, q.Questions)
	s.questionnaires[q.ID] = &q

	cfg := instrument.Scoring
	cfg.QuestionnaireID = q.ID
	cfg.UpdatedAt = now
	s.configs[q.ID] = cfg
}

func (s *QuestionnaireStore) assignQuestionIDs(questionnaireID int64, questions []domains.Question) []domains.Question {
	out := make([]domains.Question, len(questions))
	for i, question := range questions {
		s.nextQuestionID++
		question.ID = s.nextQuestionID
		question.QuestionnaireID = questionnaireID
		out[i] = question
	}
	return out
}

func (s *QuestionnaireStore) SaveQuestionnaire(_ context.Context, q domains.QuestionnaireToSave) (domains.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := make(map[string]bool, len(q.Questions))
	for _, question := range q.Questions {
		if codes[question.Code] {
			return domains.Questionnaire{}, fmt.Errorf("insert question %s: %w", question.Code, storage.ErrConflict)
		}
		codes[question.Code] = true
	}

	now := s.now().UTC()
	s.nextID++
	created := domains.Questionnaire{
		ID:             s.nextID,
		OrganizationID: q.OrganizationID,
		OwnerID:        q.OwnerID,
		Title:          q.Title,
		Description:    q.Description,
		Category:       q.Category,
		Status:         domains.QuestionnaireDraft,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	questions := s.assignQuestionIDs(created.ID, q.Questions)
	for i := range questions {
		questions[i].Position = i + 1
	}
	created.Questions = questions
	s.questionnaires[created.ID] = &created
	return cloneQuestionnaire(created), nil
}

func (s *QuestionnaireStore) GetQuestionnaire(_ context.Context, id int64) (domains.Questionnaire, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.questionnaires[id]
	if !ok || !q.IsActive {
		return domains.Questionnaire{}, fmt.Errorf("get questionnaire: %w", storage.ErrNotFound)
	}
	return cloneQuestionnaire(*q), nil
}

func (s *QuestionnaireStore) ListQuestionnaires(_ context.Context, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domains.QuestionnaireSummary, 0, len(s.questionnaires))
	for _, q := range s.questionnaires {
		if !q.IsActive {
			continue
		}
		if filter.OrganizationID != nil && q.OrganizationID != *filter.OrganizationID {
			continue
		}
		if filter.Status != "" && q.Status != filter.Status {
			continue
		}
		if filter.Category != "" && (q.Category == nil || *q.Category != filter.Category) {
			continue
		}
		summary := domains.QuestionnaireSummary{Questionnaire: cloneQuestionnaire(*q), QuestionCount: len(q.Questions)}
		summary.Questions = nil
		result = append(result, summary)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (s *QuestionnaireStore) UpdateQuestionnaire(_ context.Context, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(id)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("update questionnaire: %w", err)
	}
	if update.Title != nil {
		q.Title = *update.Title
	}
	if update.Description != nil {
		description := *update.Description
		q.Description = &description
	}
	if update.Category != nil {
		category := *update.Category
		q.Category = &category
	}
	if update.HasChanges() {
		q.UpdatedAt = s.now().UTC()
	}
	return cloneQuestionnaire(*q), nil
}

func (s *QuestionnaireStore) SetQuestionnaireStatus(_ context.Context, id int64, status string, bumpVersion bool) (domains.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(id)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("set questionnaire status: %w", err)
	}
	q.Status = status
	if bumpVersion {
		q.Version++
	}
	q.UpdatedAt = s.now().UTC()
	return cloneQuestionnaire(*q), nil
}

func (s *QuestionnaireStore) DeleteQuestionnaire(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(id)
	if err != nil {
		return fmt.Errorf("delete questionnaire: %w", err)
	}
	q.IsActive = false
	q.UpdatedAt = s.now().UTC()
	return nil
}

func (s *QuestionnaireStore) AddQuestion(_ context.Context, questionnaireID int64, question domains.Question) (domains.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(questionnaireID)
	if err != nil {
		return domains.Question{}, fmt.Errorf("add question: %w", err)
	}
	for _, existing := range q.Questions {
		if existing.Code == question.Code {
			return domains.Question{}, fmt.Errorf("insert question %s: %w", question.Code, storage.ErrConflict)
		}
	}

	s.nextQuestionID++
	question.ID = s.nextQuestionID
	question.QuestionnaireID = questionnaireID
	question.Position = len(q.Questions) + 1
	q.Questions = append(q.Questions, question)
	q.UpdatedAt = s.now().UTC()
	return cloneQuestion(question), nil
}

func (s *QuestionnaireStore) UpdateQuestion(_ context.Context, questionnaireID int64, question domains.Question) (domains.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(questionnaireID)
	if err != nil {
		return domains.Question{}, fmt.Errorf("update question: %w", err)
	}
	idx := -1
	for i, existing := range q.Questions {
		if existing.ID == question.ID {
			idx = i
			continue
		}
		if existing.Code == question.Code {
			return domains.Question{}, fmt.Errorf("update question: %w", storage.ErrConflict)
		}
	}
	if idx < 0 {
		return domains.Question{}, fmt.Errorf("update question: %w", storage.ErrNotFound)
	}

	question.QuestionnaireID = questionnaireID
	question.Position = q.Questions[idx].Position
	q.Questions[idx] = question
	q.UpdatedAt = s.now().UTC()
	return cloneQuestion(question), nil
}

func (s *QuestionnaireStore) DeleteQuestion(_ context.Context, questionnaireID, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(questionnaireID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	kept := q.Questions[:0]
	found := false
	for _, existing := range q.Questions {
		if existing.ID == questionID {
			found = true
			continue
		}
		existing.Position = len(kept) + 1
		kept = append(kept, existing)
	}
	if !found {
		return fmt.Errorf("delete question: %w", storage.ErrNotFound)
	}
	q.Questions = kept
	q.UpdatedAt = s.now().UTC()
	return nil
}

func (s *QuestionnaireStore) ReorderQuestions(_ context.Context, questionnaireID int64, ids []int64) ([]domains.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, err := s.active(questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("reorder questions: %w", err)
	}
	if len(ids) != len(q.Questions) {
		return nil, fmt.Errorf("reorder questions: %w", storage.ErrStateConflict)
	}
	byID := make(map[int64]domains.Question, len(q.Questions))
	for _, existing := range q.Questions {
		byID[existing.ID] = existing
	}

	reordered := make([]domains.Question, 0, len(ids))
	for i, id := range ids {
		question, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("reorder questions: %w", storage.ErrNotFound)
		}
		delete(byID, id)
		question.Position = i + 1
		reordered = append(reordered, question)
	}
	q.Questions = reordered
	q.UpdatedAt = s.now().UTC()
	return cloneQuestionnaire(*q).Questions, nil
}

func (s *QuestionnaireStore) GetScoringConfig(_ context.Context, questionnaireID int64) (domains.ScoringConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[questionnaireID]
	if !ok {
		return domains.ScoringConfig{}, fmt.Errorf("get scoring config: %w", storage.ErrNotFound)
	}
	return cloneConfig(cfg), nil
}

func (s *QuestionnaireStore) SaveScoringConfig(_ context.Context, questionnaireID int64, input domains.ScoringConfigInput) (domains.ScoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questionnaires[questionnaireID]; !ok {
		return domains.ScoringConfig{}, fmt.Errorf("save scoring config: %w", storage.ErrReferenceMissing)
	}
	cfg := cloneConfig(domains.ScoringConfig{
		QuestionnaireID: questionnaireID,
		Method:          input.Method,
		Formula:         input.Formula,
		Ranges:          input.Ranges,
		UpdatedAt:       s.now().UTC(),
	})
	s.configs[questionnaireID] = cfg
	return cloneConfig(cfg), nil
}

func (s *QuestionnaireStore) active(id int64) (*domains.Questionnaire, error) {
	q, ok := s.questionnaires[id]
	if !ok || !q.IsActive {
		return nil, storage.ErrNotFound
	}
	return q, nil
}

func cloneQuestionnaire(q domains.Questionnaire) domains.Questionnaire {
	out := q
	if q.Description != nil {
		description := *q.Description
		out.Description = &description
	}
	if q.Category != nil {
		category := *q.Category
		out.Category = &category
	}
	out.Questions = make([]domains.Question, len(q.Questions))
	for i, question := range q.Questions {
		out.Questions[i] = cloneQuestion(question)
	}
	return out
}

func cloneQuestion(q domains.Question) domains.Question {
	out := q
	if q.Options != nil {
		out.Options = make([]domains.QuestionOption, len(q.Options))
		copy(out.Options, q.Options)
	}
	return out
}

func cloneConfig(cfg domains.ScoringConfig) domains.ScoringConfig {
	out := cfg
	out.Ranges = make([]domains.ScoreRange, len(cfg.Ranges))
	copy(out.Ranges, cfg.Ranges)
	if cfg.Formula != nil {
		formula := *cfg.Formula
		out.Formula = &formula
	}
	return out
}
