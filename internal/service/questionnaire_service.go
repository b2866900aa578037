package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

var questionCodePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

type QuestionnaireService struct {
	provider QuestionnaireProvider
}

type QuestionnaireReader interface {
	GetQuestionnaire(ctx context.Context, id int64) (domains.Questionnaire, error)
}

type QuestionnaireProvider interface {
	QuestionnaireReader
	SaveQuestionnaire(ctx context.Context, q domains.QuestionnaireToSave) (domains.Questionnaire, error)
	ListQuestionnaires(ctx context.Context, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error)
	UpdateQuestionnaire(ctx context.Context, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error)
	SetQuestionnaireStatus(ctx context.Context, id int64, status string, bumpVersion bool) (domains.Questionnaire, error)
	DeleteQuestionnaire(ctx context.Context, id int64) error
	AddQuestion(ctx context.Context, questionnaireID int64, question domains.Question) (domains.Question, error)
	UpdateQuestion(ctx context.Context, questionnaireID int64, question domains.Question) (domains.Question, error)
	DeleteQuestion(ctx context.Context, questionnaireID, questionID int64) error
	ReorderQuestions(ctx context.Context, questionnaireID int64, ids []int64) ([]domains.Question, error)
}

func NewQuestionnaireService(provider QuestionnaireProvider) *QuestionnaireService {
	return &QuestionnaireService{provider: provider}
}

func (s *QuestionnaireService) Create(ctx context.Context, caller domains.Principal, input domains.QuestionnaireCreate) (domains.Questionnaire, error) {
	if !caller.CanManage() {
		return domains.Questionnaire{}, ErrForbidden
	}
	orgID, err := organizationFor(caller, input.OrganizationID)
	if err != nil {
		return domains.Questionnaire{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domains.Questionnaire{}, validationf("title is required")
	}

	questions := make([]domains.Question, 0, len(input.Questions))
	codes := make(map[string]bool, len(input.Questions))
	for i, qi := range input.Questions {
		q, err := buildQuestion(qi)
		if err != nil {
			return domains.Questionnaire{}, validationf("question %d: %s", i+1, err.Error())
		}
		if codes[q.Code] {
			return domains.Questionnaire{}, validationf("question code %q is used twice", q.Code)
		}
		codes[q.Code] = true
		questions = append(questions, q)
	}

	created, err := s.provider.SaveQuestionnaire(ctx, domains.QuestionnaireToSave{
		OrganizationID: orgID,
		OwnerID:        caller.UserID,
		Title:          title,
		Description:    trimmedOrNil(input.Description),
		Category:       trimmedOrNil(input.Category),
		Questions:      questions,
	})
	if err != nil {
		slog.Error("save questionnaire failed", "err", err, "organization_id", orgID)
		return domains.Questionnaire{}, err
	}
	slog.Info("questionnaire created", "questionnaire_id", created.ID, "questions", len(created.Questions))
	return created, nil
}

func (s *QuestionnaireService) Get(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	q, err := s.provider.GetQuestionnaire(ctx, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if err := authorizeQuestionnaire(caller, q, false); err != nil {
		return domains.Questionnaire{}, err
	}
	return q, nil
}

// List is scoped to the caller's organization unless the caller is an admin.
// Respondents only see published questionnaires.
func (s *QuestionnaireService) List(ctx context.Context, caller domains.Principal, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error) {
	if !caller.IsAdmin() {
		if caller.OrganizationID == nil {
			return []domains.QuestionnaireSummary{}, nil
		}
		filter.OrganizationID = caller.OrganizationID
	}
	if !caller.CanManage() {
		filter.Status = domains.QuestionnairePublished
	}
	switch filter.Status {
	case "", domains.QuestionnaireDraft, domains.QuestionnairePublished, domains.QuestionnaireArchived:
	default:
		return nil, validationf("unknown status %q", filter.Status)
	}
	return s.provider.ListQuestionnaires(ctx, filter)
}

func (s *QuestionnaireService) Update(ctx context.Context, caller domains.Principal, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error) {
	q, err := s.manageable(ctx, caller, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if !update.HasChanges() {
		return q, nil
	}
	if q.Status == domains.QuestionnaireArchived {
		return domains.Questionnaire{}, ErrQuestionnaireLocked
	}
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return domains.Questionnaire{}, validationf("title must not be empty")
		}
		update.Title = &title
	}
	return s.provider.UpdateQuestionnaire(ctx, id, update)
}

func (s *QuestionnaireService) Delete(ctx context.Context, caller domains.Principal, id int64) error {
	if _, err := s.manageable(ctx, caller, id); err != nil {
		return err
	}
	return s.provider.DeleteQuestionnaire(ctx, id)
}

// Publish opens the questionnaire for responses and bumps its version.
func (s *QuestionnaireService) Publish(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	q, err := s.manageable(ctx, caller, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if len(q.Questions) == 0 {
		return domains.Questionnaire{}, ErrQuestionnaireEmpty
	}
	published, err := s.provider.SetQuestionnaireStatus(ctx, id, domains.QuestionnairePublished, true)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	slog.Info("questionnaire published", "questionnaire_id", id, "version", published.Version)
	return published, nil
}

func (s *QuestionnaireService) Archive(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	if _, err := s.manageable(ctx, caller, id); err != nil {
		return domains.Questionnaire{}, err
	}
	return s.provider.SetQuestionnaireStatus(ctx, id, domains.QuestionnaireArchived, false)
}

func (s *QuestionnaireService) AddQuestion(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.QuestionInput) (domains.Question, error) {
	if _, err := s.editable(ctx, caller, questionnaireID); err != nil {
		return domains.Question{}, err
	}
	q, err := buildQuestion(input)
	if err != nil {
		return domains.Question{}, validationf("%s", err.Error())
	}
	added, err := s.provider.AddQuestion(ctx, questionnaireID, q)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domains.Question{}, validationf("question code %q already exists", q.Code)
		}
		return domains.Question{}, err
	}
	return added, nil
}

func (s *QuestionnaireService) UpdateQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64, input domains.QuestionInput) (domains.Question, error) {
	if _, err := s.editable(ctx, caller, questionnaireID); err != nil {
		return domains.Question{}, err
	}
	q, err := buildQuestion(input)
	if err != nil {
		return domains.Question{}, validationf("%s", err.Error())
	}
	q.ID = questionID
	updated, err := s.provider.UpdateQuestion(ctx, questionnaireID, q)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domains.Question{}, validationf("question code %q already exists", q.Code)
		}
		return domains.Question{}, err
	}
	return updated, nil
}

func (s *QuestionnaireService) DeleteQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64) error {
	if _, err := s.editable(ctx, caller, questionnaireID); err != nil {
		return err
	}
	return s.provider.DeleteQuestion(ctx, questionnaireID, questionID)
}

func (s *QuestionnaireService) ReorderQuestions(ctx context.Context, caller domains.Principal, questionnaireID int64, order domains.QuestionOrder) ([]domains.Question, error) {
	q, err := s.editable(ctx, caller, questionnaireID)
	if err != nil {
		return nil, err
	}
	if len(order.QuestionIDs) != len(q.Questions) {
		return nil, validationf("order must list all %d questions", len(q.Questions))
	}
	seen := make(map[int64]bool, len(order.QuestionIDs))
	for _, id := range order.QuestionIDs {
		if seen[id] {
			return nil, validationf("question %d is listed twice", id)
		}
		seen[id] = true
	}

	questions, err := s.provider.ReorderQuestions(ctx, questionnaireID, order.QuestionIDs)
	if err != nil {
		if errors.Is(err, storage.ErrStateConflict) {
			return nil, validationf("order must list exactly the questions of this questionnaire")
		}
		return nil, err
	}
	return questions, nil
}

func (s *QuestionnaireService) manageable(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	q, err := s.provider.GetQuestionnaire(ctx, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if err := authorizeQuestionnaire(caller, q, true); err != nil {
		return domains.Questionnaire{}, err
	}
	return q, nil
}

func (s *QuestionnaireService) editable(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error) {
	q, err := s.manageable(ctx, caller, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if q.Status == domains.QuestionnaireArchived {
		return domains.Questionnaire{}, ErrQuestionnaireLocked
	}
	return q, nil
}

// authorizeQuestionnaire checks organization membership. Managing requires a
// clinician or admin; reading is also open to respondents once published.
func authorizeQuestionnaire(caller domains.Principal, q domains.Questionnaire, manage bool) error {
	if !caller.InOrganization(q.OrganizationID) {
		return ErrForbidden
	}
	if caller.CanManage() {
		return nil
	}
	if manage || !q.AcceptsResponses() {
		return ErrForbidden
	}
	return nil
}

// organizationFor resolves the organization a caller acts in. Admins may name one
// explicitly; everybody else acts in their own.
func organizationFor(caller domains.Principal, requested *int64) (int64, error) {
	if requested != nil {
		if !caller.InOrganization(*requested) {
			return 0, ErrForbidden
		}
		return *requested, nil
	}
	if caller.OrganizationID == nil {
		return 0, validationf("organization_id is required")
	}
	return *caller.OrganizationID, nil
}

func buildQuestion(input domains.QuestionInput) (domains.Question, error) {
	q := domains.Question{
		Code:          strings.TrimSpace(input.Code),
		Text:          strings.TrimSpace(input.Text),
		Type:          input.Type,
		Required:      true,
		Weight:        1,
		ReverseScored: input.ReverseScored,
		Subscale:      trimmedOrNil(input.Subscale),
		MinValue:      input.MinValue,
		MaxValue:      input.MaxValue,
	}
	if input.Required != nil {
		q.Required = *input.Required
	}
	if input.Weight != nil {
		if *input.Weight <= 0 {
			return q, errors.New("weight must be positive")
		}
		q.Weight = *input.Weight
	}

	if !questionCodePattern.MatchString(q.Code) {
		return q, fmt.Errorf("code %q must be 1-64 letters, digits, '_', '.' or '-'", q.Code)
	}
	if q.Text == "" {
		return q, errors.New("text is required")
	}

	switch q.Type {
	case domains.QuestionLikert, domains.QuestionSingleChoice, domains.QuestionMultipleChoice:
		if len(input.Options) < 2 {
			return q, fmt.Errorf("%s questions need at least two options", q.Type)
		}
		values := make(map[float64]bool, len(input.Options))
		for _, opt := range input.Options {
			if strings.TrimSpace(opt.Label) == "" {
				return q, errors.New("option labels must not be empty")
			}
			if values[opt.Value] {
				return q, fmt.Errorf("option value %v is used twice", opt.Value)
			}
			values[opt.Value] = true
		}
		q.Options = input.Options
		q.MinValue, q.MaxValue = nil, nil
	case domains.QuestionNumber:
		if q.MinValue != nil && q.MaxValue != nil && *q.MinValue > *q.MaxValue {
			return q, errors.New("min_value must not exceed max_value")
		}
	case domains.QuestionYesNo, domains.QuestionText:
		q.MinValue, q.MaxValue = nil, nil
		if q.Type == domains.QuestionText {
			q.ReverseScored = false
		}
	default:
		return q, fmt.Errorf("unknown question type %q", input.Type)
	}
	return q, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
