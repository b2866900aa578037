package httptransport

import (
	"context"
	"net/http"

	"mindtrack/internal/domains"
	"mindtrack/internal/httpx"
)

type QuestionnaireHandlers struct {
	service QuestionnaireServices
	scoring ScoringServices
}

type QuestionnaireServices interface {
	Create(ctx context.Context, caller domains.Principal, input domains.QuestionnaireCreate) (domains.Questionnaire, error)
	Get(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error)
	List(ctx context.Context, caller domains.Principal, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error)
	Update(ctx context.Context, caller domains.Principal, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error)
	Delete(ctx context.Context, caller domains.Principal, id int64) error
	Publish(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error)
	Archive(ctx context.Context, caller domains.Principal, id int64) (domains.Questionnaire, error)
	AddQuestion(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.QuestionInput) (domains.Question, error)
	UpdateQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64, input domains.QuestionInput) (domains.Question, error)
	DeleteQuestion(ctx context.Context, caller domains.Principal, questionnaireID, questionID int64) error
	ReorderQuestions(ctx context.Context, caller domains.Principal, questionnaireID int64, order domains.QuestionOrder) ([]domains.Question, error)
}

type ScoringServices interface {
	GetConfig(ctx context.Context, caller domains.Principal, questionnaireID int64) (domains.ScoringConfig, error)
	SaveConfig(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.ScoringConfigInput) (domains.ScoringConfig, error)
	Preview(ctx context.Context, caller domains.Principal, questionnaireID int64, req domains.ScorePreviewRequest) (domains.ScoreResult, error)
}

func NewQuestionnaireHandlers(service QuestionnaireServices, scoring ScoringServices) *QuestionnaireHandlers {
	return &QuestionnaireHandlers{service: service, scoring: scoring}
}

func (h *QuestionnaireHandlers) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	input, ok := readBody[domains.QuestionnaireCreate](w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), p, input)
	if err != nil {
		writeError(w, r, "CreateQuestionnaire", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *QuestionnaireHandlers) List(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	orgID, err := httpx.QueryID(r, "organization_id")
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	query := r.URL.Query()
	list, err := h.service.List(r.Context(), p, domains.QuestionnaireFilter{
		OrganizationID: orgID,
		Status:         query.Get("status"),
		Category:       query.Get("category"),
	})
	if err != nil {
		writeError(w, r, "ListQuestionnaires", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *QuestionnaireHandlers) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetQuestionnaire", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *QuestionnaireHandlers) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	update, ok := readBody[domains.QuestionnaireUpdate](w, r)
	if !ok {
		return
	}
	q, err := h.service.Update(r.Context(), p, id, update)
	if err != nil {
		writeError(w, r, "UpdateQuestionnaire", err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *QuestionnaireHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), p, id); err != nil {
		writeError(w, r, "DeleteQuestionnaire", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionnaireHandlers) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "PublishQuestionnaire", h.service.Publish)
}

func (h *QuestionnaireHandlers) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "ArchiveQuestionnaire", h.service.Archive)
}

func (h *QuestionnaireHandlers) transition(w http.ResponseWriter, r *http.Request, op string,
	apply func(context.Context, domains.Principal, int64) (domains.Questionnaire, error)) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	q, err := apply(r.Context(), p, id)
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *QuestionnaireHandlers) AddQuestion(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := readBody[domains.QuestionInput](w, r)
	if !ok {
		return
	}
	question, err := h.service.AddQuestion(r.Context(), p, id, input)
	if err != nil {
		writeError(w, r, "AddQuestion", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, question)
}

func (h *QuestionnaireHandlers) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionId")
	if !ok {
		return
	}
	input, ok := readBody[domains.QuestionInput](w, r)
	if !ok {
		return
	}
	question, err := h.service.UpdateQuestion(r.Context(), p, id, questionID, input)
	if err != nil {
		writeError(w, r, "UpdateQuestion", err)
		return
	}
	httpx.JSON(w, http.StatusOK, question)
}

func (h *QuestionnaireHandlers) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	questionID, ok := pathID(w, r, "questionId")
	if !ok {
		return
	}
	if err := h.service.DeleteQuestion(r.Context(), p, id, questionID); err != nil {
		writeError(w, r, "DeleteQuestion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuestionnaireHandlers) ReorderQuestions(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	order, ok := readBody[domains.QuestionOrder](w, r)
	if !ok {
		return
	}
	questions, err := h.service.ReorderQuestions(r.Context(), p, id, order)
	if err != nil {
		writeError(w, r, "ReorderQuestions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, questions)
}

func (h *QuestionnaireHandlers) GetScoring(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cfg, err := h.scoring.GetConfig(r.Context(), p, id)
	if err != nil {
		writeError(w, r, "GetScoringConfig", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *QuestionnaireHandlers) SaveScoring(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	input, ok := readBody[domains.ScoringConfigInput](w, r)
	if !ok {
		return
	}
	cfg, err := h.scoring.SaveConfig(r.Context(), p, id, input)
	if err != nil {
		writeError(w, r, "SaveScoringConfig", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cfg)
}

func (h *QuestionnaireHandlers) PreviewScore(w http.ResponseWriter, r *http.Request) {
	p, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, ok := readBody[domains.ScorePreviewRequest](w, r)
	if !ok {
		return
	}
	result, err := h.scoring.Preview(r.Context(), p, id, req)
	if err != nil {
		writeError(w, r, "PreviewScore", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
