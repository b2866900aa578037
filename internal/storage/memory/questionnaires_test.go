package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

func TestNewQuestionnaireStore_SeedsInstruments(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionnaireStore(7, 3)

	list, err := store.ListQuestionnaires(ctx, domains.QuestionnaireFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	phq, err := store.GetQuestionnaire(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "PHQ-9", phq.Title)
	assert.Equal(t, int64(7), phq.OrganizationID)
	assert.Equal(t, int64(3), phq.OwnerID)
	assert.True(t, phq.AcceptsResponses())
	require.Len(t, phq.Questions, 9)
	assert.Equal(t, int64(1), phq.Questions[0].ID)
	assert.Equal(t, int64(1), phq.Questions[0].QuestionnaireID)

	gad, err := store.GetQuestionnaire(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), gad.Questions[0].ID)

	cfg, err := store.GetScoringConfig(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domains.ScoringSum, cfg.Method)
	assert.Len(t, cfg.Ranges, 4)

	category := "anxiety"
	filtered, err := store.ListQuestionnaires(ctx, domains.QuestionnaireFilter{Category: category})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 7, filtered[0].QuestionCount)
}

func TestQuestionnaireStore_QuestionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionnaireStore(0, 0)

	created, err := store.SaveQuestionnaire(ctx, domains.QuestionnaireToSave{
		OrganizationID: 1,
		OwnerID:        1,
		Title:          "Sleep check",
		Questions: []domains.Question{
			{Code: "hours", Text: "Hours slept", Type: domains.QuestionNumber},
			{Code: "rested", Text: "Rested?", Type: domains.QuestionYesNo},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domains.QuestionnaireDraft, created.Status)
	assert.Equal(t, 2, created.Questions[1].Position)

	added, err := store.AddQuestion(ctx, created.ID, domains.Question{Code: "notes", Type: domains.QuestionText})
	require.NoError(t, err)
	assert.Equal(t, 3, added.Position)

	_, err = store.AddQuestion(ctx, created.ID, domains.Question{Code: "hours", Type: domains.QuestionText})
	assert.ErrorIs(t, err, storage.ErrConflict)

	reordered, err := store.ReorderQuestions(ctx, created.ID, []int64{added.ID, created.Questions[1].ID, created.Questions[0].ID})
	require.NoError(t, err)
	assert.Equal(t, "notes", reordered[0].Code)
	assert.Equal(t, 1, reordered[0].Position)

	_, err = store.ReorderQuestions(ctx, created.ID, []int64{added.ID})
	assert.ErrorIs(t, err, storage.ErrStateConflict)

	require.NoError(t, store.DeleteQuestion(ctx, created.ID, created.Questions[1].ID))
	got, err := store.GetQuestionnaire(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	assert.Equal(t, []int{1, 2}, []int{got.Questions[0].Position, got.Questions[1].Position})

	published, err := store.SetQuestionnaireStatus(ctx, created.ID, domains.QuestionnairePublished, true)
	require.NoError(t, err)
	assert.Equal(t, 1, published.Version)

	require.NoError(t, store.DeleteQuestionnaire(ctx, created.ID))
	_, err = store.GetQuestionnaire(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQuestionnaireStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionnaireStore(1, 1)

	q, err := store.GetQuestionnaire(ctx, 1)
	require.NoError(t, err)
	q.Questions[0].Options[0].Label = "changed"
	q.Title = "changed"

	again, err := store.GetQuestionnaire(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "PHQ-9", again.Title)
	assert.Equal(t, "Not at all", again.Questions[0].Options[0].Label)
}

func TestQuestionnaireStore_ScoringConfig(t *testing.T) {
	ctx := context.Background()
	store := NewQuestionnaireStore(0, 0)

	_, err := store.GetScoringConfig(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.SaveScoringConfig(ctx, 1, domains.ScoringConfigInput{Method: domains.ScoringSum})
	assert.ErrorIs(t, err, storage.ErrReferenceMissing)

	created, err := store.SaveQuestionnaire(ctx, domains.QuestionnaireToSave{OrganizationID: 1, OwnerID: 1, Title: "x"})
	require.NoError(t, err)

	saved, err := store.SaveScoringConfig(ctx, created.ID, domains.ScoringConfigInput{
		Method: domains.ScoringAverage,
		Ranges: []domains.ScoreRange{{Min: 0, Max: 1, Label: "low"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domains.ScoringAverage, saved.Method)

	got, err := store.GetScoringConfig(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "low", got.Ranges[0].Label)
}
