package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const (
	questionnaireColumns = `id, organization_id, owner_id, title, description, category, status, version, is_active, created_at, updated_at`
	questionColumns      = `id, questionnaire_id, code, text, type, options, required, position, weight, reverse_scored, subscale, min_value, max_value`
)

type QuestionnaireProvider struct {
	db *pgxpool.Pool
}

func NewQuestionnaireProvider(db *pgxpool.Pool) *QuestionnaireProvider {
	return &QuestionnaireProvider{
		db: db,
	}
}

func (p *QuestionnaireProvider) SaveQuestionnaire(ctx context.Context, q domains.QuestionnaireToSave) (domains.Questionnaire, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		INSERT INTO questionnaires (organization_id, owner_id, title, description, category)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+questionnaireColumns,
		q.OrganizationID, q.OwnerID, q.Title, q.Description, q.Category,
	)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("insert questionnaire: %w", storage.Classify(err))
	}
	created, err := pgx.CollectOneRow(rows, scanQuestionnaire)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("insert questionnaire: %w", storage.Classify(err))
	}

	created.Questions = make([]domains.Question, 0, len(q.Questions))
	for i, question := range q.Questions {
		question.Position = i + 1
		saved, err := insertQuestion(ctx, tx, created.ID, question)
		if err != nil {
			return domains.Questionnaire{}, err
		}
		created.Questions = append(created.Questions, saved)
	}

	if err := tx.Commit(ctx); err != nil {
		return domains.Questionnaire{}, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

func (p *QuestionnaireProvider) GetQuestionnaire(ctx context.Context, id int64) (domains.Questionnaire, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+questionnaireColumns+` FROM questionnaires WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("get questionnaire: %w", err)
	}
	q, err := pgx.CollectOneRow(rows, scanQuestionnaire)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("get questionnaire: %w", storage.Classify(err))
	}

	questions, err := p.listQuestions(ctx, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	q.Questions = questions
	return q, nil
}

func (p *QuestionnaireProvider) ListQuestionnaires(ctx context.Context, filter domains.QuestionnaireFilter) ([]domains.QuestionnaireSummary, error) {
	where := []string{"q.is_active"}
	args := make([]interface{}, 0, 3)
	idx := 1

	if filter.OrganizationID != nil {
		where = append(where, fmt.Sprintf("q.organization_id = $%d", idx))
		args = append(args, *filter.OrganizationID)
		idx++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("q.status = $%d", idx))
		args = append(args, filter.Status)
		idx++
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("q.category = $%d", idx))
		args = append(args, filter.Category)
	}

	query := fmt.Sprintf(`
		SELECT
			q.id, q.organization_id, q.owner_id, q.title, q.description, q.category,
			q.status, q.version, q.is_active, q.created_at, q.updated_at,
			(SELECT COUNT(*) FROM questions qs WHERE qs.questionnaire_id = q.id) AS question_count
		FROM questionnaires q
		WHERE %s
		ORDER BY q.updated_at DESC`,
		strings.Join(where, " AND "),
	)

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list questionnaires: %w", err)
	}
	defer rows.Close()

	result := make([]domains.QuestionnaireSummary, 0)
	for rows.Next() {
		var s domains.QuestionnaireSummary
		if err := rows.Scan(
			&s.ID, &s.OrganizationID, &s.OwnerID, &s.Title, &s.Description, &s.Category,
			&s.Status, &s.Version, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
			&s.QuestionCount,
		); err != nil {
			return nil, fmt.Errorf("scan questionnaire summary: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questionnaires: %w", err)
	}
	return result, nil
}

func (p *QuestionnaireProvider) UpdateQuestionnaire(ctx context.Context, id int64, update domains.QuestionnaireUpdate) (domains.Questionnaire, error) {
	setClauses := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)
	idx := 1

	if update.Title != nil {
		setClauses = append(setClauses, fmt.Sprintf("title = $%d", idx))
		args = append(args, *update.Title)
		idx++
	}
	if update.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", idx))
		args = append(args, *update.Description)
		idx++
	}
	if update.Category != nil {
		setClauses = append(setClauses, fmt.Sprintf("category = $%d", idx))
		args = append(args, *update.Category)
		idx++
	}
	if len(setClauses) == 0 {
		return p.GetQuestionnaire(ctx, id)
	}

	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE questionnaires SET %s WHERE id = $%d AND is_active`, strings.Join(setClauses, ", "), idx)

	tag, err := p.db.Exec(ctx, query, args...)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("update questionnaire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domains.Questionnaire{}, fmt.Errorf("update questionnaire: %w", storage.ErrNotFound)
	}
	return p.GetQuestionnaire(ctx, id)
}

func (p *QuestionnaireProvider) SetQuestionnaireStatus(ctx context.Context, id int64, status string, bumpVersion bool) (domains.Questionnaire, error) {
	bump := 0
	if bumpVersion {
		bump = 1
	}
	tag, err := p.db.Exec(ctx, `
		UPDATE questionnaires
		SET status = $1, version = version + $2, updated_at = now()
		WHERE id = $3 AND is_active`,
		status, bump, id,
	)
	if err != nil {
		return domains.Questionnaire{}, fmt.Errorf("set questionnaire status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domains.Questionnaire{}, fmt.Errorf("set questionnaire status: %w", storage.ErrNotFound)
	}
	return p.GetQuestionnaire(ctx, id)
}

func (p *QuestionnaireProvider) DeleteQuestionnaire(ctx context.Context, id int64) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE questionnaires SET is_active = FALSE, updated_at = now() WHERE id = $1 AND is_active`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete questionnaire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete questionnaire: %w", storage.ErrNotFound)
	}
	return nil
}

func (p *QuestionnaireProvider) AddQuestion(ctx context.Context, questionnaireID int64, question domains.Question) (domains.Question, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domains.Question{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialises concurrent inserts so positions stay dense.
	if _, err := tx.Exec(ctx, `SELECT id FROM questionnaires WHERE id = $1 FOR UPDATE`, questionnaireID); err != nil {
		return domains.Question{}, fmt.Errorf("lock questionnaire: %w", err)
	}
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM questions WHERE questionnaire_id = $1`,
		questionnaireID,
	).Scan(&question.Position); err != nil {
		return domains.Question{}, fmt.Errorf("next question position: %w", err)
	}

	saved, err := insertQuestion(ctx, tx, questionnaireID, question)
	if err != nil {
		return domains.Question{}, err
	}
	if err := touchQuestionnaire(ctx, tx, questionnaireID); err != nil {
		return domains.Question{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domains.Question{}, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

func (p *QuestionnaireProvider) UpdateQuestion(ctx context.Context, questionnaireID int64, question domains.Question) (domains.Question, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domains.Question{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE questions
		SET code = $1, text = $2, type = $3, options = $4, required = $5,
		    weight = $6, reverse_scored = $7, subscale = $8, min_value = $9, max_value = $10
		WHERE id = $11 AND questionnaire_id = $12
		RETURNING `+questionColumns,
		question.Code,
		question.Text,
		question.Type,
		optionsOrEmpty(question.Options),
		question.Required,
		question.Weight,
		question.ReverseScored,
		question.Subscale,
		question.MinValue,
		question.MaxValue,
		question.ID,
		questionnaireID,
	)
	if err != nil {
		return domains.Question{}, fmt.Errorf("update question: %w", storage.Classify(err))
	}
	updated, err := pgx.CollectOneRow(rows, scanQuestion)
	if err != nil {
		return domains.Question{}, fmt.Errorf("update question: %w", storage.Classify(err))
	}
	if err := touchQuestionnaire(ctx, tx, questionnaireID); err != nil {
		return domains.Question{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domains.Question{}, fmt.Errorf("commit: %w", err)
	}
	return updated, nil
}

func (p *QuestionnaireProvider) DeleteQuestion(ctx context.Context, questionnaireID, questionID int64) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var position int
	if err := tx.QueryRow(ctx,
		`DELETE FROM questions WHERE id = $1 AND questionnaire_id = $2 RETURNING position`,
		questionID, questionnaireID,
	).Scan(&position); err != nil {
		return fmt.Errorf("delete question: %w", storage.Classify(err))
	}
	if _, err := tx.Exec(ctx,
		`UPDATE questions SET position = position - 1 WHERE questionnaire_id = $1 AND position > $2`,
		questionnaireID, position,
	); err != nil {
		return fmt.Errorf("compact positions: %w", err)
	}
	if err := touchQuestionnaire(ctx, tx, questionnaireID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReorderQuestions assigns positions following ids. The ids must be exactly the
// questionnaire's question set.
func (p *QuestionnaireProvider) ReorderQuestions(ctx context.Context, questionnaireID int64, ids []int64) ([]domains.Question, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE questionnaire_id = $1`,
		questionnaireID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if count != len(ids) {
		return nil, fmt.Errorf("reorder questions: %w", storage.ErrStateConflict)
	}

	for i, id := range ids {
		tag, err := tx.Exec(ctx,
			`UPDATE questions SET position = $1 WHERE id = $2 AND questionnaire_id = $3`,
			i+1, id, questionnaireID,
		)
		if err != nil {
			return nil, fmt.Errorf("update position: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, fmt.Errorf("update position: %w", storage.ErrNotFound)
		}
	}
	if err := touchQuestionnaire(ctx, tx, questionnaireID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p.listQuestions(ctx, questionnaireID)
}

func (p *QuestionnaireProvider) listQuestions(ctx context.Context, questionnaireID int64) ([]domains.Question, error) {
	rows, err := p.db.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE questionnaire_id = $1 ORDER BY position, id`,
		questionnaireID,
	)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	questions, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

func insertQuestion(ctx context.Context, tx pgx.Tx, questionnaireID int64, q domains.Question) (domains.Question, error) {
	rows, err := tx.Query(ctx, `
		INSERT INTO questions (
		    questionnaire_id, code, text, type, options, required, position,
		    weight, reverse_scored, subscale, min_value, max_value
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING `+questionColumns,
		questionnaireID,
		q.Code,
		q.Text,
		q.Type,
		optionsOrEmpty(q.Options),
		q.Required,
		q.Position,
		q.Weight,
		q.ReverseScored,
		q.Subscale,
		q.MinValue,
		q.MaxValue,
	)
	if err != nil {
		return domains.Question{}, fmt.Errorf("insert question: %w", storage.Classify(err))
	}
	saved, err := pgx.CollectOneRow(rows, scanQuestion)
	if err != nil {
		return domains.Question{}, fmt.Errorf("insert question %s: %w", q.Code, storage.Classify(err))
	}
	return saved, nil
}

func touchQuestionnaire(ctx context.Context, tx pgx.Tx, id int64) error {
	if _, err := tx.Exec(ctx, `UPDATE questionnaires SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch questionnaire: %w", err)
	}
	return nil
}

func optionsOrEmpty(options []domains.QuestionOption) []domains.QuestionOption {
	if options == nil {
		return []domains.QuestionOption{}
	}
	return options
}

func scanQuestionnaire(row pgx.CollectableRow) (domains.Questionnaire, error) {
	var q domains.Questionnaire
	err := row.Scan(
		&q.ID,
		&q.OrganizationID,
		&q.OwnerID,
		&q.Title,
		&q.Description,
		&q.Category,
		&q.Status,
		&q.Version,
		&q.IsActive,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	return q, err
}

func scanQuestion(row pgx.CollectableRow) (domains.Question, error) {
	var q domains.Question
	err := row.Scan(
		&q.ID,
		&q.QuestionnaireID,
		&q.Code,
		&q.Text,
		&q.Type,
		&q.Options,
		&q.Required,
		&q.Position,
		&q.Weight,
		&q.ReverseScored,
		&q.Subscale,
		&q.MinValue,
		&q.MaxValue,
	)
	if err != nil {
		return domains.Question{}, err
	}
	if len(q.Options) == 0 {
		q.Options = nil
	}
	return q, nil
}
