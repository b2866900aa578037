package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

const responseColumns = `id, questionnaire_id, assignment_id, respondent_id, state, started_at, submitted_at,
	total_score, severity, label, score_details`

type ResponseProvider struct {
	db *pgxpool.Pool
}

func NewResponseProvider(db *pgxpool.Pool) *ResponseProvider {
	return &ResponseProvider{
		db: db,
	}
}

// StartResponse returns the response bound to the assignment, creating an in-progress
// one on first use, and moves an invited assignment to started.
func (p *ResponseProvider) StartResponse(ctx context.Context, assignment domains.Assignment) (domains.Response, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domains.Response{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockOpenAssignment(ctx, tx, assignment.ID); err != nil {
		return domains.Response{}, err
	}

	rows, err := tx.Query(ctx,
		`SELECT `+responseColumns+` FROM responses WHERE assignment_id = $1`,
		assignment.ID,
	)
	if err != nil {
		return domains.Response{}, fmt.Errorf("find response: %w", err)
	}
	response, err := pgx.CollectOneRow(rows, scanResponse)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		rows, err = tx.Query(ctx, `
			INSERT INTO responses (questionnaire_id, assignment_id, state)
			VALUES ($1, $2, 'in_progress')
			RETURNING `+responseColumns,
			assignment.QuestionnaireID, assignment.ID,
		)
		if err != nil {
			return domains.Response{}, fmt.Errorf("insert response: %w", storage.Classify(err))
		}
		response, err = pgx.CollectOneRow(rows, scanResponse)
		if err != nil {
			return domains.Response{}, fmt.Errorf("insert response: %w", storage.Classify(err))
		}
	default:
		return domains.Response{}, fmt.Errorf("find response: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE assignments SET state = 'started' WHERE id = $1 AND state = 'invited'`,
		assignment.ID,
	); err != nil {
		return domains.Response{}, fmt.Errorf("mark assignment started: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domains.Response{}, fmt.Errorf("commit: %w", err)
	}
	return response, nil
}

// SaveResponse stores a submitted response with its answers and score. A response
// reached through an assignment completes it; submitting twice is a state conflict.
func (p *ResponseProvider) SaveResponse(ctx context.Context, payload domains.ResponseToSave) (domains.Response, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return domains.Response{}, fmt.Errorf("begin response tx: %w", err)
	}
	defer tx.Rollback(ctx)

	score := payload.Score
	var (
		severity *string
		label    *string
	)
	if score.Severity != "" {
		severity = &score.Severity
	}
	if score.Label != "" {
		label = &score.Label
	}

	var rows pgx.Rows
	if payload.AssignmentID != nil {
		if err := lockOpenAssignment(ctx, tx, *payload.AssignmentID); err != nil {
			return domains.Response{}, err
		}
		rows, err = tx.Query(ctx, `
			INSERT INTO responses (
			    questionnaire_id, assignment_id, respondent_id, state, submitted_at,
			    total_score, severity, label, score_details
			) VALUES ($1, $2, $3, 'submitted', $4, $5, $6, $7, $8)
			ON CONFLICT (assignment_id) WHERE assignment_id IS NOT NULL DO UPDATE
			SET state = 'submitted',
			    respondent_id = COALESCE(EXCLUDED.respondent_id, responses.respondent_id),
			    submitted_at = EXCLUDED.submitted_at,
			    total_score = EXCLUDED.total_score,
			    severity = EXCLUDED.severity,
			    label = EXCLUDED.label,
			    score_details = EXCLUDED.score_details
			WHERE responses.state = 'in_progress'
			RETURNING `+responseColumns,
			payload.QuestionnaireID, payload.AssignmentID, payload.RespondentID, payload.SubmittedAt,
			score.Total, severity, label, score,
		)
	} else {
		rows, err = tx.Query(ctx, `
			INSERT INTO responses (
			    questionnaire_id, respondent_id, state, started_at, submitted_at,
			    total_score, severity, label, score_details
			) VALUES ($1, $2, 'submitted', $3, $3, $4, $5, $6, $7)
			RETURNING `+responseColumns,
			payload.QuestionnaireID, payload.RespondentID, payload.SubmittedAt,
			score.Total, severity, label, score,
		)
	}
	if err != nil {
		return domains.Response{}, fmt.Errorf("upsert response: %w", storage.Classify(err))
	}
	response, err := pgx.CollectOneRow(rows, scanResponse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domains.Response{}, fmt.Errorf("upsert response: %w", storage.ErrStateConflict)
		}
		return domains.Response{}, fmt.Errorf("upsert response: %w", storage.Classify(err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM answers WHERE response_id = $1`, response.ID); err != nil {
		return domains.Response{}, fmt.Errorf("clear answers: %w", err)
	}

	const insertAnswer = `
		INSERT INTO answers (response_id, question_id, value_text, value_number, value_bool, value_json)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, answer := range payload.Answers {
		var valueJSON interface{}
		if len(answer.ValueJSON) > 0 {
			valueJSON = answer.ValueJSON
		}
		if _, err := tx.Exec(ctx, insertAnswer,
			response.ID,
			answer.QuestionID,
			answer.ValueText,
			answer.ValueNumber,
			answer.ValueBool,
			valueJSON,
		); err != nil {
			return domains.Response{}, fmt.Errorf("insert answer: %w", storage.Classify(err))
		}
	}

	if payload.AssignmentID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE assignments SET state = 'completed', token_hash = NULL WHERE id = $1`,
			*payload.AssignmentID,
		); err != nil {
			return domains.Response{}, fmt.Errorf("complete assignment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domains.Response{}, fmt.Errorf("commit response: %w", err)
	}
	return response, nil
}

func (p *ResponseProvider) ListResponses(ctx context.Context, questionnaireID int64, filter domains.ResponseFilter) ([]domains.Response, error) {
	query := `SELECT ` + responseColumns + ` FROM responses WHERE questionnaire_id = $1`
	args := []interface{}{questionnaireID}
	if filter.State != "" {
		query += ` AND state = $2`
		args = append(args, filter.State)
	}
	query += ` ORDER BY COALESCE(submitted_at, started_at) DESC, id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, filter.Limit)
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	responses, err := pgx.CollectRows(rows, scanResponse)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

func (p *ResponseProvider) GetResponse(ctx context.Context, id int64) (domains.ResponseDetails, error) {
	rows, err := p.db.Query(ctx, `SELECT `+responseColumns+` FROM responses WHERE id = $1`, id)
	if err != nil {
		return domains.ResponseDetails{}, fmt.Errorf("get response: %w", err)
	}
	response, err := pgx.CollectOneRow(rows, scanResponse)
	if err != nil {
		return domains.ResponseDetails{}, fmt.Errorf("get response: %w", storage.Classify(err))
	}

	rows, err = p.db.Query(ctx, `
		SELECT a.question_id, q.code, a.value_text, a.value_number, a.value_bool, a.value_json
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.response_id = $1
		ORDER BY q.position, q.id`,
		id,
	)
	if err != nil {
		return domains.ResponseDetails{}, fmt.Errorf("list answers: %w", err)
	}
	answers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domains.Answer, error) {
		var (
			a         domains.Answer
			valueJSON []byte
		)
		err := row.Scan(&a.QuestionID, &a.QuestionCode, &a.ValueText, &a.ValueNumber, &a.ValueBool, &valueJSON)
		if len(valueJSON) > 0 {
			a.ValueJSON = json.RawMessage(valueJSON)
		}
		return a, err
	})
	if err != nil {
		return domains.ResponseDetails{}, fmt.Errorf("list answers: %w", err)
	}

	return domains.ResponseDetails{Response: response, Answers: answers}, nil
}

func (p *ResponseProvider) UpdateResponseScore(ctx context.Context, id int64, score domains.ScoreResult) (domains.Response, error) {
	var severity, label *string
	if score.Severity != "" {
		severity = &score.Severity
	}
	if score.Label != "" {
		label = &score.Label
	}

	rows, err := p.db.Query(ctx, `
		UPDATE responses
		SET total_score = $1, severity = $2, label = $3, score_details = $4
		WHERE id = $5 AND state = 'submitted'
		RETURNING `+responseColumns,
		score.Total, severity, label, score, id,
	)
	if err != nil {
		return domains.Response{}, fmt.Errorf("update response score: %w", err)
	}
	response, err := pgx.CollectOneRow(rows, scanResponse)
	if err != nil {
		return domains.Response{}, fmt.Errorf("update response score: %w", storage.Classify(err))
	}
	return response, nil
}

func lockOpenAssignment(ctx context.Context, tx pgx.Tx, assignmentID int64) error {
	var state string
	if err := tx.QueryRow(ctx,
		`SELECT state FROM assignments WHERE id = $1 FOR UPDATE`,
		assignmentID,
	).Scan(&state); err != nil {
		return fmt.Errorf("lock assignment: %w", storage.Classify(err))
	}
	if state != domains.AssignmentInvited && state != domains.AssignmentStarted {
		return fmt.Errorf("lock assignment: %w", storage.ErrStateConflict)
	}
	return nil
}

func scanResponse(row pgx.CollectableRow) (domains.Response, error) {
	var r domains.Response
	err := row.Scan(
		&r.ID,
		&r.QuestionnaireID,
		&r.AssignmentID,
		&r.RespondentID,
		&r.State,
		&r.StartedAt,
		&r.SubmittedAt,
		&r.TotalScore,
		&r.Severity,
		&r.Label,
		&r.ScoreDetails,
	)
	return r, err
}
