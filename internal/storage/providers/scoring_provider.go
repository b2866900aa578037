package providers

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mindtrack/internal/domains"
	"mindtrack/internal/storage"
)

type ScoringProvider struct {
	db *pgxpool.Pool
}

func NewScoringProvider(db *pgxpool.Pool) *ScoringProvider {
	return &ScoringProvider{
		db: db,
	}
}

// GetScoringConfig returns storage.ErrNotFound when the questionnaire has no stored config.
func (p *ScoringProvider) GetScoringConfig(ctx context.Context, questionnaireID int64) (domains.ScoringConfig, error) {
	var cfg domains.ScoringConfig
	err := p.db.QueryRow(ctx, `
		SELECT questionnaire_id, method, formula, ranges, updated_at
		FROM scoring_configs
		WHERE questionnaire_id = $1`,
		questionnaireID,
	).Scan(&cfg.QuestionnaireID, &cfg.Method, &cfg.Formula, &cfg.Ranges, &cfg.UpdatedAt)
	if err != nil {
		return domains.ScoringConfig{}, fmt.Errorf("get scoring config: %w", storage.Classify(err))
	}
	return cfg, nil
}

func (p *ScoringProvider) SaveScoringConfig(ctx context.Context, questionnaireID int64, input domains.ScoringConfigInput) (domains.ScoringConfig, error) {
	ranges := input.Ranges
	if ranges == nil {
		ranges = []domains.ScoreRange{}
	}

	var cfg domains.ScoringConfig
	err := p.db.QueryRow(ctx, `
		INSERT INTO scoring_configs (questionnaire_id, method, formula, ranges, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (questionnaire_id) DO UPDATE
		SET method = EXCLUDED.method,
		    formula = EXCLUDED.formula,
		    ranges = EXCLUDED.ranges,
		    updated_at = now()
		RETURNING questionnaire_id, method, formula, ranges, updated_at`,
		questionnaireID, input.Method, input.Formula, ranges,
	).Scan(&cfg.QuestionnaireID, &cfg.Method, &cfg.Formula, &cfg.Ranges, &cfg.UpdatedAt)
	if err != nil {
		return domains.ScoringConfig{}, fmt.Errorf("save scoring config: %w", storage.Classify(err))
	}
	return cfg, nil
}
