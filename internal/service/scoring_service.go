package service

import (
	"context"
	"errors"

	"mindtrack/internal/domains"
	"mindtrack/internal/metrics"
	"mindtrack/internal/scoring"
	"mindtrack/internal/storage"
)

type ScoringService struct {
	questionnaires QuestionnaireReader
	configs        ScoringProvider
	engine         *scoring.Engine
}

type ScoringConfigReader interface {
	GetScoringConfig(ctx context.Context, questionnaireID int64) (domains.ScoringConfig, error)
}

type ScoringProvider interface {
	ScoringConfigReader
	SaveScoringConfig(ctx context.Context, questionnaireID int64, input domains.ScoringConfigInput) (domains.ScoringConfig, error)
}

func NewScoringService(questionnaires QuestionnaireReader, configs ScoringProvider, engine *scoring.Engine) *ScoringService {
	return &ScoringService{questionnaires: questionnaires, configs: configs, engine: engine}
}

func (s *ScoringService) GetConfig(ctx context.Context, caller domains.Principal, questionnaireID int64) (domains.ScoringConfig, error) {
	if _, err := s.questionnaire(ctx, caller, questionnaireID, true); err != nil {
		return domains.ScoringConfig{}, err
	}
	return loadScoringConfig(ctx, s.configs, questionnaireID)
}

func (s *ScoringService) SaveConfig(ctx context.Context, caller domains.Principal, questionnaireID int64, input domains.ScoringConfigInput) (domains.ScoringConfig, error) {
	q, err := s.questionnaire(ctx, caller, questionnaireID, true)
	if err != nil {
		return domains.ScoringConfig{}, err
	}
	validated, err := s.engine.Validate(input, q.Questions)
	if err != nil {
		return domains.ScoringConfig{}, &ValidationError{Message: err.Error()}
	}
	return s.configs.SaveScoringConfig(ctx, questionnaireID, validated)
}

// Preview scores answers without storing anything. A config in the request takes
// precedence over the stored one so clinicians can try rules before saving them.
func (s *ScoringService) Preview(ctx context.Context, caller domains.Principal, questionnaireID int64, req domains.ScorePreviewRequest) (domains.ScoreResult, error) {
	q, err := s.questionnaire(ctx, caller, questionnaireID, true)
	if err != nil {
		return domains.ScoreResult{}, err
	}

	var cfg domains.ScoringConfig
	if req.Config != nil {
		validated, err := s.engine.Validate(*req.Config, q.Questions)
		if err != nil {
			return domains.ScoreResult{}, &ValidationError{Message: err.Error()}
		}
		cfg = domains.ScoringConfig{
			QuestionnaireID: questionnaireID,
			Method:          validated.Method,
			Formula:         validated.Formula,
			Ranges:          validated.Ranges,
		}
	} else {
		cfg, err = loadScoringConfig(ctx, s.configs, questionnaireID)
		if err != nil {
			return domains.ScoreResult{}, err
		}
	}

	answers, err := scoring.NormalizeAnswers(q.Questions, req.Answers, false)
	if err != nil {
		return domains.ScoreResult{}, &ValidationError{Message: err.Error()}
	}
	return score(s.engine, q.Questions, answers, cfg)
}

func (s *ScoringService) questionnaire(ctx context.Context, caller domains.Principal, id int64, manage bool) (domains.Questionnaire, error) {
	q, err := s.questionnaires.GetQuestionnaire(ctx, id)
	if err != nil {
		return domains.Questionnaire{}, err
	}
	if err := authorizeQuestionnaire(caller, q, manage); err != nil {
		return domains.Questionnaire{}, err
	}
	return q, nil
}

func loadScoringConfig(ctx context.Context, configs ScoringConfigReader, questionnaireID int64) (domains.ScoringConfig, error) {
	cfg, err := configs.GetScoringConfig(ctx, questionnaireID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return scoring.DefaultConfig(questionnaireID), nil
		}
		return domains.ScoringConfig{}, err
	}
	return cfg, nil
}

func score(engine *scoring.Engine, questions []domains.Question, answers []domains.Answer, cfg domains.ScoringConfig) (domains.ScoreResult, error) {
	result, err := engine.Score(questions, answers, cfg)
	metrics.RecordScoring(cfg.Method, err == nil)
	if err != nil {
		var answerErr *scoring.AnswerError
		if errors.As(err, &answerErr) || errors.Is(err, scoring.ErrFormulaResult) || errors.Is(err, scoring.ErrFormulaInvalid) {
			return domains.ScoreResult{}, &ValidationError{Message: err.Error()}
		}
		return domains.ScoreResult{}, err
	}
	return result, nil
}
