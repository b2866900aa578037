package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/PaesslerAG/gval"

	"mindtrack/internal/domains"
)

var (
	ErrUnknownMethod   = errors.New("unknown scoring method")
	ErrFormulaRequired = errors.New("formula is required for the formula method")
	ErrFormulaInvalid  = errors.New("formula does not compile")
	ErrFormulaResult   = errors.New("formula did not evaluate to a number")
	ErrRangeInvalid    = errors.New("score range is invalid")
	ErrRangesOverlap   = errors.New("score ranges overlap")
)

// Engine evaluates scoring configurations against answered questionnaires.
// It holds no state besides the expression language and is safe for concurrent use.
type Engine struct {
	lang gval.Language
}

func NewEngine() *Engine {
	return &Engine{lang: gval.Full()}
}

func DefaultConfig(questionnaireID int64) domains.ScoringConfig {
	return domains.ScoringConfig{
		QuestionnaireID: questionnaireID,
		Method:          domains.ScoringSum,
		Ranges:          []domains.ScoreRange{},
	}
}

// Validate checks a config before it is stored and returns it with ranges sorted.
// A formula is also evaluated once against questions with every variable at zero,
// so unknown variables and non-numeric results are rejected up front.
func (e *Engine) Validate(input domains.ScoringConfigInput, questions []domains.Question) (domains.ScoringConfigInput, error) {
	switch input.Method {
	case domains.ScoringSum, domains.ScoringAverage, domains.ScoringWeighted:
		input.Formula = nil
	case domains.ScoringFormula:
		if input.Formula == nil || strings.TrimSpace(*input.Formula) == "" {
			return input, ErrFormulaRequired
		}
		if err := e.trial(*input.Formula, questions); err != nil {
			return input, err
		}
	default:
		return input, fmt.Errorf("%w: %q", ErrUnknownMethod, input.Method)
	}

	ranges := make([]domains.ScoreRange, len(input.Ranges))
	copy(ranges, input.Ranges)
	sort.SliceStable(ranges, func(i, j int) bool { return ranges[i].Min < ranges[j].Min })
	for i, r := range ranges {
		if strings.TrimSpace(r.Label) == "" {
			return input, fmt.Errorf("%w: range %d has no label", ErrRangeInvalid, i)
		}
		if r.Min > r.Max {
			return input, fmt.Errorf("%w: %q has min %v above max %v", ErrRangeInvalid, r.Label, r.Min, r.Max)
		}
		if i > 0 && ranges[i-1].Max >= r.Min {
			return input, fmt.Errorf("%w: %q and %q", ErrRangesOverlap, ranges[i-1].Label, r.Label)
		}
	}
	input.Ranges = ranges
	return input, nil
}

// Score evaluates answers against questions using cfg. Answers must already be
// normalized; unanswered questions contribute nothing and required ones are
// reported in MissingRequired.
func (e *Engine) Score(questions []domains.Question, answers []domains.Answer, cfg domains.ScoringConfig) (domains.ScoreResult, error) {
	byQuestion := make(map[int64]domains.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := domains.ScoreResult{
		Method: cfg.Method,
		Items:  make([]domains.ScoreItem, 0, len(questions)),
	}
	subscales := make(map[string]float64)
	values := make(map[string]float64, len(questions))

	var (
		sum, weightedSum, maxSum, weightedMax float64
		scoredQuestions                       int
	)

	for _, q := range questions {
		answer, answered := byQuestion[q.ID]
		if answered {
			result.AnsweredCount++
		}
		if !q.Scored() {
			continue
		}
		scoredQuestions++
		weight := q.Weight
		if weight == 0 {
			weight = 1
		}

		lo, hi, bounded := Bounds(q)
		if bounded {
			maxSum += hi
			weightedMax += weight * hi
		}

		if !answered {
			if q.Required {
				result.MissingRequired = append(result.MissingRequired, q.Code)
			}
			values[identifier(q.Code)] = 0
			continue
		}

		raw, ok, err := NumericValue(q, answer)
		if err != nil {
			return domains.ScoreResult{}, err
		}
		if !ok {
			values[identifier(q.Code)] = 0
			continue
		}

		value := raw
		if q.ReverseScored && bounded {
			value = lo + hi - raw
		}

		result.ScoredCount++
		sum += value
		weightedSum += weight * value
		values[identifier(q.Code)] = value

		contribution := value
		if cfg.Method == domains.ScoringWeighted {
			contribution = weight * value
		}
		if q.Subscale != nil && *q.Subscale != "" {
			subscales[*q.Subscale] += contribution
		}

		result.Items = append(result.Items, domains.ScoreItem{
			QuestionID: q.ID,
			Code:       q.Code,
			Raw:        raw,
			Value:      value,
			Weight:     weight,
		})
	}

	avg := 0.0
	if result.ScoredCount > 0 {
		avg = sum / float64(result.ScoredCount)
	}

	switch cfg.Method {
	case domains.ScoringSum, "":
		result.Method = domains.ScoringSum
		result.Total = sum
		result.MaxPossible = maxSum
	case domains.ScoringAverage:
		result.Total = avg
		if scoredQuestions > 0 {
			result.MaxPossible = maxSum / float64(scoredQuestions)
		}
	case domains.ScoringWeighted:
		result.Total = weightedSum
		result.MaxPossible = weightedMax
	case domains.ScoringFormula:
		if cfg.Formula == nil {
			return domains.ScoreResult{}, ErrFormulaRequired
		}
		params := formulaParams(questions)
		for k, v := range values {
			params[k] = v
		}
		for name, v := range subscales {
			params["subscale_"+identifier(name)] = v
		}
		params["sum"] = sum
		params["avg"] = avg
		params["count"] = float64(result.ScoredCount)
		params["max_possible"] = maxSum

		total, err := e.evaluate(*cfg.Formula, params)
		if err != nil {
			return domains.ScoreResult{}, err
		}
		result.Total = total
		result.MaxPossible = e.formulaMax(*cfg.Formula, questions, maxSum)
	default:
		return domains.ScoreResult{}, fmt.Errorf("%w: %q", ErrUnknownMethod, cfg.Method)
	}

	result.Total = round2(result.Total)
	result.MaxPossible = round2(result.MaxPossible)
	if result.MaxPossible > 0 {
		result.Percentage = round2(result.Total / result.MaxPossible * 100)
	}
	if len(subscales) > 0 {
		result.Subscales = make(map[string]float64, len(subscales))
		for name, v := range subscales {
			result.Subscales[name] = round2(v)
		}
	}

	if r, ok := MatchRange(cfg.Ranges, result.Total); ok {
		result.Label = r.Label
		result.Severity = r.Severity
		result.Recommendation = r.Recommendation
	}

	return result, nil
}

func (e *Engine) evaluate(formula string, params map[string]interface{}) (float64, error) {
	evaluable, err := e.lang.NewEvaluable(formula)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormulaInvalid, err)
	}
	value, err := evaluable(context.Background(), params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormulaResult, err)
	}
	v, err := number(value)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrFormulaResult
	}
	return v, nil
}

// trial compiles formula and runs it with zeroed variables. Only the result type is
// checked, so division by zero passes here.
func (e *Engine) trial(formula string, questions []domains.Question) error {
	evaluable, err := e.lang.NewEvaluable(formula)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormulaInvalid, err)
	}
	value, err := evaluable(context.Background(), formulaParams(questions))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormulaInvalid, err)
	}
	_, err = number(value)
	return err
}

func number(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: got %T", ErrFormulaResult, value)
	}
}

// formulaParams lists every variable a formula may use over questions, with each
// subscale present even when none of its questions was answered.
func formulaParams(questions []domains.Question) map[string]interface{} {
	params := make(map[string]interface{}, len(questions)+4)
	for _, q := range questions {
		if !q.Scored() {
			continue
		}
		params[identifier(q.Code)] = 0.0
		if q.Subscale != nil && *q.Subscale != "" {
			params["subscale_"+identifier(*q.Subscale)] = 0.0
		}
	}
	params["sum"] = 0.0
	params["avg"] = 0.0
	params["count"] = 0.0
	params["max_possible"] = 0.0
	return params
}

// formulaMax evaluates the formula with every bounded question at its upper bound.
// Non-monotonic formulas make this an approximation, so failures yield zero.
func (e *Engine) formulaMax(formula string, questions []domains.Question, maxSum float64) float64 {
	params := formulaParams(questions)
	subscales := make(map[string]float64)
	count := 0
	for _, q := range questions {
		if !q.Scored() {
			continue
		}
		count++
		_, hi, ok := Bounds(q)
		if !ok {
			hi = 0
		}
		params[identifier(q.Code)] = hi
		if q.Subscale != nil && *q.Subscale != "" {
			subscales[*q.Subscale] += hi
		}
	}
	for name, v := range subscales {
		params["subscale_"+identifier(name)] = v
	}
	params["sum"] = maxSum
	params["count"] = float64(count)
	params["max_possible"] = maxSum
	if count > 0 {
		params["avg"] = maxSum / float64(count)
	} else {
		params["avg"] = 0.0
	}

	total, err := e.evaluate(formula, params)
	if err != nil || total < 0 {
		return 0
	}
	return total
}

// MatchRange picks the range containing total. Ranges are inclusive on both ends;
// a total falling in a gap between ranges belongs to the range below it and a total
// above every range belongs to the last one.
func MatchRange(ranges []domains.ScoreRange, total float64) (domains.ScoreRange, bool) {
	if len(ranges) == 0 {
		return domains.ScoreRange{}, false
	}
	sorted := make([]domains.ScoreRange, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	var (
		match domains.ScoreRange
		found bool
	)
	for _, r := range sorted {
		if total < r.Min {
			break
		}
		match = r
		found = true
		if total <= r.Max {
			break
		}
	}
	return match, found
}

// identifier turns a question code into a name usable inside formulas.
func identifier(code string) string {
	var b strings.Builder
	for i, r := range code {
		switch {
		case unicode.IsLetter(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				b.WriteRune('_')
			}
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
