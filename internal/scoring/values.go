package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mindtrack/internal/domains"
)

var (
	ErrUnknownQuestion  = errors.New("unknown question")
	ErrDuplicateAnswer  = errors.New("question answered more than once")
	ErrInvalidAnswer    = errors.New("invalid answer value")
	ErrMissingRequired  = errors.New("required question not answered")
	ErrUnsupportedValue = errors.New("unsupported answer value")
)

// AnswerError describes why one answer was rejected.
type AnswerError struct {
	Code   string
	Reason string
	Err    error
}

func (e *AnswerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Err, e.Reason)
	}
	return fmt.Sprintf("question %s: %s", e.Code, e.Reason)
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

// NormalizeAnswers resolves each input to a question by id or code, checks the value
// against the question type and drops empty answers. When requireAll is set every
// required question must be answered.
func NormalizeAnswers(questions []domains.Question, inputs []domains.AnswerInput, requireAll bool) ([]domains.Answer, error) {
	byID := make(map[int64]domains.Question, len(questions))
	byCode := make(map[string]domains.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
		byCode[q.Code] = q
	}

	seen := make(map[int64]bool, len(inputs))
	answers := make([]domains.Answer, 0, len(inputs))
	for _, input := range inputs {
		q, ok := byID[input.QuestionID]
		if !ok || input.QuestionID == 0 {
			q, ok = byCode[input.QuestionCode]
		}
		if !ok {
			ref := input.QuestionCode
			if ref == "" {
				ref = strconv.FormatInt(input.QuestionID, 10)
			}
			return nil, &AnswerError{Code: ref, Reason: "question does not belong to this questionnaire", Err: ErrUnknownQuestion}
		}
		if seen[q.ID] {
			return nil, &AnswerError{Code: q.Code, Reason: "answered more than once", Err: ErrDuplicateAnswer}
		}

		answer := domains.Answer{
			QuestionID:   q.ID,
			QuestionCode: q.Code,
			ValueText:    input.ValueText,
			ValueNumber:  input.ValueNumber,
			ValueBool:    input.ValueBool,
			ValueJSON:    input.ValueJSON,
		}
		if isEmpty(answer) {
			continue
		}
		if q.Type == domains.QuestionText {
			if answer.ValueText == nil {
				return nil, &AnswerError{Code: q.Code, Reason: "text answer expected", Err: ErrInvalidAnswer}
			}
		} else if _, _, err := NumericValue(q, answer); err != nil {
			return nil, err
		}

		seen[q.ID] = true
		answers = append(answers, answer)
	}

	if requireAll {
		for _, q := range questions {
			if q.Required && !seen[q.ID] {
				return nil, &AnswerError{Code: q.Code, Reason: "answer is required", Err: ErrMissingRequired}
			}
		}
	}

	return answers, nil
}

func isEmpty(a domains.Answer) bool {
	if a.ValueNumber != nil || a.ValueBool != nil {
		return false
	}
	if a.ValueText != nil && strings.TrimSpace(*a.ValueText) != "" {
		return false
	}
	trimmed := strings.TrimSpace(string(a.ValueJSON))
	return trimmed == "" || trimmed == "null"
}

// NumericValue converts an answer to the number it contributes before reverse scoring
// and weighting. The boolean is false when the answer carries no scorable value.
func NumericValue(q domains.Question, a domains.Answer) (float64, bool, error) {
	switch q.Type {
	case domains.QuestionText:
		return 0, false, nil
	case domains.QuestionLikert, domains.QuestionSingleChoice:
		return choiceValue(q, a)
	case domains.QuestionMultipleChoice:
		return multipleChoiceValue(q, a)
	case domains.QuestionYesNo:
		return yesNoValue(q, a)
	case domains.QuestionNumber:
		return numberValue(q, a)
	default:
		return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("unsupported question type %q", q.Type), Err: ErrUnsupportedValue}
	}
}

func choiceValue(q domains.Question, a domains.Answer) (float64, bool, error) {
	switch {
	case a.ValueNumber != nil:
		if v, ok := optionByValue(q, *a.ValueNumber); ok {
			return v, true, nil
		}
		return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("%v is not an option value", *a.ValueNumber), Err: ErrInvalidAnswer}
	case a.ValueText != nil:
		if v, ok := optionByLabel(q, *a.ValueText); ok {
			return v, true, nil
		}
		return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("%q is not an option", *a.ValueText), Err: ErrInvalidAnswer}
	case len(a.ValueJSON) > 0:
		var raw interface{}
		if err := json.Unmarshal(a.ValueJSON, &raw); err != nil {
			return 0, false, &AnswerError{Code: q.Code, Reason: "value_json is not valid JSON", Err: ErrInvalidAnswer}
		}
		v, ok := selectionValue(q, raw)
		if !ok {
			return 0, false, &AnswerError{Code: q.Code, Reason: "value_json does not match an option", Err: ErrInvalidAnswer}
		}
		return v, true, nil
	}
	return 0, false, nil
}

func multipleChoiceValue(q domains.Question, a domains.Answer) (float64, bool, error) {
	var selections []interface{}
	switch {
	case len(a.ValueJSON) > 0:
		if err := json.Unmarshal(a.ValueJSON, &selections); err != nil {
			return 0, false, &AnswerError{Code: q.Code, Reason: "multiple choice answers must be a JSON array", Err: ErrInvalidAnswer}
		}
	case a.ValueNumber != nil:
		selections = []interface{}{*a.ValueNumber}
	case a.ValueText != nil:
		selections = []interface{}{*a.ValueText}
	default:
		return 0, false, nil
	}

	total := 0.0
	picked := make(map[float64]bool, len(selections))
	for _, raw := range selections {
		v, ok := selectionValue(q, raw)
		if !ok {
			return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("%v is not an option", raw), Err: ErrInvalidAnswer}
		}
		if picked[v] {
			continue
		}
		picked[v] = true
		total += v
	}
	return total, true, nil
}

func yesNoValue(q domains.Question, a domains.Answer) (float64, bool, error) {
	switch {
	case a.ValueBool != nil:
		if *a.ValueBool {
			return 1, true, nil
		}
		return 0, true, nil
	case a.ValueNumber != nil:
		if *a.ValueNumber == 0 || *a.ValueNumber == 1 {
			return *a.ValueNumber, true, nil
		}
	case a.ValueText != nil:
		switch strings.ToLower(strings.TrimSpace(*a.ValueText)) {
		case "yes", "true", "y", "1":
			return 1, true, nil
		case "no", "false", "n", "0":
			return 0, true, nil
		}
	default:
		return 0, false, nil
	}
	return 0, false, &AnswerError{Code: q.Code, Reason: "yes/no answer expected", Err: ErrInvalidAnswer}
}

func numberValue(q domains.Question, a domains.Answer) (float64, bool, error) {
	var v float64
	switch {
	case a.ValueNumber != nil:
		v = *a.ValueNumber
	case a.ValueText != nil:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(*a.ValueText), 64)
		if err != nil {
			return 0, false, &AnswerError{Code: q.Code, Reason: "numeric answer expected", Err: ErrInvalidAnswer}
		}
		v = parsed
	default:
		return 0, false, nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, &AnswerError{Code: q.Code, Reason: "numeric answer expected", Err: ErrInvalidAnswer}
	}
	if q.MinValue != nil && v < *q.MinValue {
		return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("%v is below the minimum %v", v, *q.MinValue), Err: ErrInvalidAnswer}
	}
	if q.MaxValue != nil && v > *q.MaxValue {
		return 0, false, &AnswerError{Code: q.Code, Reason: fmt.Sprintf("%v is above the maximum %v", v, *q.MaxValue), Err: ErrInvalidAnswer}
	}
	return v, true, nil
}

func selectionValue(q domains.Question, raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return optionByValue(q, v)
	case string:
		return optionByLabel(q, v)
	case map[string]interface{}:
		if value, ok := v["value"].(float64); ok {
			return optionByValue(q, value)
		}
		if label, ok := v["label"].(string); ok {
			return optionByLabel(q, label)
		}
	}
	return 0, false
}

func optionByValue(q domains.Question, value float64) (float64, bool) {
	for _, opt := range q.Options {
		if opt.Value == value {
			return opt.Value, true
		}
	}
	return 0, false
}

func optionByLabel(q domains.Question, label string) (float64, bool) {
	needle := strings.TrimSpace(label)
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Label, needle) {
			return opt.Value, true
		}
	}
	if parsed, err := strconv.ParseFloat(needle, 64); err == nil {
		return optionByValue(q, parsed)
	}
	return 0, false
}

// Bounds returns the lowest and highest value a question can contribute before weighting.
func Bounds(q domains.Question) (float64, float64, bool) {
	switch q.Type {
	case domains.QuestionLikert, domains.QuestionSingleChoice:
		if len(q.Options) == 0 {
			return 0, 0, false
		}
		lo, hi := q.Options[0].Value, q.Options[0].Value
		for _, opt := range q.Options[1:] {
			lo = math.Min(lo, opt.Value)
			hi = math.Max(hi, opt.Value)
		}
		return lo, hi, true
	case domains.QuestionMultipleChoice:
		if len(q.Options) == 0 {
			return 0, 0, false
		}
		lo, hi := 0.0, 0.0
		for _, opt := range q.Options {
			if opt.Value < 0 {
				lo += opt.Value
			} else {
				hi += opt.Value
			}
		}
		return lo, hi, true
	case domains.QuestionYesNo:
		return 0, 1, true
	case domains.QuestionNumber:
		if q.MinValue == nil || q.MaxValue == nil {
			return 0, 0, false
		}
		return *q.MinValue, *q.MaxValue, true
	}
	return 0, 0, false
}
