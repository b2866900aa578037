package scoring

import (
	"math"
	"sort"
	"time"

	"mindtrack/internal/domains"
)

const unscoredSeverity = "unscored"

// Summarize aggregates submitted responses of one questionnaire. The trend covers the
// last days calendar days (UTC) ending at now.
func Summarize(questionnaireID int64, questions []domains.Question, responses []domains.Response, counts domains.AssignmentCounts, now time.Time, days int) domains.QuestionnaireAnalytics {
	analytics := domains.QuestionnaireAnalytics{
		QuestionnaireID:      questionnaireID,
		AssignmentsTotal:     counts.Total,
		AssignmentsStarted:   counts.Started,
		AssignmentsCompleted: counts.Completed,
		SeverityDistribution: map[string]int{},
		Questions:            make([]domains.QuestionStatistics, 0, len(questions)),
	}
	if counts.Total > 0 {
		analytics.CompletionRate = round2(float64(counts.Completed) / float64(counts.Total))
	}

	type questionAcc struct {
		count int
		sum   float64
	}
	perQuestion := make(map[int64]*questionAcc, len(questions))
	scores := make([]float64, 0, len(responses))

	for _, r := range responses {
		if r.State != domains.ResponseSubmitted {
			analytics.ResponsesInProgress++
			continue
		}
		analytics.ResponsesSubmitted++

		if r.TotalScore != nil {
			scores = append(scores, *r.TotalScore)
		}
		severity := unscoredSeverity
		switch {
		case r.Severity != nil && *r.Severity != "":
			severity = *r.Severity
		case r.Label != nil && *r.Label != "":
			severity = *r.Label
		}
		analytics.SeverityDistribution[severity]++

		if r.ScoreDetails == nil {
			continue
		}
		for _, item := range r.ScoreDetails.Items {
			acc, ok := perQuestion[item.QuestionID]
			if !ok {
				acc = &questionAcc{}
				perQuestion[item.QuestionID] = acc
			}
			acc.count++
			acc.sum += item.Raw
		}
	}

	analytics.Scores = Statistics(scores)

	for _, q := range questions {
		if !q.Scored() {
			continue
		}
		stat := domains.QuestionStatistics{QuestionID: q.ID, Code: q.Code}
		if acc, ok := perQuestion[q.ID]; ok && acc.count > 0 {
			stat.AnswerCount = acc.count
			stat.Mean = round2(acc.sum / float64(acc.count))
		}
		analytics.Questions = append(analytics.Questions, stat)
	}

	analytics.Trend = Trend(responses, now, days)
	return analytics
}

// Statistics computes descriptive statistics with the population standard deviation.
func Statistics(values []float64) domains.ScoreStatistics {
	stats := domains.ScoreStatistics{Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	variance := 0.0
	for _, v := range sorted {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(sorted))

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	stats.Mean = round2(mean)
	stats.Median = round2(median)
	stats.StdDev = round2(math.Sqrt(variance))
	stats.Min = sorted[0]
	stats.Max = sorted[len(sorted)-1]
	return stats
}

// Trend counts submissions per UTC day, oldest first, including empty days.
func Trend(responses []domains.Response, now time.Time, days int) []domains.DailyCount {
	if days <= 0 {
		days = 30
	}
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))

	buckets := make(map[string]int, days)
	for _, r := range responses {
		if r.State != domains.ResponseSubmitted || r.SubmittedAt == nil {
			continue
		}
		day := r.SubmittedAt.UTC().Truncate(24 * time.Hour)
		if day.Before(start) || day.After(end) {
			continue
		}
		buckets[day.Format(time.DateOnly)]++
	}

	trend := make([]domains.DailyCount, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		trend = append(trend, domains.DailyCount{Day: key, Count: buckets[key]})
	}
	return trend
}
