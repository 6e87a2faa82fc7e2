// Package analytics turns windows of diagnostic records into dashboard
// summaries and model-quality metrics. Every computation here is a pure
// function of its input window: same window, same output, no clock or
// store access.
package analytics

import (
	"sort"

	"github.com/clinsight/clinsight/internal/domain/diagnostic"
)

// DiseaseCount is one distribution entry.
type DiseaseCount struct {
	Disease string `json:"disease"`
	Count   int    `json:"count"`
}

// DayCount is one time-series bucket: a UTC calendar day and its
// submission count.
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Summary is the aggregate view of one record window.
type Summary struct {
	Distribution map[string]int `json:"distribution"`
	TopK         []DiseaseCount `json:"topK"`
	TimeSeries   []DayCount     `json:"timeSeries"`
}

// Aggregate summarizes a window of records. The distribution is keyed by
// each record's leading diagnosis ("Unknown" when the model returned
// nothing) and always sums to the window length. TopK ties break by
// ascending disease label so the chart is stable across refreshes.
// Time-series buckets are UTC calendar days in ascending order; days with
// no submissions are absent, not zero.
func Aggregate(window []*diagnostic.DiagnosticRecord, k int) Summary {
	distribution := make(map[string]int, len(window))
	days := make(map[string]int)
	for _, rec := range window {
		distribution[rec.TopDisease()]++
		days[rec.CreatedAt.UTC().Format("2006-01-02")]++
	}

	topK := make([]DiseaseCount, 0, len(distribution))
	for disease, count := range distribution {
		topK = append(topK, DiseaseCount{Disease: disease, Count: count})
	}
	sort.Slice(topK, func(i, j int) bool {
		if topK[i].Count != topK[j].Count {
			return topK[i].Count > topK[j].Count
		}
		return topK[i].Disease < topK[j].Disease
	})
	if k >= 0 && len(topK) > k {
		topK = topK[:k]
	}

	series := make([]DayCount, 0, len(days))
	for day, count := range days {
		series = append(series, DayCount{Day: day, Count: count})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Day < series[j].Day })

	return Summary{Distribution: distribution, TopK: topK, TimeSeries: series}
}

// AverageRisk returns the mean outcome probability across the window, or 0
// for an empty window.
func AverageRisk(window []*diagnostic.DiagnosticRecord) float64 {
	if len(window) == 0 {
		return 0
	}
	var sum float64
	for _, rec := range window {
		sum += rec.Prediction.OutcomeResult.Probability
	}
	return sum / float64(len(window))
}
