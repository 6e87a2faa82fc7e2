package analytics

import (
	"errors"
	"sort"

	"github.com/clinsight/clinsight/internal/domain/diagnostic"
	"github.com/clinsight/clinsight/internal/platform/predictor"
)

// ErrInsufficientData reports that a metrics window cannot support a
// meaningful curve. It is a skip state for the caller, not a failure: the
// dashboard shows "not enough data" instead of a chart.
var ErrInsufficientData = errors.New("not enough labeled data")

// minLabeledPairs is the floor below which curves are skipped; strictly
// more than this many pairs are required.
const minLabeledPairs = 10

// LabeledPair is one (score, truth) observation for curve computation.
type LabeledPair struct {
	Probability float64
	Label       int // 1 positive, 0 negative
}

// LabelPolicy extracts a labeled pair from a record, or reports that the
// record carries no usable label.
type LabelPolicy func(*diagnostic.DiagnosticRecord) (LabeledPair, bool)

// RiskProxyLabel treats the model's own risk call as ground truth: label 1
// iff the stored risk is HighRisk, scored by the stored probability. This
// is an acknowledged approximation — the console has no outcome follow-up
// data — and is the default policy until a real outcome source exists.
func RiskProxyLabel(rec *diagnostic.DiagnosticRecord) (LabeledPair, bool) {
	outcome := rec.Prediction.OutcomeResult
	switch outcome.Risk {
	case predictor.RiskHigh:
		return LabeledPair{Probability: outcome.Probability, Label: 1}, true
	case predictor.RiskLow:
		return LabeledPair{Probability: outcome.Probability, Label: 0}, true
	default:
		return LabeledPair{}, false
	}
}

// LabeledPairs applies a policy across a window.
func LabeledPairs(window []*diagnostic.DiagnosticRecord, policy LabelPolicy) []LabeledPair {
	pairs := make([]LabeledPair, 0, len(window))
	for _, rec := range window {
		if pair, ok := policy(rec); ok {
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// ROCPoint is one operating point of the curve.
type ROCPoint struct {
	FPR       float64 `json:"fpr"`
	TPR       float64 `json:"tpr"`
	Threshold float64 `json:"threshold"`
}

// ROC is the computed curve with its area.
type ROC struct {
	Points []ROCPoint `json:"points"`
	AUC    float64    `json:"auc"`
}

func countLabels(pairs []LabeledPair) (pos, neg int) {
	for _, p := range pairs {
		if p.Label == 1 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}

// ComputeROC sweeps thresholds from high to low, grouping tied scores into
// a single operating point, and integrates the area by the trapezoid rule.
// Windows with too few pairs or only one class return ErrInsufficientData.
// Uninformative scores (all equal) yield AUC 0.5; perfect separation
// yields 1.0.
func ComputeROC(pairs []LabeledPair) (*ROC, error) {
	if len(pairs) <= minLabeledPairs {
		return nil, ErrInsufficientData
	}
	pos, neg := countLabels(pairs)
	if pos == 0 || neg == 0 {
		return nil, ErrInsufficientData
	}

	sorted := make([]LabeledPair, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Probability > sorted[j].Probability
	})

	// The origin's threshold sits above every score. It must stay finite:
	// the curve is JSON-encoded for the admin view.
	points := []ROCPoint{{FPR: 0, TPR: 0, Threshold: sorted[0].Probability + 1}}
	tp, fp := 0, 0
	for i := 0; i < len(sorted); {
		threshold := sorted[i].Probability
		// Consume the whole tie group before emitting a point.
		for i < len(sorted) && sorted[i].Probability == threshold {
			if sorted[i].Label == 1 {
				tp++
			} else {
				fp++
			}
			i++
		}
		points = append(points, ROCPoint{
			FPR:       float64(fp) / float64(neg),
			TPR:       float64(tp) / float64(pos),
			Threshold: threshold,
		})
	}

	var auc float64
	for i := 1; i < len(points); i++ {
		auc += (points[i].FPR - points[i-1].FPR) * (points[i].TPR + points[i-1].TPR) / 2
	}

	return &ROC{Points: points, AUC: auc}, nil
}

// Confusion is a 2x2 matrix indexed [actual][predicted]; cells always sum
// to the number of pairs.
type Confusion struct {
	Matrix    [2][2]int `json:"matrix"`
	Threshold float64   `json:"threshold"`
}

// ComputeConfusion classifies each pair at the given threshold
// (probability >= threshold predicts positive). The same size floor as
// ComputeROC applies, but a single-class window still yields a matrix —
// counting needs no second class, unlike the rate axes of the curve. The
// result is independent of pair order.
func ComputeConfusion(pairs []LabeledPair, threshold float64) (*Confusion, error) {
	if len(pairs) <= minLabeledPairs {
		return nil, ErrInsufficientData
	}

	cm := &Confusion{Threshold: threshold}
	for _, p := range pairs {
		predicted := 0
		if p.Probability >= threshold {
			predicted = 1
		}
		cm.Matrix[p.Label][predicted]++
	}
	return cm, nil
}
