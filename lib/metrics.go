package lib

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// LabelKind selects which half of a FrameRecord is scored.
type LabelKind string

const (
	InstrumentLabels LabelKind = "instruments"
	VerbLabels       LabelKind = "verbs"
)

type ClassScore struct {
	Name      string  `json:"name"`
	AP        float64 `json:"ap"`
	HasAP     bool    `json:"has_ap"`
	Positives int     `json:"positives"`
	TP        int     `json:"tp"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	TN        int     `json:"tn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// AveragePrecision computes sum_n (R_n - R_{n-1}) P_n over the distinct score
// thresholds in descending order. Tied scores enter together. The second
// result is false when truth has no positive.
func AveragePrecision(truth []bool, scores []float64) (float64, bool) {
	positives := 0
	for _, t := range truth {
		if t {
			positives++
		}
	}
	if positives == 0 || len(truth) != len(scores) {
		return 0, false
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	order := make([]int, len(scores))
	floats.Argsort(sorted, order)

	var ap, prevRecall float64
	tp, seen := 0, 0
	for i := len(order) - 1; i >= 0; {
		score := sorted[i]
		for ; i >= 0 && sorted[i] == score; i-- {
			seen++
			if truth[order[i]] {
				tp++
			}
		}
		recall := float64(tp) / float64(positives)
		precision := float64(tp) / float64(seen)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
	}
	return ap, true
}

// ClassVocabulary is the configured class list, or when that is empty every
// name seen in the ground truth or the predictions.
func ClassVocabulary(records []FrameRecord, kind LabelKind, classes []string) []string {
	if len(classes) > 0 {
		return classes
	}
	names := NewStringSet()
	for _, r := range records {
		for name := range r.truth(kind) {
			names[name] = struct{}{}
		}
		for name := range r.predicted(kind) {
			names[name] = struct{}{}
		}
	}
	return names.Sorted()
}

// ScoreClasses scores every class over the given frames. A class counts as
// predicted in a frame when its score is at least threshold.
func ScoreClasses(records []FrameRecord, kind LabelKind, classes []string, threshold float64) []ClassScore {
	vocab := ClassVocabulary(records, kind, classes)
	results := make([]ClassScore, 0, len(vocab))
	for _, name := range vocab {
		truth := make([]bool, len(records))
		scores := make([]float64, len(records))
		cs := ClassScore{Name: name}
		for i, r := range records {
			truth[i] = r.truth(kind).Has(name)
			score, predicted := r.predicted(kind)[name]
			scores[i] = score
			predicted = predicted && score >= threshold
			switch {
			case truth[i] && predicted:
				cs.TP++
			case truth[i]:
				cs.FN++
			case predicted:
				cs.FP++
			default:
				cs.TN++
			}
			if truth[i] {
				cs.Positives++
			}
		}
		cs.AP, cs.HasAP = AveragePrecision(truth, scores)
		cs.Precision, cs.Recall, cs.F1 = prf(cs.TP, cs.FP, cs.FN)
		results = append(results, cs)
	}
	return results
}

func prf(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// MeanAP averages the classes that have a defined AP.
func MeanAP(scores []ClassScore) (float64, bool) {
	var aps []float64
	for _, s := range scores {
		if s.HasAP {
			aps = append(aps, s.AP)
		}
	}
	if len(aps) == 0 {
		return 0, false
	}
	return stat.Mean(aps, nil), true
}

// MicroF1 pools the confusion counts of all classes.
func MicroF1(scores []ClassScore) float64 {
	var tp, fp, fn int
	for _, s := range scores {
		tp += s.TP
		fp += s.FP
		fn += s.FN
	}
	_, _, f1 := prf(tp, fp, fn)
	return f1
}

type SweepResult struct {
	Thresholds    []float64 `json:"thresholds"`
	F1            []float64 `json:"f1"`
	BestThreshold float64   `json:"best_threshold"`
	BestF1        float64   `json:"best_f1"`
}

// SweepThresholds evaluates micro F1 at increasing thresholds. The sweep stops
// when more than maxDescent thresholds in a row fall below the best F1.
func SweepThresholds(records []FrameRecord, kind LabelKind, classes []string, thresholds []float64, maxDescent int) SweepResult {
	sorted := make([]float64, len(thresholds))
	copy(sorted, thresholds)
	sort.Float64s(sorted)

	result := SweepResult{BestThreshold: -1}
	descentRound := 0
	for _, threshold := range sorted {
		f1 := MicroF1(ScoreClasses(records, kind, classes, threshold))
		if f1 >= result.BestF1 {
			result.BestF1 = f1
			result.BestThreshold = threshold
			descentRound = 0
		} else {
			descentRound++
		}
		result.Thresholds = append(result.Thresholds, threshold)
		result.F1 = append(result.F1, f1)
		if descentRound > maxDescent {
			break
		}
	}
	return result
}
