package metrics

import (
	"fmt"
	"math"
)

// Average selects how per-code F1 scores are combined, following the
// scikit-learn f1_score options.
type Average string

const (
	AverageWeighted Average = "weighted"
	AverageMicro    Average = "micro"
	AverageMacro    Average = "macro"
	AverageSamples  Average = "samples"
)

func ParseAverage(raw string) (Average, error) {
	switch Average(raw) {
	case AverageWeighted, AverageMicro, AverageMacro, AverageSamples:
		return Average(raw), nil
	case "":
		return AverageWeighted, nil
	default:
		return "", fmt.Errorf("unsupported f1 average %q", raw)
	}
}

// F1 predicts, for each patient, the top |true| ranked codes and scores them
// against the labels. Undefined ratios count as zero.
func F1(labels [][]bool, ranking Ranking, avg Average) (float64, error) {
	if err := checkShape(labels, ranking); err != nil {
		return 0, err
	}
	if len(labels) == 0 {
		return 0, nil
	}
	codes := len(labels[0])
	pred := make([][]bool, len(labels))
	for p, row := range labels {
		pred[p] = make([]bool, codes)
		for _, c := range ranking.Top(p, trueCount(row)) {
			pred[p][c] = true
		}
	}

	if avg == AverageSamples {
		sum := 0.0
		for p := range labels {
			var tp, fp, fn int
			for c := 0; c < codes; c++ {
				tp, fp, fn = tally(labels[p][c], pred[p][c], tp, fp, fn)
			}
			sum += fscore(tp, fp, fn)
		}
		return mean(sum, len(labels)), nil
	}

	tp := make([]int, codes)
	fp := make([]int, codes)
	fn := make([]int, codes)
	for p := range labels {
		for c := 0; c < codes; c++ {
			tp[c], fp[c], fn[c] = tally(labels[p][c], pred[p][c], tp[c], fp[c], fn[c])
		}
	}

	switch avg {
	case AverageMicro:
		var sumTP, sumFP, sumFN int
		for c := 0; c < codes; c++ {
			sumTP += tp[c]
			sumFP += fp[c]
			sumFN += fn[c]
		}
		return fscore(sumTP, sumFP, sumFN), nil
	case AverageMacro:
		sum := 0.0
		for c := 0; c < codes; c++ {
			sum += fscore(tp[c], fp[c], fn[c])
		}
		return mean(sum, codes), nil
	case AverageWeighted, "":
		var sum float64
		var support int
		for c := 0; c < codes; c++ {
			s := tp[c] + fn[c]
			sum += float64(s) * fscore(tp[c], fp[c], fn[c])
			support += s
		}
		if support == 0 {
			return 0, nil
		}
		return sum / float64(support), nil
	default:
		return 0, fmt.Errorf("unsupported f1 average %q", avg)
	}
}

// BinaryF1 scores hard predictions score > threshold against the positive class.
func BinaryF1(labels []bool, scores []float64, threshold float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("%w: %d labels, %d scores", ErrDimension, len(labels), len(scores))
	}
	var tp, fp, fn int
	for i, y := range labels {
		tp, fp, fn = tally(y, scores[i] > threshold, tp, fp, fn)
	}
	return fscore(tp, fp, fn), nil
}

// Logistic maps logits to probabilities.
func Logistic(logits []float64) []float64 {
	out := make([]float64, len(logits))
	for i, x := range logits {
		out[i] = 1 / (1 + math.Exp(-x))
	}
	return out
}

func tally(actual, predicted bool, tp, fp, fn int) (int, int, int) {
	switch {
	case actual && predicted:
		tp++
	case predicted:
		fp++
	case actual:
		fn++
	}
	return tp, fp, fn
}

func fscore(tp, fp, fn int) float64 {
	return ratio(2*tp, 2*tp+fp+fn)
}
