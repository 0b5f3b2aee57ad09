// Package metrics scores ranked diagnosis predictions and binary
// heart-failure predictions.
package metrics

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrDimension reports inputs that do not describe the same patients or codes.
	ErrDimension = errors.New("metric input dimension mismatch")
	// ErrSingleClass reports binary labels that contain only one class.
	ErrSingleClass = errors.New("only one class present in labels")
)

// Ranking holds, per patient, every code index ordered by descending score.
type Ranking [][]int

// Rank orders codes by descending score. Equal scores keep ascending code order.
func Rank(scores [][]float64) Ranking {
	out := make(Ranking, len(scores))
	for p, row := range scores {
		idx := make([]int, len(row))
		for i := range idx {
			idx[i] = i
		}
		slices.SortStableFunc(idx, func(a, b int) int {
			switch {
			case row[a] > row[b]:
				return -1
			case row[a] < row[b]:
				return 1
			default:
				return 0
			}
		})
		out[p] = idx
	}
	return out
}

// Top returns the first k ranked codes for a patient, or all of them when k
// exceeds the vocabulary.
func (r Ranking) Top(patient, k int) []int {
	row := r[patient]
	return row[:cutoff(k, len(row))]
}

func cutoff(k, vocab int) int {
	if k > vocab {
		return vocab
	}
	if k < 0 {
		return 0
	}
	return k
}

func checkShape(labels [][]bool, ranking Ranking) error {
	if len(labels) != len(ranking) {
		return fmt.Errorf("%w: %d label rows, %d rankings", ErrDimension, len(labels), len(ranking))
	}
	for p := range labels {
		if len(labels[p]) != len(labels[0]) {
			return fmt.Errorf("%w: patient %d has %d labels, patient 0 has %d", ErrDimension, p, len(labels[p]), len(labels[0]))
		}
		if len(labels[p]) != len(ranking[p]) {
			return fmt.Errorf("%w: patient %d has %d labels, %d ranked codes", ErrDimension, p, len(labels[p]), len(ranking[p]))
		}
	}
	return nil
}

func trueCount(row []bool) int {
	n := 0
	for _, v := range row {
		if v {
			n++
		}
	}
	return n
}

func ratio(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	return float64(numerator) / float64(denominator)
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
