package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// AUC is the area under the ROC curve of scores against binary labels.
// Tied scores form a single operating point.
func AUC(labels []bool, scores []float64) (float64, error) {
	if len(labels) != len(scores) {
		return 0, fmt.Errorf("%w: %d labels, %d scores", ErrDimension, len(labels), len(scores))
	}
	pos := trueCount(labels)
	if pos == 0 || pos == len(labels) {
		return 0, fmt.Errorf("%w: %d positives among %d", ErrSingleClass, pos, len(labels))
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	inds := make([]int, len(y))
	floats.Argsort(y, inds)
	classes := make([]bool, len(labels))
	for i, j := range inds {
		classes[i] = labels[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
