package tensor

import (
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Raw is a dataset split as read from disk, before dtype coercion. Element
// types are whatever the archives stored.
type Raw struct {
	CodeX     *tensors.Tensor // [patients, visits, codes]
	VisitLens *tensors.Tensor // [patients]
	Divided   *tensors.Tensor // [patients, visits, codes, ...]
	Y         *tensors.Tensor // [patients, codes] or [patients]
	Neighbors *tensors.Tensor // [patients, visits, codes]
}

// Batch is the model input for a whole evaluation split: float32 arrays,
// int64 visit lengths.
type Batch struct {
	CodeX     *tensors.Tensor
	VisitLens *tensors.Tensor
	Divided   *tensors.Tensor
	Y         *tensors.Tensor
	Neighbors *tensors.Tensor
}

func (b Batch) Patients() int { return Dim(b.CodeX, 0) }

func (b Batch) MaxVisits() int { return Dim(b.CodeX, 1) }

func (b Batch) CodeNum() int { return Dim(b.CodeX, 2) }

// Adapt checks that the five arrays describe the same patients and coerces
// them: visit lengths to int64, labels to float32, everything else to float32.
func Adapt(raw Raw) (Batch, error) {
	codeX := Dims(raw.CodeX)
	if len(codeX) != 3 {
		return Batch{}, fmt.Errorf("%w: code_x must be [patients, visits, codes], got %v", ErrShape, codeX)
	}
	patients, visits := codeX[0], codeX[1]

	neighbors := Dims(raw.Neighbors)
	if len(neighbors) != 3 || !samePrefix(neighbors, codeX) {
		return Batch{}, fmt.Errorf("%w: neighbors %v does not match code_x %v", ErrShape, neighbors, codeX)
	}
	divided := Dims(raw.Divided)
	if len(divided) < 3 || !samePrefix(divided[:3], codeX) {
		return Batch{}, fmt.Errorf("%w: divided %v does not extend code_x %v", ErrShape, divided, codeX)
	}
	if lens := Dims(raw.VisitLens); len(lens) != 1 || lens[0] != patients {
		return Batch{}, fmt.Errorf("%w: visit_lens %v, want [%d]", ErrShape, lens, patients)
	}
	if y := Dims(raw.Y); len(y) < 1 || len(y) > 2 || y[0] != patients {
		return Batch{}, fmt.Errorf("%w: labels %v, want [%d] or [%d, n]", ErrShape, y, patients, patients)
	}

	var (
		b   Batch
		err error
	)
	if b.VisitLens, err = visitLens(raw.VisitLens, visits); err != nil {
		return Batch{}, err
	}
	if b.CodeX, err = Cast[float32](raw.CodeX); err != nil {
		return Batch{}, fmt.Errorf("code_x: %w", err)
	}
	if b.Divided, err = Cast[float32](raw.Divided); err != nil {
		return Batch{}, fmt.Errorf("divided: %w", err)
	}
	if b.Y, err = Cast[float32](raw.Y); err != nil {
		return Batch{}, fmt.Errorf("labels: %w", err)
	}
	if b.Neighbors, err = Cast[float32](raw.Neighbors); err != nil {
		return Batch{}, fmt.Errorf("neighbors: %w", err)
	}
	return b, nil
}

func visitLens(src *tensors.Tensor, maxVisits int) (*tensors.Tensor, error) {
	vals, err := Values[float64](src)
	if err != nil {
		return nil, fmt.Errorf("visit_lens: %w", err)
	}
	out := make([]int64, len(vals))
	for i, v := range vals {
		if v != math.Trunc(v) || v < 0 || int(v) > maxVisits {
			return nil, fmt.Errorf("%w: visit length %v for patient %d outside [0, %d]", ErrShape, v, i, maxVisits)
		}
		out[i] = int64(v)
	}
	return FromFlat(out, len(out))
}

func samePrefix(a, b []int) bool {
	if len(a) < len(b) {
		return false
	}
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
