// Package history marks, per patient, which diagnosis codes were already
// recorded before the prediction-target visit.
package history

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
)

// Index is an immutable patients x codes indicator matrix.
type Index struct {
	patients int
	codeNum  int
	seen     []bool
}

// Build marks code c for patient p when codeX[p, t, c] is non-zero for any
// visit t < lens[p]-1. A patient with one visit or none gets an empty set.
func Build(codeX *tensors.Tensor, codeNum int, lens *tensors.Tensor) (*Index, error) {
	dims := tensor.Dims(codeX)
	if len(dims) != 3 {
		return nil, fmt.Errorf("%w: code_x must be rank 3, got %v", tensor.ErrShape, dims)
	}
	patients, visits := dims[0], dims[1]
	if dims[2] != codeNum {
		return nil, fmt.Errorf("%w: code_x has %d codes, vocabulary has %d", tensor.ErrShape, dims[2], codeNum)
	}
	if ld := tensor.Dims(lens); len(ld) != 1 || ld[0] != patients {
		return nil, fmt.Errorf("%w: visit_lens %v for %d patients", tensor.ErrShape, ld, patients)
	}
	x, err := tensor.Values[float32](codeX)
	if err != nil {
		return nil, err
	}
	n, err := tensor.Values[int64](lens)
	if err != nil {
		return nil, err
	}

	ix := &Index{patients: patients, codeNum: codeNum, seen: make([]bool, patients*codeNum)}
	for p := 0; p < patients; p++ {
		count := int(n[p])
		if count < 0 || count > visits {
			return nil, fmt.Errorf("%w: patient %d has %d visits, max %d", tensor.ErrShape, p, count, visits)
		}
		row := ix.seen[p*codeNum : (p+1)*codeNum]
		visitsOf := x[p*visits*codeNum : (p+1)*visits*codeNum]
		for t := 0; t < count-1; t++ {
			visit := visitsOf[t*codeNum : (t+1)*codeNum]
			for c, v := range visit {
				if v != 0 {
					row[c] = true
				}
			}
		}
	}
	return ix, nil
}

func (ix *Index) Patients() int { return ix.patients }

func (ix *Index) CodeNum() int { return ix.codeNum }

func (ix *Index) Seen(patient, code int) bool {
	return ix.seen[patient*ix.codeNum+code]
}

// Row returns a copy of the patient's indicator vector.
func (ix *Index) Row(patient int) []bool {
	out := make([]bool, ix.codeNum)
	copy(out, ix.seen[patient*ix.codeNum:(patient+1)*ix.codeNum])
	return out
}

func (ix *Index) Count(patient int) int {
	n := 0
	for _, s := range ix.seen[patient*ix.codeNum : (patient+1)*ix.codeNum] {
		if s {
			n++
		}
	}
	return n
}
