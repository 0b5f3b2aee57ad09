package ehr

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
)

// Adjacency is the square code co-occurrence matrix. Its size fixes the
// code vocabulary for a dataset.
type Adjacency struct {
	Path   string
	Matrix *tensors.Tensor
}

func (a *Adjacency) CodeNum() int { return tensor.Dim(a.Matrix, 0) }

func LoadAdjacency(path string) (*Adjacency, error) {
	m, err := loadSparse(path)
	if err != nil {
		return nil, err
	}
	if dims := tensor.Dims(m); len(dims) != 2 || dims[0] != dims[1] {
		return nil, fmt.Errorf("%w: adjacency %s has shape %v, want square", ErrFormat, path, dims)
	}
	return &Adjacency{Path: path, Matrix: m}, nil
}
