// Package ehr reads preprocessed patient visit sequences and the code
// co-occurrence graph from NumPy .npz archives.
package ehr

import (
	"fmt"
	"path/filepath"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

type Split string

const (
	SplitTrain Split = "train"
	SplitValid Split = "valid"
	SplitTest  Split = "test"
)

// Splits lists the splits in the order they are reported.
var Splits = []Split{SplitTrain, SplitValid, SplitTest}

// Archive file names inside a split directory.
const (
	FileCodeX     = "code_x.npz"
	FileVisitLens = "visit_lens.npz"
	FileDivided   = "divided.npz"
	FileNeighbors = "neighbors.npz"
	FileCodeY     = "code_y.npz"
	FileHFY       = "hf_y.npz"
	FileAdjacency = "code_adj.npz"
)

// Layout resolves dataset directories below a data root.
type Layout struct {
	DataRoot string
}

func (l Layout) DatasetDir(dataset string) string {
	return filepath.Join(l.DataRoot, dataset, "standard")
}

func (l Layout) SplitDir(dataset string, split Split) string {
	return filepath.Join(l.DatasetDir(dataset), string(split))
}

// Dataset is one split of one dataset, read-only after Load.
type Dataset struct {
	Name   string
	Split  Split
	Task   types.Task
	Arrays tensor.Raw
}

func (d *Dataset) Patients() int { return tensor.Dim(d.Arrays.CodeX, 0) }

// PositiveCount counts label entries equal to 1.
func (d *Dataset) PositiveCount() int {
	labels, err := tensor.Values[float64](d.Arrays.Y)
	if err != nil {
		return 0
	}
	n := 0
	for _, v := range labels {
		if v == 1 {
			n++
		}
	}
	return n
}

// Load reads the five arrays of a split. Diagnosis labels come from the
// sparse code_y archive, heart-failure labels from the dense hf_y archive.
func Load(layout Layout, dataset string, split Split, task types.Task) (*Dataset, error) {
	dir := layout.SplitDir(dataset, split)
	var (
		raw tensor.Raw
		err error
	)
	if raw.CodeX, err = loadSparse(filepath.Join(dir, FileCodeX)); err != nil {
		return nil, err
	}
	if raw.VisitLens, err = loadDense(filepath.Join(dir, FileVisitLens), "lens"); err != nil {
		return nil, err
	}
	if raw.Divided, err = loadSparse(filepath.Join(dir, FileDivided)); err != nil {
		return nil, err
	}
	if raw.Neighbors, err = loadSparse(filepath.Join(dir, FileNeighbors)); err != nil {
		return nil, err
	}
	switch task {
	case types.TaskDiagnosis:
		raw.Y, err = loadSparse(filepath.Join(dir, FileCodeY))
	case types.TaskHeartFailure:
		raw.Y, err = loadDense(filepath.Join(dir, FileHFY), "hf_y")
	default:
		return nil, fmt.Errorf("load %s/%s: unknown task %q", dataset, split, task)
	}
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: dataset, Split: split, Task: task, Arrays: raw}, nil
}

// Reader loads datasets and adjacency matrices from a fixed layout.
type Reader struct {
	Layout Layout
}

func NewReader(dataRoot string) *Reader {
	return &Reader{Layout: Layout{DataRoot: dataRoot}}
}

func (r *Reader) Dataset(dataset string, split Split, task types.Task) (*Dataset, error) {
	return Load(r.Layout, dataset, split, task)
}

func (r *Reader) Adjacency(dataset string) (*Adjacency, error) {
	return LoadAdjacency(filepath.Join(r.Layout.DatasetDir(dataset), FileAdjacency))
}
