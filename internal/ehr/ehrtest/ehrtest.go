// Package ehrtest writes small NumPy datasets laid out the way the ehr
// reader expects them.
package ehrtest

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/sbinet/npyio/npz"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

// Fixture vocabulary and patient counts.
const (
	Patients  = 3
	MaxVisits = 3
	CodeNum   = 5
)

// Visits of the fixture patients. Patient 1 has one visit, so its history
// is empty.
var Visits = [][][]int{
	{{0, 1}, {2}, {3}},
	{{1, 4}},
	{{4}, {0}},
}

// DiagnosisLabels are the fixture's diagnosis targets. The reader treats
// visit lens-1 of code_x as the prediction-target visit, so history stops
// before it; these labels do not have to repeat that visit's codes.
var DiagnosisLabels = [][]int{{0, 3}, {1}, {2, 4}}

// HeartFailureLabels is one binary outcome per fixture patient.
var HeartFailureLabels = []float64{1, 0, 1}

// Raw builds the fixture split for a task.
func Raw(task types.Task) tensor.Raw {
	codeX := make([]float64, Patients*MaxVisits*CodeNum)
	divided := make([]float64, Patients*MaxVisits*CodeNum*3)
	neighbors := make([]float64, Patients*MaxVisits*CodeNum)
	lens := make([]float64, Patients)
	for p, visits := range Visits {
		lens[p] = float64(len(visits))
		seen := map[int]bool{}
		for t, codes := range visits {
			for _, c := range codes {
				cell := (p*MaxVisits+t)*CodeNum + c
				codeX[cell] = 1
				if seen[c] {
					divided[cell*3] = 0
				} else {
					divided[cell*3] = 1
				}
				neighbors[(p*MaxVisits+t)*CodeNum+(c+1)%CodeNum] = 1
			}
			for _, c := range codes {
				seen[c] = true
			}
		}
	}

	var y *tensors.Tensor
	if task == types.TaskHeartFailure {
		y = tensors.FromFlatDataAndDimensions(append([]float64(nil), HeartFailureLabels...), Patients)
	} else {
		labels := make([]float64, Patients*CodeNum)
		for p, codes := range DiagnosisLabels {
			for _, c := range codes {
				labels[p*CodeNum+c] = 1
			}
		}
		y = tensors.FromFlatDataAndDimensions(labels, Patients, CodeNum)
	}
	return tensor.Raw{
		CodeX:     tensors.FromFlatDataAndDimensions(codeX, Patients, MaxVisits, CodeNum),
		VisitLens: tensors.FromFlatDataAndDimensions(lens, Patients),
		Divided:   tensors.FromFlatDataAndDimensions(divided, Patients, MaxVisits, CodeNum, 3),
		Y:         y,
		Neighbors: tensors.FromFlatDataAndDimensions(neighbors, Patients, MaxVisits, CodeNum),
	}
}

// Adjacency is a symmetric co-occurrence matrix over the fixture codes.
func Adjacency() *tensors.Tensor {
	adj := make([]float64, CodeNum*CodeNum)
	for c := 0; c < CodeNum; c++ {
		next := (c + 1) % CodeNum
		adj[c*CodeNum+next] = 1
		adj[next*CodeNum+c] = 1
	}
	return tensors.FromFlatDataAndDimensions(adj, CodeNum, CodeNum)
}

// RequireValues checks that got has want's dimensions and elements.
func RequireValues(tb testing.TB, want, got *tensors.Tensor) {
	tb.Helper()
	require.Equal(tb, tensor.Dims(want), tensor.Dims(got))
	w, err := tensor.Values[float64](want)
	require.NoError(tb, err)
	g, err := tensor.Values[float64](got)
	require.NoError(tb, err)
	require.Equal(tb, w, g)
}

// WriteDataset writes every split plus the adjacency matrix of one dataset
// below dataRoot, using the same arrays for train, valid and test.
func WriteDataset(tb testing.TB, dataRoot, dataset string, task types.Task) {
	tb.Helper()
	root := filepath.Join(dataRoot, dataset, "standard")
	for _, split := range []string{"train", "valid", "test"} {
		WriteSplit(tb, filepath.Join(root, split), task, Raw(task))
	}
	WriteSparse(tb, filepath.Join(root, "code_adj.npz"), Adjacency())
}

// WriteSplit writes the archives of one split directory.
func WriteSplit(tb testing.TB, dir string, task types.Task, raw tensor.Raw) {
	tb.Helper()
	require.NoError(tb, os.MkdirAll(dir, 0o755))
	WriteSparse(tb, filepath.Join(dir, "code_x.npz"), raw.CodeX)
	WriteDense(tb, filepath.Join(dir, "visit_lens.npz"), "lens", raw.VisitLens)
	WriteSparse(tb, filepath.Join(dir, "divided.npz"), raw.Divided)
	WriteSparse(tb, filepath.Join(dir, "neighbors.npz"), raw.Neighbors)
	if task == types.TaskHeartFailure {
		WriteDense(tb, filepath.Join(dir, "hf_y.npz"), "hf_y", raw.Y)
	} else {
		WriteSparse(tb, filepath.Join(dir, "code_y.npz"), raw.Y)
	}
}

// WriteDense stores t as float64 under key.
func WriteDense(tb testing.TB, path, key string, t *tensors.Tensor) {
	tb.Helper()
	vals, err := tensor.Values[float64](t)
	require.NoError(tb, err)
	WriteArrays(tb, path, map[string]any{key: Shaped(vals, tensor.Dims(t)...)})
}

// WriteSparse stores t as an idx/values/shape triple with int64 indices.
func WriteSparse(tb testing.TB, path string, t *tensors.Tensor) {
	tb.Helper()
	dims := tensor.Dims(t)
	data, err := tensor.Values[float64](t)
	require.NoError(tb, err)

	var coords [][]int64
	values := []float64{}
	for off, v := range data {
		if v == 0 {
			continue
		}
		coords = append(coords, unravel(off, dims))
		values = append(values, v)
	}
	idx := make([]int64, len(dims)*len(values))
	for j, c := range coords {
		for axis, x := range c {
			idx[axis*len(values)+j] = x
		}
	}
	shape := make([]int64, len(dims))
	for i, d := range dims {
		shape[i] = int64(d)
	}
	WriteArrays(tb, path, map[string]any{
		"idx":    Shaped(idx, len(dims), len(values)),
		"values": Shaped(values, len(values)),
		"shape":  Shaped(shape, len(shape)),
	})
}

// WriteArrays stores each value as key.npy. Values must be types the npy
// writer accepts.
func WriteArrays(tb testing.TB, path string, arrays map[string]any) {
	tb.Helper()
	require.NoError(tb, os.MkdirAll(filepath.Dir(path), 0o755))
	w, err := npz.Create(path)
	require.NoError(tb, err)
	for key, v := range arrays {
		require.NoError(tb, w.Write(key+".npy", v))
	}
	require.NoError(tb, w.Close())
}

// Shaped lays row-major data out as nested Go arrays, which the npy writer
// records with their full shape.
func Shaped[T any](data []T, dims ...int) any {
	typ := reflect.TypeFor[T]()
	for i := len(dims) - 1; i >= 0; i-- {
		typ = reflect.ArrayOf(dims[i], typ)
	}
	v := reflect.New(typ).Elem()
	fill(v, reflect.ValueOf(data), 0)
	return v.Interface()
}

func fill(dst, src reflect.Value, off int) int {
	if dst.Kind() != reflect.Array {
		dst.Set(src.Index(off))
		return off + 1
	}
	for i := 0; i < dst.Len(); i++ {
		off = fill(dst.Index(i), src, off)
	}
	return off
}

func unravel(off int, dims []int) []int64 {
	out := make([]int64, len(dims))
	for axis := len(dims) - 1; axis >= 0; axis-- {
		out[axis] = int64(off % dims[axis])
		off /= dims[axis]
	}
	return out
}
