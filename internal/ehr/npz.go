package ehr

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/sbinet/npyio/npy"
	"github.com/sbinet/npyio/npz"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
)

// ErrFormat reports an archive that is not a NumPy .npz file in the layout
// the reader understands.
var ErrFormat = errors.New("unsupported dataset format")

type archive struct {
	path string
	r    *npz.Reader
}

func openArchive(path string) (*archive, error) {
	r, err := npz.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("open archive %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return &archive{path: path, r: r}, nil
}

func (a *archive) Close() error { return a.r.Close() }

func (a *archive) has(key string) bool {
	return slices.Contains(a.r.Keys(), key+".npy")
}

// read decodes one member into a tensor with the member's element type.
// Booleans are stored as uint8.
func (a *archive) read(key string) (*tensors.Tensor, error) {
	if !a.has(key) {
		return nil, fmt.Errorf("%w: %s has no array %q", ErrFormat, a.path, key)
	}
	var arr npy.Array
	if err := a.r.Read(key+".npy", &arr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if arr.Fortran() {
		return nil, fmt.Errorf("%w: %s in %s is fortran-ordered", ErrFormat, key, a.path)
	}
	t, err := fromNumpy(arr.Data(), arr.Shape())
	if err != nil {
		return nil, fmt.Errorf("%w: %s in %s: %w", ErrFormat, key, a.path, err)
	}
	return t, nil
}

func fromNumpy(data any, shape []int) (*tensors.Tensor, error) {
	switch v := data.(type) {
	case []float64:
		return tensor.FromFlat(v, shape...)
	case []float32:
		return tensor.FromFlat(v, shape...)
	case []int64:
		return tensor.FromFlat(v, shape...)
	case []int32:
		return tensor.FromFlat(v, shape...)
	case []int16:
		return tensor.FromFlat(v, shape...)
	case []int8:
		return tensor.FromFlat(v, shape...)
	case []uint64:
		return tensor.FromFlat(v, shape...)
	case []uint32:
		return tensor.FromFlat(v, shape...)
	case []uint16:
		return tensor.FromFlat(v, shape...)
	case []uint8:
		return tensor.FromFlat(v, shape...)
	case []bool:
		out := make([]uint8, len(v))
		for i, b := range v {
			if b {
				out[i] = 1
			}
		}
		return tensor.FromFlat(out, shape...)
	default:
		return nil, fmt.Errorf("element type %T", data)
	}
}

// loadDense returns one keyed array from an .npz archive.
func loadDense(path, key string) (*tensors.Tensor, error) {
	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.read(key)
}

// loadSparse rebuilds a dense float64 array from the idx/values/shape
// triple: idx is [ndim, nnz] coordinates, values holds nnz entries.
func loadSparse(path string) (*tensors.Tensor, error) {
	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	if !a.has("idx") || !a.has("values") || !a.has("shape") {
		return nil, fmt.Errorf("%w: %s is not an idx/values/shape archive", ErrFormat, path)
	}

	members := map[string][]float64{}
	var idxDims []int
	for _, key := range []string{"idx", "values", "shape"} {
		t, err := a.read(key)
		if err != nil {
			return nil, err
		}
		if key == "idx" {
			idxDims = tensor.Dims(t)
		}
		if members[key], err = tensor.Values[float64](t); err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrFormat, path, key, err)
		}
	}
	idx, values := members["idx"], members["values"]

	shape := make([]int, len(members["shape"]))
	for i, d := range members["shape"] {
		if d < 0 || d != math.Trunc(d) {
			return nil, fmt.Errorf("%w: %s has shape entry %v", ErrFormat, path, d)
		}
		shape[i] = int(d)
	}
	nnz := len(values)
	if len(idxDims) != 2 || idxDims[0] != len(shape) || idxDims[1] != nnz {
		return nil, fmt.Errorf("%w: %s idx %v does not index %d values of rank %d", ErrFormat, path, idxDims, nnz, len(shape))
	}

	strides := make([]int, len(shape))
	total := 1
	for axis := len(shape) - 1; axis >= 0; axis-- {
		strides[axis] = total
		total *= shape[axis]
	}
	dense := make([]float64, total)
	for j := 0; j < nnz; j++ {
		off := 0
		for axis := range shape {
			c := idx[axis*nnz+j]
			if c < 0 || c != math.Trunc(c) || int(c) >= shape[axis] {
				return nil, fmt.Errorf("%w: %s entry %d has coordinate %v on axis %d of %d", ErrFormat, path, j, c, axis, shape[axis])
			}
			off += int(c) * strides[axis]
		}
		dense[off] = values[j]
	}
	return tensor.FromFlat(dense, shape...)
}
