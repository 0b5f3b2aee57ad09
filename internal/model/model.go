// Package model instantiates the evaluated architectures and runs their
// forward pass on an inference backend.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

var (
	ErrShapeMismatch = errors.New("model output shape mismatch")
	ErrBackend       = errors.New("inference backend failure")
	ErrNotLoaded     = errors.New("model has no checkpoint loaded")
)

// Output activations. With ActivationNone the backend returns logits.
const (
	ActivationSigmoid = "sigmoid"
	ActivationNone    = "none"
)

// Hyperparams configure one architecture instance. TOutputSize defaults to
// HiddenSize.
type Hyperparams struct {
	CodeNum        int     `json:"code_num"`
	CodeSize       int     `json:"code_size"`
	GraphSize      int     `json:"graph_size"`
	HiddenSize     int     `json:"hidden_size,omitempty"`
	TAttentionSize int     `json:"t_attention_size"`
	TOutputSize    int     `json:"t_output_size"`
	OutputSize     int     `json:"output_size"`
	DropoutRate    float64 `json:"dropout_rate"`
	Activation     string  `json:"activation"`
	Adjacency      string  `json:"adjacency"`
}

type Architecture struct {
	Name    string      `json:"name"`
	Variant Variant     `json:"variant"`
	Params  Hyperparams `json:"params"`
}

// Inputs are the forward-pass tensors in wire form. Labels never leave the
// process.
type Inputs struct {
	CodeX     tensor.Array `json:"code_x"`
	Divided   tensor.Array `json:"divided"`
	Neighbors tensor.Array `json:"neighbors"`
	VisitLens tensor.Array `json:"visit_lens"`
}

type PredictRequest struct {
	Architecture Architecture     `json:"architecture"`
	Checkpoint   types.Checkpoint `json:"checkpoint"`
	Inputs       Inputs           `json:"inputs"`
}

// Backend evaluates an architecture with a checkpoint's weights.
type Backend interface {
	Predict(ctx context.Context, req PredictRequest) (*tensors.Tensor, error)
}

type Model interface {
	Variant() Variant
	Architecture() Architecture
	OutputSize() int
	Load(ckpt types.Checkpoint) error
	// Forward returns float64 scores shaped [patients, OutputSize].
	Forward(ctx context.Context, batch tensor.Batch) (*tensors.Tensor, error)
}

// New builds a variant. The no-transition variant has no hidden layer, so
// its hidden size is dropped from the architecture.
func New(variant Variant, hp Hyperparams, backend Backend) (Model, error) {
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, fmt.Errorf("model %s: nil backend", variant)
	}
	if hp.CodeNum <= 0 || hp.OutputSize <= 0 {
		return nil, fmt.Errorf("model %s: code_num %d and output_size %d must be positive", variant, hp.CodeNum, hp.OutputSize)
	}
	if hp.TOutputSize == 0 {
		hp.TOutputSize = hp.HiddenSize
	}
	if variant == VariantNoTransition {
		hp.HiddenSize = 0
	}
	return &remoteModel{
		arch:    Architecture{Name: variant.ArchitectureName(), Variant: variant, Params: hp},
		backend: backend,
	}, nil
}

type remoteModel struct {
	arch    Architecture
	backend Backend
	ckpt    *types.Checkpoint
}

func (m *remoteModel) Variant() Variant { return m.arch.Variant }

func (m *remoteModel) Architecture() Architecture { return m.arch }

func (m *remoteModel) OutputSize() int { return m.arch.Params.OutputSize }

func (m *remoteModel) Load(ckpt types.Checkpoint) error {
	if ckpt.Path == "" {
		return fmt.Errorf("load %s: empty checkpoint path", m.arch.Variant)
	}
	m.ckpt = &ckpt
	return nil
}

func (m *remoteModel) Forward(ctx context.Context, batch tensor.Batch) (*tensors.Tensor, error) {
	if m.ckpt == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotLoaded, m.arch.Variant)
	}
	out, err := m.backend.Predict(ctx, PredictRequest{
		Architecture: m.arch,
		Checkpoint:   *m.ckpt,
		Inputs: Inputs{
			CodeX:     tensor.Encode(batch.CodeX),
			Divided:   tensor.Encode(batch.Divided),
			Neighbors: tensor.Encode(batch.Neighbors),
			VisitLens: tensor.Encode(batch.VisitLens),
		},
	})
	if err != nil {
		if errors.Is(err, ErrBackend) || errors.Is(err, ErrShapeMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrBackend, m.arch.Variant, err)
	}
	return checkOutput(out, batch.Patients(), m.OutputSize())
}

// checkOutput accepts [patients, outputs], or [patients] when there is a
// single output, and returns the scores as float64 [patients, outputs].
func checkOutput(out *tensors.Tensor, patients, outputs int) (*tensors.Tensor, error) {
	dims := tensor.Dims(out)
	switch {
	case len(dims) == 2 && dims[0] == patients && dims[1] == outputs,
		outputs == 1 && len(dims) == 1 && dims[0] == patients:
		scores, err := tensor.Reshape[float64](out, patients, outputs)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
		}
		return scores, nil
	default:
		return nil, fmt.Errorf("%w: got %v, want [%d %d]", ErrShapeMismatch, dims, patients, outputs)
	}
}
