package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

type backendFunc func(ctx context.Context, req PredictRequest) (*tensors.Tensor, error)

func (f backendFunc) Predict(ctx context.Context, req PredictRequest) (*tensors.Tensor, error) {
	return f(ctx, req)
}

func hyperparams(outputs int) Hyperparams {
	return Hyperparams{
		CodeNum: 5, CodeSize: 48, GraphSize: 32, HiddenSize: 150,
		TAttentionSize: 32, OutputSize: outputs, DropoutRate: 0.45,
		Activation: "sigmoid", Adjacency: "code_adj.npz",
	}
}

func batch(patients int) tensor.Batch {
	return tensor.Batch{
		CodeX:     tensor.Zeros[float32](patients, 2, 5),
		VisitLens: tensor.Zeros[int64](patients),
		Divided:   tensor.Zeros[float32](patients, 2, 5, 3),
		Y:         tensor.Zeros[float32](patients, 5),
		Neighbors: tensor.Zeros[float32](patients, 2, 5),
	}
}

func TestParseVariant(t *testing.T) {
	for _, v := range Variants {
		got, err := ParseVariant(string(v))
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
	_, err := ParseVariant("ablation3")
	require.Error(t, err)
}

func TestCheckpointSuffix(t *testing.T) {
	require.Equal(t, "", VariantFull.CheckpointSuffix())
	require.Equal(t, "-ablation1", VariantSingleEmbedding.CheckpointSuffix())
	require.Equal(t, "-ablation2", VariantNoTransition.CheckpointSuffix())
}

func TestNewArchitecture(t *testing.T) {
	stub := backendFunc(func(context.Context, PredictRequest) (*tensors.Tensor, error) {
		return nil, nil
	})

	full, err := New(VariantFull, hyperparams(5), stub)
	require.NoError(t, err)
	require.Equal(t, "full", full.Architecture().Name)
	require.Equal(t, 150, full.Architecture().Params.HiddenSize)
	require.Equal(t, 150, full.Architecture().Params.TOutputSize)
	require.Equal(t, 5, full.OutputSize())

	noTransition, err := New(VariantNoTransition, hyperparams(1), stub)
	require.NoError(t, err)
	require.Equal(t, "no_transition", noTransition.Architecture().Name)
	require.Zero(t, noTransition.Architecture().Params.HiddenSize)
	require.Equal(t, 150, noTransition.Architecture().Params.TOutputSize)

	raw, err := json.Marshal(noTransition.Architecture())
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hidden_size")
}

func TestNewRejectsInvalidInput(t *testing.T) {
	stub := backendFunc(func(context.Context, PredictRequest) (*tensors.Tensor, error) {
		return nil, nil
	})
	_, err := New("ablation9", hyperparams(5), stub)
	require.Error(t, err)
	_, err = New(VariantFull, hyperparams(5), nil)
	require.Error(t, err)
	_, err = New(VariantFull, hyperparams(0), stub)
	require.Error(t, err)
}

func TestForwardRequiresCheckpoint(t *testing.T) {
	m, err := New(VariantFull, hyperparams(5), backendFunc(func(context.Context, PredictRequest) (*tensors.Tensor, error) {
		t.Fatal("backend called without checkpoint")
		return nil, nil
	}))
	require.NoError(t, err)
	_, err = m.Forward(context.Background(), batch(2))
	require.ErrorIs(t, err, ErrNotLoaded)
}

func TestForwardShapes(t *testing.T) {
	tests := []struct {
		name    string
		outputs int
		shape   []int
		wantErr error
	}{
		{"matrix", 5, []int{2, 5}, nil},
		{"squeezed binary", 1, []int{2}, nil},
		{"column binary", 1, []int{2, 1}, nil},
		{"wrong vocabulary", 5, []int{2, 4}, ErrShapeMismatch},
		{"wrong patients", 5, []int{3, 5}, ErrShapeMismatch},
		{"flat multi-output", 5, []int{10}, ErrShapeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(VariantSingleEmbedding, hyperparams(tt.outputs), backendFunc(func(_ context.Context, req PredictRequest) (*tensors.Tensor, error) {
				require.Equal(t, "single_embedding", req.Architecture.Name)
				require.Equal(t, "29.pt", req.Checkpoint.Path)
				return tensor.Zeros[float64](tt.shape...), nil
			}))
			require.NoError(t, err)
			require.NoError(t, m.Load(types.Checkpoint{Path: "29.pt"}))

			out, err := m.Forward(context.Background(), batch(2))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, []int{2, tt.outputs}, tensor.Dims(out))
		})
	}
}

func TestForwardWidensScores(t *testing.T) {
	m, err := New(VariantFull, hyperparams(1), backendFunc(func(context.Context, PredictRequest) (*tensors.Tensor, error) {
		return tensor.FromFlat([]float32{0.25, 0.75}, 2)
	}))
	require.NoError(t, err)
	require.NoError(t, m.Load(types.Checkpoint{Path: "0.pt"}))

	out, err := m.Forward(context.Background(), batch(2))
	require.NoError(t, err)
	rows, err := tensor.Rows[float64](out)
	require.NoError(t, err)
	require.Equal(t, [][]float64{{0.25}, {0.75}}, rows)
}

func TestForwardWrapsBackendErrors(t *testing.T) {
	m, err := New(VariantFull, hyperparams(5), backendFunc(func(context.Context, PredictRequest) (*tensors.Tensor, error) {
		return nil, errors.New("connection refused")
	}))
	require.NoError(t, err)
	require.NoError(t, m.Load(types.Checkpoint{Path: "0.pt"}))
	_, err = m.Forward(context.Background(), batch(1))
	require.ErrorIs(t, err, ErrBackend)
}

func TestRemoteBackendPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/predict", r.URL.Path)

		var req PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "full", req.Architecture.Name)
		require.Equal(t, []int{2, 2, 5}, req.Inputs.CodeX.Shape)
		require.Equal(t, []int{2}, req.Inputs.VisitLens.Shape)
		require.Len(t, req.Inputs.Divided.Data, 2*2*5*3)

		var raw map[string]map[string]any
		// labels are not part of the forward pass
		require.NoError(t, json.Unmarshal(mustJSON(t, req), &raw))
		require.NotContains(t, raw["inputs"], "y")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PredictResponse{
			Scores: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
			Shape:  []int{2, 5},
		})
	}))
	defer srv.Close()

	m, err := New(VariantFull, hyperparams(5), NewRemoteBackend(srv.URL+"/", 5*time.Second))
	require.NoError(t, err)
	require.NoError(t, m.Load(types.Checkpoint{Path: "29.pt"}))
	out, err := m.Forward(context.Background(), batch(2))
	require.NoError(t, err)
	require.Equal(t, []int{2, 5}, tensor.Dims(out))
	rows, err := tensor.Rows[float64](out)
	require.NoError(t, err)
	require.Equal(t, []float64{0.6, 0.7, 0.8, 0.9, 1.0}, rows[1])
}

func TestRemoteBackendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"unknown architecture"}`))
	}))
	defer srv.Close()

	_, err := NewRemoteBackend(srv.URL, time.Second).Predict(context.Background(), PredictRequest{})
	require.ErrorIs(t, err, ErrBackend)
	require.Contains(t, err.Error(), "unknown architecture")
	require.Contains(t, err.Error(), "422")
}

func TestRemoteBackendBadShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores":[0.1,0.2,0.3],"shape":[2,2]}`))
	}))
	defer srv.Close()

	_, err := NewRemoteBackend(srv.URL, time.Second).Predict(context.Background(), PredictRequest{})
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRemoteBackendCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRemoteBackend(srv.URL, time.Second).Predict(ctx, PredictRequest{})
	require.ErrorIs(t, err, ErrBackend)
	require.ErrorIs(t, err, context.Canceled)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}
