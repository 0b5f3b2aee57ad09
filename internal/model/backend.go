package model

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gomlx/gomlx/pkg/core/tensors"

	"github.com/ogulcanaydogan/ehreval/internal/tensor"
)

// PredictResponse carries row-major scores and their shape.
type PredictResponse struct {
	Scores []float64 `json:"scores"`
	Shape  []int     `json:"shape"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// RemoteBackend posts forward-pass requests to an HTTP inference server.
type RemoteBackend struct {
	client *resty.Client
}

func NewRemoteBackend(baseURL string, timeout time.Duration) *RemoteBackend {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Accept", "application/json")
	return &RemoteBackend{client: client}
}

func (b *RemoteBackend) Predict(ctx context.Context, req PredictRequest) (*tensors.Tensor, error) {
	var out PredictResponse
	var apiErr errorResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiErr).
		Post("/v1/predict")
	if err != nil {
		return nil, fmt.Errorf("%w: predict: %w", ErrBackend, err)
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("%w: predict returned %d: %s", ErrBackend, resp.StatusCode(), msg)
	}
	scores, err := tensor.FromFlat(out.Scores, out.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	return scores, nil
}
