// Package evaluate drives the model sweep and scores each checkpoint.
package evaluate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ogulcanaydogan/ehreval/internal/metrics"
	"github.com/ogulcanaydogan/ehreval/internal/model"
	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

// Run identifies the evaluated combination.
type Run struct {
	Dataset    string
	Task       types.Task
	TrainIndex int
	Model      string
	Checkpoint types.Checkpoint
}

type Options struct {
	Ks        []int
	Average   metrics.Average
	Threshold float64
	// Progress receives one summary line per evaluation. Nil discards it.
	Progress io.Writer
}

func (o Options) progress() io.Writer {
	if o.Progress == nil {
		return io.Discard
	}
	return o.Progress
}

// Diagnosis scores next-visit code prediction: weighted F1 of the top-|true|
// codes, recall@k, and recall@k split into persistent and emerging codes.
func Diagnosis(ctx context.Context, m model.Model, batch tensor.Batch, hist metrics.Historical, run Run, opts Options) (types.Record, error) {
	patients, codes := batch.Patients(), m.OutputSize()
	if dims := tensor.Dims(batch.Y); len(dims) != 2 || dims[0] != patients || dims[1] != codes {
		return types.Record{}, fmt.Errorf("%w: diagnosis labels %v, want [%d %d]", tensor.ErrShape, dims, patients, codes)
	}
	out, err := m.Forward(ctx, batch)
	if err != nil {
		return types.Record{}, err
	}

	scores, err := tensor.Rows[float64](out)
	if err != nil {
		return types.Record{}, err
	}
	y, err := tensor.Rows[float32](batch.Y)
	if err != nil {
		return types.Record{}, err
	}
	labels := make([][]bool, patients)
	for p := range labels {
		labels[p] = make([]bool, codes)
		for c, v := range y[p] {
			labels[p][c] = v == 1
		}
	}
	ranking := metrics.Rank(scores)

	f1, err := metrics.F1(labels, ranking, opts.Average)
	if err != nil {
		return types.Record{}, err
	}
	topk, err := metrics.TopK(labels, ranking, opts.Ks)
	if err != nil {
		return types.Record{}, err
	}
	occ, err := metrics.Occurrence(labels, ranking, hist, opts.Ks)
	if err != nil {
		return types.Record{}, err
	}

	values := []float64{f1}
	values = append(values, topk.Recall...)
	values = append(values, occ.Persistent...)
	values = append(values, occ.Emerging...)
	rec := newRecord(run, types.DiagnosisColumns(opts.Ks), values)

	fmt.Fprintf(opts.progress(), "\r    f1_score: %.4f --- top_k_recall: %s  --- occurred: %s  --- not occurred: %s\n",
		f1, joinMetrics(topk.Recall), joinMetrics(occ.Persistent), joinMetrics(occ.Emerging))
	return rec, nil
}

// HeartFailure scores the binary outcome: ROC-AUC over the model scores and
// F1 of probabilities above the threshold. A model configured without an
// output activation returns logits, which are mapped through the logistic
// function before thresholding.
func HeartFailure(ctx context.Context, m model.Model, batch tensor.Batch, run Run, opts Options) (types.Record, error) {
	patients := batch.Patients()
	if dims := tensor.Dims(batch.Y); tensor.Len(batch.Y) != patients || len(dims) == 0 || dims[0] != patients {
		return types.Record{}, fmt.Errorf("%w: heart failure labels %v, want [%d]", tensor.ErrShape, dims, patients)
	}
	out, err := m.Forward(ctx, batch)
	if err != nil {
		return types.Record{}, err
	}

	y, err := tensor.Values[float32](batch.Y)
	if err != nil {
		return types.Record{}, err
	}
	labels := make([]bool, patients)
	for p, v := range y {
		labels[p] = v == 1
	}
	scores, err := tensor.Values[float64](out)
	if err != nil {
		return types.Record{}, err
	}
	probs := scores
	if m.Architecture().Params.Activation == model.ActivationNone {
		probs = metrics.Logistic(scores)
	}

	auc, err := metrics.AUC(labels, scores)
	if err != nil {
		return types.Record{}, err
	}
	f1, err := metrics.BinaryF1(labels, probs, opts.Threshold)
	if err != nil {
		return types.Record{}, err
	}

	fmt.Fprintf(opts.progress(), "\r    auc: %.4f --- f1_score: %.4f\n", auc, f1)
	return newRecord(run, types.HeartFailureColumns(), []float64{auc, f1}), nil
}

func newRecord(run Run, columns []string, values []float64) types.Record {
	rec := types.Record{
		Dataset:    run.Dataset,
		Task:       run.Task,
		TrainIndex: run.TrainIndex,
		Model:      run.Model,
		Checkpoint: run.Checkpoint,
		Metrics:    make([]types.Metric, len(columns)),
	}
	for i, name := range columns {
		rec.Metrics[i] = types.Metric{Name: name, Value: values[i]}
	}
	return rec
}

func joinMetrics(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%.4f", v)
	}
	return strings.Join(parts, ", ")
}
