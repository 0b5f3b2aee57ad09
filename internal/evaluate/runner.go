package evaluate

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ogulcanaydogan/ehreval/internal/checkpoint"
	"github.com/ogulcanaydogan/ehreval/internal/config"
	"github.com/ogulcanaydogan/ehreval/internal/ehr"
	"github.com/ogulcanaydogan/ehreval/internal/history"
	"github.com/ogulcanaydogan/ehreval/internal/metrics"
	"github.com/ogulcanaydogan/ehreval/internal/model"
	"github.com/ogulcanaydogan/ehreval/internal/tensor"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

// DatasetSource supplies dataset splits and code adjacency matrices.
type DatasetSource interface {
	Dataset(name string, split ehr.Split, task types.Task) (*ehr.Dataset, error)
	Adjacency(name string) (*ehr.Adjacency, error)
}

// Runner evaluates every (task, dataset, variant, checkpoint index) of a
// sweep in order. The first failure aborts the sweep.
type Runner struct {
	sweep    config.Sweep
	data     DatasetSource
	backend  model.Backend
	logger   *zerolog.Logger
	progress io.Writer
}

func NewRunner(sweep config.Sweep, data DatasetSource, backend model.Backend, logger *zerolog.Logger, progress io.Writer) *Runner {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Runner{sweep: sweep, data: data, backend: backend, logger: logger, progress: progress}
}

// prepared holds what every variant of one (task, dataset) shares.
type prepared struct {
	batch     tensor.Batch
	hist      *history.Index
	codeNum   int
	adjacency string
}

func (r *Runner) Run(ctx context.Context, acc *Accumulator) (*Accumulator, error) {
	if acc == nil {
		acc = NewAccumulator()
	}
	avg, err := metrics.ParseAverage(string(r.sweep.F1Average))
	if err != nil {
		return acc, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	opts := Options{Ks: r.sweep.Ks, Average: avg, Threshold: r.sweep.Threshold, Progress: r.progress}

	for _, task := range r.sweep.Tasks {
		for _, dataset := range r.sweep.Datasets {
			prep, err := r.prepare(task, dataset)
			if err != nil {
				return acc, err
			}
			for _, variant := range r.sweep.Variants {
				if err := r.evaluateVariant(ctx, acc, prep, task, dataset, variant, opts); err != nil {
					return acc, err
				}
			}
		}
	}
	return acc, nil
}

func (r *Runner) prepare(task types.Task, dataset string) (*prepared, error) {
	splits := map[ehr.Split]*ehr.Dataset{}
	for _, split := range ehr.Splits {
		ds, err := r.data.Dataset(dataset, split, task)
		if err != nil {
			return nil, fmt.Errorf("load %s %s split: %w", dataset, split, err)
		}
		splits[split] = ds
		r.logger.Info().
			Str("dataset", dataset).
			Str("task", string(task)).
			Str("split", string(split)).
			Int("patients", ds.Patients()).
			Int("positives", ds.PositiveCount()).
			Msg("loaded split")
	}

	adj, err := r.data.Adjacency(dataset)
	if err != nil {
		return nil, fmt.Errorf("load %s adjacency: %w", dataset, err)
	}
	r.logger.Info().Str("dataset", dataset).Int("code_num", adj.CodeNum()).Msg("loaded code adjacency")

	batch, err := tensor.Adapt(splits[ehr.SplitTest].Arrays)
	if err != nil {
		return nil, fmt.Errorf("adapt %s test split: %w", dataset, err)
	}
	hist, err := history.Build(batch.CodeX, adj.CodeNum(), batch.VisitLens)
	if err != nil {
		return nil, fmt.Errorf("historical codes for %s: %w", dataset, err)
	}
	return &prepared{batch: batch, hist: hist, codeNum: adj.CodeNum(), adjacency: adj.Path}, nil
}

func (r *Runner) evaluateVariant(ctx context.Context, acc *Accumulator, prep *prepared, task types.Task, dataset string, variant model.Variant, opts Options) error {
	hp, err := r.sweep.Hyperparams(task, dataset, prep.codeNum, prep.adjacency)
	if err != nil {
		return err
	}
	m, err := model.New(variant, hp, r.backend)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrBackend, err)
	}
	r.logger.Info().
		Str("variant", string(variant)).
		Str("architecture", m.Architecture().Name).
		Int("hidden_size", m.Architecture().Params.HiddenSize).
		Int("output_size", m.OutputSize()).
		Msg(variant.Description())

	for _, index := range r.sweep.CheckpointIndices {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := checkpoint.Path(r.sweep.DataRoot, variant.CheckpointSuffix(), dataset, task, index)
		if err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
		ckpt, err := checkpoint.Resolve(path)
		if err != nil {
			return err
		}
		if err := m.Load(ckpt); err != nil {
			return err
		}

		run := Run{Dataset: dataset, Task: task, TrainIndex: index, Model: string(variant), Checkpoint: ckpt}
		var rec types.Record
		switch task {
		case types.TaskDiagnosis:
			rec, err = Diagnosis(ctx, m, prep.batch, prep.hist, run, opts)
		case types.TaskHeartFailure:
			rec, err = HeartFailure(ctx, m, prep.batch, run, opts)
		default:
			err = fmt.Errorf("%w: unknown task %q", config.ErrInvalid, task)
		}
		if err != nil {
			return fmt.Errorf("evaluate %s/%s/%s@%d: %w", task, dataset, variant, index, err)
		}
		acc.Append(rec)
		r.logger.Debug().
			Str("checkpoint", ckpt.Path).
			Str("digest", ckpt.Digest).
			Int("train_index", index).
			Msg("evaluated checkpoint")
	}
	return nil
}
