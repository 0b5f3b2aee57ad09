// Package config loads the evaluation sweep file and runtime settings.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/ehreval/internal/metrics"
	"github.com/ogulcanaydogan/ehreval/internal/model"
	"github.com/ogulcanaydogan/ehreval/pkg/schema"
	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

var ErrInvalid = errors.New("invalid sweep configuration")

const (
	ActivationSigmoid = model.ActivationSigmoid
	ActivationNone    = model.ActivationNone
)

type ModelParams struct {
	CodeSize       int    `yaml:"code_size"`
	GraphSize      int    `yaml:"graph_size"`
	TAttentionSize int    `yaml:"t_attention_size"`
	BatchSize      int    `yaml:"batch_size"`
	Activation     string `yaml:"activation"`
}

type TaskParams struct {
	Dropout    float64        `yaml:"dropout"`
	HiddenSize map[string]int `yaml:"hidden_size"`
}

// Sweep describes every (task, dataset, variant, checkpoint) combination to
// evaluate and how to score it.
type Sweep struct {
	DataRoot          string                    `yaml:"data_root"`
	OutRoot           string                    `yaml:"out_root"`
	Datasets          []string                  `yaml:"datasets"`
	Tasks             []types.Task              `yaml:"tasks"`
	Variants          []model.Variant           `yaml:"variants"`
	CheckpointIndices []int                     `yaml:"checkpoint_indices"`
	Seeds             []int64                   `yaml:"seeds"`
	Ks                []int                     `yaml:"ks"`
	F1Average         metrics.Average           `yaml:"f1_average"`
	Threshold         float64                   `yaml:"threshold"`
	Model             ModelParams               `yaml:"model"`
	TaskParams        map[types.Task]TaskParams `yaml:"task_params"`
}

func DefaultSweep() Sweep {
	hidden := func() map[string]int { return map[string]int{"mimic3": 150, "mimic4": 350} }
	return Sweep{
		DataRoot:          "../data",
		OutRoot:           "../out",
		Datasets:          []string{"mimic3", "mimic4"},
		Tasks:             []types.Task{types.TaskHeartFailure},
		Variants:          append([]model.Variant(nil), model.Variants...),
		CheckpointIndices: []int{30},
		Seeds:             []int64{6669},
		Ks:                []int{10, 20, 30, 40},
		F1Average:         metrics.AverageWeighted,
		Threshold:         0.5,
		Model: ModelParams{
			CodeSize:       48,
			GraphSize:      32,
			TAttentionSize: 32,
			BatchSize:      32,
			Activation:     ActivationSigmoid,
		},
		TaskParams: map[types.Task]TaskParams{
			types.TaskDiagnosis:    {Dropout: 0.45, HiddenSize: hidden()},
			types.TaskHeartFailure: {Dropout: 0.0, HiddenSize: hidden()},
		},
	}
}

func Load(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadSweep validates the file against the bundled schema and overlays it
// on DefaultSweep. Lists in the file replace the defaults.
func LoadSweep(path string) (Sweep, error) {
	var doc map[string]any
	if err := Load(path, &doc); err != nil {
		return Sweep{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	violations, err := schema.ValidateSweep(doc)
	if err != nil {
		return Sweep{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if len(violations) > 0 {
		return Sweep{}, fmt.Errorf("%w: %s: %s", ErrInvalid, path, strings.Join(violations, "; "))
	}

	cfg := DefaultSweep()
	if err := Load(path, &cfg); err != nil {
		return Sweep{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Sweep{}, err
	}
	return cfg, nil
}

func (s Sweep) Validate() error {
	var problems []string
	if s.DataRoot == "" {
		problems = append(problems, "data_root is empty")
	}
	if s.OutRoot == "" {
		problems = append(problems, "out_root is empty")
	}
	if len(s.Datasets) == 0 {
		problems = append(problems, "no datasets")
	}
	if len(s.Tasks) == 0 {
		problems = append(problems, "no tasks")
	}
	if len(s.Variants) == 0 {
		problems = append(problems, "no variants")
	}
	if len(s.CheckpointIndices) == 0 {
		problems = append(problems, "no checkpoint indices")
	}
	if len(s.Ks) == 0 {
		problems = append(problems, "no top-k cutoffs")
	}
	for _, t := range s.Tasks {
		if _, err := types.ParseTask(string(t)); err != nil {
			problems = append(problems, err.Error())
			continue
		}
		params, ok := s.TaskParams[t]
		if !ok {
			problems = append(problems, fmt.Sprintf("task %s has no task_params", t))
			continue
		}
		for _, d := range s.Datasets {
			if params.HiddenSize[d] <= 0 {
				problems = append(problems, fmt.Sprintf("task %s has no hidden_size for dataset %s", t, d))
			}
		}
	}
	for _, v := range s.Variants {
		if _, err := model.ParseVariant(string(v)); err != nil {
			problems = append(problems, err.Error())
		}
	}
	for _, n := range s.CheckpointIndices {
		if n < 1 {
			problems = append(problems, fmt.Sprintf("checkpoint index %d is below 1", n))
		}
	}
	for _, k := range s.Ks {
		if k < 1 {
			problems = append(problems, fmt.Sprintf("top-k cutoff %d is below 1", k))
		}
	}
	if _, err := metrics.ParseAverage(string(s.F1Average)); err != nil {
		problems = append(problems, err.Error())
	}
	if s.Threshold < 0 || s.Threshold > 1 {
		problems = append(problems, fmt.Sprintf("threshold %v outside [0, 1]", s.Threshold))
	}
	if s.Model.CodeSize < 1 || s.Model.GraphSize < 1 || s.Model.TAttentionSize < 1 || s.Model.BatchSize < 1 {
		problems = append(problems, "model sizes must be positive")
	}
	switch s.Model.Activation {
	case ActivationSigmoid, ActivationNone:
	default:
		problems = append(problems, fmt.Sprintf("unknown activation %q", s.Model.Activation))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (s Sweep) HiddenSize(task types.Task, dataset string) (int, error) {
	params, ok := s.TaskParams[task]
	if !ok {
		return 0, fmt.Errorf("%w: task %s has no task_params", ErrInvalid, task)
	}
	n, ok := params.HiddenSize[dataset]
	if !ok || n <= 0 {
		return 0, fmt.Errorf("%w: task %s has no hidden_size for dataset %s", ErrInvalid, task, dataset)
	}
	return n, nil
}

func (s Sweep) Dropout(task types.Task) float64 {
	return s.TaskParams[task].Dropout
}

// Hyperparams sizes a model for one (task, dataset). Diagnosis scores every
// code; heart failure has a single output.
func (s Sweep) Hyperparams(task types.Task, dataset string, codeNum int, adjacency string) (model.Hyperparams, error) {
	hidden, err := s.HiddenSize(task, dataset)
	if err != nil {
		return model.Hyperparams{}, err
	}
	outputs := 1
	if task == types.TaskDiagnosis {
		outputs = codeNum
	}
	return model.Hyperparams{
		CodeNum:        codeNum,
		CodeSize:       s.Model.CodeSize,
		GraphSize:      s.Model.GraphSize,
		HiddenSize:     hidden,
		TAttentionSize: s.Model.TAttentionSize,
		TOutputSize:    hidden,
		OutputSize:     outputs,
		DropoutRate:    s.Dropout(task),
		Activation:     s.Model.Activation,
		Adjacency:      adjacency,
	}, nil
}

// Digest fingerprints the effective configuration.
func (s Sweep) Digest() (string, error) {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	sum := sha256.Sum256(raw)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// DefaultYAML renders DefaultSweep as a starting sweep file.
func DefaultYAML() ([]byte, error) {
	return yaml.Marshal(DefaultSweep())
}
