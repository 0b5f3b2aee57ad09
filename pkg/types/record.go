package types

import (
	"strconv"
)

const (
	ColumnDataset    = "dataset_name"
	ColumnTask       = "task_name"
	ColumnTrainIndex = "train_index"
	ColumnModel      = "model_name"

	MetricF1  = "f1_score"
	MetricAUC = "auc"
)

// IdentifierColumns lead every result row.
var IdentifierColumns = []string{ColumnDataset, ColumnTask, ColumnTrainIndex, ColumnModel}

type Metric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type Checkpoint struct {
	Path      string `json:"path"`
	Digest    string `json:"digest"`
	SizeBytes int64  `json:"size_bytes"`
}

// Record is one evaluated (dataset, task, checkpoint, model) combination.
// Metrics keep the column order they were produced in.
type Record struct {
	Dataset    string     `json:"dataset_name"`
	Task       Task       `json:"task_name"`
	TrainIndex int        `json:"train_index"`
	Model      string     `json:"model_name"`
	Metrics    []Metric   `json:"metrics"`
	Checkpoint Checkpoint `json:"checkpoint"`
}

func (r Record) Columns() []string {
	cols := make([]string, 0, len(IdentifierColumns)+len(r.Metrics))
	cols = append(cols, IdentifierColumns...)
	for _, m := range r.Metrics {
		cols = append(cols, m.Name)
	}
	return cols
}

func (r Record) Values() []string {
	vals := make([]string, 0, len(IdentifierColumns)+len(r.Metrics))
	vals = append(vals, r.Dataset, string(r.Task), strconv.Itoa(r.TrainIndex), r.Model)
	for _, m := range r.Metrics {
		vals = append(vals, FormatMetric(m.Value))
	}
	return vals
}

func (r Record) Metric(name string) (float64, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m.Value, true
		}
	}
	return 0, false
}

func FormatMetric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// DiagnosisColumns lists the metric columns of a diagnosis row for the given cutoffs.
func DiagnosisColumns(ks []int) []string {
	cols := []string{MetricF1}
	for _, prefix := range []string{"R@", "persistent@", "emerging@"} {
		for _, k := range ks {
			cols = append(cols, prefix+strconv.Itoa(k))
		}
	}
	return cols
}

func HeartFailureColumns() []string {
	return []string{MetricAUC, MetricF1}
}
