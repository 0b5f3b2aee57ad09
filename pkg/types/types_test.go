package types

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseTask(t *testing.T) {
	tests := []struct {
		raw     string
		want    Task
		wantErr bool
	}{
		{"m", TaskDiagnosis, false},
		{"h", TaskHeartFailure, false},
		{"", "", true},
		{"x", "", true},
		{"M", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTask(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTask(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTask(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestResultFileName(t *testing.T) {
	if got := TaskDiagnosis.ResultFileName(); got != "result_ablations_task_m.csv" {
		t.Errorf("diagnosis file = %q", got)
	}
	if got := TaskHeartFailure.ResultFileName(); got != "result_ablations_task_h.csv" {
		t.Errorf("heart failure file = %q", got)
	}
}

func TestDiagnosisColumns(t *testing.T) {
	got := DiagnosisColumns([]int{10, 20, 30, 40})
	want := []string{
		"f1_score",
		"R@10", "R@20", "R@30", "R@40",
		"persistent@10", "persistent@20", "persistent@30", "persistent@40",
		"emerging@10", "emerging@20", "emerging@30", "emerging@40",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DiagnosisColumns = %v, want %v", got, want)
	}
}

func TestRecordColumnsAndValues(t *testing.T) {
	r := Record{
		Dataset:    "mimic3",
		Task:       TaskHeartFailure,
		TrainIndex: 30,
		Model:      "ablation1",
		Metrics:    []Metric{{Name: MetricAUC, Value: 0.75}, {Name: MetricF1, Value: 0.5}},
	}
	wantCols := []string{"dataset_name", "task_name", "train_index", "model_name", "auc", "f1_score"}
	if got := r.Columns(); !reflect.DeepEqual(got, wantCols) {
		t.Errorf("Columns = %v, want %v", got, wantCols)
	}
	wantVals := []string{"mimic3", "h", "30", "ablation1", "0.75", "0.5"}
	if got := r.Values(); !reflect.DeepEqual(got, wantVals) {
		t.Errorf("Values = %v, want %v", got, wantVals)
	}
	if v, ok := r.Metric(MetricAUC); !ok || v != 0.75 {
		t.Errorf("Metric(auc) = %v, %v", v, ok)
	}
	if _, ok := r.Metric("R@10"); ok {
		t.Error("unexpected R@10 on heart failure record")
	}
}

func TestRecordJSONFieldNames(t *testing.T) {
	raw, err := json.Marshal(Record{Dataset: "mimic4", Task: TaskDiagnosis, TrainIndex: 1, Model: "base-model"})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"dataset_name", "task_name", "train_index", "model_name", "metrics", "checkpoint"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing json key %q", key)
		}
	}
}
