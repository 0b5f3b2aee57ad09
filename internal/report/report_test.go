package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

func hfRecord(dataset, model string, auc, f1 float64) types.Record {
	return types.Record{
		Dataset: dataset, Task: types.TaskHeartFailure, TrainIndex: 30, Model: model,
		Metrics: []types.Metric{{Name: types.MetricAUC, Value: auc}, {Name: types.MetricF1, Value: f1}},
	}
}

func diagRecord(model string) types.Record {
	rec := types.Record{Dataset: "mimic3", Task: types.TaskDiagnosis, TrainIndex: 30, Model: model}
	for _, col := range types.DiagnosisColumns([]int{10, 20}) {
		rec.Metrics = append(rec.Metrics, types.Metric{Name: col, Value: 0.25})
	}
	return rec
}

type fakeSource struct {
	order   []types.Task
	records map[types.Task][]types.Record
}

func (f fakeSource) Tasks() []types.Task { return f.order }
func (f fakeSource) Records(task types.Task) []types.Record { return f.records[task] }

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []types.Record{
		hfRecord("mimic3", "base-model", 0.75, 0.5),
		hfRecord("mimic4", "ablation1", 0.8125, 0.25),
	})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"dataset_name", "task_name", "train_index", "model_name", "auc", "f1_score"},
		{"mimic3", "h", "30", "base-model", "0.75", "0.5"},
		{"mimic4", "h", "30", "ablation1", "0.8125", "0.25"},
	}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestWriteCSV_RejectsMixedColumns(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCSV(&buf, []types.Record{hfRecord("mimic3", "base-model", 0.7, 0.5), diagRecord("base-model")})
	if err == nil {
		t.Fatal("expected error for mixed columns")
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestWriteTaskCSV_CreatesDirAndOverwrites(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	if _, err := WriteTaskCSV(out, types.TaskHeartFailure, []types.Record{
		hfRecord("mimic3", "base-model", 0.7, 0.5),
		hfRecord("mimic4", "base-model", 0.7, 0.5),
	}); err != nil {
		t.Fatal(err)
	}
	path, err := WriteTaskCSV(out, types.TaskHeartFailure, []types.Record{hfRecord("mimic3", "ablation2", 0.6, 0.4)})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != "result_ablations_task_h.csv" {
		t.Errorf("path = %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(raw), "\n"); got != 2 {
		t.Errorf("lines = %d, want 2 (header and one row)", got)
	}
	if !strings.Contains(string(raw), "ablation2") {
		t.Error("missing overwritten row")
	}
}

func TestWriteTasks_OnePerTaskInOrder(t *testing.T) {
	out := t.TempDir()
	src := fakeSource{
		order: []types.Task{types.TaskDiagnosis, types.TaskHeartFailure},
		records: map[types.Task][]types.Record{
			types.TaskDiagnosis:    {diagRecord("base-model"), diagRecord("ablation1")},
			types.TaskHeartFailure: {hfRecord("mimic3", "base-model", 0.7, 0.5)},
		},
	}
	sections, err := WriteTasks(out, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 2 {
		t.Fatalf("sections = %d, want 2", len(sections))
	}
	if sections[0].Task != types.TaskDiagnosis || len(sections[0].Records) != 2 {
		t.Errorf("first section = %+v", sections[0])
	}
	for _, name := range []string{"result_ablations_task_m.csv", "result_ablations_task_h.csv"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
}

func sampleManifest() Manifest {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return Manifest{
		SweepID:           "6f1c1d2e-0000-4000-8000-000000000001",
		StartedAt:         start,
		FinishedAt:        start.Add(90 * time.Second),
		ConfigDigest:      "sha256:abc",
		Datasets:          []string{"mimic3", "mimic4"},
		Variants:          []string{"base-model", "ablation1"},
		CheckpointIndices: []int{30},
		Seeds:             []int64{6669},
		Tasks: []TaskSection{{
			Task:    types.TaskHeartFailure,
			File:    "out/result_ablations_task_h.csv",
			Columns: hfRecord("", "", 0, 0).Columns(),
			Records: []types.Record{hfRecord("mimic3", "base-model", 0.75, 0.5)},
		}},
	}
}

func TestManifest_JSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	m := sampleManifest()
	if err := WriteJSON(path, m); err != nil {
		t.Fatal(err)
	}
	got, err := ReadJSON(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.SweepID != m.SweepID || got.RecordCount() != 1 {
		t.Errorf("got %+v", got)
	}
	if v, ok := got.Tasks[0].Records[0].Metric(types.MetricAUC); !ok || v != 0.75 {
		t.Errorf("auc = %v, %t", v, ok)
	}
	if !got.StartedAt.Equal(m.StartedAt) {
		t.Errorf("started_at = %v", got.StartedAt)
	}
}

func TestReadJSON_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadJSON(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing manifest")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := ReadJSON(bad); err == nil {
		t.Error("expected error for malformed manifest")
	}
}

func TestNewSweepID_Unique(t *testing.T) {
	a, b := NewSweepID(), NewSweepID()
	if a == b || len(a) != 36 {
		t.Errorf("ids %q %q", a, b)
	}
}

func TestBuildMarkdown(t *testing.T) {
	md := BuildMarkdown(sampleManifest())
	for _, want := range []string{
		"# EHR Model Evaluation Report",
		"Sweep: `6f1c1d2e-0000-4000-8000-000000000001`",
		"Duration: `1m30s`",
		"Records: `1`",
		"## Task h: heart failure prediction",
		"| dataset_name | task_name | train_index | model_name | auc | f1_score |",
		"|---|---|---|---|---:|---:|",
		"| mimic3 | h | 30 | base-model | 0.7500 | 0.5000 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestWriteMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	if err := WriteMarkdown(path, sampleManifest()); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(raw), "# EHR Model Evaluation Report") {
		t.Error("unexpected content")
	}
}
