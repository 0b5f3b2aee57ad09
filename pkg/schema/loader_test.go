package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validSweepDoc() map[string]any {
	return map[string]any{
		"data_root":          "../data",
		"out_root":           "../out",
		"datasets":           []any{"mimic3", "mimic4"},
		"tasks":              []any{"h"},
		"variants":           []any{"base-model", "ablation1", "ablation2"},
		"checkpoint_indices": []any{30},
		"ks":                 []any{10, 20, 30, 40},
		"f1_average":         "weighted",
		"model": map[string]any{
			"code_size":  48,
			"activation": "sigmoid",
		},
		"task_params": map[string]any{
			"h": map[string]any{
				"dropout":     0.0,
				"hidden_size": map[string]any{"mimic3": 150, "mimic4": 350},
			},
		},
	}
}

func TestValidateSweep(t *testing.T) {
	errs, err := ValidateSweep(validSweepDoc())
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("sweep should pass: %v", errs)
	}
}

func TestValidateSweepRejectsUnknownTask(t *testing.T) {
	doc := validSweepDoc()
	doc["tasks"] = []any{"x"}
	errs, err := ValidateSweep(doc)
	if err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	if len(errs) == 0 {
		t.Fatal("expected schema violations")
	}
}

func TestValidateSweepRejectsZeroCheckpointIndex(t *testing.T) {
	doc := validSweepDoc()
	doc["checkpoint_indices"] = []any{0}
	errs, err := ValidateSweep(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected checkpoint index 0 to be rejected")
	}
}

func TestValidateSweepRejectsUnknownField(t *testing.T) {
	doc := validSweepDoc()
	doc["seed"] = 6669
	errs, err := ValidateSweep(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected unknown field to be rejected")
	}
	if !strings.Contains(strings.Join(errs, ";"), "seed") {
		t.Errorf("violation should name the field: %v", errs)
	}
}

func TestValidateFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweep.schema.json")
	if err := os.WriteFile(path, SweepSchema(), 0o644); err != nil {
		t.Fatal(err)
	}
	errs, err := Validate(path, validSweepDoc())
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("sweep should pass: %v", errs)
	}
}

func TestValidateMissingSchemaFile(t *testing.T) {
	_, err := Validate(filepath.Join(t.TempDir(), "missing.schema.json"), map[string]any{})
	if err == nil {
		t.Fatal("expected schema loader error")
	}
	if !strings.Contains(err.Error(), "validate") {
		t.Fatalf("unexpected error: %v", err)
	}
}
