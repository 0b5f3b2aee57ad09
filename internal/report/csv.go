// Package report writes evaluation records as per-task CSV tables, a JSON
// sweep manifest and a markdown summary.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/ogulcanaydogan/ehreval/pkg/types"
)

// RecordSource yields accumulated records grouped by task.
type RecordSource interface {
	Tasks() []types.Task
	Records(task types.Task) []types.Record
}

// WriteCSV writes one header row and one row per record. Every record must
// carry the same columns.
func WriteCSV(w io.Writer, records []types.Record) error {
	if len(records) == 0 {
		return nil
	}
	header := records[0].Columns()
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, r := range records {
		if cols := r.Columns(); !slices.Equal(cols, header) {
			return fmt.Errorf("record %d has columns %v, want %v", i, cols, header)
		}
		if err := cw.Write(r.Values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTaskCSV replaces {outDir}/result_ablations_task_{task}.csv.
func WriteTaskCSV(outDir string, task types.Task, records []types.Record) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outDir, task.ResultFileName())
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteCSV(f, records); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, f.Close()
}

// WriteTasks writes one CSV per task that produced records, in task order.
func WriteTasks(outDir string, src RecordSource) ([]TaskSection, error) {
	var sections []TaskSection
	for _, task := range src.Tasks() {
		records := src.Records(task)
		if len(records) == 0 {
			continue
		}
		path, err := WriteTaskCSV(outDir, task, records)
		if err != nil {
			return nil, err
		}
		sections = append(sections, TaskSection{
			Task:    task,
			File:    path,
			Columns: records[0].Columns(),
			Records: records,
		})
	}
	return sections, nil
}
