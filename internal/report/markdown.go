package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func BuildMarkdown(m Manifest) string {
	var b strings.Builder
	b.WriteString("# EHR Model Evaluation Report\n\n")
	b.WriteString(fmt.Sprintf("- Sweep: `%s`\n", m.SweepID))
	b.WriteString(fmt.Sprintf("- Config Digest: `%s`\n", m.ConfigDigest))
	if !m.StartedAt.IsZero() {
		b.WriteString(fmt.Sprintf("- Duration: `%s`\n", m.FinishedAt.Sub(m.StartedAt).Round(time.Millisecond)))
	}
	b.WriteString(fmt.Sprintf("- Datasets: %s\n", strings.Join(m.Datasets, ", ")))
	b.WriteString(fmt.Sprintf("- Variants: %s\n", strings.Join(m.Variants, ", ")))
	b.WriteString(fmt.Sprintf("- Records: `%d`\n", m.RecordCount()))

	for _, s := range m.Tasks {
		b.WriteString(fmt.Sprintf("\n## Task %s: %s\n\n", s.Task, s.Task.Description()))
		b.WriteString(fmt.Sprintf("Results: `%s`\n\n", s.File))
		if len(s.Columns) == 0 {
			continue
		}
		b.WriteString("| " + strings.Join(s.Columns, " | ") + " |\n")
		ids := min(len(s.Columns), 4)
		b.WriteString("|" + strings.Repeat("---|", ids) + strings.Repeat("---:|", len(s.Columns)-ids) + "\n")
		for _, r := range s.Records {
			cells := []string{r.Dataset, string(r.Task), strconv.Itoa(r.TrainIndex), r.Model}
			for _, metric := range r.Metrics {
				cells = append(cells, fmt.Sprintf("%.4f", metric.Value))
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	return b.String()
}

func WriteMarkdown(path string, m Manifest) error {
	return os.WriteFile(path, []byte(BuildMarkdown(m)), 0o644)
}
