package types

import "fmt"

type Task string

const (
	TaskDiagnosis    Task = "m"
	TaskHeartFailure Task = "h"
)

func ParseTask(raw string) (Task, error) {
	switch Task(raw) {
	case TaskDiagnosis, TaskHeartFailure:
		return Task(raw), nil
	default:
		return "", fmt.Errorf("unsupported task %q (want m or h)", raw)
	}
}

// ResultFileName is the per-task CSV name written by a sweep.
func (t Task) ResultFileName() string {
	return "result_ablations_task_" + string(t) + ".csv"
}

func (t Task) Description() string {
	switch t {
	case TaskDiagnosis:
		return "diagnosis prediction"
	case TaskHeartFailure:
		return "heart failure prediction"
	default:
		return ""
	}
}
