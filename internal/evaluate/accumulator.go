package evaluate

import "github.com/ogulcanaydogan/ehreval/pkg/types"

// Accumulator collects records per task in the order they were produced.
// The zero value is ready to use.
type Accumulator struct {
	order   []types.Task
	records map[types.Task][]types.Record
}

func NewAccumulator() *Accumulator {
	return &Accumulator{records: map[types.Task][]types.Record{}}
}

func (a *Accumulator) Append(r types.Record) {
	if a.records == nil {
		a.records = map[types.Task][]types.Record{}
	}
	if _, ok := a.records[r.Task]; !ok {
		a.order = append(a.order, r.Task)
	}
	a.records[r.Task] = append(a.records[r.Task], r)
}

// Tasks lists tasks in first-seen order.
func (a *Accumulator) Tasks() []types.Task {
	return append([]types.Task(nil), a.order...)
}

func (a *Accumulator) Records(task types.Task) []types.Record {
	return append([]types.Record(nil), a.records[task]...)
}

func (a *Accumulator) Len() int {
	n := 0
	for _, recs := range a.records {
		n += len(recs)
	}
	return n
}
