package metrics

import "fmt"

// Historical reports whether a code was recorded for a patient before the
// target visit.
type Historical interface {
	Patients() int
	CodeNum() int
	Seen(patient, code int) bool
}

// PatientSplit divides one patient's true codes into persistent (seen
// before) and emerging (new) codes and counts top-k hits in each part.
type PatientSplit struct {
	True           int
	Persistent     int
	Emerging       int
	Hits           int
	PersistentHits int
	EmergingHits   int
}

func (s PatientSplit) Recall() float64 { return ratio(s.Hits, s.True) }

// PersistentRecall is zero when the patient has no persistent true codes.
func (s PatientSplit) PersistentRecall() float64 { return ratio(s.PersistentHits, s.Persistent) }

// EmergingRecall is zero when the patient has no emerging true codes.
func (s PatientSplit) EmergingRecall() float64 { return ratio(s.EmergingHits, s.Emerging) }

func Split(labels []bool, ranking []int, seen func(code int) bool, k int) PatientSplit {
	var s PatientSplit
	for c, y := range labels {
		if !y {
			continue
		}
		s.True++
		if seen(c) {
			s.Persistent++
		} else {
			s.Emerging++
		}
	}
	for _, c := range ranking[:cutoff(k, len(ranking))] {
		if !labels[c] {
			continue
		}
		s.Hits++
		if seen(c) {
			s.PersistentHits++
		} else {
			s.EmergingHits++
		}
	}
	return s
}

// OccurrenceResult holds persistent@k and emerging@k. Each is averaged over
// the patients whose corresponding true-code subset is non-empty.
type OccurrenceResult struct {
	Ks                 []int
	Persistent         []float64
	Emerging           []float64
	PersistentPatients int
	EmergingPatients   int
}

func Occurrence(labels [][]bool, ranking Ranking, hist Historical, ks []int) (OccurrenceResult, error) {
	if err := checkShape(labels, ranking); err != nil {
		return OccurrenceResult{}, err
	}
	if hist.Patients() != len(labels) {
		return OccurrenceResult{}, fmt.Errorf("%w: history covers %d patients, labels %d", ErrDimension, hist.Patients(), len(labels))
	}
	if len(labels) > 0 && hist.CodeNum() != len(labels[0]) {
		return OccurrenceResult{}, fmt.Errorf("%w: history covers %d codes, labels %d", ErrDimension, hist.CodeNum(), len(labels[0]))
	}

	res := OccurrenceResult{
		Ks:         append([]int(nil), ks...),
		Persistent: make([]float64, len(ks)),
		Emerging:   make([]float64, len(ks)),
	}
	for p, row := range labels {
		seen := func(c int) bool { return hist.Seen(p, c) }
		for i, k := range ks {
			s := Split(row, ranking[p], seen, k)
			if i == 0 {
				if s.Persistent > 0 {
					res.PersistentPatients++
				}
				if s.Emerging > 0 {
					res.EmergingPatients++
				}
			}
			res.Persistent[i] += s.PersistentRecall()
			res.Emerging[i] += s.EmergingRecall()
		}
	}
	for i := range ks {
		res.Persistent[i] = mean(res.Persistent[i], res.PersistentPatients)
		res.Emerging[i] = mean(res.Emerging[i], res.EmergingPatients)
	}
	return res, nil
}
