package metrics

// TopKResult averages precision@k and recall@k over patients with at least
// one true code. Precision divides by min(k, vocabulary).
type TopKResult struct {
	Ks        []int
	Precision []float64
	Recall    []float64
	Patients  int
}

func TopK(labels [][]bool, ranking Ranking, ks []int) (TopKResult, error) {
	if err := checkShape(labels, ranking); err != nil {
		return TopKResult{}, err
	}
	res := TopKResult{
		Ks:        append([]int(nil), ks...),
		Precision: make([]float64, len(ks)),
		Recall:    make([]float64, len(ks)),
	}
	for p, row := range labels {
		n := trueCount(row)
		if n == 0 {
			continue
		}
		res.Patients++
		for i, k := range ks {
			top := ranking.Top(p, k)
			hits := 0
			for _, c := range top {
				if row[c] {
					hits++
				}
			}
			res.Precision[i] += ratio(hits, len(top))
			res.Recall[i] += ratio(hits, n)
		}
	}
	for i := range ks {
		res.Precision[i] = mean(res.Precision[i], res.Patients)
		res.Recall[i] = mean(res.Recall[i], res.Patients)
	}
	return res, nil
}
