package lisa

import (
	"github.com/sells-group/flowlisa/internal/model"
)

// Aggregate counts each cluster label on branch for every (period, k),
// zero counts included. Results are reported in period, k order.
func Aggregate(results []*model.KResult, branch model.Branch) []model.SensitivityRecord {
	rs := append([]*model.KResult(nil), results...)
	sortResults(rs)

	out := make([]model.SensitivityRecord, 0, len(rs)*len(model.Labels))
	for _, r := range rs {
		counts := make([]int, len(model.Labels))
		for _, f := range r.Flows {
			counts[f.Label(branch)]++
		}
		for _, l := range model.Labels {
			out = append(out, model.SensitivityRecord{Period: r.Period, K: r.K, Label: l, Count: counts[l]})
		}
	}
	return out
}

// HistogramRows expands significant flows on branch into one
// (period, category, k) row each, the long form a stacked histogram expects.
func HistogramRows(results []*model.KResult, branch model.Branch) []model.HistogramRow {
	rs := append([]*model.KResult(nil), results...)
	sortResults(rs)

	var out []model.HistogramRow
	for _, r := range rs {
		for _, f := range r.Flows {
			if l := f.Label(branch); l.Significant() {
				out = append(out, model.HistogramRow{Period: r.Period, Category: l, K: r.K})
			}
		}
	}
	return out
}
