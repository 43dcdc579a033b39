// Package export writes analysis results as CSV or XLSX tables plus a YAML run manifest.
package export

import (
	"strconv"

	"github.com/sells-group/flowlisa/internal/model"
)

// Table is a header plus rows of string, int, float64 or nil cells.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// FlowColumns is the per-k result table header.
var FlowColumns = []string{
	"O", "D", "num_x", "num_y", "Zpay_P", "Zpop_P",
	"pay_lag", "pop_lag",
	"BiFl_PAY", "BiFl_POP", "BiFl_PAYsig", "BiFl_POPsig",
	"value_P", "value_P2", "value_Y", "value_Y2",
}

// KResultTable renders one pass. Undefined indicators are empty cells.
func KResultTable(r *model.KResult) *Table {
	t := &Table{Name: "KNN" + strconv.Itoa(r.K), Header: FlowColumns, Rows: make([][]any, 0, len(r.Flows))}
	for _, f := range r.Flows {
		t.Rows = append(t.Rows, []any{
			f.Flow.OriginCode, f.Flow.DestCode, f.Flow.Origin, f.Flow.Destination,
			f.Flow.Zpay, f.Flow.Zpop,
			f.PayLag, f.PopLag,
			raw(f.BiFlPay), raw(f.BiFlPop), sig(f.BiFlPay), sig(f.BiFlPop),
			f.ValueP.String(), f.ValueP2.String(), f.ValueY.String(), f.ValueY2.String(),
		})
	}
	return t
}

func raw(ind model.Indicator) any {
	if !ind.Defined {
		return nil
	}
	return ind.Raw
}

func sig(ind model.Indicator) any {
	if !ind.Defined {
		return nil
	}
	return ind.Sig
}

// SensitivityTable renders label counts per (period, k).
func SensitivityTable(records []model.SensitivityRecord) *Table {
	t := &Table{Name: "sensitivity", Header: []string{"period", "k", "category", "count"}}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{r.Period, r.K, r.Label.String(), r.Count})
	}
	return t
}

// HistogramTable renders one row per significant flow.
func HistogramTable(rows []model.HistogramRow) *Table {
	t := &Table{Name: "histogram", Header: []string{"period", "category", "k"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []any{r.Period, r.Category.String(), r.K})
	}
	return t
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return ""
	}
}
