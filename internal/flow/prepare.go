package flow

import (
	"context"
	"encoding/csv"
	"io"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
)

// PrepareOptions configures Prepare.
type PrepareOptions struct {
	Period   string
	Codes    []string // empty keeps every flow
	Encoding string
	Columns  Columns // output z-score column names
}

// Prepared is a standardized OD table ready to be written.
type Prepared struct {
	Header []string
	Rows   [][]string
	Kept   int
	Total  int
}

// Raw column names in merged OD tables.
const (
	rawPayPrefix = "PAY_"
	rawPopPrefix = "POP_"
	rawKeyColumn = "CODE"
)

// Prepare restricts a raw merged OD table to flows whose origin and
// destination codes are both in opts.Codes, then appends z-scores of the
// period's PAY and POP columns using the sample standard deviation. The OD
// key column is dropped.
func Prepare(ctx context.Context, r io.Reader, opts PrepareOptions) (*Prepared, error) {
	if opts.Period == "" {
		return nil, model.NewConfigurationError(-1, "flow: prepare requires a period")
	}
	cols := opts.Columns
	if cols == (Columns{}) {
		cols = DefaultColumns
	}

	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Encoding: opts.Encoding, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "flow: prepare read")
	}
	idx := fetcher.NewHeaderIndex(header)
	payCol, popCol := rawPayPrefix+opts.Period, rawPopPrefix+opts.Period
	pos, err := idx.Require(originCodeColumn, destCodeColumn, payCol, popCol)
	if err != nil {
		return nil, model.NewConfigurationError(-1, "flow: prepare: %v", err)
	}

	keep := make(map[string]struct{}, len(opts.Codes))
	for _, c := range opts.Codes {
		keep[c] = struct{}{}
	}
	inScope := func(code string) bool {
		if len(keep) == 0 {
			return true
		}
		_, ok := keep[code]
		return ok
	}

	var (
		kept     [][]string
		pay, pop []float64
	)
	for i, row := range rows {
		if len(row) < len(header) {
			return nil, model.NewDataIntegrityError(i, "flow: prepare row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		if !inScope(row[pos[0]]) || !inScope(row[pos[1]]) {
			continue
		}
		p, err := parseValue(row[pos[2]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: prepare row %d %s: %v", i+1, payCol, err)
		}
		q, err := parseValue(row[pos[3]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: prepare row %d %s: %v", i+1, popCol, err)
		}
		kept = append(kept, row)
		pay = append(pay, p)
		pop = append(pop, q)
	}
	if len(kept) == 0 {
		return nil, model.NewConfigurationError(-1, "flow: period %q has no flows within the configured codes", opts.Period)
	}

	zpay, err := zscores(pay, model.AttributePay)
	if err != nil {
		return nil, err
	}
	zpop, err := zscores(pop, model.AttributePop)
	if err != nil {
		return nil, err
	}

	drop, hasKey := idx[rawKeyColumn]
	out := &Prepared{Total: len(rows), Kept: len(kept)}
	for i, h := range header {
		if hasKey && i == drop {
			continue
		}
		out.Header = append(out.Header, h)
	}
	out.Header = append(out.Header, cols.Pay, cols.Pop)

	for i, row := range kept {
		rec := make([]string, 0, len(out.Header))
		for j, v := range row[:len(header)] {
			if hasKey && j == drop {
				continue
			}
			rec = append(rec, v)
		}
		rec = append(rec, formatFloat(zpay[i]), formatFloat(zpop[i]))
		out.Rows = append(out.Rows, rec)
	}

	zap.L().Info("flow: prepared table",
		zap.String("period", opts.Period),
		zap.Int("total", out.Total),
		zap.Int("kept", out.Kept),
	)
	return out, nil
}

func zscores(x []float64, attr model.Attribute) ([]float64, error) {
	if len(x) < 2 {
		return nil, model.NewDegenerateStatisticError(-1, attr, "flow: %d values, need at least 2", len(x))
	}
	mean, std := stat.MeanStdDev(x, nil)
	if std == 0 {
		return nil, model.NewDegenerateStatisticError(-1, attr, "flow: zero standard deviation")
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write encodes the prepared table as CSV in the given charset.
func (p *Prepared) Write(w io.Writer, encoding string) error {
	ew, err := fetcher.EncodeWriter(w, encoding)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(ew)
	if err := cw.Write(p.Header); err != nil {
		return eris.Wrap(err, "flow: write header")
	}
	if err := cw.WriteAll(p.Rows); err != nil {
		return eris.Wrap(err, "flow: write rows")
	}
	return eris.Wrap(ew.Close(), "flow: flush encoder")
}

// CodesFromColumn collects distinct values of column from a code mapping
// table, keeping rows whose match column equals one of names.
func CodesFromColumn(ctx context.Context, r io.Reader, encoding, match, column string, names []string) ([]string, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Encoding: encoding, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrap(err, "flow: read code table")
	}
	pos, err := fetcher.NewHeaderIndex(header).Require(match, column)
	if err != nil {
		return nil, model.NewConfigurationError(-1, "flow: code table: %v", err)
	}
	var out []string
	for _, row := range rows {
		if len(row) <= max(pos[0], pos[1]) {
			continue
		}
		if slices.Contains(names, row[pos[0]]) && !slices.Contains(out, row[pos[1]]) {
			out = append(out, row[pos[1]])
		}
	}
	return out, nil
}
