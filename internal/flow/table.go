// Package flow loads OD flow tables and computes flow-level neighborhoods and spatial lags.
package flow

import (
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
)

// PeriodPlaceholder is replaced by the period in flow table path patterns.
const PeriodPlaceholder = "{period}"

// Columns names the flow table fields.
type Columns struct {
	Origin      string
	Destination string
	Pay         string
	Pop         string
}

// DefaultColumns matches the canonical standardized OD table.
var DefaultColumns = Columns{Origin: "num_x", Destination: "num_y", Pay: "Zpay_P", Pop: "Zpop_P"}

// Administrative code columns carried through when present.
const (
	originCodeColumn = "O"
	destCodeColumn   = "D"
)

// LoadOptions configures flow table parsing.
type LoadOptions struct {
	Columns  Columns
	Encoding string
}

// PathFor expands a flow table path pattern for one period.
func PathFor(pattern, period string) string {
	return strings.ReplaceAll(pattern, PeriodPlaceholder, period)
}

// LoadPeriod reads the flow table for period from the expanded pattern.
// Paths ending in .xlsx are read from the first worksheet; anything else is CSV.
func LoadPeriod(ctx context.Context, pattern, period string, opts LoadOptions) (*model.FlowTable, error) {
	path := PathFor(pattern, period)

	var (
		table *model.FlowTable
		err   error
	)
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		table, err = readXLSX(path, opts)
	} else {
		table, err = readFile(ctx, path, opts)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "flow: read %s", path)
	}
	table.Period = period
	return table, nil
}

func readFile(ctx context.Context, path string, opts LoadOptions) (*model.FlowTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "flow: open %s", path)
	}
	defer f.Close()
	return Read(ctx, f, opts)
}

func readXLSX(path string, opts LoadOptions) (*model.FlowTable, error) {
	header, rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	return parseRows(header, rows, opts)
}

// Read parses a flow table from CSV.
func Read(ctx context.Context, r io.Reader, opts LoadOptions) (*model.FlowTable, error) {
	header, rows, err := fetcher.ReadCSV(ctx, r, fetcher.CSVOptions{Encoding: opts.Encoding, TrimSpace: true})
	if err != nil {
		return nil, err
	}
	return parseRows(header, rows, opts)
}

func parseRows(header []string, rows [][]string, opts LoadOptions) (*model.FlowTable, error) {
	cols := opts.Columns
	if cols == (Columns{}) {
		cols = DefaultColumns
	}

	idx := fetcher.NewHeaderIndex(header)
	pos, err := idx.Require(cols.Origin, cols.Destination, cols.Pay, cols.Pop)
	if err != nil {
		return nil, model.NewConfigurationError(-1, "flow: %v", err)
	}
	oCode, hasOCode := idx[originCodeColumn]
	dCode, hasDCode := idx[destCodeColumn]

	flows := make([]model.FlowRecord, 0, len(rows))
	for i, row := range rows {
		if len(row) < len(header) {
			return nil, model.NewDataIntegrityError(i, "flow: row %d has %d fields, header has %d", i+1, len(row), len(header))
		}
		origin, err := parseUnitID(row[pos[0]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: row %d %s: %v", i+1, cols.Origin, err)
		}
		dest, err := parseUnitID(row[pos[1]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: row %d %s: %v", i+1, cols.Destination, err)
		}
		pay, err := parseValue(row[pos[2]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: row %d %s: %v", i+1, cols.Pay, err)
		}
		pop, err := parseValue(row[pos[3]])
		if err != nil {
			return nil, model.NewDataIntegrityError(i, "flow: row %d %s: %v", i+1, cols.Pop, err)
		}

		rec := model.FlowRecord{Origin: origin, Destination: dest, Zpay: pay, Zpop: pop}
		if hasOCode {
			rec.OriginCode = row[oCode]
		}
		if hasDCode {
			rec.DestCode = row[dCode]
		}
		flows = append(flows, rec)
	}

	return &model.FlowTable{Flows: flows}, nil
}

func parseUnitID(s string) (int, error) {
	if id, err := strconv.Atoi(s); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, eris.Errorf("invalid unit id %q", s)
	}
	return int(f), nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// Validate checks that the table has flows and that every referenced unit exists.
func Validate(table *model.FlowTable, reg *registry.Registry) error {
	if table.Len() == 0 {
		return model.NewConfigurationError(-1, "flow: period %q has no flows", table.Period)
	}
	for i, f := range table.Flows {
		if !reg.Contains(f.Origin) {
			return model.NewDataIntegrityError(i, "flow: origin unit %d is not in the registry", f.Origin)
		}
		if !reg.Contains(f.Destination) {
			return model.NewDataIntegrityError(i, "flow: destination unit %d is not in the registry", f.Destination)
		}
	}
	return nil
}
