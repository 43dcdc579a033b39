package registry

import (
	"context"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
)

// ReadCSV reads centroids from a CSV with columns x and y, plus the configured
// id / code / name columns.
func ReadCSV(ctx context.Context, path string, opts LoadOptions) ([]model.SpatialUnit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: open csv %s", path)
	}
	defer f.Close()

	header, rows, err := fetcher.ReadCSV(ctx, f, fetcher.CSVOptions{Encoding: opts.Encoding, TrimSpace: true})
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read csv %s", path)
	}

	idx := fetcher.NewHeaderIndex(header)
	pos, err := idx.Require("x", "y")
	if err != nil {
		return nil, model.NewConfigurationError(-1, "registry: %s: %v", path, err)
	}
	column := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		p, ok := idx[name]
		if !ok {
			return -1, model.NewConfigurationError(-1, "registry: %s has no column %q", path, name)
		}
		return p, nil
	}
	idCol, err := column(opts.IDField)
	if err != nil {
		return nil, err
	}
	codeCol, err := column(opts.CodeField)
	if err != nil {
		return nil, err
	}
	nameCol, err := column(opts.NameField)
	if err != nil {
		return nil, err
	}

	cell := func(row []string, col int) string {
		if col < 0 || col >= len(row) {
			return ""
		}
		return row[col]
	}

	units := make([]model.SpatialUnit, 0, len(rows))
	for i, row := range rows {
		id, err := parseID(cell(row, idCol), opts.IDField, i+1)
		if err != nil {
			return nil, err
		}
		x, xerr := strconv.ParseFloat(cell(row, pos[0]), 64)
		y, yerr := strconv.ParseFloat(cell(row, pos[1]), 64)
		if xerr != nil || yerr != nil {
			return nil, model.NewDataIntegrityError(-1, "registry: row %d (unit %d) has no resolvable centroid", i+1, id)
		}
		units = append(units, model.SpatialUnit{
			ID:   id,
			Code: cell(row, codeCol),
			Name: cell(row, nameCol),
			X:    x,
			Y:    y,
		})
	}
	return units, nil
}
