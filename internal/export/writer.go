package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/model"
)

// Format selects the table file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name; empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// Writer writes tables into one output directory.
type Writer struct {
	dir      string
	format   Format
	encoding string
}

// NewWriter creates dir if needed. encoding applies to CSV output only.
func NewWriter(dir string, format Format, encoding string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "export: create %s", dir)
	}
	if format == "" {
		format = FormatCSV
	}
	return &Writer{dir: dir, format: format, encoding: encoding}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// KResultFile names a per-k result file.
func KResultFile(r *model.KResult, format Format) string {
	return "KNN" + strconv.Itoa(r.K) + "_BiFl_PAY_POP_" + r.Period + "." + string(format)
}

// WriteKResult writes one pass and returns the file name relative to the directory.
func (w *Writer) WriteKResult(r *model.KResult) (string, error) {
	name := KResultFile(r, w.format)
	return name, w.writeTable(name, w.format, KResultTable(r))
}

// WriteSensitivity writes the label count table.
func (w *Writer) WriteSensitivity(records []model.SensitivityRecord) (string, error) {
	name := "sensitivity." + string(w.format)
	return name, w.writeTable(name, w.format, SensitivityTable(records))
}

// WriteHistogram writes the long-form histogram table, always as CSV.
func (w *Writer) WriteHistogram(rows []model.HistogramRow) (string, error) {
	name := "histogram.csv"
	return name, w.writeTable(name, FormatCSV, HistogramTable(rows))
}

func (w *Writer) writeTable(name string, format Format, t *Table) error {
	path := filepath.Join(w.dir, name)
	var err error
	switch format {
	case FormatXLSX:
		err = WriteXLSX(path, t)
	default:
		err = w.writeCSVFile(path, t)
	}
	if err != nil {
		return err
	}
	zap.L().Debug("export: wrote table", zap.String("path", path), zap.Int("rows", len(t.Rows)))
	return nil
}

func (w *Writer) writeCSVFile(path string, t *Table) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := WriteCSV(f, t, w.encoding); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "export: write %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// WriteCSV encodes t as CSV in the given charset.
func WriteCSV(out io.Writer, t *Table, encoding string) error {
	ew, err := fetcher.EncodeWriter(out, encoding)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(ew)
	if err := cw.Write(t.Header); err != nil {
		return eris.Wrap(err, "export: csv header")
	}
	rec := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, v := range row {
			rec[i] = formatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "export: csv row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return eris.Wrap(err, "export: csv flush")
	}
	return eris.Wrap(ew.Close(), "export: csv encoder")
}

// WriteXLSX saves t as a single-sheet workbook with numeric cells kept numeric.
func WriteXLSX(path string, t *Table) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName(t.Name))
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range t.Header {
		header.AddCell().SetString(h)
	}
	for _, row := range t.Rows {
		r := sheet.AddRow()
		for _, v := range row {
			c := r.AddCell()
			switch x := v.(type) {
			case nil:
			case string:
				c.SetString(x)
			case int:
				c.SetInt(x)
			case float64:
				c.SetFloat(x)
			}
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

// Excel caps sheet names at 31 characters.
func sheetName(s string) string {
	if s == "" {
		return "Sheet1"
	}
	if len(s) > 31 {
		return s[:31]
	}
	return s
}
