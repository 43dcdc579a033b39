package fetcher

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	err := f.Save(path)
	require.NoError(t, err)
	return path
}

func TestReadXLSX_HeaderAndRows(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"num_x", "num_y", "Zpay_P"},
			{"1", "2", " 0.5 "},
			{"2", "1"},
			{"", "", ""},
		},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"num_x", "num_y", "Zpay_P"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2", "0.5"}, rows[0])
	assert.Equal(t, []string{"2", "1", ""}, rows[1])
}

func TestReadXLSX_SheetByName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Units": {{"id", "x", "y"}, {"1", "0", "0"}},
	})

	header, rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Units"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x", "y"}, header)
	assert.Len(t, rows, 1)

	_, _, err = ReadXLSX(path, XLSXOptions{SheetName: "Flows"})
	assert.ErrorContains(t, err, "not found")
}

func TestReadXLSX_Errors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Empty": {}})

	_, _, err := ReadXLSX(path, XLSXOptions{})
	assert.ErrorContains(t, err, "missing header")

	_, _, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, _, err = ReadXLSX(filepath.Join(t.TempDir(), "nope.xlsx"), XLSXOptions{})
	assert.ErrorContains(t, err, "open file")
}
