package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/fetcher"
	"github.com/sells-group/flowlisa/internal/flow"
	"github.com/sells-group/flowlisa/internal/lisa"
	"github.com/sells-group/flowlisa/internal/model"
)

func sampleResult() *model.KResult {
	return &model.KResult{
		Period:    "202203",
		K:         2,
		Threshold: 2.58,
		Flows: []model.FlowResult{
			{
				Index:   0,
				Flow:    model.FlowRecord{Origin: 1, Destination: 2, Zpay: 2, Zpop: 1, OriginCode: "35570", DestCode: "35060"},
				PayLag:  2,
				PopLag:  1,
				BiFlPay: model.Indicator{Raw: 0.5, Sig: 3.1, Defined: true},
				BiFlPop: model.Indicator{Raw: 2, Sig: -0.25, Defined: true},
				ValueP:  model.LabelHH,
				ValueP2: model.LabelNS,
				ValueY:  model.LabelHH,
				ValueY2: model.LabelHH,
			},
			{
				Index:   1,
				Flow:    model.FlowRecord{Origin: 3, Destination: 4, Zpay: -1, Zpop: 0},
				PayLag:  -1,
				PopLag:  0,
				BiFlPay: model.Indicator{Raw: 0, Sig: 0.2, Defined: true},
				ValueP:  model.LabelHL,
				ValueY:  model.LabelLH,
			},
		},
	}
}

func TestKResultFile(t *testing.T) {
	assert.Equal(t, "KNN2_BiFl_PAY_POP_202203.csv", KResultFile(sampleResult(), FormatCSV))
	assert.Equal(t, "KNN2_BiFl_PAY_POP_202203.xlsx", KResultFile(sampleResult(), FormatXLSX))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("parquet")
	assert.Error(t, err)
}

func TestWriteCSV_UndefinedIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, KResultTable(sampleResult()), ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(FlowColumns, ","), lines[0])
	assert.Equal(t, "35570,35060,1,2,2,1,2,1,0.5,2,3.1,-0.25,HH,NS,HH,HH", lines[1])
	assert.Equal(t, ",,3,4,-1,0,-1,0,0,,0.2,,HL,NS,LH,NS", lines[2])
}

func TestWriteCSV_EUCKR(t *testing.T) {
	tbl := &Table{Header: []string{"period", "name"}, Rows: [][]any{{"202203", "고창군"}}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tbl, "euc-kr"))
	assert.NotContains(t, buf.String(), "고창군")

	header, rows, err := fetcher.ReadCSV(context.Background(), &buf, fetcher.CSVOptions{Encoding: "euc-kr"})
	require.NoError(t, err)
	assert.Equal(t, []string{"period", "name"}, header)
	assert.Equal(t, [][]string{{"202203", "고창군"}}, rows)
}

func TestWriteXLSX_ReadsBackAsFlowTable(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, FormatXLSX, "")
	require.NoError(t, err)

	name, err := w.WriteKResult(sampleResult())
	require.NoError(t, err)

	header, rows, err := fetcher.ReadXLSX(filepath.Join(dir, name), fetcher.XLSXOptions{SheetName: "KNN2"})
	require.NoError(t, err)
	assert.Equal(t, FlowColumns, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "HH", rows[0][15])

	tbl, err := flow.LoadPeriod(context.Background(), filepath.Join(dir, "KNN2_BiFl_PAY_POP_{period}.xlsx"), "202203", flow.LoadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "202203", tbl.Period)
	assert.Equal(t, 3, tbl.Flows[1].Origin)
	assert.InDelta(t, 2.0, tbl.Flows[0].Zpay, 1e-12)
}

func TestWriter_HistogramAlwaysCSV(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, FormatXLSX, "")
	require.NoError(t, err)

	name, err := w.WriteHistogram([]model.HistogramRow{
		{Period: "202203", Category: model.LabelHH, K: 1},
		{Period: "202203", Category: model.LabelLL, K: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "histogram.csv", name)

	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, "period,category,k\n202203,HH,1\n202203,LL,2\n", string(b))
}

func TestWriteRun_Manifest(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(filepath.Join(dir, "out"), FormatCSV, "")
	require.NoError(t, err)

	k3 := sampleResult()
	k3.K = 3
	sr := &lisa.SensitivityResult{
		Branch:  model.BranchPay,
		Results: []*model.KResult{sampleResult(), k3},
		Skipped: []model.SkippedK{{Period: "202203", K: 4, Reason: "degenerate_statistic k=4"}},
	}
	params := model.RunParams{Periods: []string{"202203"}, KMin: 2, KMax: 4, Threshold: 2.58, Branch: model.BranchPay}

	m, err := w.WriteRun("run-1", params, sr)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"KNN2_BiFl_PAY_POP_202203.csv",
		"KNN3_BiFl_PAY_POP_202203.csv",
		"sensitivity.csv",
		"histogram.csv",
	}, m.Files)

	for _, f := range m.Files {
		_, err := os.Stat(filepath.Join(w.Dir(), f))
		assert.NoError(t, err, f)
	}

	got, err := ReadManifest(filepath.Join(w.Dir(), ManifestName))
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, params, got.Params)
	require.Len(t, got.Passes, 2)
	assert.Equal(t, 1, got.Passes[0].Counts["HH"])
	assert.Equal(t, 1, got.Passes[0].Counts["NS"])
	assert.Equal(t, 0, got.Passes[0].Counts["LL"])
	assert.Equal(t, sr.Skipped, got.Skipped)

	sens, err := os.ReadFile(filepath.Join(w.Dir(), "sensitivity.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(sens), "202203,2,HH,1\n")
	assert.Contains(t, string(sens), "202203,3,LL,0\n")
}
