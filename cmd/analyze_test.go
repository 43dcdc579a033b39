package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/flowlisa/internal/config"
	"github.com/sells-group/flowlisa/internal/export"
	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/store"
)

// testConfig writes a four-unit rectangle registry and one period of flows into dir.
func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()

	units := "id,code,x,y\n1,11010,0,0\n2,11020,1,0\n3,11030,0,2\n4,11040,1,2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "units.csv"), []byte(units), 0o644))

	flows := strings.Join([]string{
		"num_x,num_y,Zpay_P,Zpop_P",
		"1,2,1.2,0.4",
		"2,1,-0.7,1.1",
		"1,3,0.3,-1.5",
		"3,4,-1.1,-0.2",
		"4,3,2.0,0.9",
		"2,4,-0.4,0.6",
		"4,1,0.8,-0.8",
		"3,2,-2.1,-0.5",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flows_202203.csv"), []byte(flows), 0o644))

	return &config.Config{
		Analysis: config.AnalysisConfig{KMin: 1, KMax: 2, Threshold: 2.58, Periods: []string{"202203"}, Branch: "pay"},
		Input: config.InputConfig{
			UnitsPath:    filepath.Join(dir, "units.csv"),
			UnitsIDField: "id",
			UnitsCode:    "code",
			FlowsPattern: filepath.Join(dir, "flows_{period}.csv"),
			Encoding:     "utf-8",
			Columns:      config.ColumnConfig{Origin: "num_x", Destination: "num_y", Pay: "Zpay_P", Pop: "Zpop_P"},
		},
		Compute: config.ComputeConfig{Concurrency: 2, LagMethod: "algebraic", Index: "brute"},
		Output:  config.OutputConfig{Dir: filepath.Join(dir, "out"), Format: "csv", Encoding: "utf-8"},
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(dir, "runs.db")},
		Server:  config.ServerConfig{Port: 8080},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestRunAnalyze_WritesOutputsAndStore(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	cfg = c
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runAnalyze(ctx, c, &out))

	for _, name := range []string{
		"KNN1_BiFl_PAY_POP_202203.csv",
		"KNN2_BiFl_PAY_POP_202203.csv",
		"sensitivity.csv",
		"histogram.csv",
		export.ManifestName,
	} {
		assert.FileExists(t, filepath.Join(c.Output.Dir, name))
	}

	m, err := export.ReadManifest(filepath.Join(c.Output.Dir, export.ManifestName))
	require.NoError(t, err)
	require.Len(t, m.Passes, 2)
	assert.Equal(t, 8, m.Passes[0].Flows)
	assert.Contains(t, out.String(), m.RunID)

	st, err := store.Open(ctx, store.DriverSQLite, c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.GetRun(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 4, run.Params.Units)

	recs, err := st.GetSensitivity(ctx, m.RunID)
	require.NoError(t, err)
	assert.Len(t, recs, 2*len(model.Labels))
	total := 0
	for _, r := range recs {
		if r.K == 1 {
			total += r.Count
		}
	}
	assert.Equal(t, 8, total)

	flows, err := st.GetFlowResults(ctx, m.RunID, "202203", 2)
	require.NoError(t, err)
	assert.Len(t, flows, 8)

	units, err := st.GetUnits(ctx, m.RunID)
	require.NoError(t, err)
	assert.Len(t, units, 4)
}

func TestRunAnalyze_NoStore(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	c.Store = config.StoreConfig{Driver: "none"}
	c.Output.Format = "xlsx"
	cfg = c

	require.NoError(t, runAnalyze(context.Background(), c, &bytes.Buffer{}))
	assert.FileExists(t, filepath.Join(c.Output.Dir, "KNN1_BiFl_PAY_POP_202203.xlsx"))
	assert.FileExists(t, filepath.Join(c.Output.Dir, "sensitivity.xlsx"))
	assert.NoFileExists(t, filepath.Join(dir, "runs.db"))
}

func TestRunAnalyze_FailedRunIsRecorded(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	c.Analysis.KMax = 9 // beyond n-1 for four units
	cfg = c
	ctx := context.Background()

	err := runAnalyze(ctx, c, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindConfiguration))

	st, err := store.Open(ctx, store.DriverSQLite, c.Store.DatabaseURL)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, store.RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].Error)
}

func TestRunAnalyze_MissingPeriod(t *testing.T) {
	dir := t.TempDir()
	c := testConfig(t, dir)
	c.Analysis.Periods = []string{"202299"}
	cfg = c

	err := runAnalyze(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "202299")
}

func TestApplyAnalyzeFlags(t *testing.T) {
	c := testConfig(t, t.TempDir())

	cmd := &cobra.Command{}
	addAnalyzeFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--k-max", "3", "--branch", "pop", "--period", "202201,202202"}))

	require.NoError(t, applyAnalyzeFlags(cmd, c))
	assert.Equal(t, 3, c.Analysis.KMax)
	assert.Equal(t, "pop", c.Analysis.Branch)
	assert.Equal(t, []string{"202201", "202202"}, c.Analysis.Periods)
	assert.Equal(t, 1, c.Analysis.KMin)

	bad := &cobra.Command{}
	addAnalyzeFlags(bad)
	require.NoError(t, bad.Flags().Parse([]string{"--branch", "both"}))
	assert.Error(t, applyAnalyzeFlags(bad, testConfig(t, t.TempDir())))
}

func TestAnalysisOptions_RejectsUnknownIndex(t *testing.T) {
	c := testConfig(t, t.TempDir())
	c.Compute.Index = "rtree"
	_, err := analysisOptions(c)
	assert.Error(t, err)
}
