package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/config"
	"github.com/sells-group/flowlisa/internal/export"
	"github.com/sells-group/flowlisa/internal/flow"
	"github.com/sells-group/flowlisa/internal/lisa"
	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/registry"
	"github.com/sells-group/flowlisa/internal/store"
	"github.com/sells-group/flowlisa/internal/weights"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the k sweep over every configured period",
	Long:  "Loads the unit registry and one flow table per period, classifies every flow for each k in the configured range, and writes per-k tables, the sensitivity table and a manifest.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := applyAnalyzeFlags(cmd, cfg); err != nil {
			return err
		}
		return runAnalyze(cmd.Context(), cfg, os.Stdout)
	},
}

func init() {
	addAnalyzeFlags(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func addAnalyzeFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("period", nil, "periods to analyze (default from config)")
	cmd.Flags().Int("k-min", 0, "smallest neighborhood size (default from config)")
	cmd.Flags().Int("k-max", 0, "largest neighborhood size (default from config)")
	cmd.Flags().Float64("threshold", 0, "significance threshold on |sig| (default from config)")
	cmd.Flags().String("branch", "", "branch tabulated in the sensitivity table: pay or pop")
	cmd.Flags().String("out", "", "output directory (default from config)")
	cmd.Flags().String("format", "", "output format: csv or xlsx")
}

// applyAnalyzeFlags overrides config values with explicitly set flags.
func applyAnalyzeFlags(cmd *cobra.Command, c *config.Config) error {
	f := cmd.Flags()
	if f.Changed("period") {
		c.Analysis.Periods, _ = f.GetStringSlice("period")
	}
	if f.Changed("k-min") {
		c.Analysis.KMin, _ = f.GetInt("k-min")
	}
	if f.Changed("k-max") {
		c.Analysis.KMax, _ = f.GetInt("k-max")
	}
	if f.Changed("threshold") {
		c.Analysis.Threshold, _ = f.GetFloat64("threshold")
	}
	if f.Changed("branch") {
		c.Analysis.Branch, _ = f.GetString("branch")
	}
	if f.Changed("out") {
		c.Output.Dir, _ = f.GetString("out")
	}
	if f.Changed("format") {
		c.Output.Format, _ = f.GetString("format")
	}
	return c.Validate()
}

// analysisOptions translates config into lisa options.
func analysisOptions(c *config.Config) (lisa.Options, error) {
	index, err := weights.ParseIndex(c.Compute.Index)
	if err != nil {
		return lisa.Options{}, err
	}
	method, err := flow.ParseMethod(c.Compute.LagMethod)
	if err != nil {
		return lisa.Options{}, err
	}
	return lisa.Options{
		KMin:        c.Analysis.KMin,
		KMax:        c.Analysis.KMax,
		Threshold:   c.Analysis.Threshold,
		Branch:      model.Branch(c.Analysis.Branch),
		Index:       index,
		LagMethod:   method,
		Concurrency: c.Compute.Concurrency,
	}, nil
}

func registryOptions(c *config.Config) registry.LoadOptions {
	return registry.LoadOptions{
		Format:    c.Input.UnitsFormat,
		IDField:   c.Input.UnitsIDField,
		CodeField: c.Input.UnitsCode,
		NameField: c.Input.UnitsName,
		Encoding:  c.Input.Encoding,
	}
}

func flowOptions(c *config.Config) flow.LoadOptions {
	return flow.LoadOptions{
		Columns: flow.Columns{
			Origin:      c.Input.Columns.Origin,
			Destination: c.Input.Columns.Destination,
			Pay:         c.Input.Columns.Pay,
			Pop:         c.Input.Columns.Pop,
		},
		Encoding: c.Input.Encoding,
	}
}

// runAnalyze executes a full sensitivity run and prints a per-pass summary to out.
func runAnalyze(ctx context.Context, c *config.Config, out io.Writer) error {
	opts, err := analysisOptions(c)
	if err != nil {
		return err
	}
	format, err := export.ParseFormat(c.Output.Format)
	if err != nil {
		return err
	}

	reg, err := registry.Load(ctx, c.Input.UnitsPath, registryOptions(c))
	if err != nil {
		return eris.Wrap(err, "analyze: load units")
	}

	tables := make([]*model.FlowTable, 0, len(c.Analysis.Periods))
	for _, period := range c.Analysis.Periods {
		t, err := flow.LoadPeriod(ctx, c.Input.FlowsPattern, period, flowOptions(c))
		if err != nil {
			return eris.Wrapf(err, "analyze: load flows for %s", period)
		}
		tables = append(tables, t)
	}

	params := model.RunParams{
		Periods:   c.Analysis.Periods,
		KMin:      opts.KMin,
		KMax:      opts.KMax,
		Threshold: opts.Threshold,
		Branch:    opts.Branch,
		UnitsPath: c.Input.UnitsPath,
		Units:     reg.Len(),
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	runID := uuid.New().String()
	if st != nil {
		defer st.Close() //nolint:errcheck
		run, err := st.CreateRun(ctx, params)
		if err != nil {
			return err
		}
		runID = run.ID
	}

	sr, err := executeRun(ctx, st, runID, reg, tables, opts)
	if err != nil {
		if st != nil {
			if ferr := st.FinishRun(ctx, runID, model.RunStatusFailed, nil, err.Error()); ferr != nil {
				zap.L().Warn("analyze: record failed run", zap.String("run_id", runID), zap.Error(ferr))
			}
		}
		return err
	}

	w, err := export.NewWriter(c.Output.Dir, format, c.Output.Encoding)
	if err != nil {
		return err
	}
	m, err := w.WriteRun(runID, params, sr)
	if err != nil {
		return err
	}

	if st != nil {
		if err := st.FinishRun(ctx, runID, model.RunStatusComplete, sr.Skipped, ""); err != nil {
			return err
		}
	}

	formatManifest(out, m)
	return nil
}

// executeRun computes the sweep and persists results when a store is configured.
func executeRun(ctx context.Context, st store.Store, runID string, reg *registry.Registry, tables []*model.FlowTable, opts lisa.Options) (*lisa.SensitivityResult, error) {
	sr, err := lisa.RunSensitivity(ctx, reg, tables, opts)
	if err != nil {
		return nil, err
	}
	for _, s := range sr.Skipped {
		zap.L().Warn("analyze: k skipped",
			zap.String("period", s.Period),
			zap.Int("k", s.K),
			zap.String("reason", s.Reason),
		)
	}
	if st == nil {
		return sr, nil
	}

	if err := st.SaveUnits(ctx, runID, reg.Units()); err != nil {
		return nil, err
	}
	for _, r := range sr.Results {
		if err := st.SaveKResult(ctx, runID, r); err != nil {
			return nil, err
		}
	}
	if err := st.SaveSensitivity(ctx, runID, sr.Records()); err != nil {
		return nil, err
	}
	return sr, nil
}

// formatManifest writes a per-pass summary table to w.
func formatManifest(out io.Writer, m *export.Manifest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", m.RunID)
	_, _ = fmt.Fprintf(w, "Branch:\t%s\n\n", m.Params.Branch)
	_, _ = fmt.Fprintln(w, "PERIOD\tK\tFLOWS\tHH\tHL\tLH\tLL\tNS\tUNDEFINED\tFILE")
	_, _ = fmt.Fprintln(w, "------\t-\t-----\t--\t--\t--\t--\t--\t---------\t----")
	for _, p := range m.Passes {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d", p.Period, p.K, p.Flows)
		for _, l := range model.Labels {
			_, _ = fmt.Fprintf(w, "\t%d", p.Counts[l.String()])
		}
		_, _ = fmt.Fprintf(w, "\t%d\t%s\n", p.Undefined, p.File)
	}
	for _, s := range m.Skipped {
		_, _ = fmt.Fprintf(w, "%s\t%d\tskipped: %s\n", s.Period, s.K, s.Reason)
	}
	_ = w.Flush()
}
