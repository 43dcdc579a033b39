package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/flowlisa/internal/model"
	"github.com/sells-group/flowlisa/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored analysis runs",
	Long:  "Commands for listing runs and viewing their sensitivity tables.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List analysis runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its sensitivity table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := requireStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		recs, err := st.GetSensitivity(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				*model.Run
				Sensitivity []model.SensitivityRecord `json:"sensitivity"`
			}{run, recs})
		}

		formatRun(os.Stdout, run)
		fmt.Fprintln(os.Stdout)
		formatSensitivity(os.Stdout, recs)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().Bool("json", false, "print the run as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPERIODS\tK\tBRANCH\tSTATUS\tSKIPPED\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-------\t-\t------\t------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d-%d\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			periodsLabel(r.Params.Periods),
			r.Params.KMin, r.Params.KMax,
			r.Params.Branch,
			r.Status,
			len(r.Skipped),
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

func formatRun(out io.Writer, r *model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Periods:\t%s\n", periodsLabel(r.Params.Periods))
	_, _ = fmt.Fprintf(w, "K range:\t%d-%d\n", r.Params.KMin, r.Params.KMax)
	_, _ = fmt.Fprintf(w, "Threshold:\t%g\n", r.Params.Threshold)
	_, _ = fmt.Fprintf(w, "Branch:\t%s\n", r.Params.Branch)
	_, _ = fmt.Fprintf(w, "Units:\t%d (%s)\n", r.Params.Units, r.Params.UnitsPath)
	for _, s := range r.Skipped {
		_, _ = fmt.Fprintf(w, "Skipped:\t%s k=%d: %s\n", s.Period, s.K, s.Reason)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", r.Error)
	}
	_ = w.Flush()
}

// formatSensitivity pivots the records to one row per (period, k).
func formatSensitivity(out io.Writer, recs []model.SensitivityRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PERIOD\tK\tHH\tHL\tLH\tLL\tNS")
	_, _ = fmt.Fprintln(w, "------\t-\t--\t--\t--\t--\t--")

	type key struct {
		period string
		k      int
	}
	var order []key
	counts := make(map[key]map[model.ClusterLabel]int)
	for _, r := range recs {
		kk := key{r.Period, r.K}
		if counts[kk] == nil {
			counts[kk] = make(map[model.ClusterLabel]int, len(model.Labels))
			order = append(order, kk)
		}
		counts[kk][r.Label] = r.Count
	}
	for _, kk := range order {
		_, _ = fmt.Fprintf(w, "%s\t%d", kk.period, kk.k)
		for _, l := range model.Labels {
			_, _ = fmt.Fprintf(w, "\t%d", counts[kk][l])
		}
		_, _ = fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func periodsLabel(periods []string) string {
	switch len(periods) {
	case 0:
		return "-"
	case 1:
		return periods[0]
	}
	return fmt.Sprintf("%s..%s (%d)", periods[0], periods[len(periods)-1], len(periods))
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
