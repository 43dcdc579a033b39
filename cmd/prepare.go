package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/flowlisa/internal/flow"
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Standardize a raw merged OD table into an analysis flow table",
	Long:  "Restricts a raw OD table to flows whose origin and destination are both in the configured code set, appends z-scores of the period's PAY and POP columns and writes the table the analyze command reads.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		f := cmd.Flags()

		period, _ := f.GetString("period")
		in, _ := f.GetString("in")
		if in == "" {
			in = flow.PathFor(cfg.Prepare.RawPattern, period)
		}
		out, _ := f.GetString("out")
		if out == "" {
			out = flow.PathFor(cfg.Input.FlowsPattern, period)
		}

		codes := cfg.Prepare.Codes
		if f.Changed("codes") {
			codes, _ = f.GetStringSlice("codes")
		}
		if table, _ := f.GetString("code-table"); table != "" {
			match, _ := f.GetString("match-column")
			column, _ := f.GetString("code-column")
			names, _ := f.GetStringSlice("names")
			fromTable, err := codesFromTable(cmd, table, match, column, names)
			if err != nil {
				return err
			}
			codes = append(codes, fromTable...)
		}

		src, err := os.Open(in)
		if err != nil {
			return eris.Wrapf(err, "prepare: open %s", in)
		}
		defer src.Close() //nolint:errcheck

		p, err := flow.Prepare(ctx, src, flow.PrepareOptions{
			Period:   period,
			Codes:    codes,
			Encoding: cfg.Input.Encoding,
			Columns: flow.Columns{
				Pay: cfg.Input.Columns.Pay,
				Pop: cfg.Input.Columns.Pop,
			},
		})
		if err != nil {
			return err
		}

		dst, err := os.Create(out)
		if err != nil {
			return eris.Wrapf(err, "prepare: create %s", out)
		}
		if err := p.Write(dst, cfg.Input.Encoding); err != nil {
			_ = dst.Close()
			return err
		}
		if err := dst.Close(); err != nil {
			return eris.Wrapf(err, "prepare: close %s", out)
		}

		fmt.Fprintf(os.Stdout, "Wrote %s: kept %d of %d flows\n", out, p.Kept, p.Total)
		return nil
	},
}

func codesFromTable(cmd *cobra.Command, path, match, column string, names []string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prepare: open code table %s", path)
	}
	defer f.Close() //nolint:errcheck
	return flow.CodesFromColumn(cmd.Context(), f, cfg.Input.Encoding, match, column, names)
}

func init() {
	prepareCmd.Flags().String("period", "", "period whose PAY_/POP_ columns are standardized (required)")
	prepareCmd.Flags().String("in", "", "raw OD table (default from prepare.raw_pattern)")
	prepareCmd.Flags().String("out", "", "output flow table (default from input.flows_pattern)")
	prepareCmd.Flags().StringSlice("codes", nil, "administrative codes to keep (default from prepare.codes)")
	prepareCmd.Flags().String("code-table", "", "CSV mapping names to codes; adds the codes of --names")
	prepareCmd.Flags().String("match-column", "SIDO_NM", "code table column matched against --names")
	prepareCmd.Flags().String("code-column", "SIGUNGU_CD", "code table column holding the codes")
	prepareCmd.Flags().StringSlice("names", nil, "values of --match-column to select")
	_ = prepareCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(prepareCmd)
}
