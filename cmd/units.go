package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/flowlisa/internal/registry"
	"github.com/sells-group/flowlisa/internal/weights"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "Summarize the spatial unit registry",
	Long:  "Loads the configured unit registry and prints its size and extent. With --k, also lists each unit's k-nearest-neighbor contact set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		reg, err := registry.Load(ctx, cfg.Input.UnitsPath, registryOptions(cfg))
		if err != nil {
			return err
		}

		k, _ := cmd.Flags().GetInt("k")
		if k == 0 {
			formatRegistry(os.Stdout, reg, nil)
			return nil
		}

		index, err := weights.ParseIndex(cfg.Compute.Index)
		if err != nil {
			return err
		}
		adj, err := weights.NewBuilder(index).Build(reg, k)
		if err != nil {
			return err
		}
		formatRegistry(os.Stdout, reg, adj)
		return nil
	},
}

func init() {
	unitsCmd.Flags().Int("k", 0, "list k-nearest-neighbor contact sets for this k")
	rootCmd.AddCommand(unitsCmd)
}

// formatRegistry writes the registry summary and, when adj is set, each unit's contacts.
func formatRegistry(out io.Writer, reg *registry.Registry, adj *weights.AdjacencyMatrix) {
	b := reg.Bound()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Units:\t%d\n", reg.Len())
	_, _ = fmt.Fprintf(w, "Extent:\t[%g, %g] - [%g, %g]\n", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
	if adj == nil {
		_ = w.Flush()
		return
	}
	_, _ = fmt.Fprintf(w, "K:\t%d\n", adj.K())
	_, _ = fmt.Fprintf(w, "Symmetric:\t%t\n\n", adj.IsSymmetric())
	_, _ = fmt.Fprintln(w, "ID\tCODE\tNEIGHBORS")
	_, _ = fmt.Fprintln(w, "--\t----\t---------")
	for _, u := range reg.Units() {
		var ids []string
		for _, j := range adj.Neighbors(u.Index()) {
			if j != u.Index() {
				ids = append(ids, strconv.Itoa(j+1))
			}
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Code, strings.Join(ids, ","))
	}
	_ = w.Flush()
}
