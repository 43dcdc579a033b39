package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/flowlisa/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "flowlisa",
	Short: "Bivariate Flow-LISA neighborhood sensitivity analysis",
	Long:  "Classifies origin-destination flows into HH/HL/LH/LL/NS clusters for each k-nearest-neighbor size and tabulates how the cluster counts change with k.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
