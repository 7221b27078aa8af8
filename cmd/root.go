package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tract-series",
	Short: "Census tract time series on 2020 boundaries",
	Long:  "Builds the 2010/2020 census tract areal crosswalks and re-expresses ACS tract statistics for 2010-2020 on 2020 tract geometry as GeoJSON.",
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
