package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tract-series/internal/crosswalk"
)

var crosswalkCmd = &cobra.Command{
	Use:   "crosswalk",
	Short: "Build or sync the 2010/2020 tract crosswalks",
	Long: `Make both crosswalk artifacts available in the local crosswalk directory.

Local artifacts are used when present. Otherwise they are downloaded from the
durable store, or rebuilt from the relationship files and TIGER shapefiles and
uploaded. Use --overwrite-local to ignore local copies and --overwrite-remote
to rebuild and replace the durable copies.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applyCrosswalkFlags(cmd); err != nil {
			return err
		}

		env, err := initPipeline(ctx, "crosswalk")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.Crosswalk(ctx)
		if err != nil {
			return err
		}

		zap.L().Info("crosswalks ready",
			zap.String("outcome", string(rep.Crosswalk)),
			zap.String("dir", cfg.CrosswalkDir()),
		)
		fmt.Printf("Crosswalks %s in %s\n", rep.Crosswalk, cfg.CrosswalkDir())
		return nil
	},
}

func init() {
	crosswalkCmd.Flags().Bool("overwrite-local", false, "rebuild or re-download even when local artifacts exist")
	crosswalkCmd.Flags().Bool("overwrite-remote", false, "rebuild and replace the durable copies")
	crosswalkCmd.Flags().Int("precision", crosswalk.DefaultPrecision, "decimals the overlap fractions are rounded to")
	crosswalkCmd.Flags().StringSlice("states", nil, "states to build (names, USPS codes, FIPS codes, or All)")
	rootCmd.AddCommand(crosswalkCmd)
}

// applyCrosswalkFlags overrides config values with explicitly set flags.
func applyCrosswalkFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("overwrite-local") {
		v, err := flags.GetBool("overwrite-local")
		if err != nil {
			return err
		}
		cfg.Crosswalk.OverwriteLocal = v
	}
	if flags.Changed("overwrite-remote") {
		v, err := flags.GetBool("overwrite-remote")
		if err != nil {
			return err
		}
		cfg.Crosswalk.OverwriteRemote = v
	}
	if flags.Changed("precision") {
		v, err := flags.GetInt("precision")
		if err != nil {
			return err
		}
		cfg.Crosswalk.Precision = v
	}
	return applyStatesFlag(cmd)
}

// applyStatesFlag overrides census.states when --states is set.
func applyStatesFlag(cmd *cobra.Command) error {
	if !cmd.Flags().Changed("states") {
		return nil
	}
	states, err := cmd.Flags().GetStringSlice("states")
	if err != nil {
		return err
	}
	cfg.Census.States = states
	return nil
}
