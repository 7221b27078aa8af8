package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var seriesCmd = &cobra.Command{
	Use:   "series",
	Short: "Write ACS tract statistics on 2020 tracts as GeoJSON",
	Long: `Download the configured ACS variables for every selected state and year,
interpolate pre-2020 values onto 2020 tracts through the 2010-to-2020
crosswalk, and write one GeoJSON feature per 2020 tract.

Units that still fail after the configured retries are skipped and listed at
the end of the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := applySeriesFlags(cmd); err != nil {
			return err
		}

		env, err := initPipeline(ctx, "series")
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.Series(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Wrote %d tracts to %s\n", rep.Features, rep.Output)
		if len(rep.Failures) > 0 {
			fmt.Printf("Skipped %d state/year units:\n", len(rep.Failures))
			for _, f := range rep.Failures {
				fmt.Printf("  %s: %v\n", f, f.Err)
			}
		}
		return nil
	},
}

func init() {
	seriesCmd.Flags().StringSlice("states", nil, "states to include (names, USPS codes, FIPS codes, or All)")
	seriesCmd.Flags().StringSlice("vars", nil, "ACS variable names, e.g. B01001_001E")
	seriesCmd.Flags().Int("start-year", 2015, "first year of the series")
	seriesCmd.Flags().Int("end-year", 2020, "last year of the series")
	seriesCmd.Flags().String("out", "", "output path (default derived from the parameters)")
	seriesCmd.Flags().Bool("overwrite-local", false, "download statistics again even when cached")
	rootCmd.AddCommand(seriesCmd)
}

// applySeriesFlags overrides config values with explicitly set flags.
func applySeriesFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("vars") {
		v, err := flags.GetStringSlice("vars")
		if err != nil {
			return err
		}
		cfg.Census.Variables = v
	}
	if flags.Changed("start-year") {
		v, err := flags.GetInt("start-year")
		if err != nil {
			return err
		}
		cfg.Census.StartYear = v
	}
	if flags.Changed("end-year") {
		v, err := flags.GetInt("end-year")
		if err != nil {
			return err
		}
		cfg.Census.EndYear = v
	}
	if flags.Changed("out") {
		v, err := flags.GetString("out")
		if err != nil {
			return err
		}
		cfg.Series.Output = v
	}
	if flags.Changed("overwrite-local") {
		v, err := flags.GetBool("overwrite-local")
		if err != nil {
			return err
		}
		cfg.Series.OverwriteLocal = v
	}
	return applyStatesFlag(cmd)
}
