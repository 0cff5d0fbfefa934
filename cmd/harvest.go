// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/config"
)

func init() {
	overrides["harvest"] = applyYearFlags
	overrides["schedule"] = applyYearFlags
}

// newHarvestCmd creates the 'harvest' subcommand, which performs one run.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvests the configured year range once",
		Long: `Discovers every paper listed for each year in the range, downloads the
PDFs into the output directory and appends annotated rows to the CSV
catalog. Per-paper failures are logged and skipped.`,
		RunE: runHarvestCommand,
	}
	addYearFlags(cmd)
	return cmd
}

func addYearFlags(cmd *cobra.Command) {
	cmd.Flags().Int("start-year", 0, "first proceedings year (overrides harvest.start_year)")
	cmd.Flags().Int("end-year", 0, "last proceedings year, inclusive (overrides harvest.end_year)")
}

func applyYearFlags(cmd *cobra.Command, cfg *config.Config) {
	if f := cmd.Flags().Lookup("start-year"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("start-year"); err == nil {
			cfg.Harvest.StartYear = v
		}
	}
	if f := cmd.Flags().Lookup("end-year"); f != nil && f.Changed {
		if v, err := cmd.Flags().GetInt("end-year"); err == nil {
			cfg.Harvest.EndYear = v
		}
	}
}

func runHarvestCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	summary, err := appInstance.RunHarvest(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Warn("harvest interrupted", zap.Int64("records_written", summary.Sink.Written))
			return nil
		}
		return fmt.Errorf("run harvest: %w", err)
	}

	appInstance.Logger().Info("Harvest command finished.",
		zap.String("run_id", summary.RunID),
		zap.Int64("papers_downloaded", summary.PapersDownloaded),
		zap.Int64("records_written", summary.Sink.Written),
	)
	return nil
}
