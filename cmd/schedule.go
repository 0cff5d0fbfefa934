package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScheduleCmd creates the 'schedule' subcommand, which repeats harvests on a cron expression.
func newScheduleCmd() *cobra.Command {
	var runNow bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Runs harvests on the harvest.schedule cron expression",
		Long: `Keeps running and starts a harvest every time harvest.schedule fires
(standard five-field cron or descriptors such as @weekly). A run that is
still in progress when the next one is due causes that tick to be skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduleCommand(cmd.Context(), runNow)
		},
	}
	addYearFlags(cmd)
	cmd.Flags().BoolVar(&runNow, "run-now", false, "start one harvest immediately before waiting for the schedule")
	return cmd
}

func runScheduleCommand(ctx context.Context, runNow bool) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger().Named("schedule")

	loc := time.UTC
	if cfg.Harvest.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Harvest.Timezone)
		if err != nil {
			return fmt.Errorf("load time zone: %w", err)
		}
	}

	cronLogger := zapCronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	job := cron.FuncJob(func() { runScheduledHarvest(ctx, appInstance, logger) })
	entryID, err := c.AddJob(cfg.Harvest.Schedule, job)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", cfg.Harvest.Schedule, err)
	}

	c.Start()
	logger.Info("scheduler started",
		zap.String("schedule", cfg.Harvest.Schedule),
		zap.Time("next_run", c.Entry(entryID).Next),
	)
	if runNow {
		c.Entry(entryID).WrappedJob.Run()
	}

	<-ctx.Done()
	logger.Info("scheduler stopping; waiting for the running harvest")
	<-c.Stop().Done()
	return nil
}

func runScheduledHarvest(ctx context.Context, appInstance App, logger *zap.Logger) {
	summary, err := appInstance.RunHarvest(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("scheduled harvest interrupted", zap.String("run_id", summary.RunID))
	case err != nil:
		logger.Error("scheduled harvest failed", zap.Error(err))
	default:
		logger.Info("scheduled harvest finished",
			zap.String("run_id", summary.RunID),
			zap.Int64("records_written", summary.Sink.Written),
			zap.Duration("duration", summary.Duration()),
		)
	}
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
