package main

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/deusflow/threatwatch/internal/logger"
)

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmRequired)
			if err != nil {
				return err
			}
			defer rt.Close()

			res, err := rt.pipeline.Run(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d articles, %d new, %d attacks (%d new)\n",
				res.RunID, res.Articles, res.New, res.Attacks, res.NewAttacks)
			return nil
		},
	}
}

func newScheduleCommand() *cobra.Command {
	var (
		spec      string
		immediate bool
	)
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmRequired)
			if err != nil {
				return err
			}
			defer rt.Close()

			if spec == "" {
				spec = rt.cfg.Schedule
			}
			runOnce := func() {
				if _, err := rt.pipeline.Run(ctx); err != nil {
					logger.Error("Scheduled run failed", "error", err)
				}
			}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
			if _, err := c.AddFunc(spec, runOnce); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", spec, err)
			}
			if immediate {
				runOnce()
			}

			c.Start()
			logger.Info("Scheduler started", "schedule", spec)
			<-ctx.Done()
			logger.Info("Stopping scheduler")
			<-c.Stop().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&spec, "cron", "", "cron expression (default $SCHEDULE)")
	cmd.Flags().BoolVar(&immediate, "now", false, "run once before waiting for the first tick")
	return cmd
}

func newThreatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "threat",
		Short: "Recompute the threat level from stored attacks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmNone)
			if err != nil {
				return err
			}
			defer rt.Close()

			r, err := rt.pipeline.RecomputeThreat(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "threat level %s (level %d, score %d, %d incidents), trend %s\n",
				r.Current.Label, r.Current.Level, r.Current.Score, r.Current.IncidentCount, r.Trend)
			return nil
		},
	}
}

func newSummaryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Regenerate the executive summary from stored documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmOptional)
			if err != nil {
				return err
			}
			defer rt.Close()

			s, err := rt.pipeline.RegenerateSummary(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "summary generated at %s\n%s\n", s.GeneratedAt, s.ExecutiveSummary)
			return nil
		},
	}
}

func newGeocodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "geocode",
		Short: "Geocode stored attacks that have no coordinates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmNone)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.pipeline.BackfillGeocode(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "geocoded %d attacks\n", n)
			return nil
		},
	}
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Queue failed and off-topic articles for another translation pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, llmNone)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, err := rt.pipeline.Reset(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d articles\n", n)
			return nil
		},
	}
}
