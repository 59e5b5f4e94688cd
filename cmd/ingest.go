package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sentify-hq/sentify-engine/pkg/services"
)

var (
	flagDate string
	flagDays int
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Ingest one day of news for every company",
	Long: `Ingest one day of news for every company and notify followers.
Defaults to yesterday (UTC). Companies already rated for the day are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var date time.Time
		if flagDate != "" {
			d, err := time.Parse(time.DateOnly, flagDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", flagDate)
			}
			date = d
		}
		return runIngestion(cmd.Context(), func(ctx context.Context, svc services.IngestionService) ([]services.CycleResult, error) {
			if date.IsZero() {
				return svc.UpdateYesterday(ctx)
			}
			return svc.UpdateAll(ctx, date)
		})
	},
}

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "Replay the last N days of news, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("days") && flagDays < 1 {
			return fmt.Errorf("--days must be at least 1")
		}
		return runIngestion(cmd.Context(), func(ctx context.Context, svc services.IngestionService) ([]services.CycleResult, error) {
			return svc.Backlog(ctx, flagDays)
		})
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch missing company descriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		result, err := a.backfillService().BackfillDescriptions(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("descriptions updated: %d, skipped: %d, failed: %d\n", result.Updated, result.Skipped, result.Failed)
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&flagDate, "date", "", "day to ingest as YYYY-MM-DD (default yesterday)")
	backlogCmd.Flags().IntVar(&flagDays, "days", 0, "number of days ending yesterday (default from config)")
}

// runIngestion builds the ingestion service and runs fn until it returns or
// the process is interrupted.
func runIngestion(parent context.Context, fn func(context.Context, services.IngestionService) ([]services.CycleResult, error)) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := a.ingestionService()
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	logResults(a.logger, results)
	a.logger.Debug("Ingestion took", zap.Duration("elapsed", time.Since(start)))

	failed := 0
	for _, r := range results {
		if r.State == services.CycleFailed {
			failed++
		}
	}
	fmt.Printf("cycles: %d, failed: %d\n", len(results), failed)
	return nil
}
