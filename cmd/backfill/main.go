package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"skylog/internal/app"
	"skylog/internal/collector"
	"skylog/internal/models"
)

var (
	cfgFile    string
	locationID int64
	fromFlag   string
	toFlag     string
	recent     bool
)

var rootCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Find and collect missing daily weather",
	Long: `backfill scans stored daily weather for missing dates and collects them.
Without --from/--to the range spans the first and last stored dates.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().Int64Var(&locationID, "location", 0, "location ID (default: all locations)")
	rootCmd.Flags().StringVar(&fromFlag, "from", "", "start date (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&toFlag, "to", "", "end date (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&recent, "recent", false, "scan the last collection.backfill_days days up to today")
	rootCmd.MarkFlagsMutuallyExclusive("recent", "from")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	a, err := app.New(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := parseRange(locationID, fromFlag, toFlag, recent, a.Config.Collection.BackfillDays, time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bf := collector.NewBackfiller(a.DB, a.Collector, a.Tides, a.Logger)
	report, err := bf.Run(ctx, r)
	if err != nil {
		return err
	}

	fmt.Printf("Locations checked: %d\n", report.Locations)
	fmt.Printf("Successfully collected: %d\n", report.Collected)
	fmt.Printf("Failed: %d\n", report.Failed)
	return nil
}

func parseRange(id int64, from, to string, recent bool, days int, now time.Time) (collector.Range, error) {
	r := collector.Range{LocationID: id}

	if recent {
		if days <= 0 {
			return r, fmt.Errorf("collection.backfill_days must be positive, got %d", days)
		}
		r.To = models.DateOf(now.UTC())
		r.From = r.To.AddDate(0, 0, -(days - 1))
	}

	if from != "" {
		d, err := models.ParseDate(from)
		if err != nil {
			return r, fmt.Errorf("invalid --from date: %w", err)
		}
		r.From = d
	}
	if to != "" {
		d, err := models.ParseDate(to)
		if err != nil {
			return r, fmt.Errorf("invalid --to date: %w", err)
		}
		r.To = d
	}

	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return r, fmt.Errorf("--from date must not be after --to date")
	}
	return r, nil
}
