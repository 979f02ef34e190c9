package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"skylog/internal/app"
	"skylog/internal/config"
	"skylog/internal/models"
	"skylog/internal/queue"
)

var (
	cfgFile     string
	locationID  int64
	dateFlag    string
	force       bool
	direct      bool
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect daily weather for one or all locations",
	Long: `collect publishes one collection job per location to the Redis stream.
With --direct the collection runs in this process instead.`,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().Int64Var(&locationID, "location", 0, "location ID (default: all locations)")
	rootCmd.Flags().StringVar(&dateFlag, "date", "", "date to collect (YYYY-MM-DD, default: each location's today)")
	rootCmd.Flags().BoolVar(&force, "force", false, "collect even if the date is already stored")
	rootCmd.Flags().BoolVar(&direct, "direct", false, "collect in-process instead of enqueueing")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 4, "locations collected at once with --direct")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var date time.Time
	if dateFlag != "" {
		d, err := models.ParseDate(dateFlag)
		if err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
		date = d
	}

	a, err := app.New(cfgFile)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var locations []models.Location
	if locationID != 0 {
		loc, err := a.DB.GetLocation(ctx, locationID)
		if err != nil {
			return err
		}
		locations = []models.Location{*loc}
	} else {
		locations, err = a.DB.ListLocations(ctx)
		if err != nil {
			return err
		}
	}

	jobs := buildJobs(locations, date, time.Now(), force)
	if len(jobs) == 0 {
		logger.Info("nothing to collect")
		return nil
	}

	if direct {
		return collectDirect(ctx, a, jobs)
	}

	rc := config.GetRedisConfig()
	client, err := app.NewRedis(ctx, rc)
	if err != nil {
		return err
	}
	defer client.Close()

	q := app.NewQueue(client, rc, logger)
	for _, job := range jobs {
		if _, err := q.Enqueue(ctx, job); err != nil {
			return err
		}
	}
	logger.Info("collection jobs published", "jobs", len(jobs), "stream", rc.Stream)
	return nil
}

// buildJobs plans one job per location. A zero date means each location's
// own today; future dates are dropped and past dates use history.
func buildJobs(locations []models.Location, date, now time.Time, force bool) []queue.Job {
	jobs := make([]queue.Job, 0, len(locations))
	for _, loc := range locations {
		today := loc.Today(now)
		d := date
		if d.IsZero() {
			d = today
		}

		switch {
		case d.After(today):
			continue
		case d.Before(today):
			jobs = append(jobs, queue.NewJob(loc.ID, d, force, queue.KindHistorical))
		default:
			jobs = append(jobs, queue.NewJob(loc.ID, d, force, queue.KindDaily))
		}
	}
	return jobs
}

func collectDirect(ctx context.Context, a *app.App, jobs []queue.Job) error {
	handle := app.JobHandler(a.Collector)

	var (
		mu     sync.Mutex
		failed int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, job := range jobs {
		g.Go(func() error {
			if err := handle(ctx, job); err != nil {
				a.Logger.Error("collection failed", "location_id", job.LocationID, "date", job.Date, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.Logger.Info("data collection completed", "locations", len(jobs), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d collections failed", failed, len(jobs))
	}
	return nil
}
