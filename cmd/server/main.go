package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"skylog/internal/app"
	"skylog/internal/config"
	"skylog/internal/models"
	"skylog/internal/queue"
	"skylog/internal/scheduler"
	"skylog/internal/server"
)

var (
	cfgFile    string
	noSchedule bool
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Serve the weather API and dashboard and run the daily collection",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not run the daily collection")
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
	logger := a.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var q *queue.Queue
	if a.Config.Collection.UseQueue {
		rc := config.GetRedisConfig()
		client, err := app.NewRedis(ctx, rc)
		if err != nil {
			return err
		}
		defer client.Close()
		q = app.NewQueue(client, rc, logger)
		logger.Info("collection is queued", "stream", rc.Stream)
	}

	opts := server.Options{
		Store:        a.DB,
		Collector:    a.Collector,
		Locator:      a.Weather,
		Logger:       logger,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}
	if q != nil {
		opts.Queue = q
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return err
	}

	if !noSchedule {
		collect := func(ctx context.Context, loc models.Location, date time.Time) error {
			if q != nil {
				_, err := q.Enqueue(ctx, queue.NewJob(loc.ID, date, false, queue.KindDaily))
				return err
			}
			if out := a.Collector.Collect(ctx, loc.ID, date, false); !out.Success {
				return errors.New(out.Error)
			}
			return nil
		}

		sched, err := scheduler.New(a.Config.Collection.Schedule,
			scheduler.ForEachLocation(a.DB.ListLocations, collect, time.Now, logger), logger)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
		logger.Info("next daily collection", "at", sched.NextRun())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, a.Config.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
