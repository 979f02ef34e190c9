package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"skylog/internal/app"
	"skylog/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume collection jobs from the Redis stream",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rc := config.GetRedisConfig()
	client, err := app.NewRedis(ctx, rc)
	if err != nil {
		return err
	}
	defer client.Close()

	q := app.NewQueue(client, rc, a.Logger)
	if err := q.Run(ctx, app.JobHandler(a.Collector)); err != nil {
		return err
	}
	a.Logger.Info("worker stopped")
	return nil
}
