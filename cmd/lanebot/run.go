package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lanebot/internal/channel"
	"lanebot/internal/config"
	"lanebot/internal/core"
	"lanebot/internal/metrics"
	"lanebot/internal/orchestrator"
	"lanebot/internal/worker"
)

var (
	// runCycles bounds the number of cycles (0 = until interrupted)
	runCycles int
)

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runCycles, "cycles", 0, "stop after this many cycles (0 = until interrupted)")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lane routine and serve the event channel",
	Long: `Run the lane routine in a loop and serve observers on the configured
host and port. Every path accepts a websocket observer; /metrics, /healthz
and /status are plain HTTP.

Examples:
  # Run against the robot on the configured serial port
  lanebot run --config lanebot.yaml

  # Try it without hardware
  lanebot run --simulate --cycles 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrive(runRoutine)
	},
}

func runRoutine(ctx context.Context, cfg *config.Config, log *zap.Logger, d core.Drive) error {
	rec := metrics.New()
	hub := channel.NewHub(channel.HubConfig{
		SendBuffer: cfg.Server.SendBuffer,
		RelayRate:  cfg.Server.RelayRate,
		Log:        log.Named("channel"),
		Metrics:    rec,
	})

	opts := orchestrator.OptionsFromConfig(cfg)
	opts.MaxCycles = runCycles
	opts.Log = log.Named("orchestrator")
	opts.Metrics = rec
	opts.Pool = worker.NewPool(cfg.Workers, log.Named("worker"))
	machine := orchestrator.New(d, core.RealClock{}, hub, opts)

	server := channel.NewServer(hub, channel.ServerOptions{
		WriteTimeout: cfg.Server.WriteTimeout,
		Metrics:      rec.Handler(),
		Status:       func() any { return machine.Status() },
		Log:          log.Named("channel"),
	})

	// The server outlives the run so the final cancelled event reaches
	// observers before the hub closes.
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(serverCtx, cfg.Server.Addr())
	})
	g.Go(func() error {
		defer stopServer()
		return machine.Run(gctx)
	})

	err := g.Wait()
	opts.Pool.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shut down")
		return nil
	}
	return err
}
