// Command lanebot runs the lane choreography and its hardware utilities.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lanebot/internal/config"
	"lanebot/internal/core"
	"lanebot/internal/create2"
	"lanebot/internal/drive"
	"lanebot/internal/logging"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	// configPath is the YAML config file; nominal values when empty
	configPath string
	// verbose enables debug logging, including every motor command
	verbose bool
	// simulate swaps the Create 2 for the in-memory simulated base
	simulate bool
	version  = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}

var rootCmd = &cobra.Command{
	Use:   "lanebot",
	Short: "Robot lane choreography with a live event channel",
	Long: `lanebot drives an iRobot Create 2 through the lane routine: wait for a kick,
scan for the strafe limit, scan for a heading, predict the gutter, drive and
reset. Observers follow the run over a websocket event channel.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug output (every motor command)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "use a simulated base instead of the serial port")
}

// setup loads the configuration and builds the root logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	lc := logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if verbose {
		lc.Level = "debug"
	}
	log, err := logging.New(lc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// simScript is the bump timeline of the simulated base: a kick, then the
// strafe and angle contacts, repeated every cycle.
var simScript = []time.Duration{
	2 * time.Second,
	1200 * time.Millisecond,
	250 * time.Millisecond,
}

// openDrive opens the configured base. The returned func releases it.
func openDrive(cfg *config.Config, log *zap.Logger) (core.Drive, func(), error) {
	if simulate {
		sim := drive.NewSim(drive.SimConfig{
			Clock:     core.RealClock{},
			PollCost:  10 * time.Millisecond,
			Script:    simScript,
			Loop:      true,
			HoldReads: 3,
		})
		log.Info("using simulated base")
		return drive.Trace(sim, log.Named("drive")), func() { sim.Close() }, nil
	}

	robot, err := create2.Open(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Timeout)
	if err != nil {
		return nil, nil, err
	}
	log.Info("connected to base", zap.String("port", cfg.Serial.Port), zap.Int("baud", cfg.Serial.Baud))
	release := func() {
		if err := robot.Close(); err != nil && !errors.Is(err, create2.ErrClosed) {
			log.Warn("closing base", zap.Error(err))
		}
	}
	return drive.Trace(robot, log.Named("drive")), release, nil
}

// withDrive runs fn against the configured base and releases it afterwards.
func withDrive(fn func(ctx context.Context, cfg *config.Config, log *zap.Logger, d core.Drive) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(log)

	d, release, err := openDrive(cfg, log)
	if err != nil {
		log.Error("opening base", zap.Error(err))
		return err
	}
	defer release()

	ctx, stop := signalContext()
	defer stop()
	return fn(ctx, cfg, log, d)
}
