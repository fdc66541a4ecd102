package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"lanebot/internal/calibrate"
	"lanebot/internal/config"
	"lanebot/internal/core"
	"lanebot/internal/create2"
	"lanebot/internal/logging"
	"lanebot/internal/manual"
)

func init() {
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(manualCmd)
	rootCmd.AddCommand(calibrateCmd)
	calibrateCmd.AddCommand(calibrateRotateCmd)
	calibrateCmd.AddCommand(calibrateSpinCmd)
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Soft-reset the base (as if the battery was reinserted)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulate {
			return errors.New("reset needs the serial base")
		}
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer logging.Sync(log)
		robot, err := create2.Open(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Timeout)
		if err != nil {
			return err
		}
		defer robot.Close()
		if err := robot.Reset(); err != nil {
			return err
		}
		log.Info("reset sent", zap.String("port", cfg.Serial.Port))
		return nil
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Timed rotations for tuning the speed model",
	Long: `Timed rotations for tuning the speed model. Mark the heading, run a
rotation and compare where the base stops with where it should be. Speeds and
durations come from the utilities section of the config, independent of the
run speeds.`,
}

var calibrateRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate counter-clockwise for the configured time, then stop",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrive(func(ctx context.Context, cfg *config.Config, log *zap.Logger, d core.Drive) error {
			r := cfg.Utilities.Rotate
			log.Info("rotating", zap.Int("speed", r.Speed), zap.Duration("duration", r.Duration))
			return calibrate.Rotate(ctx, d, core.RealClock{}, r)
		})
	},
}

var calibrateSpinCmd = &cobra.Command{
	Use:   "spin",
	Short: "Spin clockwise then back counter-clockwise for the configured time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrive(func(ctx context.Context, cfg *config.Config, log *zap.Logger, d core.Drive) error {
			r := cfg.Utilities.Spin
			log.Info("spinning", zap.Int("speed", r.Speed), zap.Duration("duration", r.Duration))
			return calibrate.Spin(ctx, d, core.RealClock{}, r)
		})
	},
}

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Drive the base with the arrow keys",
	Long: `Drive the base from the keyboard:
  up/down     forward / reverse
  left/right  rotate counter-clockwise / clockwise
  space       stop
  q           quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDrive(func(ctx context.Context, cfg *config.Config, log *zap.Logger, d core.Drive) error {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return errors.New("manual control needs an interactive terminal")
			}
			state, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("entering raw mode: %w", err)
			}
			defer term.Restore(fd, state)

			fmt.Fprint(os.Stderr, "arrows drive, space stops, q quits\r\n")
			return manual.Run(ctx, os.Stdin, d, cfg.Utilities.Manual, func(k manual.Key) {
				log.Debug("key", zap.Stringer("key", k))
			})
		})
	},
}
