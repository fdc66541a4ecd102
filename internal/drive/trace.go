package drive

import (
	"go.uber.org/zap"

	"lanebot/internal/core"
)

// Traced logs every motor command and failed sensor read at debug level.
type Traced struct {
	core.Drive
	log *zap.Logger
}

// Trace wraps d. A nil logger disables tracing.
func Trace(d core.Drive, log *zap.Logger) core.Drive {
	if log == nil {
		return d
	}
	return &Traced{Drive: d, log: log}
}

func (t *Traced) DriveStraight(velocity int) error {
	err := t.Drive.DriveStraight(velocity)
	t.log.Debug("drive straight", zap.Int("velocity", velocity), zap.Error(err))
	return err
}

func (t *Traced) DriveRotate(speed int, direction core.Direction) error {
	err := t.Drive.DriveRotate(speed, direction)
	t.log.Debug("drive rotate", zap.Int("speed", speed), zap.Int("direction", int(direction)), zap.Error(err))
	return err
}

func (t *Traced) Stop() error {
	err := t.Drive.Stop()
	t.log.Debug("drive stop", zap.Error(err))
	return err
}

func (t *Traced) ReadBumpers() (core.Bumpers, error) {
	b, err := t.Drive.ReadBumpers()
	if err != nil {
		t.log.Debug("read bumpers failed", zap.Error(err))
	}
	return b, err
}
