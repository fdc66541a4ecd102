package calibrate

import (
	"context"
	"errors"
	"testing"
	"time"

	"lanebot/internal/config"
	"lanebot/internal/core"
	"lanebot/internal/drive"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestRotate(t *testing.T) {
	clock := core.NewFakeClock(epoch)
	sim := drive.NewSim(drive.SimConfig{Clock: clock})

	r := config.Nominal().Utilities.Rotate
	if err := Rotate(context.Background(), sim, clock, r); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	cmds := sim.Commands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %v", cmds)
	}
	if got := cmds[0].String(); got != "rotate(114,1)@0s" {
		t.Errorf("first command = %s", got)
	}
	if cmds[1].Kind != drive.CmdStop || cmds[1].At != r.Duration {
		t.Errorf("expected stop at %v, got %s", r.Duration, cmds[1])
	}
}

func TestSpin(t *testing.T) {
	clock := core.NewFakeClock(epoch)
	sim := drive.NewSim(drive.SimConfig{Clock: clock})

	r := config.TimedRotation{Speed: 300, Duration: 2 * time.Second}
	if err := Spin(context.Background(), sim, clock, r); err != nil {
		t.Fatalf("Spin: %v", err)
	}

	want := []string{"rotate(300,-1)@0s", "rotate(300,1)@2s", "stop@4s"}
	cmds := sim.Commands()
	if len(cmds) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), cmds)
	}
	for i, w := range want {
		if got := cmds[i].String(); got != w {
			t.Errorf("command %d = %s, want %s", i, got, w)
		}
	}
}

func TestSpin_CancelStops(t *testing.T) {
	clock := core.NewFakeClock(epoch)
	sim := drive.NewSim(drive.SimConfig{Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Spin(ctx, sim, clock, config.TimedRotation{Speed: 300, Duration: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	cmds := sim.Commands()
	if last := cmds[len(cmds)-1]; last.Kind != drive.CmdStop {
		t.Errorf("expected final stop, got %s", last)
	}
}

func TestRotate_DriveError(t *testing.T) {
	clock := core.NewFakeClock(epoch)
	sim := drive.NewSim(drive.SimConfig{Clock: clock})
	sim.Close()

	err := Rotate(context.Background(), sim, clock, config.TimedRotation{Speed: 100, Duration: time.Second})
	if !errors.Is(err, drive.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
