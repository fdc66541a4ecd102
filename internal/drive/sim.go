package drive

import (
	"fmt"
	"sync"
	"time"

	"lanebot/internal/core"
)

// CommandKind names a motor command recorded by Sim.
type CommandKind string

const (
	CmdStraight CommandKind = "straight"
	CmdRotate   CommandKind = "rotate"
	CmdStop     CommandKind = "stop"
)

// Command is one motor command received by Sim.
type Command struct {
	Kind      CommandKind
	Velocity  int
	Direction core.Direction
	At        time.Duration // offset from the simulation start
}

func (c Command) String() string {
	switch c.Kind {
	case CmdStraight:
		return fmt.Sprintf("straight(%d)@%v", c.Velocity, c.At)
	case CmdRotate:
		return fmt.Sprintf("rotate(%d,%d)@%v", c.Velocity, c.Direction, c.At)
	default:
		return fmt.Sprintf("%s@%v", c.Kind, c.At)
	}
}

// SimConfig scripts a simulated base.
type SimConfig struct {
	Clock core.Clock
	// PollCost is how long one bumper read takes. With a FakeClock the clock
	// is advanced by it, otherwise the read sleeps for it.
	PollCost time.Duration
	// Script lists when the bumper gets pressed: each entry is measured from
	// the first read after the previous contact was released. That first read
	// is always clear.
	Script []time.Duration
	// Loop restarts the script when it is exhausted.
	Loop bool
	// HoldReads is how many consecutive reads a contact stays pressed (min 1).
	HoldReads int
}

// Sim is an in-memory core.Drive with a scripted bump timeline. It records
// every motor command so runs can be compared.
type Sim struct {
	cfg   SimConfig
	start time.Time

	mu       sync.Mutex
	commands []Command
	next     int
	armed    bool
	armedAt  time.Time
	holding  int
	closed   bool
}

type advancer interface {
	Advance(d time.Duration)
}

func NewSim(cfg SimConfig) *Sim {
	if cfg.Clock == nil {
		cfg.Clock = core.RealClock{}
	}
	if cfg.HoldReads < 1 {
		cfg.HoldReads = 1
	}
	return &Sim{cfg: cfg, start: cfg.Clock.Now()}
}

func (s *Sim) record(c Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	c.At = s.cfg.Clock.Since(s.start)
	s.commands = append(s.commands, c)
	return nil
}

func (s *Sim) DriveStraight(velocity int) error {
	return s.record(Command{Kind: CmdStraight, Velocity: velocity})
}

func (s *Sim) DriveRotate(speed int, direction core.Direction) error {
	return s.record(Command{Kind: CmdRotate, Velocity: speed, Direction: direction})
}

func (s *Sim) Stop() error {
	return s.record(Command{Kind: CmdStop})
}

func (s *Sim) ReadBumpers() (core.Bumpers, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return core.Bumpers{}, ErrClosed
	}
	if s.holding > 0 {
		s.holding--
		s.mu.Unlock()
		s.elapse()
		return core.Bumpers{Left: true}, nil
	}
	// The first read after a release is always clear and starts the next delay.
	first := !s.armed
	if first {
		s.armed = true
		s.armedAt = s.cfg.Clock.Now()
	}
	s.mu.Unlock()

	s.elapse()
	if first {
		return core.Bumpers{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.cfg.Script) {
		if !s.cfg.Loop || len(s.cfg.Script) == 0 {
			return core.Bumpers{}, nil
		}
		s.next = 0
	}
	if s.cfg.Clock.Since(s.armedAt) < s.cfg.Script[s.next] {
		return core.Bumpers{}, nil
	}
	s.next++
	s.armed = false
	s.holding = s.cfg.HoldReads - 1
	return core.Bumpers{Left: true}, nil
}

func (s *Sim) elapse() {
	if s.cfg.PollCost <= 0 {
		return
	}
	if a, ok := s.cfg.Clock.(advancer); ok {
		a.Advance(s.cfg.PollCost)
		return
	}
	time.Sleep(s.cfg.PollCost)
}

// Close makes every later call fail with ErrClosed.
func (s *Sim) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Commands returns a copy of the recorded commands.
func (s *Sim) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}
