// Package create2 drives an iRobot Create 2 over its serial Open Interface.
package create2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"lanebot/internal/core"
)

// Open Interface opcodes.
const (
	opReset   byte = 7
	opStart   byte = 128
	opFull    byte = 132
	opDrive   byte = 137
	opSensors byte = 142
	opStop    byte = 173

	packetBumpsWheeldrops byte = 7
)

const (
	maxVelocity    = 500
	radiusStraight = -32768 // 0x8000
	radiusCCW      = 1
	radiusCW       = -1

	bumpRight byte = 1 << 0
	bumpLeft  byte = 1 << 1
)

var (
	// ErrTimeout is returned when a sensor reply does not arrive in time.
	ErrTimeout = errors.New("create2: sensor read timed out")
	ErrClosed  = errors.New("create2: connection closed")
)

// Robot is a core.Drive backed by an Open Interface byte stream.
type Robot struct {
	mu     sync.Mutex
	rw     io.ReadWriter
	closer io.Closer
	closed bool
}

// Open opens the serial port, switches the robot to full mode and stops it.
func Open(port string, baud int, timeout time.Duration) (*Robot, error) {
	p, err := serial.Open(port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", port, err)
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("setting read timeout: %w", err)
	}
	r := New(p, p)
	if err := r.Init(); err != nil {
		p.Close()
		return nil, err
	}
	return r, nil
}

// New wraps an already-open stream. closer may be nil.
func New(rw io.ReadWriter, closer io.Closer) *Robot {
	return &Robot{rw: rw, closer: closer}
}

// Init sends Start and Full and stops the wheels.
func (r *Robot) Init() error {
	if err := r.write(opStart); err != nil {
		return fmt.Errorf("starting open interface: %w", err)
	}
	if err := r.write(opFull); err != nil {
		return fmt.Errorf("entering full mode: %w", err)
	}
	return r.Stop()
}

func (r *Robot) write(b ...byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	_, err := r.rw.Write(b)
	return err
}

func (r *Robot) drive(velocity, radius int) error {
	if velocity > maxVelocity {
		velocity = maxVelocity
	} else if velocity < -maxVelocity {
		velocity = -maxVelocity
	}
	cmd := make([]byte, 5)
	cmd[0] = opDrive
	binary.BigEndian.PutUint16(cmd[1:3], uint16(int16(velocity)))
	binary.BigEndian.PutUint16(cmd[3:5], uint16(int16(radius)))
	if err := r.write(cmd...); err != nil {
		return fmt.Errorf("drive %d/%d: %w", velocity, radius, err)
	}
	return nil
}

func (r *Robot) DriveStraight(velocity int) error {
	return r.drive(velocity, radiusStraight)
}

func (r *Robot) DriveRotate(speed int, direction core.Direction) error {
	radius := radiusCCW
	if direction < 0 {
		radius = radiusCW
	}
	return r.drive(speed, radius)
}

func (r *Robot) Stop() error {
	return r.drive(0, 0)
}

// ReadBumpers requests sensor packet 7 and decodes the bump bits.
func (r *Robot) ReadBumpers() (core.Bumpers, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.Bumpers{}, ErrClosed
	}
	if _, err := r.rw.Write([]byte{opSensors, packetBumpsWheeldrops}); err != nil {
		return core.Bumpers{}, fmt.Errorf("requesting bump sensors: %w", err)
	}
	buf := make([]byte, 1)
	n, err := r.rw.Read(buf)
	if err != nil {
		return core.Bumpers{}, fmt.Errorf("reading bump sensors: %w", err)
	}
	// go.bug.st/serial reports a read timeout as zero bytes and no error.
	if n == 0 {
		return core.Bumpers{}, ErrTimeout
	}
	return core.Bumpers{
		Left:  buf[0]&bumpLeft != 0,
		Right: buf[0]&bumpRight != 0,
	}, nil
}

// Reset sends the soft reset opcode. The robot reboots and the connection
// must be reopened afterwards.
func (r *Robot) Reset() error {
	if err := r.write(opReset); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

// Close stops the wheels, leaves the Open Interface and releases the port.
// It is safe to call more than once.
func (r *Robot) Close() error {
	stopErr := r.Stop()
	if errors.Is(stopErr, ErrClosed) {
		return nil
	}
	ifaceErr := r.write(opStop)

	r.mu.Lock()
	r.closed = true
	closer := r.closer
	r.mu.Unlock()

	var closeErr error
	if closer != nil {
		closeErr = closer.Close()
	}
	return errors.Join(stopErr, ifaceErr, closeErr)
}
