// Package manual drives the base from a raw terminal: arrow keys move,
// space stops, q quits.
package manual

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"lanebot/internal/config"
	"lanebot/internal/core"
)

type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyStop
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyStop:
		return "stop"
	case KeyQuit:
		return "quit"
	default:
		return "none"
	}
}

const (
	esc   = 0x1b
	ctrlC = 0x03
)

// Decoder turns raw terminal bytes into keys. Unknown bytes and escape
// sequences decode as KeyNone.
type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) Next() (Key, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return KeyNone, err
	}
	switch b {
	case ' ':
		return KeyStop, nil
	case 'q', 'Q', ctrlC:
		return KeyQuit, nil
	case esc:
	default:
		return KeyNone, nil
	}

	// CSI arrow: ESC [ A..D
	if b, err = d.r.ReadByte(); err != nil {
		return KeyNone, err
	}
	if b != '[' {
		return KeyNone, nil
	}
	if b, err = d.r.ReadByte(); err != nil {
		return KeyNone, err
	}
	switch b {
	case 'A':
		return KeyUp, nil
	case 'B':
		return KeyDown, nil
	case 'C':
		return KeyRight, nil
	case 'D':
		return KeyLeft, nil
	default:
		return KeyNone, nil
	}
}

// Apply issues the motor command bound to k.
func Apply(d core.Drive, k Key, speeds config.ManualConfig) error {
	switch k {
	case KeyUp:
		return d.DriveStraight(speeds.Forward)
	case KeyDown:
		return d.DriveStraight(speeds.Reverse)
	case KeyLeft:
		return d.DriveRotate(speeds.Rotate, core.Forward)
	case KeyRight:
		return d.DriveRotate(speeds.Rotate, core.Backward)
	case KeyStop, KeyQuit:
		return d.Stop()
	default:
		return nil
	}
}

// Run applies keys from r until quit, end of input or ctx is done. The drive
// is always stopped on return. onKey, if set, sees every decoded key.
func Run(ctx context.Context, r io.Reader, d core.Drive, speeds config.ManualConfig, onKey func(Key)) error {
	dec := NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return stop(d, err)
		}
		k, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return stop(d, nil)
		}
		if err != nil {
			return stop(d, fmt.Errorf("reading keys: %w", err))
		}
		if k == KeyNone {
			continue
		}
		if onKey != nil {
			onKey(k)
		}
		if err := Apply(d, k, speeds); err != nil {
			return stop(d, fmt.Errorf("%s: %w", k, err))
		}
		if k == KeyQuit {
			return nil
		}
	}
}

func stop(d core.Drive, err error) error {
	if stopErr := d.Stop(); stopErr != nil && err == nil {
		return fmt.Errorf("stopping: %w", stopErr)
	}
	return err
}
