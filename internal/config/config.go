// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Robot        RobotConfig     `yaml:"robot"`
	Lane         LaneConfig      `yaml:"lane"`
	Speeds       SpeedConfig     `yaml:"speeds"`
	MaxTiltAngle float64         `yaml:"max_tilt_angle"`
	Pauses       PauseConfig     `yaml:"pauses"`
	Server       ServerConfig    `yaml:"server"`
	Serial       SerialConfig    `yaml:"serial"`
	Sensor       SensorConfig    `yaml:"sensor"`
	Workers      int             `yaml:"workers"`
	Logging      LoggingConfig   `yaml:"logging"`
	Utilities    UtilitiesConfig `yaml:"utilities"`
}

// RobotConfig describes the base. Diameter is the wheel track in mm.
type RobotConfig struct {
	Diameter float64 `yaml:"diameter"`
}

// LaneConfig is the physical course, in mm.
type LaneConfig struct {
	Width  float64 `yaml:"width"`
	Length float64 `yaml:"length"`
}

// HalfWidth returns the distance from the lane center to either gutter.
func (l LaneConfig) HalfWidth() float64 { return l.Width / 2 }

// SpeedConfig holds the wheel surface speeds (mm/s) used by each phase of a run.
type SpeedConfig struct {
	Strafe     float64 `yaml:"strafe"`
	Tilt       float64 `yaml:"tilt"`
	GutterTurn float64 `yaml:"gutter_turn"`
	Turn       float64 `yaml:"turn"`
	Drive      float64 `yaml:"drive"`
}

// PauseConfig holds the fixed settle delays of a run.
type PauseConfig struct {
	Start time.Duration `yaml:"start"`
	End   time.Duration `yaml:"end"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RelayRate caps relay messages per second per observer (0 = unlimited).
	RelayRate int `yaml:"relay_rate"`
	// SendBuffer is the outbound queue length per observer.
	SendBuffer   int           `yaml:"send_buffer"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type SerialConfig struct {
	Port    string        `yaml:"port"`
	Baud    int           `yaml:"baud"`
	Timeout time.Duration `yaml:"timeout"`
}

type SensorConfig struct {
	// PollRate caps bumper reads per second during scans (0 = tight loop).
	PollRate int `yaml:"poll_rate"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UtilitiesConfig holds the tuning of the single-shot utilities. These are
// independent of SpeedConfig and are tuned separately.
type UtilitiesConfig struct {
	Rotate TimedRotation `yaml:"rotate"`
	Spin   TimedRotation `yaml:"spin"`
	Manual ManualConfig  `yaml:"manual"`
}

type TimedRotation struct {
	Speed    int           `yaml:"speed"`
	Duration time.Duration `yaml:"duration"`
}

type ManualConfig struct {
	Forward int `yaml:"forward"`
	Reverse int `yaml:"reverse"`
	Rotate  int `yaml:"rotate"`
}

// Nominal returns the documented nominal values for the reference course and
// an iRobot Create 2 base.
func Nominal() *Config {
	return &Config{
		Robot: RobotConfig{Diameter: 235},
		Lane:  LaneConfig{Width: 1117.6, Length: 3073.4},
		Speeds: SpeedConfig{
			Strafe:     342,
			Tilt:       171,
			GutterTurn: 171,
			Turn:       228,
			Drive:      484.5,
		},
		MaxTiltAngle: 30,
		Pauses:       PauseConfig{Start: 500 * time.Millisecond, End: time.Second},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			SendBuffer:   64,
			WriteTimeout: 5 * time.Second,
		},
		Serial:  SerialConfig{Port: "/dev/ttyUSB0", Baud: 115200, Timeout: 500 * time.Millisecond},
		Workers: 1,
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Utilities: UtilitiesConfig{
			Rotate: TimedRotation{Speed: 114, Duration: 1619022530 * time.Nanosecond},
			Spin:   TimedRotation{Speed: 300, Duration: 2460914246 * time.Nanosecond},
			Manual: ManualConfig{Forward: 500, Reverse: -100, Rotate: 100},
		},
	}
}

// LoadConfig reads and parses a YAML configuration file. Keys missing from the
// file keep their nominal value. An empty path returns the nominal config.
func LoadConfig(path string) (*Config, error) {
	cfg := Nominal()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every physical constant is usable.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v float64) {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %v", name, v))
		}
	}
	positive("robot.diameter", c.Robot.Diameter)
	positive("lane.width", c.Lane.Width)
	positive("lane.length", c.Lane.Length)
	positive("speeds.strafe", c.Speeds.Strafe)
	positive("speeds.tilt", c.Speeds.Tilt)
	positive("speeds.gutter_turn", c.Speeds.GutterTurn)
	positive("speeds.turn", c.Speeds.Turn)
	positive("speeds.drive", c.Speeds.Drive)
	positive("max_tilt_angle", c.MaxTiltAngle)

	if c.MaxTiltAngle >= 90 {
		errs = append(errs, fmt.Errorf("max_tilt_angle must be < 90, got %v", c.MaxTiltAngle))
	}
	if c.Pauses.Start < 0 || c.Pauses.End < 0 {
		errs = append(errs, errors.New("pauses must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.RelayRate < 0 {
		errs = append(errs, fmt.Errorf("server.relay_rate must be >= 0, got %d", c.Server.RelayRate))
	}
	if c.Server.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("server.send_buffer must be >= 1, got %d", c.Server.SendBuffer))
	}
	if c.Sensor.PollRate < 0 {
		errs = append(errs, fmt.Errorf("sensor.poll_rate must be >= 0, got %d", c.Sensor.PollRate))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", c.Workers))
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be > 0, got %d", c.Serial.Baud))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'console' or 'json', got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
