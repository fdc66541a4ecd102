package orchestrator

// RunState is the phase the machine is in. Exactly one is active at a time.
type RunState int32

const (
	WaitingForStart RunState = iota
	Turning
	Strafing
	AngleSelecting
	Driving
	Resetting
	// Stopped is reported once Run has returned.
	Stopped
)

func (s RunState) String() string {
	switch s {
	case WaitingForStart:
		return "WaitingForStart"
	case Turning:
		return "Turning"
	case Strafing:
		return "Strafing"
	case AngleSelecting:
		return "AngleSelecting"
	case Driving:
		return "Driving"
	case Resetting:
		return "Resetting"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Status is the snapshot served on /status.
type Status struct {
	State string `json:"state"`
	Cycle int64  `json:"cycle"`
}
