// Package event defines the messages the run broadcasts to observers.
package event

import (
	"encoding/json"
	"fmt"
)

// Type tags an Event on the wire.
type Type string

const (
	Ready     Type = "ready"
	Waiting   Type = "waiting"
	Strafe    Type = "strafe"
	Angle     Type = "angle"
	Drive     Type = "drive"
	End       Type = "end"
	Cancelled Type = "cancelled"
)

// Event is a state change of the run. Optional fields are only present for
// the types that carry them.
type Event struct {
	Type Type `json:"type"`

	// Next is the phase a Waiting event announces.
	Next Type `json:"next,omitempty"`
	// StrafePos is the strafe result normalized to [-1, 1] of the half lane width.
	StrafePos *float64 `json:"strafePos,omitempty"`

	Heading         *float64 `json:"heading,omitempty"`
	PredictedGutter *bool    `json:"predictedGutter,omitempty"`
}

func NewReady() Event     { return Event{Type: Ready} }
func NewStrafe() Event    { return Event{Type: Strafe} }
func NewAngle() Event     { return Event{Type: Angle} }
func NewEnd() Event       { return Event{Type: End} }
func NewCancelled() Event { return Event{Type: Cancelled} }

// NewWaitingForStrafe announces the strafe scan.
func NewWaitingForStrafe() Event {
	return Event{Type: Waiting, Next: Strafe}
}

// NewWaitingForAngle announces the angle scan with the normalized strafe result.
func NewWaitingForAngle(strafePos float64) Event {
	return Event{Type: Waiting, Next: Angle, StrafePos: &strafePos}
}

// NewDrive announces the chosen heading and gutter prediction.
func NewDrive(heading float64, predictedGutter bool) Event {
	return Event{Type: Drive, Heading: &heading, PredictedGutter: &predictedGutter}
}

// Encode returns the JSON wire form.
func (e Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", e.Type, err)
	}
	return data, nil
}

// String returns the wire form, for logs.
func (e Event) String() string {
	data, err := e.Encode()
	if err != nil {
		return string(e.Type)
	}
	return string(data)
}

// Publisher receives events in the order the run produces them.
// Publish must not block on slow consumers.
type Publisher interface {
	Publish(Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Multi fans an event out to several publishers in order.
func Multi(pubs ...Publisher) Publisher {
	return PublisherFunc(func(e Event) {
		for _, p := range pubs {
			p.Publish(e)
		}
	})
}
