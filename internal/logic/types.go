// Package logic contains the pure signal logic of the revolution counter:
// debouncing, rate estimation and cycle measurement.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of the sensed signal.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Direction is the direction of an accepted transition.
type Direction string

const (
	Rising  Direction = "RISING"
	Falling Direction = "FALLING"
)

// Reference voltage and midpoint threshold of the ADC input.
const (
	VRef             = 3.3
	DefaultThreshold = VRef / 2
)

// Sample is a single measurement taken by a sampler.
type Sample struct {
	Time time.Time
	// Raw ADC count, zero for digital samples.
	Raw int
	// Voltage is the normalized input voltage (0.0 .. VRef).
	// Digital samples report 0 or VRef.
	Voltage float64
	// Level is the thresholded logical level.
	Level bool
}

// TransitionEvent records a state change accepted by the debouncer
// (or reported directly by an edge-interrupt sampler).
type TransitionEvent struct {
	Timestamp time.Time
	Direction Direction
}

// State returns the state the signal changed into.
func (e TransitionEvent) State() State {
	if e.Direction == Rising {
		return StateOn
	}
	return StateOff
}

// RateSnapshot is the rate computed over the current window.
type RateSnapshot struct {
	Timestamp time.Time
	// Count is the number of transitions in the current window.
	Count int
	// Window is the elapsed time since the window started.
	Window       time.Duration
	TransitionHz float64
	RPS          float64
	RPM          float64
	// Valid is false when no rate could be computed (zero window).
	// All rates are zero in that case.
	Valid bool
}

// Counts tracks the number of accepted and ignored transitions since startup.
type Counts struct {
	Rising  int
	Falling int
	Ignored int
}

// Accepted returns the total number of accepted transitions.
func (c Counts) Accepted() int {
	return c.Rising + c.Falling
}

// Normalize converts a raw ADC count in [0, max] to a voltage in [0, VRef].
// Values outside the range are clamped. A max <= 0 yields 0.
func Normalize(raw, max int) float64 {
	if max <= 0 {
		return 0
	}
	if raw < 0 {
		raw = 0
	}
	if raw > max {
		raw = max
	}
	return float64(raw) / float64(max) * VRef
}

// Threshold converts a voltage into a logical level.
func Threshold(voltage, threshold float64) bool {
	return voltage >= threshold
}

// BoolToState converts a logical level into a State.
func BoolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

func directionFor(level bool) Direction {
	if level {
		return Rising
	}
	return Falling
}

// NewTransition creates the event for a change into level at t.
// Used when the input already reports clean edges.
func NewTransition(level bool, t time.Time) TransitionEvent {
	return TransitionEvent{Timestamp: t, Direction: directionFor(level)}
}
