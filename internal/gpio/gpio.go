// Package gpio provides digital inputs, outputs and a software PWM with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import (
	"context"
	"errors"
	"time"
)

// Input reads a digital input line.
type Input interface {
	// Level returns the logical level of the line (active-low already applied).
	Level() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// EdgeInput is an Input that can block until the line changes.
type EdgeInput interface {
	Input

	// WaitEdge blocks until an edge of the wanted kind is reported, the
	// timeout expires (ErrTimeout) or ctx is done.
	// A timeout <= 0 waits without limit.
	WaitEdge(ctx context.Context, want Edge, timeout time.Duration) (EdgeEvent, error)
}

// Output drives a digital output line.
type Output interface {
	// Set drives the line active (true) or inactive (false).
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Edge selects which transitions WaitEdge reports.
type Edge int

const (
	EdgeBoth Edge = iota
	EdgeRising
	EdgeFalling
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	default:
		return "both"
	}
}

// Matches reports whether an edge in the given direction is wanted.
func (e Edge) Matches(rising bool) bool {
	switch e {
	case EdgeRising:
		return rising
	case EdgeFalling:
		return !rising
	default:
		return true
	}
}

// EdgeEvent is a single edge reported by the kernel.
type EdgeEvent struct {
	// Time of the edge as stamped by the kernel.
	Time time.Time
	// Rising is true for an inactive -> active transition.
	Rising bool
	// Seqno is the kernel sequence number of the event on its line.
	Seqno uint32
}

// Pull selects the bias of an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// InputConfig configures an input line.
type InputConfig struct {
	Pull      Pull
	ActiveLow bool
	// Debounce is the kernel debounce period (0 disables).
	Debounce time.Duration
	// Edges enables edge detection for WaitEdge.
	Edges bool
}

// eventTime converts a kernel event timestamp into wall time, given the wall
// time of the kernel clock origin. Without an origin the receive time is used.
func eventTime(origin time.Time, ts time.Duration) time.Time {
	if origin.IsZero() || ts <= 0 {
		return time.Now()
	}
	return origin.Add(ts)
}

// ErrTimeout is returned by WaitEdge when no edge arrived in time.
var ErrTimeout = errors.New("gpio: timeout waiting for edge")

// Pin definitions (BCM numbering)
const (
	DefaultChip  = "gpiochip0"
	PinLED       = 17 // result LED
	PinButton    = 18 // push button or LDR voltage divider
	PinBreakbeam = 23 // IR breakbeam receiver, open collector
	PinPWMLED    = 27 // calibration LED shining on the LDR
)

// ButtonConfig is the configuration of the push button / LDR divider input:
// pulled up, pressed pulls the line low.
func ButtonConfig(debounce time.Duration) InputConfig {
	return InputConfig{Pull: PullUp, ActiveLow: true, Debounce: debounce}
}

// BreakbeamConfig is the configuration of the IR breakbeam receiver:
// external pull-up, inverted logic.
func BreakbeamConfig() InputConfig {
	return InputConfig{Pull: PullNone, ActiveLow: true}
}
