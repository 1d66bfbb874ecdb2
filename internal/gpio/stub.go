//go:build !linux

package gpio

import (
	"context"
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewInput returns an error on non-Linux platforms.
func NewInput(chip string, offset int, cfg InputConfig) (*RealInput, error) {
	return nil, errUnsupported
}

// Level is not implemented on non-Linux platforms.
func (in *RealInput) Level() (bool, error) {
	return false, errUnsupported
}

// WaitEdge is not implemented on non-Linux platforms.
func (in *RealInput) WaitEdge(ctx context.Context, want Edge, timeout time.Duration) (EdgeEvent, error) {
	return EdgeEvent{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (in *RealInput) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewOutput returns an error on non-Linux platforms.
func NewOutput(chip string, offset int) (*RealOutput, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (o *RealOutput) Set(on bool) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
