//go:build linux

package gpio

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// edgeBuffer is the number of edges kept while nobody is waiting.
const edgeBuffer = 64

// RealInput reads an input line using the Linux GPIO character device.
type RealInput struct {
	line   *gpiocdev.Line
	offset int
	edges  chan EdgeEvent
	// boot is the wall time of the kernel event clock origin.
	boot time.Time
}

// NewInput requests the given line offset on chip as an input.
func NewInput(chip string, offset int, cfg InputConfig) (*RealInput, error) {
	in := &RealInput{offset: offset}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch cfg.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	default:
		opts = append(opts, gpiocdev.WithBiasDisabled)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}
	if cfg.Edges {
		in.boot = monotonicOrigin()
		in.edges = make(chan EdgeEvent, edgeBuffer)
		opts = append(opts, gpiocdev.WithBothEdges, gpiocdev.WithEventHandler(in.handleEvent))
	}

	line, err := gpiocdev.RequestLine(chip, offset, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "request input pin %d", offset)
	}
	in.line = line
	return in, nil
}

// handleEvent runs in the gpiocdev watcher goroutine.
// Events are dropped when the buffer is full; the waiter only needs the latest ones.
func (in *RealInput) handleEvent(evt gpiocdev.LineEvent) {
	ev := EdgeEvent{
		Time:   eventTime(in.boot, evt.Timestamp),
		Rising: evt.Type == gpiocdev.LineEventRisingEdge,
		Seqno:  evt.LineSeqno,
	}
	select {
	case in.edges <- ev:
	default:
	}
}

// Level returns the logical level of the line.
func (in *RealInput) Level() (bool, error) {
	v, err := in.line.Value()
	if err != nil {
		return false, errors.Wrapf(err, "read pin %d", in.offset)
	}
	return v == 1, nil
}

// monotonicOrigin returns the wall time at which CLOCK_MONOTONIC, the clock
// of the kernel line event timestamps, was zero.
func monotonicOrigin() time.Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Time{}
	}
	return time.Now().Add(-time.Duration(ts.Nano()))
}

// WaitEdge blocks until the next wanted edge.
func (in *RealInput) WaitEdge(ctx context.Context, want Edge, timeout time.Duration) (EdgeEvent, error) {
	if in.edges == nil {
		return EdgeEvent{}, errors.Errorf("pin %d: edge detection not enabled", in.offset)
	}
	return waitEdge(ctx, in.edges, want, timeout)
}

// Close releases the line.
func (in *RealInput) Close() error {
	if in.line == nil {
		return nil
	}
	return errors.Wrapf(in.line.Close(), "close pin %d", in.offset)
}

// RealOutput drives an output line using the Linux GPIO character device.
type RealOutput struct {
	line   *gpiocdev.Line
	offset int
}

// NewOutput requests the given line offset on chip as an output, initially inactive.
func NewOutput(chip string, offset int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, errors.Wrapf(err, "request output pin %d", offset)
	}
	return &RealOutput{line: line, offset: offset}, nil
}

// Set drives the line.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return errors.Wrapf(o.line.SetValue(v), "set pin %d", o.offset)
}

// Close switches the line off and reverts it to an input with pull-down
// (matching Pi boot defaults) before releasing it.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}
	var err error
	multierr.AppendInto(&err, errors.Wrapf(o.line.SetValue(0), "clear pin %d", o.offset))
	multierr.AppendInto(&err, errors.Wrapf(o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown), "reconfigure pin %d", o.offset))
	multierr.AppendInto(&err, errors.Wrapf(o.line.Close(), "close pin %d", o.offset))
	return err
}
