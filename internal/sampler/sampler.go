// Package sampler turns the raw inputs (ADC channel, digital line, edge
// interrupts) into logic.Sample values for the pipeline.
package sampler

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/jfellner/revcounter/internal/adc"
	"github.com/jfellner/revcounter/internal/gpio"
	"github.com/jfellner/revcounter/internal/logic"
)

// ErrNoSample is returned by Next when a blocking wait ended without a
// sample (edge wait timeout). The caller checks for cancellation and retries.
var ErrNoSample = errors.New("sampler: no sample")

// Sampler produces one sample per call.
type Sampler interface {
	// Next returns the next sample. Polled samplers return immediately;
	// the edge sampler blocks until the next edge.
	Next(ctx context.Context) (logic.Sample, error)

	// Debounced reports whether every sample already is a clean transition
	// (edge wake-ups), bypassing the software debouncer.
	Debounced() bool

	// RisingOnly reports whether only rising edges are reported.
	RisingOnly() bool

	// Close releases the underlying device.
	Close() error
}

// Analog samples an ADC channel and thresholds the voltage.
type Analog struct {
	dev       adc.Device
	channel   int
	threshold float64
	clock     clock.Clock
}

// NewAnalog creates a polled analog sampler on channel of dev.
func NewAnalog(dev adc.Device, channel int, threshold float64, clk clock.Clock) *Analog {
	return &Analog{dev: dev, channel: channel, threshold: threshold, clock: clk}
}

// Next reads one sample.
func (a *Analog) Next(ctx context.Context) (logic.Sample, error) {
	raw, err := a.dev.Read(a.channel)
	if err != nil {
		return logic.Sample{}, err
	}
	v := logic.Normalize(raw, a.dev.Max())
	return logic.Sample{
		Time:    a.clock.Now(),
		Raw:     raw,
		Voltage: v,
		Level:   logic.Threshold(v, a.threshold),
	}, nil
}

// Debounced returns false.
func (a *Analog) Debounced() bool { return false }

// RisingOnly returns false.
func (a *Analog) RisingOnly() bool { return false }

// Close closes the ADC.
func (a *Analog) Close() error {
	return a.dev.Close()
}

// Digital polls the level of a digital input.
type Digital struct {
	in    gpio.Input
	clock clock.Clock
}

// NewDigital creates a polled digital sampler.
func NewDigital(in gpio.Input, clk clock.Clock) *Digital {
	return &Digital{in: in, clock: clk}
}

// Next reads the input level.
func (d *Digital) Next(ctx context.Context) (logic.Sample, error) {
	level, err := d.in.Level()
	if err != nil {
		return logic.Sample{}, err
	}
	return levelSample(d.clock.Now(), level), nil
}

// Debounced returns false.
func (d *Digital) Debounced() bool { return false }

// RisingOnly returns false.
func (d *Digital) RisingOnly() bool { return false }

// Close closes the input.
func (d *Digital) Close() error {
	return d.in.Close()
}

// Edge blocks until the input reports the next edge. It alternates between
// waiting for the rising and the falling edge, or waits for rising edges only
// when skipRelease is set.
type Edge struct {
	in          gpio.EdgeInput
	skipRelease bool
	timeout     time.Duration
	clock       clock.Clock
	level       bool
}

// NewEdge creates an edge-interrupt sampler. timeout bounds each wait so
// cancellation is noticed promptly (<= 0 waits forever).
func NewEdge(in gpio.EdgeInput, skipRelease bool, timeout time.Duration, clk clock.Clock) *Edge {
	return &Edge{in: in, skipRelease: skipRelease, timeout: timeout, clock: clk}
}

// Next waits for the next edge.
func (e *Edge) Next(ctx context.Context) (logic.Sample, error) {
	want := gpio.EdgeRising
	if e.level && !e.skipRelease {
		want = gpio.EdgeFalling
	}

	ev, err := e.in.WaitEdge(ctx, want, e.timeout)
	if errors.Is(err, gpio.ErrTimeout) {
		return logic.Sample{}, ErrNoSample
	}
	if err != nil {
		return logic.Sample{}, err
	}

	t := ev.Time
	if t.IsZero() {
		t = e.clock.Now()
	}
	e.level = ev.Rising
	return levelSample(t, ev.Rising), nil
}

// Debounced returns true: the hardware layer already debounced the edge.
func (e *Edge) Debounced() bool { return true }

// RisingOnly reports whether falling edges are skipped.
func (e *Edge) RisingOnly() bool { return e.skipRelease }

// Close closes the input.
func (e *Edge) Close() error {
	return e.in.Close()
}

func levelSample(t time.Time, level bool) logic.Sample {
	s := logic.Sample{Time: t, Level: level}
	if level {
		s.Voltage = logic.VRef
	}
	return s
}
