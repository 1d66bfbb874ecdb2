package gpio

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Limits of the software PWM.
const (
	MaxPWMFrequency = 1000
	MinPWMFrequency = 1
)

type pwmParams struct {
	frequency float64
	duty      float64
}

// SoftPWM toggles an Output from a goroutine started with Run.
type SoftPWM struct {
	out    Output
	params chan pwmParams
}

// NewSoftPWM creates a software PWM controller on out. Nothing is driven
// until Run is called.
func NewSoftPWM(out Output) *SoftPWM {
	return &SoftPWM{
		out:    out,
		params: make(chan pwmParams, 1),
	}
}

// ValidatePWM checks frequency and duty cycle.
func ValidatePWM(frequency, duty float64) error {
	if frequency < MinPWMFrequency || frequency > MaxPWMFrequency {
		return errors.Errorf("invalid PWM frequency %v Hz (%d .. %d)", frequency, MinPWMFrequency, MaxPWMFrequency)
	}
	if duty < 0 || duty > 1 {
		return errors.Errorf("invalid PWM duty cycle %v (0 .. 1)", duty)
	}
	return nil
}

// Set changes frequency (Hz) and duty cycle (0..1). The change takes place
// at the end of the current period; a pending change is replaced.
func (p *SoftPWM) Set(frequency, duty float64) error {
	if err := ValidatePWM(frequency, duty); err != nil {
		return err
	}
	select {
	case <-p.params:
	default:
	}
	p.params <- pwmParams{frequency: frequency, duty: duty}
	return nil
}

// Run drives the output until ctx is done, then switches it off.
func (p *SoftPWM) Run(ctx context.Context) error {
	var on, off time.Duration
	off = 5 * time.Millisecond
	current := false
	if err := p.out.Set(false); err != nil {
		return errors.Wrap(err, "pwm")
	}
	defer p.out.Set(false)

	for {
		if on != 0 {
			if !current {
				if err := p.out.Set(true); err != nil {
					return errors.Wrap(err, "pwm")
				}
				current = true
			}
			if !sleep(ctx, on) {
				return nil
			}
		}
		if off != 0 {
			if current {
				if err := p.out.Set(false); err != nil {
					return errors.Wrap(err, "pwm")
				}
				current = false
			}
			if !sleep(ctx, off) {
				return nil
			}
		}
		// Check for new parameters after each cycle.
		select {
		case m := <-p.params:
			period := time.Duration(float64(time.Second) / m.frequency)
			on = time.Duration(float64(period) * m.duty)
			off = period - on
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// sleep waits for d, returning false if ctx was done first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
