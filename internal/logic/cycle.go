package logic

import "time"

// Cycle describes one complete ON/OFF period of the signal, measured from
// rising edge to rising edge.
type Cycle struct {
	// First is set for the very first rising edge, which only starts the
	// measurement. All other fields are zero in that case.
	First bool
	Start time.Time
	End   time.Time
	// Period is the time between the two rising edges.
	Period time.Duration
	Hz     float64
	// Number of samples seen in each state during the cycle.
	OnSamples  int
	OffSamples int
	// SampleDuty is OnSamples / (OnSamples + OffSamples).
	SampleDuty float64
	// High and Low are the durations spent in each state.
	High time.Duration
	Low  time.Duration
	// TimeDuty is High / Period.
	TimeDuty float64
}

// CycleTracker measures period and duty cycle of the signal on every rising
// edge. It consumes already clean levels (debounced, or edge wake-ups).
type CycleTracker struct {
	lit        bool
	started    bool
	cycleStart time.Time
	lastFall   time.Time
	onSamples  int
	offSamples int
}

// NewCycleTracker creates a tracker in the OFF state.
func NewCycleTracker() *CycleTracker {
	return &CycleTracker{}
}

// Observe records a level sampled at now. It returns a Cycle on rising edges,
// nil otherwise.
func (c *CycleTracker) Observe(level bool, now time.Time) *Cycle {
	if !level {
		if c.lit {
			c.lit = false
			c.lastFall = now
		}
		c.offSamples++
		return nil
	}

	if c.lit {
		c.onSamples++
		return nil
	}

	// OFF -> ON: close the running cycle and start the next one
	var cycle *Cycle
	if !c.started {
		cycle = &Cycle{First: true, End: now}
	} else {
		cycle = c.complete(now)
	}

	c.lit = true
	c.started = true
	c.cycleStart = now
	c.lastFall = time.Time{}
	c.onSamples = 1
	c.offSamples = 0
	return cycle
}

func (c *CycleTracker) complete(now time.Time) *Cycle {
	cycle := &Cycle{
		Start:      c.cycleStart,
		End:        now,
		Period:     now.Sub(c.cycleStart),
		OnSamples:  c.onSamples,
		OffSamples: c.offSamples,
	}
	if total := c.onSamples + c.offSamples; total > 0 {
		cycle.SampleDuty = float64(c.onSamples) / float64(total)
	}
	if !c.lastFall.IsZero() {
		cycle.High = c.lastFall.Sub(c.cycleStart)
		cycle.Low = now.Sub(c.lastFall)
	} else {
		cycle.High = cycle.Period
	}
	if cycle.Period > 0 {
		cycle.Hz = 1 / cycle.Period.Seconds()
		cycle.TimeDuty = float64(cycle.High) / float64(cycle.Period)
	}
	return cycle
}

// Lit reports whether the tracker currently sees the ON state.
func (c *CycleTracker) Lit() bool {
	return c.lit
}

// Rise records a rising edge when only rising edges are observed
// (skip-release mode). The returned cycle carries period and frequency only.
func (c *CycleTracker) Rise(now time.Time) *Cycle {
	var cycle *Cycle
	if !c.started {
		cycle = &Cycle{First: true, End: now}
	} else {
		cycle = &Cycle{Start: c.cycleStart, End: now, Period: now.Sub(c.cycleStart)}
		if cycle.Period > 0 {
			cycle.Hz = 1 / cycle.Period.Seconds()
		}
	}
	c.started = true
	c.cycleStart = now
	return cycle
}
