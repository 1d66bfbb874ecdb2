package logic

import "time"

// Debouncer turns a raw level stream into clean transitions.
// A change is accepted when at least minDwell has passed since the last
// accepted transition. A rejected change (a bounce) restarts the dwell, so
// chatter never settles into a transition while it lasts.
type Debouncer struct {
	minDwell time.Duration
	state    bool
	raw      bool
	// lastChange is the later of the last accepted transition and the last
	// rejected raw change.
	lastChange     time.Time
	lastTransition time.Time
	counts         Counts
}

// NewDebouncer creates a debouncer in the power-on low state.
// startTime is the dwell reference for the very first transition.
func NewDebouncer(minDwell time.Duration, startTime time.Time) *Debouncer {
	return &Debouncer{
		minDwell:       minDwell,
		lastChange:     startTime,
		lastTransition: startTime,
	}
}

// Accept processes a raw level sampled at now.
// It returns the accepted transition, or nil when the state is unchanged or
// the change was rejected (see Counts().Ignored).
func (d *Debouncer) Accept(raw bool, now time.Time) *TransitionEvent {
	changed := raw != d.raw
	d.raw = raw
	if raw == d.state {
		return nil
	}

	if now.Sub(d.lastChange) < d.minDwell {
		d.counts.Ignored++
		if changed {
			d.lastChange = now
		}
		return nil
	}

	d.state = raw
	d.lastChange = now
	d.lastTransition = now

	ev := &TransitionEvent{Timestamp: now, Direction: directionFor(raw)}
	if raw {
		d.counts.Rising++
	} else {
		d.counts.Falling++
	}
	return ev
}

// State returns the currently accepted level.
func (d *Debouncer) State() bool {
	return d.state
}

// LastTransition returns the time of the last accepted transition
// (the start time if none was accepted yet).
func (d *Debouncer) LastTransition() time.Time {
	return d.lastTransition
}

// MinDwell returns the configured minimum dwell time.
func (d *Debouncer) MinDwell() time.Duration {
	return d.minDwell
}

// Counts returns a copy of the transition counters.
func (d *Debouncer) Counts() Counts {
	return d.counts
}
