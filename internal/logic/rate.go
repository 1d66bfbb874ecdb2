package logic

import "time"

// Default rate estimation parameters of the steam engine flywheel:
// every spoke produces an ON and an OFF edge.
const (
	DefaultEdgesPerSpoke = 2
	DefaultSpokes        = 5
	DefaultWindowPeriod  = 5 * time.Second
)

// RateEstimator counts transitions in a trailing window that is reset once
// it grows longer than the configured period. Rates jump at reset
// boundaries; this is not a moving average.
type RateEstimator struct {
	edgesPerRevolution int
	period             time.Duration
	start              time.Time
	count              int
	resets             int
}

// NewRateEstimator creates an estimator whose first window starts at startTime.
func NewRateEstimator(edgesPerRevolution int, period time.Duration, startTime time.Time) *RateEstimator {
	return &RateEstimator{
		edgesPerRevolution: edgesPerRevolution,
		period:             period,
		start:              startTime,
	}
}

// Advance resets the window if it has been open for longer than the period.
// Returns true if a reset happened.
func (r *RateEstimator) Advance(now time.Time) bool {
	if now.Sub(r.start) <= r.period {
		return false
	}
	r.count = 0
	r.start = now
	r.resets++
	return true
}

// OnTransition counts the event, resetting the window first if it expired,
// and returns the rate at the event time.
func (r *RateEstimator) OnTransition(ev TransitionEvent) RateSnapshot {
	r.Advance(ev.Timestamp)
	r.count++
	return r.Snapshot(ev.Timestamp)
}

// Snapshot computes the rate of the current window at now without counting.
// A window of zero (or negative) length yields an invalid, all-zero snapshot.
func (r *RateEstimator) Snapshot(now time.Time) RateSnapshot {
	elapsed := now.Sub(r.start)
	snap := RateSnapshot{
		Timestamp: now,
		Count:     r.count,
		Window:    elapsed,
	}
	if elapsed <= 0 || r.edgesPerRevolution <= 0 {
		return snap
	}

	snap.TransitionHz = float64(r.count) / elapsed.Seconds()
	snap.RPS = snap.TransitionHz / float64(r.edgesPerRevolution)
	snap.RPM = snap.RPS * 60
	snap.Valid = true
	return snap
}

// EdgesPerRevolution returns the configured number of edges per revolution.
func (r *RateEstimator) EdgesPerRevolution() int {
	return r.edgesPerRevolution
}

// WindowStart returns the start of the current window.
func (r *RateEstimator) WindowStart() time.Time {
	return r.start
}

// Resets returns the number of window resets so far.
func (r *RateEstimator) Resets() int {
	return r.resets
}
