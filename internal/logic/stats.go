package logic

import "time"

// RunStats accumulates loop statistics for the final summary.
type RunStats struct {
	start       time.Time
	samples     int64
	transitions int64
	ignored     int64
}

// Summary is a point-in-time view of RunStats.
type Summary struct {
	Start       time.Time
	Elapsed     time.Duration
	Samples     int64
	Transitions int64
	Ignored     int64
	// SampleHz is the sampling throughput (samples per second).
	SampleHz float64
}

// NewRunStats creates statistics starting at startTime.
func NewRunStats(startTime time.Time) *RunStats {
	return &RunStats{start: startTime}
}

// AddSample counts one loop iteration.
func (s *RunStats) AddSample() {
	s.samples++
}

// AddTransition counts one accepted transition.
func (s *RunStats) AddTransition() {
	s.transitions++
}

// SetIgnored records the ignored transition count reported by the debouncer.
func (s *RunStats) SetIgnored(n int) {
	s.ignored = int64(n)
}

// Summary returns the statistics as of now.
func (s *RunStats) Summary(now time.Time) Summary {
	sum := Summary{
		Start:       s.start,
		Elapsed:     now.Sub(s.start),
		Samples:     s.samples,
		Transitions: s.transitions,
		Ignored:     s.ignored,
	}
	if sum.Elapsed > 0 {
		sum.SampleHz = float64(s.samples) / sum.Elapsed.Seconds()
	}
	return sum
}
