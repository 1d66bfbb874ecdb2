// Package status provides a thread-safe status tracker for the revolution
// counter. The sampling loop updates it, the LCD refresher and the MQTT
// lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/jfellner/revcounter/internal/logic"
)

// Config contains run configuration for display.
type Config struct {
	Mode               string // "adc", "digital" or "infrared"
	Device             string // e.g. "ADS7830@0x4b"
	Test               bool
	SkipRelease        bool
	MinDwellMs         int64
	WindowMs           int64
	PollMs             int64
	EdgesPerRevolution int
	Broker             string
}

// Snapshot is a point-in-time view of the counter state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Counts        logic.Counts
	Rate          logic.RateSnapshot
	Summary       logic.Summary
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the counter started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable counter state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	clock clock.Clock
}

// NewTracker creates a Tracker with the given config. The start time is
// taken from clk.
func NewTracker(clk clock.Clock, cfg Config) *Tracker {
	return &Tracker{
		clock: clk,
		snap: Snapshot{
			State:     logic.StateOff,
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// Update sets the accepted state, counters, latest rate and loop summary.
// Called from the sampling loop.
func (t *Tracker) Update(state logic.State, counts logic.Counts, rate logic.RateSnapshot, summary logic.Summary) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Counts = counts
	t.snap.Rate = rate
	t.snap.Summary = summary
	t.mu.Unlock()
}

// SetDevice records the detected input device.
func (t *Tracker) SetDevice(device string) {
	t.mu.Lock()
	t.snap.Config.Device = device
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the counter state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
