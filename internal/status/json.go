package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Device        string     `json:"device,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Rate          RateJSON   `json:"rate"`
	Samples       int64      `json:"samples"`
	SampleHz      float64    `json:"sample_hz"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Rising  int `json:"rising"`
	Falling int `json:"falling"`
	Ignored int `json:"ignored"`
}

// RateJSON is the JSON representation of the latest rate snapshot.
type RateJSON struct {
	RPS   float64 `json:"rps"`
	RPM   float64 `json:"rpm"`
	Valid bool    `json:"valid"`
}

// ConfigJSON is the JSON representation of the run config.
type ConfigJSON struct {
	Mode               string `json:"mode"`
	Test               bool   `json:"test"`
	SkipRelease        bool   `json:"skip_release"`
	MinDwellMs         int64  `json:"min_dwell_ms"`
	WindowMs           int64  `json:"window_ms"`
	PollMs             int64  `json:"poll_ms"`
	EdgesPerRevolution int    `json:"edges_per_revolution"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	return StatusInner{
		State:         state,
		Device:        snap.Config.Device,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Rising:  snap.Counts.Rising,
			Falling: snap.Counts.Falling,
			Ignored: snap.Counts.Ignored,
		},
		Rate: RateJSON{
			RPS:   snap.Rate.RPS,
			RPM:   snap.Rate.RPM,
			Valid: snap.Rate.Valid,
		},
		Samples:  snap.Summary.Samples,
		SampleHz: snap.Summary.SampleHz,
		Config: ConfigJSON{
			Mode:               snap.Config.Mode,
			Test:               snap.Config.Test,
			SkipRelease:        snap.Config.SkipRelease,
			MinDwellMs:         snap.Config.MinDwellMs,
			WindowMs:           snap.Config.WindowMs,
			PollMs:             snap.Config.PollMs,
			EdgesPerRevolution: snap.Config.EdgesPerRevolution,
		},
	}
}

// FormatJSON returns the indented JSON status (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
