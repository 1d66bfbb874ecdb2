// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/jfellner/revcounter/internal/logic"
)

// TopicPrefix is the root of all revcounter topics.
const TopicPrefix = "revcounter"

// DefaultClientID is used when no client id is configured.
const DefaultClientID = "revcounter"

// TopicEvents returns the topic for transition events of a client.
func TopicEvents(clientID string) string {
	return TopicPrefix + "/" + clientID + "/events"
}

// TopicSystem returns the topic for system lifecycle events of a client.
func TopicSystem(clientID string) string {
	return TopicPrefix + "/" + clientID + "/system"
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an accepted transition together with the current rate.
	// Returns error if publishing fails (should not stop the sampling loop).
	Publish(event logic.TransitionEvent, rate logic.RateSnapshot) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// timeFormat keeps millisecond resolution; transitions are only a few ms apart.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

// FormatTime formats a timestamp the way all payloads do.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Revcounter TransitionPayload `json:"revcounter"`
}

// TransitionPayload contains the transition details.
type TransitionPayload struct {
	Timestamp string      `json:"timestamp"`
	Direction string      `json:"direction"`
	State     string      `json:"state"`
	Rate      RatePayload `json:"rate"`
}

// RatePayload is the rate snapshot taken at the transition.
type RatePayload struct {
	Count        int     `json:"count"`
	WindowMs     int64   `json:"window_ms"`
	TransitionHz float64 `json:"transition_hz"`
	RPS          float64 `json:"rps"`
	RPM          float64 `json:"rpm"`
	Valid        bool    `json:"valid"`
}

// NewRatePayload converts a snapshot into its wire form.
func NewRatePayload(snap logic.RateSnapshot) RatePayload {
	return RatePayload{
		Count:        snap.Count,
		WindowMs:     snap.Window.Milliseconds(),
		TransitionHz: snap.TransitionHz,
		RPS:          snap.RPS,
		RPM:          snap.RPM,
		Valid:        snap.Valid,
	}
}

// FormatPayload creates the JSON payload for a transition event.
func FormatPayload(event logic.TransitionEvent, rate logic.RateSnapshot) ([]byte, error) {
	payload := Payload{
		Revcounter: TransitionPayload{
			Timestamp: FormatTime(event.Timestamp),
			Direction: string(event.Direction),
			State:     string(event.State()),
			Rate:      NewRatePayload(rate),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a run summary.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for run summaries).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: FormatTime(event.Timestamp),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes when the
// connection drops without a clean disconnect.
func WillPayload(now time.Time) []byte {
	b, _ := FormatSystemPayload(SystemEvent{Timestamp: now, Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return b
}
