// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gpio-blinker/internal/logic"
)

// Topic is the MQTT topic for pin write events.
const Topic = "gpio/blinker/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "gpio/blinker/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pin write event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

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
	Event      string // e.g., "STARTUP", "SHUTDOWN"
	Reason     string // e.g., "SIGTERM", "SIGINT", "CYCLES" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Blinker BlinkerPayload `json:"blinker"`
}

// BlinkerPayload contains the pin write details.
type BlinkerPayload struct {
	Timestamp string `json:"timestamp"`
	Phase     int    `json:"phase"`
	Pin       int    `json:"pin"`
	Level     string `json:"level"`
	Cycle     int    `json:"cycle"`
}

// FormatPayload creates the JSON payload for a pin write event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Blinker: BlinkerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Phase:     event.Phase,
			Pin:       event.Pin,
			Level:     string(event.Level),
			Cycle:     event.Cycle,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
