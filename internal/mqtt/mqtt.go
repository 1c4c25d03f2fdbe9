// Package mqtt mirrors CareSync feedback and lifecycle events to an MQTT
// broker. The mirror is best effort: QoS 0, no buffering while disconnected.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// TopicPrefix is the root of every CareSync topic.
const TopicPrefix = "caresync"

// EventsTopic returns the feedback topic for a node role.
func EventsTopic(role string) string {
	return fmt.Sprintf("%s/%s/events", TopicPrefix, role)
}

// SystemTopic returns the lifecycle topic for a node role.
func SystemTopic(role string) string {
	return fmt.Sprintf("%s/%s/system", TopicPrefix, role)
}

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishFeedback sends a feedback event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishFeedback(event FeedbackEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// FeedbackEvent is one dispatched (sender) or received (receiver) feedback.
type FeedbackEvent struct {
	Timestamp time.Time
	DeviceID  string
	ID        int
	Label     string
	Color     string
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a feedback event.
type Payload struct {
	Feedback FeedbackPayload `json:"feedback"`
}

// FeedbackPayload contains the feedback event details.
type FeedbackPayload struct {
	Timestamp string `json:"timestamp"`
	DeviceID  string `json:"device_id"`
	ID        int    `json:"id"`
	Label     string `json:"label"`
	Color     string `json:"color"`
}

// FormatPayload creates the JSON payload for a feedback event.
func FormatPayload(event FeedbackEvent) ([]byte, error) {
	payload := Payload{
		Feedback: FeedbackPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			DeviceID:  event.DeviceID,
			ID:        event.ID,
			Label:     event.Label,
			Color:     event.Color,
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

// WillPayload is the last-will message the broker publishes if the node
// disappears without a clean shutdown.
func WillPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "CONNECTION_LOST"})
	return data
}
