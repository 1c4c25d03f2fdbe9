// Package domain holds the durable sink's record types.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput marks a request body the sink cannot store.
var ErrInvalidInput = errors.New("invalid input")

// Event is one stored feedback event. Timestamps are kept in UTC.
type Event struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"timestamp"`
}

// Device is a node and when it was last heard from.
type Device struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

// EventBody is the POST /api/event payload as sent by a node.
type EventBody struct {
	DeviceID  string `json:"device_id"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
}

// HeartbeatBody is the POST /api/heartbeat payload.
type HeartbeatBody struct {
	DeviceID string `json:"device_id"`
}

// CreateEventInput is a validated event ready for storage.
type CreateEventInput struct {
	DeviceID  string
	Label     string
	Timestamp time.Time
}

// Input validates the body and parses its ISO-8601 timestamp.
func (b EventBody) Input() (CreateEventInput, error) {
	if b.DeviceID == "" {
		return CreateEventInput{}, fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	if b.Label == "" {
		return CreateEventInput{}, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	ts, err := time.Parse(time.RFC3339, b.Timestamp)
	if err != nil {
		return CreateEventInput{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidInput, b.Timestamp, err)
	}
	return CreateEventInput{DeviceID: b.DeviceID, Label: b.Label, Timestamp: ts.UTC()}, nil
}
