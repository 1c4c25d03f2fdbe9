package sink

import (
	"context"
	"sync"

	"github.com/sweeney/caresync/internal/feedback"
)

// FakePoster records posts for test assertions. Safe for concurrent use.
type FakePoster struct {
	mu         sync.Mutex
	events     []feedback.Record
	heartbeats []feedback.Heartbeat

	// Status is returned for every successful post (default 200).
	Status int

	// EventError and HeartbeatError, if set, are returned instead of recording.
	EventError     error
	HeartbeatError error

	// OnHeartbeat, if set, is called after every recorded heartbeat.
	OnHeartbeat func(hb feedback.Heartbeat)
}

// NewFakePoster creates a FakePoster that answers 200.
func NewFakePoster() *FakePoster {
	return &FakePoster{Status: 200}
}

// PostEvent records the event.
func (f *FakePoster) PostEvent(_ context.Context, rec feedback.Record) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EventError != nil {
		return 0, f.EventError
	}
	f.events = append(f.events, rec)
	return f.Status, nil
}

// PostHeartbeat records the heartbeat.
func (f *FakePoster) PostHeartbeat(_ context.Context, hb feedback.Heartbeat) (int, error) {
	f.mu.Lock()
	if f.HeartbeatError != nil {
		err := f.HeartbeatError
		f.mu.Unlock()
		return 0, err
	}
	f.heartbeats = append(f.heartbeats, hb)
	hook := f.OnHeartbeat
	status := f.Status
	f.mu.Unlock()

	if hook != nil {
		hook(hb)
	}
	return status, nil
}

// Events returns a copy of the recorded events.
func (f *FakePoster) Events() []feedback.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedback.Record(nil), f.events...)
}

// Heartbeats returns a copy of the recorded heartbeats.
func (f *FakePoster) Heartbeats() []feedback.Heartbeat {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedback.Heartbeat(nil), f.heartbeats...)
}
