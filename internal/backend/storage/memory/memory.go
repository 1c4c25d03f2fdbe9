// Package memory is an in-process event store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/caresync/internal/backend/domain"
)

// Store keeps events and devices in memory.
type Store struct {
	mu      sync.RWMutex
	events  []domain.Event
	devices map[string]time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{devices: map[string]time.Time{}}
}

// CreateEvent stores the event under a new id.
func (s *Store) CreateEvent(_ context.Context, in domain.CreateEventInput) (domain.Event, error) {
	evt := domain.Event{
		ID:        uuid.NewString(),
		DeviceID:  in.DeviceID,
		Label:     in.Label,
		Timestamp: in.Timestamp.UTC(),
	}
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	return evt, nil
}

// ListEvents returns every event, newest first.
func (s *Store) ListEvents(_ context.Context) ([]domain.Event, error) {
	s.mu.RLock()
	cloned := append([]domain.Event(nil), s.events...)
	s.mu.RUnlock()

	sort.SliceStable(cloned, func(i, j int) bool {
		return cloned[i].Timestamp.After(cloned[j].Timestamp)
	})
	return cloned, nil
}

// TouchDevice sets a device's last_seen, creating it if needed.
func (s *Store) TouchDevice(_ context.Context, id string, at time.Time) (domain.Device, error) {
	at = at.UTC()
	s.mu.Lock()
	s.devices[id] = at
	s.mu.Unlock()
	return domain.Device{ID: id, LastSeen: at}, nil
}

// ListDevices returns every known device ordered by id.
func (s *Store) ListDevices(_ context.Context) ([]domain.Device, error) {
	s.mu.RLock()
	out := make([]domain.Device, 0, len(s.devices))
	for id, at := range s.devices {
		out = append(out, domain.Device{ID: id, LastSeen: at})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
