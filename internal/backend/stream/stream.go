// Package stream fans sink changes out to Redis streams so dashboards can
// follow events and device liveness without polling the API.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sweeney/caresync/internal/backend/domain"
)

const (
	EventsStream  = "caresync:events"
	DevicesStream = "caresync:devices"

	// maxLen caps each stream; trimming is approximate.
	maxLen = 1000
)

// Publisher appends records to Redis streams.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher creates a publisher on an existing client.
func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", addr, err)
	}
	return rdb, nil
}

// PublishEvent appends a stored event.
func (p *Publisher) PublishEvent(ctx context.Context, e domain.Event) error {
	return p.add(ctx, EventsStream, map[string]interface{}{
		"id":        e.ID,
		"device_id": e.DeviceID,
		"label":     e.Label,
		"timestamp": e.Timestamp.UTC().Format(time.RFC3339),
	})
}

// PublishDevice appends a device liveness update.
func (p *Publisher) PublishDevice(ctx context.Context, d domain.Device) error {
	return p.add(ctx, DevicesStream, map[string]interface{}{
		"id":        d.ID,
		"last_seen": d.LastSeen.UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) add(ctx context.Context, stream string, values map[string]interface{}) error {
	err := p.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
