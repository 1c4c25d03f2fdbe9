// Package sink posts event and heartbeat records to the durable HTTP backend.
// Each post is attempted once; the response status is reported, never acted upon.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sweeney/caresync/internal/feedback"
)

// Backend endpoints.
const (
	EventPath     = "/api/event"
	HeartbeatPath = "/api/heartbeat"
)

// DefaultTimeout bounds a single post.
const DefaultTimeout = 5 * time.Second

// ErrOffline is returned without any request when the node has no network.
var ErrOffline = errors.New("sink: network unavailable")

// Poster is the durable sink as seen by the dispatcher and heartbeat scheduler.
type Poster interface {
	PostEvent(ctx context.Context, rec feedback.Record) (int, error)
	PostHeartbeat(ctx context.Context, hb feedback.Heartbeat) (int, error)
}

// Client is a Poster backed by resty.
type Client struct {
	http   *resty.Client
	online func() bool
}

// New creates a client for baseURL. online gates every post; nil means
// always online.
func New(baseURL string, timeout time.Duration, online func() bool) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{http: client, online: online}
}

// PostEvent sends a feedback record to the event endpoint.
func (c *Client) PostEvent(ctx context.Context, rec feedback.Record) (int, error) {
	return c.post(ctx, EventPath, rec)
}

// PostHeartbeat sends a liveness record to the heartbeat endpoint.
func (c *Client) PostHeartbeat(ctx context.Context, hb feedback.Heartbeat) (int, error) {
	return c.post(ctx, HeartbeatPath, hb)
}

func (c *Client) post(ctx context.Context, path string, body any) (int, error) {
	if c.online != nil && !c.online() {
		return 0, ErrOffline
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return 0, fmt.Errorf("POST %s: %w", path, err)
	}
	return resp.StatusCode(), nil
}
