// Package relay decouples datagram arrival from the blocking flash on the
// caregiver node. A listener goroutine decodes datagrams and pushes their
// payloads onto a bounded queue; a consumer goroutine pops and actuates.
package relay

import (
	"context"
)

// DefaultCapacity is the relay queue length.
const DefaultCapacity = 10

// Queue is a bounded FIFO of color or label tokens. One producer and one
// consumer may use it concurrently.
type Queue struct {
	ch chan string
}

// NewQueue creates a queue holding at most capacity tokens.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan string, capacity)}
}

// TryPush enqueues token without blocking. It reports false when the queue
// is full and the token was dropped.
func (q *Queue) TryPush(token string) bool {
	select {
	case q.ch <- token:
		return true
	default:
		return false
	}
}

// Pop blocks until a token is available or ctx is done.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	select {
	case tok := <-q.ch:
		return tok, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len returns the number of queued tokens.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }
