package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/status"
)

// Actuator is the LED sequencer as seen by the consumer.
type Actuator interface {
	Flash(p feedback.Pattern) error
	AllOff() error
}

// Consumer pops tokens and runs the matching flash.
type Consumer struct {
	queue   *Queue
	act     Actuator
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracker *status.Tracker
}

// NewConsumer creates a Consumer. m and t may be nil.
func NewConsumer(queue *Queue, act Actuator, logger *zap.Logger, m *metrics.Metrics, t *status.Tracker) *Consumer {
	return &Consumer{
		queue:   queue,
		act:     act,
		logger:  logger.With(zap.String("component", "consumer")),
		metrics: m,
		tracker: t,
	}
}

// Run pops and actuates until ctx is done. It never polls: Pop blocks.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		tok, err := c.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if c.metrics != nil {
			c.metrics.QueueDepth.Set(float64(c.queue.Len()))
		}
		c.Handle(tok)
	}
}

// Handle actuates one token. Unknown tokens only force the LED off.
func (c *Consumer) Handle(tok string) {
	cat, ok := feedback.PatternFor(tok)
	if !ok {
		c.logger.Warn("no pattern for token", zap.String("token", tok))
		if err := c.act.AllOff(); err != nil {
			c.logger.Warn("failed to force LED off", zap.Error(err))
		}
		return
	}

	if c.tracker != nil {
		c.tracker.SetBusy(true)
		defer c.tracker.SetBusy(false)
	}
	if err := c.act.Flash(cat.Pattern); err != nil {
		c.logger.Warn("flash failed", zap.String("color", string(cat.Color)), zap.Error(err))
	}
}
