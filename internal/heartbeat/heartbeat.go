// Package heartbeat posts node liveness to the durable sink on a fixed
// interval, independently of feedback traffic.
package heartbeat

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
)

// DefaultInterval is the liveness period.
const DefaultInterval = 30 * time.Second

// Scheduler posts a heartbeat immediately and then on every tick.
type Scheduler struct {
	poster   sink.Poster
	deviceID string
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracker  *status.Tracker
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics counts heartbeat results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracker records the last heartbeat in the status tracker.
func WithTracker(t *status.Tracker) Option {
	return func(s *Scheduler) { s.tracker = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. timeout bounds each post.
func New(poster sink.Poster, deviceID string, timeout time.Duration, logger *zap.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		poster:   poster,
		deviceID: deviceID,
		timeout:  timeout,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "heartbeat")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run beats once, then once per tick, until ctx is done or tick is closed.
func (s *Scheduler) Run(ctx context.Context, tick <-chan time.Time) {
	s.Beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tick:
			if !ok {
				return
			}
			s.Beat(ctx)
		}
	}
}

// Beat posts one heartbeat. Failures are logged and not retried.
func (s *Scheduler) Beat(ctx context.Context) (int, error) {
	at := s.now()
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	code, err := s.poster.PostHeartbeat(pctx, feedback.Heartbeat{DeviceID: s.deviceID})
	result := metrics.ResultOK
	switch {
	case errors.Is(err, sink.ErrOffline):
		result = metrics.ResultOffline
		s.logger.Warn("heartbeat skipped, network unavailable")
	case err != nil:
		result = metrics.ResultError
		s.logger.Warn("heartbeat failed", zap.Error(err))
	case code < 200 || code > 299:
		result = metrics.ResultError
		s.logger.Warn("heartbeat rejected", zap.Int("status", code))
	default:
		s.logger.Debug("heartbeat sent", zap.Int("status", code))
	}

	if s.metrics != nil {
		s.metrics.HeartbeatsTotal.WithLabelValues(result).Inc()
	}
	if s.tracker != nil {
		s.tracker.RecordHeartbeat(at, code, err)
	}
	return code, err
}
