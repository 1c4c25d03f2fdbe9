package relay

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/mqtt"
	"github.com/sweeney/caresync/internal/status"
	"github.com/sweeney/caresync/internal/udp"
)

// Source yields received datagrams. *udp.Listener satisfies it.
type Source interface {
	Receive() ([]byte, *net.UDPAddr, error)
}

// Listener decodes datagrams and feeds the relay queue.
type Listener struct {
	src      Source
	queue    *Queue
	deviceID string
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracker  *status.Tracker
	mirror   mqtt.Publisher
	now      func() time.Time
	pause    time.Duration
}

// DefaultRetryPause is the wait after a failed receive before the next one.
const DefaultRetryPause = 100 * time.Millisecond

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerMetrics counts received and dropped datagrams.
func WithListenerMetrics(m *metrics.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

// WithListenerTracker records received events and drops in the tracker.
func WithListenerTracker(t *status.Tracker) ListenerOption {
	return func(l *Listener) { l.tracker = t }
}

// WithMirror publishes every recognized message to MQTT.
func WithMirror(p mqtt.Publisher, deviceID string) ListenerOption {
	return func(l *Listener) {
		l.mirror = p
		l.deviceID = deviceID
	}
}

// WithRetryPause replaces DefaultRetryPause.
func WithRetryPause(d time.Duration) ListenerOption {
	return func(l *Listener) { l.pause = d }
}

// NewListener creates a Listener reading from src.
func NewListener(src Source, queue *Queue, logger *zap.Logger, opts ...ListenerOption) *Listener {
	l := &Listener{
		src:    src,
		queue:  queue,
		logger: logger.With(zap.String("component", "listener")),
		now:    time.Now,
		pause:  DefaultRetryPause,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run receives until the source is closed or ctx is done. Receive errors
// other than closure are logged and the loop resumes after the retry pause.
func (l *Listener) Run(ctx context.Context) error {
	for {
		buf, from, err := l.src.Receive()
		if err != nil {
			if udp.IsClosed(err) || ctx.Err() != nil {
				return nil
			}
			l.logger.Warn("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.pause):
			}
			continue
		}
		l.Handle(buf, from)
	}
}

// Handle decodes one datagram and enqueues its payload.
func (l *Listener) Handle(buf []byte, from *net.UDPAddr) {
	log := l.logger
	if from != nil {
		log = log.With(zap.Stringer("from", from))
	}

	msg, err := feedback.Decode(buf)
	if err != nil {
		log.Warn("discarding malformed datagram", zap.Error(err))
		l.drop(metrics.DropMalformed)
		return
	}

	cat, known := feedback.PatternFor(msg.Payload)
	payloadLabel := "unknown"
	if known {
		payloadLabel = cat.Label
		log.Info("feedback received",
			zap.String("id", msg.ID),
			zap.String("payload", msg.Payload),
			zap.String("meaning", cat.Meaning),
			zap.String("action", cat.Action),
		)
	} else {
		log.Warn("unrecognized payload", zap.String("id", msg.ID), zap.String("payload", msg.Payload))
	}
	if l.metrics != nil {
		l.metrics.ReceivedTotal.WithLabelValues(payloadLabel).Inc()
	}

	if !l.queue.TryPush(msg.Payload) {
		l.drop(metrics.DropQueueFull)
		return
	}
	if l.metrics != nil {
		l.metrics.QueueDepth.Set(float64(l.queue.Len()))
	}

	if known {
		at := l.now()
		if l.tracker != nil {
			l.tracker.RecordEvent(cat.Label, string(cat.Color), at)
		}
		if l.mirror != nil {
			err := l.mirror.PublishFeedback(mqtt.FeedbackEvent{
				Timestamp: at,
				DeviceID:  l.deviceID,
				ID:        cat.ID,
				Label:     cat.Label,
				Color:     string(cat.Color),
			})
			if err != nil {
				log.Debug("mqtt mirror failed", zap.Error(err))
			}
		}
	}
}

func (l *Listener) drop(reason string) {
	if l.metrics != nil {
		l.metrics.DroppedTotal.WithLabelValues(reason).Inc()
	}
	if l.tracker != nil {
		l.tracker.RecordDrop(reason)
	}
}
