// Package dispatch runs the sender's per-event sequence: local flash, then
// the datagram to the caregiver node, the optional debug datagram, the
// durable sink post and the optional MQTT mirror. Network steps are
// independent of one another, never retried, and their outcomes are logged
// and discarded.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/mqtt"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
)

// ErrBusy is returned when a dispatch is already in progress.
var ErrBusy = errors.New("dispatch: busy")

// ErrOffline is reported for network steps skipped because the node is offline.
var ErrOffline = sink.ErrOffline

// Channels, in dispatch order.
const (
	ChannelFlash = "flash"
	ChannelPeer  = "peer"
	ChannelDebug = "debug"
	ChannelSink  = "sink"
	ChannelMQTT  = "mqtt"
)

// Flasher runs the blocking local flash.
type Flasher interface {
	Flash(p feedback.Pattern) error
}

// DatagramSender sends one datagram. *udp.Sender satisfies it.
type DatagramSender interface {
	Send(dst *net.UDPAddr, payload []byte) error
}

// Outcome is the result of one dispatch step.
type Outcome struct {
	Channel  string
	Status   int // HTTP status, sink only
	Err      error
	Duration time.Duration
}

// Result maps the outcome to a metrics result label.
func (o Outcome) Result() string {
	switch {
	case errors.Is(o.Err, ErrOffline):
		return metrics.ResultOffline
	case o.Err != nil:
		return metrics.ResultError
	case o.Status != 0 && (o.Status < 200 || o.Status > 299):
		return metrics.ResultError
	}
	return metrics.ResultOK
}

// Config holds the destinations and identity used by every dispatch.
type Config struct {
	DeviceID string
	Peer     *net.UDPAddr
	Debug    *net.UDPAddr // nil disables the debug datagram
	Timeout  time.Duration
	Online   func() bool // nil means always online
}

// Dispatcher serializes event dispatch behind a busy flag.
type Dispatcher struct {
	busy atomic.Bool

	cfg       Config
	flasher   Flasher
	datagrams DatagramSender
	poster    sink.Poster
	mirror    mqtt.Publisher
	now       func() time.Time
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracker   *status.Tracker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMirror enables the MQTT mirror step.
func WithMirror(p mqtt.Publisher) Option {
	return func(d *Dispatcher) { d.mirror = p }
}

// WithMetrics records per-channel results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracker mirrors counts and the busy flag into the status tracker.
func WithTracker(t *status.Tracker) Option {
	return func(d *Dispatcher) { d.tracker = t }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(cfg Config, flasher Flasher, datagrams DatagramSender, poster sink.Poster, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		flasher:   flasher,
		datagrams: datagrams,
		poster:    poster,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "dispatch")),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Busy reports whether a dispatch is in progress.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Dispatch runs the full sequence for e and returns one Outcome per step
// attempted. A call made while another is in progress returns ErrBusy and
// has no side effects beyond counting the drop.
func (d *Dispatcher) Dispatch(ctx context.Context, e feedback.Event) ([]Outcome, error) {
	if !d.busy.CompareAndSwap(false, true) {
		d.Drop(e.Label())
		return nil, ErrBusy
	}
	d.setBusy(true)
	defer func() {
		d.busy.Store(false)
		d.setBusy(false)
	}()

	at := d.now()
	log := d.logger.With(zap.Int("id", e.ID()), zap.String("label", e.Label()), zap.String("color", string(e.Color())))
	log.Info("dispatching event")
	if d.metrics != nil {
		d.metrics.PressesTotal.WithLabelValues(e.Label()).Inc()
	}
	if d.tracker != nil {
		d.tracker.RecordEvent(e.Label(), string(e.Color()), at)
	}

	outcomes := make([]Outcome, 0, 5)
	record := func(o Outcome) {
		outcomes = append(outcomes, o)
		d.observe(log, o)
	}

	record(d.step(ChannelFlash, func() (int, error) {
		return 0, d.flasher.Flash(e.Category.Pattern)
	}))

	record(d.step(ChannelPeer, func() (int, error) {
		if !d.online() {
			return 0, ErrOffline
		}
		return 0, d.datagrams.Send(d.cfg.Peer, []byte(feedback.WireToken(e)))
	}))

	if d.cfg.Debug != nil {
		record(d.step(ChannelDebug, func() (int, error) {
			if !d.online() {
				return 0, ErrOffline
			}
			return 0, d.datagrams.Send(d.cfg.Debug, []byte(feedback.DebugToken(e)))
		}))
	}

	record(d.step(ChannelSink, func() (int, error) {
		pctx, cancel := d.withTimeout(ctx)
		defer cancel()
		return d.poster.PostEvent(pctx, feedback.NewRecord(d.cfg.DeviceID, e, at))
	}))

	if d.mirror != nil {
		record(d.step(ChannelMQTT, func() (int, error) {
			return 0, d.mirror.PublishFeedback(mqtt.FeedbackEvent{
				Timestamp: at,
				DeviceID:  d.cfg.DeviceID,
				ID:        e.ID(),
				Label:     e.Label(),
				Color:     string(e.Color()),
			})
		}))
	}

	return outcomes, nil
}

// Drop counts an event discarded because a dispatch was in progress.
func (d *Dispatcher) Drop(label string) {
	d.logger.Info("event dropped, dispatch in progress", zap.String("label", label))
	if d.metrics != nil {
		d.metrics.DroppedTotal.WithLabelValues(metrics.DropBusy).Inc()
	}
	if d.tracker != nil {
		d.tracker.RecordDrop(metrics.DropBusy)
	}
}

func (d *Dispatcher) step(channel string, fn func() (int, error)) Outcome {
	start := time.Now()
	code, err := fn()
	o := Outcome{Channel: channel, Status: code, Duration: time.Since(start)}
	if err != nil {
		o.Err = fmt.Errorf("%s: %w", channel, err)
	}
	return o
}

func (d *Dispatcher) observe(log *zap.Logger, o Outcome) {
	fields := []zap.Field{zap.String("channel", o.Channel), zap.Duration("took", o.Duration)}
	if o.Status != 0 {
		fields = append(fields, zap.Int("status", o.Status))
	}
	switch o.Result() {
	case metrics.ResultOK:
		log.Info("step ok", fields...)
	case metrics.ResultOffline:
		log.Warn("step skipped, network unavailable", fields...)
	default:
		if o.Err != nil {
			fields = append(fields, zap.Error(o.Err))
		}
		log.Warn("step failed", fields...)
	}
	if d.metrics != nil {
		d.metrics.ChannelResultsTotal.WithLabelValues(o.Channel, o.Result()).Inc()
		d.metrics.ChannelDuration.WithLabelValues(o.Channel).Observe(o.Duration.Seconds())
	}
}

func (d *Dispatcher) online() bool {
	return d.cfg.Online == nil || d.cfg.Online()
}

func (d *Dispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (d *Dispatcher) setBusy(b bool) {
	if d.tracker != nil {
		d.tracker.SetBusy(b)
	}
}
