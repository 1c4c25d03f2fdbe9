// Package metrics holds the Prometheus instruments shared by both node types.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Drop reasons
const (
	DropBusy      = "busy"
	DropQueueFull = "queue_full"
	DropMalformed = "malformed"
)

// Results
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultOffline = "offline"
)

// Metrics is one node's set of instruments, registered on its own registry
// so tests and multiple nodes in one process do not collide.
type Metrics struct {
	Registry *prometheus.Registry

	PressesTotal        *prometheus.CounterVec
	DroppedTotal        *prometheus.CounterVec
	ChannelResultsTotal *prometheus.CounterVec
	ChannelDuration     *prometheus.HistogramVec
	HeartbeatsTotal     *prometheus.CounterVec
	ReceivedTotal       *prometheus.CounterVec
	QueueDepth          prometheus.Gauge
}

// New creates and registers all instruments.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		PressesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caresync_presses_total",
				Help: "Total number of accepted button presses by label",
			},
			[]string{"label"},
		),

		DroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caresync_dropped_total",
				Help: "Total number of events dropped by reason",
			},
			[]string{"reason"},
		),

		ChannelResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caresync_channel_results_total",
				Help: "Total number of dispatch attempts by channel and result",
			},
			[]string{"channel", "result"},
		),

		ChannelDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caresync_channel_duration_seconds",
				Help:    "Duration of dispatch attempts by channel",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		HeartbeatsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caresync_heartbeats_total",
				Help: "Total number of heartbeat posts by result",
			},
			[]string{"result"},
		),

		ReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caresync_received_total",
				Help: "Total number of decoded datagrams by payload",
			},
			[]string{"payload"},
		),

		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caresync_relay_queue_depth",
				Help: "Entries waiting in the relay queue",
			},
		),
	}

	m.Registry.MustRegister(
		m.PressesTotal,
		m.DroppedTotal,
		m.ChannelResultsTotal,
		m.ChannelDuration,
		m.HeartbeatsTotal,
		m.ReceivedTotal,
		m.QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
