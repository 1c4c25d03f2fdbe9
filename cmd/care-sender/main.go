// Command care-sender reads the five feedback buttons on the wearer's node,
// flashes the matching color locally and relays each press to the caregiver
// node and the durable sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/actuator"
	"github.com/sweeney/caresync/internal/config"
	"github.com/sweeney/caresync/internal/dispatch"
	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/gpio"
	"github.com/sweeney/caresync/internal/heartbeat"
	"github.com/sweeney/caresync/internal/logger"
	"github.com/sweeney/caresync/internal/logic"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/mqtt"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
	"github.com/sweeney/caresync/internal/udp"
	"github.com/sweeney/caresync/internal/web"
)

func main() {
	cfg := config.LoadSender()
	cfg.RegisterFlags(flag.CommandLine)
	printState := flag.Bool("print-state", false, "Print current button levels and exit")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Sender, printState bool) error {
	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format, "care-sender")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zl.Sync()

	if printState {
		buttons, err := gpio.NewRealButtons(cfg.Chip, gpio.DefaultButtonPins)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer buttons.Close()
		levels, err := buttons.Read()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		for i, c := range feedback.Categories() {
			fmt.Printf("%d %-8s %s\n", c.ID, c.Label, levelString(levels[i]))
		}
		return nil
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Role:         status.RoleSender,
		DeviceID:     cfg.DeviceID,
		DebounceMode: cfg.DebounceMode,
		DebounceMs:   cfg.Debounce.Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Peer:         cfg.Peer,
		DebugPeer:    cfg.DebugPeer,
		Sink:         cfg.Sink,
		Broker:       cfg.Broker,
		HTTPAddr:     cfg.HTTPAddr,
	})
	if info := status.ReadNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}
	m := metrics.New()

	led, err := gpio.NewRealLED(cfg.Chip, gpio.DefaultLEDPins, cfg.ActiveLow)
	if err != nil {
		return fmt.Errorf("init led: %w", err)
	}
	defer led.Close()
	seq := actuator.New(led, actuator.DefaultConfig, zl)

	peer, err := udp.Resolve(cfg.Peer)
	if err != nil {
		return fmt.Errorf("peer: %w", err)
	}
	var debug *net.UDPAddr
	if cfg.DebugPeer != "" {
		a, err := udp.Resolve(cfg.DebugPeer)
		if err != nil {
			return fmt.Errorf("debug peer: %w", err)
		}
		debug = a
	}
	datagrams, err := udp.NewSender("", cfg.Timeout)
	if err != nil {
		return fmt.Errorf("init udp: %w", err)
	}
	defer datagrams.Close()

	poster := sink.New(cfg.Sink, cfg.Timeout, tracker.Online)

	// MQTT mirror is optional
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	opts := []dispatch.Option{dispatch.WithMetrics(m), dispatch.WithTracker(tracker)}
	if cfg.Broker != "" {
		rp := mqtt.NewRealPublisher(cfg.Broker, status.RoleSender, "caresync-sender-"+hostname(), zl)
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		opts = append(opts, dispatch.WithMirror(rp))
	}

	d := dispatch.New(dispatch.Config{
		DeviceID: cfg.DeviceID,
		Peer:     peer,
		Debug:    debug,
		Timeout:  cfg.Timeout,
		Online:   tracker.Online,
	}, seq, datagrams, poster, zl, opts...)

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	publishLifecycle(zl, publisher, mqttStatus, tracker, "STARTUP", "")

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, m.Registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zl.Error("http server error", zap.Error(err))
			}
		}()
		defer srv.Shutdown(context.Background())
		zl.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hbTicker := time.NewTicker(cfg.Heartbeat)
	defer hbTicker.Stop()
	hb := heartbeat.New(poster, cfg.DeviceID, cfg.Timeout, zl,
		heartbeat.WithMetrics(m), heartbeat.WithTracker(tracker))
	go hb.Run(ctx, hbTicker.C)

	zl.Info("started",
		zap.String("device_id", cfg.DeviceID),
		zap.String("debounce_mode", cfg.DebounceMode),
		zap.Duration("debounce", cfg.Debounce),
		zap.String("peer", cfg.Peer),
		zap.String("sink", cfg.Sink))

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctx, src, d, publisher, mqttStatus, tracker, zl, time.Now, ticker.C, sigCh)
}

// pressSource yields accepted presses, one call per control loop tick.
type pressSource interface {
	Presses(now time.Time) ([]int, error)
	Close() error
}

// edgeSource reports presses latched by the falling-edge callback.
type edgeSource struct {
	latch   *logic.EdgeLatch
	watcher interface{ Close() error }
}

// Presses returns the pending press first, followed by any accepted edges
// it replaced before the loop could take them.
func (s *edgeSource) Presses(time.Time) ([]int, error) {
	lost := s.latch.TakeSuperseded()
	if id, ok := s.latch.Take(); ok {
		return append([]int{id}, lost...), nil
	}
	return lost, nil
}

func (s *edgeSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

// pollSource samples the buttons and debounces in software.
type pollSource struct {
	buttons gpio.Buttons
	poller  *logic.Poller
}

func (s *pollSource) Presses(now time.Time) ([]int, error) {
	levels, err := s.buttons.Read()
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, p := range s.poller.Process(logic.Input{Levels: levels, Time: now}) {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func (s *pollSource) Close() error { return s.buttons.Close() }

func openSource(cfg *config.Sender) (pressSource, error) {
	if cfg.DebounceMode == config.DebouncePoll {
		buttons, err := gpio.NewRealButtons(cfg.Chip, gpio.DefaultButtonPins)
		if err != nil {
			return nil, fmt.Errorf("init gpio: %w", err)
		}
		return &pollSource{buttons: buttons, poller: logic.NewPoller(cfg.Debounce)}, nil
	}

	latch := logic.NewEdgeLatch(cfg.Debounce)
	w, err := gpio.NewEdgeWatcher(cfg.Chip, gpio.DefaultButtonPins, func(id int, at time.Duration) {
		latch.Record(id, at)
	})
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	return &edgeSource{latch: latch, watcher: w}, nil
}

func runLoop(ctx context.Context, src pressSource, d *dispatch.Dispatcher, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, zl *zap.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			zl.Info("shutting down", zap.String("signal", name))
			publishLifecycle(zl, publisher, mqttStatus, tracker, "SHUTDOWN", name)
			return nil

		case <-tick:
			ids, err := src.Presses(now())
			if err != nil {
				zl.Warn("gpio read error", zap.Error(err))
				continue
			}
			if len(ids) > 0 {
				handlePresses(ctx, zl, d, ids)

				// Presses captured while the dispatch was running are stale.
				stale, err := src.Presses(now())
				if err != nil {
					zl.Warn("gpio read error", zap.Error(err))
				}
				for _, id := range stale {
					if e, err := feedback.NewEvent(id); err == nil {
						d.Drop(e.Label())
					}
				}
			}

			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// handlePresses dispatches the first press of a tick and drops the rest.
func handlePresses(ctx context.Context, zl *zap.Logger, d *dispatch.Dispatcher, ids []int) {
	for i, id := range ids {
		e, err := feedback.NewEvent(id)
		if err != nil {
			zl.Warn("ignoring press", zap.Int("id", id), zap.Error(err))
			continue
		}
		if i > 0 {
			d.Drop(e.Label())
			continue
		}
		if _, err := d.Dispatch(ctx, e); err != nil && !errors.Is(err, dispatch.ErrBusy) {
			zl.Error("dispatch failed", zap.Error(err))
		}
	}
}

func publishLifecycle(zl *zap.Logger, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, event, reason string) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		zl.Warn("failed to publish lifecycle event", zap.String("event", event), zap.Error(err))
		return
	}
	zl.Info("published lifecycle event", zap.String("event", event))
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func levelString(l logic.Level) string {
	if l == logic.Low {
		return "PRESSED"
	}
	return "RELEASED"
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
