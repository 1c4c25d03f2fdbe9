// Command care-receiver runs on the caregiver's node. It listens for
// feedback datagrams from the wearer's node and flashes the matching color.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/actuator"
	"github.com/sweeney/caresync/internal/config"
	"github.com/sweeney/caresync/internal/gpio"
	"github.com/sweeney/caresync/internal/heartbeat"
	"github.com/sweeney/caresync/internal/logger"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/mqtt"
	"github.com/sweeney/caresync/internal/relay"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
	"github.com/sweeney/caresync/internal/udp"
	"github.com/sweeney/caresync/internal/web"
)

func main() {
	cfg := config.LoadReceiver()
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Receiver) error {
	zl, err := logger.New(cfg.Log.Level, cfg.Log.Format, "care-receiver")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer zl.Sync()

	tracker := status.NewTracker(time.Now(), status.Config{
		Role:          status.RoleReceiver,
		DeviceID:      cfg.DeviceID,
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Peer:          cfg.Listen,
		Sink:          cfg.Sink,
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		QueueCapacity: cfg.QueueCapacity,
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

	conn, err := udp.Listen(cfg.Listen)
	if err != nil {
		return fmt.Errorf("init udp: %w", err)
	}
	defer conn.Close()

	// MQTT mirror is optional
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	lopts := []relay.ListenerOption{relay.WithListenerMetrics(m), relay.WithListenerTracker(tracker)}
	if cfg.Broker != "" {
		rp := mqtt.NewRealPublisher(cfg.Broker, status.RoleReceiver, "caresync-receiver-"+hostname(), zl)
		defer rp.Close()
		publisher, mqttStatus = rp, rp
		lopts = append(lopts, relay.WithMirror(rp, cfg.DeviceID))
	}

	queue := relay.NewQueue(cfg.QueueCapacity)
	listener := relay.NewListener(conn, queue, zl, lopts...)
	consumer := relay.NewConsumer(queue, seq, zl, m, tracker)

	publishLifecycle(zl, publisher, mqttStatus, tracker, "STARTUP", "")

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

	poster := sink.New(cfg.Sink, cfg.Timeout, tracker.Online)
	hb := heartbeat.New(poster, cfg.DeviceID, cfg.Timeout, zl,
		heartbeat.WithMetrics(m), heartbeat.WithTracker(tracker))
	hbTicker := time.NewTicker(cfg.Heartbeat)
	defer hbTicker.Stop()

	zl.Info("started",
		zap.String("device_id", cfg.DeviceID),
		zap.Stringer("listen", conn.Addr()),
		zap.Int("queue_capacity", queue.Cap()),
		zap.String("sink", cfg.Sink))

	// The ready sequence runs before the consumer so it cannot interleave
	// with a relayed flash.
	if err := seq.ReadySequence(cfg.ReadyGap); err != nil {
		zl.Warn("ready sequence failed", zap.Error(err))
	}

	statusTicker := time.NewTicker(time.Second)
	defer statusTicker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return serve(zl, listener, consumer, conn, hb, publisher, mqttStatus, tracker, hbTicker.C, statusTicker.C, sigCh)
}

// serve runs the listener, consumer and heartbeat until a signal arrives,
// then stops them and publishes SHUTDOWN.
func serve(zl *zap.Logger, listener *relay.Listener, consumer *relay.Consumer, src io.Closer, hb *heartbeat.Scheduler, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, hbTick, statusTick <-chan time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := listener.Run(ctx); err != nil {
			zl.Error("listener stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil {
			zl.Error("consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		hb.Run(ctx, hbTick)
	}()

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			zl.Info("shutting down", zap.String("signal", name))
			cancel()
			if err := src.Close(); err != nil {
				zl.Warn("close listener", zap.Error(err))
			}
			wg.Wait()
			publishLifecycle(zl, publisher, mqttStatus, tracker, "SHUTDOWN", name)
			return nil

		case <-statusTick:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
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

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
