package main

import (
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/actuator"
	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/gpio"
	"github.com/sweeney/caresync/internal/heartbeat"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/mqtt"
	"github.com/sweeney/caresync/internal/relay"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
	"github.com/sweeney/caresync/internal/udp"
)

type receiverHarness struct {
	conn     *udp.Listener
	led      *gpio.FakeLED
	poster   *sink.FakePoster
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	listener *relay.Listener
	consumer *relay.Consumer
	hb       *heartbeat.Scheduler
}

func newReceiverHarness(t *testing.T) *receiverHarness {
	t.Helper()
	conn, err := udp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	h := &receiverHarness{
		conn:    conn,
		led:     gpio.NewFakeLED(),
		poster:  sink.NewFakePoster(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(time.Now(), status.Config{Role: status.RoleReceiver, DeviceID: "Caregiver"}),
	}
	m := metrics.New()
	seq := actuator.New(h.led, actuator.DefaultConfig, zap.NewNop(), actuator.WithSleep(func(time.Duration) {}))
	queue := relay.NewQueue(relay.DefaultCapacity)
	h.listener = relay.NewListener(conn, queue, zap.NewNop(),
		relay.WithListenerMetrics(m), relay.WithListenerTracker(h.tracker), relay.WithMirror(h.pub, "Caregiver"))
	h.consumer = relay.NewConsumer(queue, seq, zap.NewNop(), m, h.tracker)
	h.hb = heartbeat.New(h.poster, "Caregiver", time.Second, zap.NewNop(), heartbeat.WithTracker(h.tracker))
	return h
}

func (h *receiverHarness) start(t *testing.T) (statusTick chan time.Time, sig chan os.Signal, done chan error) {
	t.Helper()
	statusTick = make(chan time.Time)
	sig = make(chan os.Signal, 1)
	done = make(chan error, 1)
	go func() {
		done <- serve(zap.NewNop(), h.listener, h.consumer, h.conn, h.hb, h.pub, h.pub, h.tracker, nil, statusTick, sig)
	}()
	return statusTick, sig, done
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func stop(t *testing.T, sig chan os.Signal, done chan error, s os.Signal) {
	t.Helper()
	sig <- s
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeFlashesReceivedFeedback(t *testing.T) {
	h := newReceiverHarness(t)
	_, sig, done := h.start(t)

	sender, err := udp.NewSender("", time.Second)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	defer sender.Close()
	if err := sender.Send(h.conn.Addr(), []byte("4:BLUE")); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "pain to be flashed", func() bool {
		for _, p := range h.led.Patterns() {
			if p.Blue && !p.Red && !p.Green {
				return true
			}
		}
		return false
	})

	stop(t, sig, done, syscall.SIGTERM)

	if got := h.tracker.Snapshot().Counts["pain"]; got != 1 {
		t.Errorf("Counts[pain]: got %d, want 1", got)
	}
	if got := h.pub.Events(); len(got) != 1 || got[0].Label != "pain" || got[0].DeviceID != "Caregiver" {
		t.Errorf("mirror: got %+v", got)
	}
	if h.led.Last() != feedback.Off {
		t.Errorf("LED should end off, got %+v", h.led.Last())
	}
}

func TestServeBeatsOnStart(t *testing.T) {
	h := newReceiverHarness(t)
	_, sig, done := h.start(t)

	waitFor(t, "initial heartbeat", func() bool { return len(h.poster.Heartbeats()) == 1 })
	stop(t, sig, done, syscall.SIGINT)

	if hb := h.poster.Heartbeats()[0]; hb.DeviceID != "Caregiver" {
		t.Errorf("heartbeat device: got %q", hb.DeviceID)
	}
}

func TestServeShutdownPublishesAfterStopping(t *testing.T) {
	h := newReceiverHarness(t)
	_, sig, done := h.start(t)
	stop(t, sig, done, syscall.SIGTERM)

	sys := h.pub.SystemEvents()
	if len(sys) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(sys))
	}
	if sys[0].Event != "SHUTDOWN" || sys[0].Reason != "SIGTERM" || !sys[0].Retained {
		t.Errorf("unexpected shutdown event: %+v", sys[0])
	}
	if !strings.Contains(string(sys[0].RawPayload), `"role":"receiver"`) {
		t.Errorf("expected receiver status payload, got %s", sys[0].RawPayload)
	}

	// The socket is closed on shutdown.
	if _, _, err := h.conn.Receive(); !udp.IsClosed(err) {
		t.Errorf("expected closed listener, got %v", err)
	}
}

func TestServeTracksMQTTConnection(t *testing.T) {
	h := newReceiverHarness(t)
	h.pub.Connected = true
	statusTick, sig, done := h.start(t)

	statusTick <- time.Now()
	waitFor(t, "mqtt status", func() bool { return h.tracker.Snapshot().MQTTConnected })
	stop(t, sig, done, syscall.SIGTERM)
}

func TestSignalName(t *testing.T) {
	if signalName(syscall.SIGTERM) != "SIGTERM" || signalName(syscall.SIGINT) != "SIGINT" || signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("unexpected signal names")
	}
}
