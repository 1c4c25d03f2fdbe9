package internal

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/actuator"
	"github.com/sweeney/caresync/internal/backend/api"
	"github.com/sweeney/caresync/internal/backend/storage/memory"
	"github.com/sweeney/caresync/internal/dispatch"
	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/gpio"
	"github.com/sweeney/caresync/internal/heartbeat"
	"github.com/sweeney/caresync/internal/logic"
	"github.com/sweeney/caresync/internal/metrics"
	"github.com/sweeney/caresync/internal/relay"
	"github.com/sweeney/caresync/internal/sink"
	"github.com/sweeney/caresync/internal/status"
	"github.com/sweeney/caresync/internal/udp"
)

func noSleep(time.Duration) {}

// startSink runs the durable sink on a loopback port and returns its base URL.
func startSink(t *testing.T, store *memory.Store) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := api.NewServer(api.Config{Addr: ln.Addr().String()}, store, zap.NewNop())
	go srv.App().Listener(ln)
	t.Cleanup(func() { srv.App().Shutdown() })
	return "http://" + ln.Addr().String()
}

// receiverNode is a caregiver node wired to a fake LED.
type receiverNode struct {
	conn    *udp.Listener
	led     *gpio.FakeLED
	tracker *status.Tracker
	metrics *metrics.Metrics
}

func startReceiver(t *testing.T) *receiverNode {
	t.Helper()
	conn, err := udp.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	n := &receiverNode{
		conn:    conn,
		led:     gpio.NewFakeLED(),
		tracker: status.NewTracker(time.Now(), status.Config{Role: status.RoleReceiver, DeviceID: "Caregiver"}),
		metrics: metrics.New(),
	}
	seq := actuator.New(n.led, actuator.DefaultConfig, zap.NewNop(), actuator.WithSleep(noSleep))
	queue := relay.NewQueue(relay.DefaultCapacity)
	listener := relay.NewListener(conn, queue, zap.NewNop(),
		relay.WithListenerMetrics(n.metrics), relay.WithListenerTracker(n.tracker))
	consumer := relay.NewConsumer(queue, seq, zap.NewNop(), n.metrics, n.tracker)

	ctx, cancel := context.WithCancel(context.Background())
	go listener.Run(ctx)
	go consumer.Run(ctx)
	t.Cleanup(func() {
		cancel()
		conn.Close()
	})
	return n
}

// senderNode is a wearer node with scripted buttons.
type senderNode struct {
	led     *gpio.FakeLED
	tracker *status.Tracker
	poster  *sink.Client
	d       *dispatch.Dispatcher
}

func startSender(t *testing.T, peer *net.UDPAddr, sinkURL string) *senderNode {
	t.Helper()
	datagrams, err := udp.NewSender("", time.Second)
	if err != nil {
		t.Fatalf("sender socket: %v", err)
	}
	t.Cleanup(func() { datagrams.Close() })

	n := &senderNode{
		led:     gpio.NewFakeLED(),
		tracker: status.NewTracker(time.Now(), status.Config{Role: status.RoleSender, DeviceID: "Care Recipient"}),
	}
	n.poster = sink.New(sinkURL, time.Second, n.tracker.Online)

	clock := time.Date(2026, 2, 2, 14, 18, 12, 0, time.UTC)
	seq := actuator.New(n.led, actuator.DefaultConfig, zap.NewNop(), actuator.WithSleep(noSleep))
	n.d = dispatch.New(dispatch.Config{
		DeviceID: "Care Recipient",
		Peer:     peer,
		Timeout:  time.Second,
		Online:   n.tracker.Online,
	}, seq, datagrams, n.poster, zap.NewNop(),
		dispatch.WithTracker(n.tracker),
		dispatch.WithClock(func() time.Time {
			clock = clock.Add(time.Minute)
			return clock
		}))
	return n
}

// press runs the sender's control loop over the scripted samples.
func (n *senderNode) press(t *testing.T, samples ...[logic.NumButtons]logic.Level) {
	t.Helper()
	buttons := gpio.NewFakeButtons(samples...)
	poller := logic.NewPoller(150 * time.Millisecond)
	now := time.Date(2026, 2, 2, 14, 0, 0, 0, time.UTC)
	for i := range samples {
		levels, err := buttons.Read()
		if err != nil {
			t.Fatalf("sample %d: %v", i, err)
		}
		for _, p := range poller.Process(logic.Input{Levels: levels, Time: now}) {
			e, err := feedback.NewEvent(p.ID)
			if err != nil {
				t.Fatalf("sample %d: %v", i, err)
			}
			if _, err := n.d.Dispatch(context.Background(), e); err != nil {
				t.Fatalf("sample %d: dispatch: %v", i, err)
			}
		}
		now = now.Add(10 * time.Millisecond)
	}
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

// colorsSeen lists the color of every on-phase the LED was driven through.
func colorsSeen(led *gpio.FakeLED) []feedback.Color {
	var out []feedback.Color
	var prev feedback.Pattern
	for _, p := range led.Patterns() {
		if p != feedback.Off && p != prev {
			for _, c := range feedback.Categories() {
				if c.Pattern == p {
					out = append(out, c.Color)
				}
			}
		}
		prev = p
	}
	return out
}

// TestIntegrationFullFlow drives two presses from the sender's buttons to
// the caregiver's LED and the durable sink's log.
func TestIntegrationFullFlow(t *testing.T) {
	store := memory.NewStore()
	sinkURL := startSink(t, store)
	rx := startReceiver(t)
	tx := startSender(t, rx.conn.Addr(), sinkURL)

	tx.press(t,
		gpio.Released(),
		gpio.Pressed(4), gpio.Pressed(4), gpio.Released(),
		gpio.Pressed(5), gpio.Released(),
	)

	waitFor(t, "receiver to flash both events", func() bool {
		seen := colorsSeen(rx.led)
		return len(seen) > 0 && seen[len(seen)-1] == feedback.ColorCyan
	})
	got := colorsSeen(rx.led)
	if got[0] != feedback.ColorBlue || got[len(got)-1] != feedback.ColorCyan {
		t.Errorf("receiver colors: got %v", got)
	}
	if rx.tracker.Snapshot().Counts["pain"] != 1 {
		t.Errorf("receiver Counts[pain]: got %d", rx.tracker.Snapshot().Counts["pain"])
	}

	sent := colorsSeen(tx.led)
	if len(sent) == 0 || sent[0] != feedback.ColorBlue {
		t.Errorf("sender local flash: got %v", sent)
	}

	events, err := store.ListEvents(context.Background())
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 stored events, got %d", len(events))
	}
	if events[0].Label != "music" || events[1].Label != "pain" {
		t.Errorf("stored events should be newest first, got %s then %s", events[0].Label, events[1].Label)
	}
	if want := time.Date(2026, 2, 2, 14, 19, 12, 0, time.UTC); !events[1].Timestamp.Equal(want) {
		t.Errorf("pain timestamp: got %v, want %v", events[1].Timestamp, want)
	}
	if events[1].DeviceID != "Care Recipient" {
		t.Errorf("device id: got %q", events[1].DeviceID)
	}

	devices, _ := store.ListDevices(context.Background())
	if len(devices) != 1 || devices[0].ID != "Care Recipient" {
		t.Errorf("devices: got %+v", devices)
	}
}

// TestIntegrationHeartbeatsRegisterDevices checks both nodes show up in the
// sink's device list.
func TestIntegrationHeartbeatsRegisterDevices(t *testing.T) {
	store := memory.NewStore()
	poster := sink.New(startSink(t, store), time.Second, nil)

	for _, id := range []string{"Care Recipient", "Caregiver"} {
		tr := status.NewTracker(time.Now(), status.Config{})
		hb := heartbeat.New(poster, id, time.Second, zap.NewNop(), heartbeat.WithTracker(tr))
		code, err := hb.Beat(context.Background())
		if err != nil || code != 200 {
			t.Fatalf("%s heartbeat: code=%d err=%v", id, code, err)
		}
		if s := tr.Snapshot().Heartbeat; s == nil || s.Status != 200 {
			t.Errorf("%s tracker heartbeat: got %+v", id, s)
		}
	}

	devices, _ := store.ListDevices(context.Background())
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %+v", devices)
	}
}

// TestIntegrationSinkDownStillRelays verifies a dead sink does not stop the
// datagram from reaching the caregiver.
func TestIntegrationSinkDownStillRelays(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	deadURL := "http://" + ln.Addr().String()
	ln.Close()

	rx := startReceiver(t)
	tx := startSender(t, rx.conn.Addr(), deadURL)

	e, _ := feedback.NewEvent(1)
	outcomes, err := tx.d.Dispatch(context.Background(), e)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var sinkErr error
	for _, o := range outcomes {
		if o.Channel == dispatch.ChannelPeer && o.Err != nil {
			t.Errorf("peer step failed: %v", o.Err)
		}
		if o.Channel == dispatch.ChannelSink {
			sinkErr = o.Err
		}
	}
	if sinkErr == nil {
		t.Error("expected sink step to fail")
	}

	waitFor(t, "receiver to count tired", func() bool {
		return rx.tracker.Snapshot().Counts["tired"] == 1
	})
}

// TestIntegrationOfflineSkipsNetwork verifies only the local flash runs
// while pi-helper reports the network down.
func TestIntegrationOfflineSkipsNetwork(t *testing.T) {
	store := memory.NewStore()
	sinkURL := startSink(t, store)
	rx := startReceiver(t)
	tx := startSender(t, rx.conn.Addr(), sinkURL)
	tx.tracker.SetNetwork(&status.NetworkInfo{Status: "disconnected"})

	e, _ := feedback.NewEvent(3)
	if _, err := tx.d.Dispatch(context.Background(), e); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if sent := colorsSeen(tx.led); len(sent) == 0 || sent[0] != feedback.ColorGreen {
		t.Errorf("local flash should still run, got %v", sent)
	}
	events, _ := store.ListEvents(context.Background())
	if len(events) != 0 {
		t.Errorf("offline node must not post, got %d events", len(events))
	}

	// Give a stray datagram time to arrive before asserting it did not.
	time.Sleep(50 * time.Millisecond)
	if got := rx.tracker.Snapshot().Counts["company"]; got != 0 {
		t.Errorf("offline node must not send datagrams, receiver counted %d", got)
	}
}

// TestIntegrationMalformedDatagram verifies junk on the port is discarded
// without touching the LED.
func TestIntegrationMalformedDatagram(t *testing.T) {
	rx := startReceiver(t)

	s, err := udp.NewSender("", time.Second)
	if err != nil {
		t.Fatalf("sender: %v", err)
	}
	defer s.Close()
	before := len(rx.led.Patterns())
	if err := s.Send(rx.conn.Addr(), []byte("notanid")); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(t, "malformed drop", func() bool {
		return rx.tracker.Snapshot().Drops.Malformed == 1
	})
	if got := rx.led.Patterns(); len(got) != before {
		t.Errorf("LED should be untouched after startup, got %v", got)
	}
}
