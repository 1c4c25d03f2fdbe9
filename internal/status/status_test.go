package status

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Role: RoleSender, DeviceID: "Care Recipient", DebounceMs: 150, HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.DebounceMs != 150 {
		t.Errorf("Config.DebounceMs: got %d, want 150", snap.Config.DebounceMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Busy {
		t.Error("expected Busy=false initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.LastEvent != nil || snap.Heartbeat != nil {
		t.Error("expected no last event or heartbeat initially")
	}
}

func TestRecordEvent(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tr.RecordEvent("pain", "BLUE", at)
	tr.RecordEvent("pain", "BLUE", at.Add(time.Second))
	tr.RecordEvent("music", "CYAN", at.Add(2*time.Second))

	snap := tr.Snapshot()
	if snap.Counts["pain"] != 2 {
		t.Errorf("Counts[pain]: got %d, want 2", snap.Counts["pain"])
	}
	if snap.Counts["music"] != 1 {
		t.Errorf("Counts[music]: got %d, want 1", snap.Counts["music"])
	}
	if snap.LastEvent == nil || snap.LastEvent.Label != "music" || snap.LastEvent.Color != "CYAN" {
		t.Errorf("LastEvent: got %+v", snap.LastEvent)
	}
}

func TestRecordDrop(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordDrop("busy")
	tr.RecordDrop("busy")
	tr.RecordDrop("queue_full")
	tr.RecordDrop("malformed")
	tr.RecordDrop("unknown-reason")

	d := tr.Snapshot().Drops
	if d.Busy != 2 || d.QueueFull != 1 || d.Malformed != 1 {
		t.Errorf("Drops: got %+v", d)
	}
}

func TestRecordHeartbeat(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)

	tr.RecordHeartbeat(at, 200, nil)
	hb := tr.Snapshot().Heartbeat
	if hb == nil || hb.Status != 200 || hb.Err != "" {
		t.Fatalf("Heartbeat: got %+v", hb)
	}

	tr.RecordHeartbeat(at.Add(30*time.Second), 0, errors.New("connection refused"))
	hb = tr.Snapshot().Heartbeat
	if hb.Err != "connection refused" {
		t.Errorf("Heartbeat.Err: got %q", hb.Err)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestOnline(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	if !tr.Online() {
		t.Error("expected online without network info")
	}

	tr.SetNetwork(&NetworkInfo{Status: "disconnected"})
	if tr.Online() {
		t.Error("expected offline when pi-helper reports disconnected")
	}

	tr.SetNetwork(&NetworkInfo{Status: "Connected"})
	if !tr.Online() {
		t.Error("expected online when pi-helper reports connected")
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(EnvNetworkType, "wifi")
	t.Setenv(EnvNetworkIP, "192.168.142.195")
	t.Setenv(EnvNetworkStatus, "connected")
	t.Setenv(EnvNetworkWifiSSID, "AndroidAP")

	info := ReadNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.IP != "192.168.142.195" || info.SSID != "AndroidAP" || info.Type != "wifi" {
		t.Errorf("unexpected info: %+v", info)
	}
	if info.Gateway != "" {
		t.Errorf("Gateway: got %q, want empty", info.Gateway)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(EnvNetworkStatus, "")
	if info := ReadNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestEnvVarNames(t *testing.T) {
	// Canonical names written by pi-helper.
	want := map[string]string{
		"NETWORK_TYPE":        EnvNetworkType,
		"NETWORK_IP":          EnvNetworkIP,
		"NETWORK_STATUS":      EnvNetworkStatus,
		"NETWORK_GATEWAY":     EnvNetworkGateway,
		"NETWORK_WIFI_STATUS": EnvNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   EnvNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordEvent("tired", "RED", time.Now())

	snap1 := tr.Snapshot()
	snap1.Counts["tired"] = 99
	snap1.LastEvent.Label = "mutated"

	snap2 := tr.Snapshot()
	if snap2.Counts["tired"] != 1 {
		t.Errorf("mutating a snapshot's counts leaked into the tracker: %d", snap2.Counts["tired"])
	}
	if snap2.LastEvent.Label != "tired" {
		t.Errorf("mutating a snapshot's last event leaked into the tracker: %q", snap2.LastEvent.Label)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.RecordEvent("pain", "BLUE", time.Now())
				tr.RecordDrop("busy")
				tr.SetBusy(j%2 == 0)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = tr.Snapshot()
				_ = tr.Online()
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts["pain"]; got != 1000 {
		t.Errorf("Counts[pain]: got %d, want 1000", got)
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Counts:    map[string]int{"pain": 2, "music": 1},
		Drops:     Drops{Busy: 1},
		LastEvent: &LastEvent{Label: "pain", Color: "BLUE", At: start.Add(time.Minute)},
		StartTime: start,
		Now:       start.Add(90 * time.Second),
		Network:   &NetworkInfo{Type: "wifi", Status: "connected"},
		Config:    Config{Role: RoleSender, DeviceID: "Care Recipient", Peer: "192.168.142.195:4210"},
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status
	if s.Role != "sender" || s.DeviceID != "Care Recipient" {
		t.Errorf("identity: got %q/%q", s.Role, s.DeviceID)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds: got %d, want 90", s.UptimeSeconds)
	}
	if len(s.Counts) != 2 || s.Counts[0].Label != "music" || s.Counts[1].Count != 2 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Drops.Busy != 1 {
		t.Errorf("Drops.Busy: got %d", s.Drops.Busy)
	}
	if s.LastEvent == nil || s.LastEvent.At != "2026-01-01T00:01:00Z" {
		t.Errorf("LastEvent: got %+v", s.LastEvent)
	}
	if s.Network == nil || s.Network.Type != "wifi" {
		t.Errorf("Network: got %+v", s.Network)
	}
	if s.Event != "" {
		t.Errorf("web JSON should carry no event, got %q", s.Event)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	snap := Snapshot{
		Counts:    map[string]int{},
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 5, 0, time.UTC),
		Config:    Config{Role: RoleReceiver, DeviceID: "Caregiver"},
	}

	var sj StatusJSON
	if err := json.Unmarshal(FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM"), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Reason != "SIGTERM" {
		t.Errorf("event/reason: got %q/%q", sj.Status.Event, sj.Status.Reason)
	}
	if sj.Status.Network != nil {
		t.Error("expected no network block")
	}
}
