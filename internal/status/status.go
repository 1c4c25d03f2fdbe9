// Package status provides a thread-safe status tracker for a CareSync node.
// It is read by HTTP handlers and by lifecycle events published to MQTT.
package status

import (
	"os"
	"strings"
	"sync"
	"time"
)

// Roles
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// pi-helper env var names (written to /run/pi-helper.env).
const (
	EnvNetworkType       = "NETWORK_TYPE"
	EnvNetworkIP         = "NETWORK_IP"
	EnvNetworkStatus     = "NETWORK_STATUS"
	EnvNetworkGateway    = "NETWORK_GATEWAY"
	EnvNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	EnvNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Online reports whether the network is associated.
func (n *NetworkInfo) Online() bool {
	switch strings.ToLower(n.Status) {
	case "connected", "up", "online":
		return true
	}
	return false
}

// ReadNetworkInfo reads pi-helper's environment. Returns nil when
// NETWORK_STATUS is unset.
func ReadNetworkInfo() *NetworkInfo {
	s := os.Getenv(EnvNetworkStatus)
	if s == "" {
		return nil
	}
	return &NetworkInfo{
		Type:       os.Getenv(EnvNetworkType),
		IP:         os.Getenv(EnvNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(EnvNetworkGateway),
		WifiStatus: os.Getenv(EnvNetworkWifiStatus),
		SSID:       os.Getenv(EnvNetworkWifiSSID),
	}
}

// Config contains node configuration for display.
type Config struct {
	Role          string
	DeviceID      string
	DebounceMode  string // sender only
	DebounceMs    int64  // sender only
	HeartbeatMs   int64
	Peer          string // sender: receiver address; receiver: listen address
	DebugPeer     string // sender only, empty = disabled
	Sink          string
	Broker        string // empty = MQTT mirror disabled
	HTTPAddr      string
	QueueCapacity int // receiver only
}

// Drops counts events lost by reason.
type Drops struct {
	Busy      int
	QueueFull int
	Malformed int
}

// LastEvent is the most recent feedback seen by the node.
type LastEvent struct {
	Label string
	Color string
	At    time.Time
}

// Heartbeat is the outcome of the most recent heartbeat attempt.
type Heartbeat struct {
	At     time.Time
	Status int
	Err    string
}

// Snapshot is a point-in-time view of node state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Counts        map[string]int
	Drops         Drops
	LastEvent     *LastEvent
	Busy          bool
	Heartbeat     *Heartbeat
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the node started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable node state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Counts:    map[string]int{},
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// RecordEvent counts a dispatched or received feedback event.
func (t *Tracker) RecordEvent(label, color string, at time.Time) {
	t.mu.Lock()
	t.snap.Counts[label]++
	t.snap.LastEvent = &LastEvent{Label: label, Color: color, At: at}
	t.mu.Unlock()
}

// RecordDrop counts a dropped event. reason is one of the metrics drop reasons.
func (t *Tracker) RecordDrop(reason string) {
	t.mu.Lock()
	switch reason {
	case "busy":
		t.snap.Drops.Busy++
	case "queue_full":
		t.snap.Drops.QueueFull++
	case "malformed":
		t.snap.Drops.Malformed++
	}
	t.mu.Unlock()
}

// SetBusy mirrors the dispatcher's busy flag for display.
func (t *Tracker) SetBusy(busy bool) {
	t.mu.Lock()
	t.snap.Busy = busy
	t.mu.Unlock()
}

// RecordHeartbeat stores the outcome of a heartbeat attempt.
func (t *Tracker) RecordHeartbeat(at time.Time, status int, err error) {
	hb := &Heartbeat{At: at, Status: status}
	if err != nil {
		hb.Err = err.Error()
	}
	t.mu.Lock()
	t.snap.Heartbeat = hb
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Online reports whether network steps should be attempted. A node without
// pi-helper network info is assumed online.
func (t *Tracker) Online() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.snap.Network == nil {
		return true
	}
	return t.snap.Network.Online()
}

// Snapshot returns a point-in-time copy of the node state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = make(map[string]int, len(t.snap.Counts))
	for k, v := range t.snap.Counts {
		s.Counts[k] = v
	}
	if t.snap.LastEvent != nil {
		le := *t.snap.LastEvent
		s.LastEvent = &le
	}
	if t.snap.Heartbeat != nil {
		hb := *t.snap.Heartbeat
		s.Heartbeat = &hb
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
