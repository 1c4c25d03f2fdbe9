package status

import (
	"encoding/json"
	"sort"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Role          string         `json:"role"`
	DeviceID      string         `json:"device_id"`
	Busy          bool           `json:"busy"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        []CountJSON    `json:"event_counts"`
	Drops         DropsJSON      `json:"drops"`
	LastEvent     *LastEventJSON `json:"last_event,omitempty"`
	Heartbeat     *HeartbeatJSON `json:"heartbeat,omitempty"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountJSON is one label's event count.
type CountJSON struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DropsJSON is the JSON representation of drop counts.
type DropsJSON struct {
	Busy      int `json:"busy"`
	QueueFull int `json:"queue_full"`
	Malformed int `json:"malformed"`
}

// LastEventJSON is the JSON representation of the last event.
type LastEventJSON struct {
	Label string `json:"label"`
	Color string `json:"color"`
	At    string `json:"at"`
}

// HeartbeatJSON is the JSON representation of the last heartbeat attempt.
type HeartbeatJSON struct {
	At     string `json:"at"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of node config.
type ConfigJSON struct {
	DebounceMode  string `json:"debounce_mode,omitempty"`
	DebounceMs    int64  `json:"debounce_ms,omitempty"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	Peer          string `json:"peer"`
	DebugPeer     string `json:"debug_peer,omitempty"`
	Sink          string `json:"sink"`
	Broker        string `json:"broker,omitempty"`
	HTTPAddr      string `json:"http_addr"`
	QueueCapacity int    `json:"queue_capacity,omitempty"`
}

// SortedCounts returns the counts ordered by label.
func (s Snapshot) SortedCounts() []CountJSON {
	out := make([]CountJSON, 0, len(s.Counts))
	for label, n := range s.Counts {
		out = append(out, CountJSON{Label: label, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Role:          snap.Config.Role,
		DeviceID:      snap.Config.DeviceID,
		Busy:          snap.Busy,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        snap.SortedCounts(),
		Drops: DropsJSON{
			Busy:      snap.Drops.Busy,
			QueueFull: snap.Drops.QueueFull,
			Malformed: snap.Drops.Malformed,
		},
		Config: ConfigJSON{
			DebounceMode:  snap.Config.DebounceMode,
			DebounceMs:    snap.Config.DebounceMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Peer:          snap.Config.Peer,
			DebugPeer:     snap.Config.DebugPeer,
			Sink:          snap.Config.Sink,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			QueueCapacity: snap.Config.QueueCapacity,
		},
	}
	if snap.LastEvent != nil {
		inner.LastEvent = &LastEventJSON{
			Label: snap.LastEvent.Label,
			Color: snap.LastEvent.Color,
			At:    snap.LastEvent.At.UTC().Format(time.RFC3339),
		}
	}
	if snap.Heartbeat != nil {
		inner.Heartbeat = &HeartbeatJSON{
			At:     snap.Heartbeat.At.UTC().Format(time.RFC3339),
			Status: snap.Heartbeat.Status,
			Error:  snap.Heartbeat.Err,
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
