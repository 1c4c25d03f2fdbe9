package feedback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Delimiter separates the id field from the payload field on the wire.
const Delimiter = ":"

// MaxPayloadLen bounds a relay queue entry (a 32-byte slot including terminator).
const MaxPayloadLen = 31

// ErrMalformed is returned by Decode for datagrams without a usable delimiter.
var ErrMalformed = errors.New("feedback: malformed message")

// WireToken returns the receiver-facing datagram, e.g. "4:BLUE".
func WireToken(e Event) string {
	return strconv.Itoa(e.ID()) + Delimiter + string(e.Color())
}

// DebugToken returns the debug-receiver datagram, e.g. "4:pain".
func DebugToken(e Event) string {
	return strconv.Itoa(e.ID()) + Delimiter + e.Label()
}

// Message is a decoded datagram. Payload is opaque: a color token or a label.
type Message struct {
	ID      string
	Payload string
}

// Decode parses a received datagram on its first delimiter.
// Trailing NUL bytes and surrounding whitespace are ignored. Both fields must
// be non-empty; the payload is truncated to at most MaxPayloadLen bytes
// without splitting a UTF-8 sequence.
func Decode(buf []byte) (Message, error) {
	s := strings.TrimSpace(strings.TrimRight(string(buf), "\x00"))
	idx := strings.Index(s, Delimiter)
	if idx < 0 {
		return Message{}, fmt.Errorf("%w: no delimiter in %q", ErrMalformed, s)
	}
	id := s[:idx]
	payload := s[idx+len(Delimiter):]
	if id == "" || payload == "" {
		return Message{}, fmt.Errorf("%w: empty field in %q", ErrMalformed, s)
	}
	if len(payload) > MaxPayloadLen {
		cut := MaxPayloadLen
		for cut > 0 && !utf8.RuneStart(payload[cut]) {
			cut--
		}
		if cut == 0 {
			cut = MaxPayloadLen
		}
		payload = payload[:cut]
	}
	return Message{ID: id, Payload: payload}, nil
}

// Record is the durable sink body for a feedback event.
type Record struct {
	DeviceID  string `json:"device_id"`
	Label     string `json:"label"`
	Timestamp string `json:"timestamp"`
}

// Heartbeat is the durable sink body for a liveness post.
type Heartbeat struct {
	DeviceID string `json:"device_id"`
}

// NewRecord builds the durable record for an event observed at now.
func NewRecord(deviceID string, e Event, now time.Time) Record {
	return Record{
		DeviceID:  deviceID,
		Label:     e.Label(),
		Timestamp: Timestamp(now),
	}
}

// Zone is the fixed UTC+8 offset used for every durable timestamp.
var Zone = time.FixedZone("UTC+8", 8*60*60)

// UnsyncedTimestamp is emitted when the clock has not been synchronized.
const UnsyncedTimestamp = "1970-01-01T00:00:00+08:00"

const timestampLayout = "2006-01-02T15:04:05-07:00"

// syncedAfter is the earliest year a synchronized clock can report.
const syncedAfter = 2016

// Timestamp formats now as ISO-8601 with the fixed +08:00 offset.
// A clock that still reports a pre-2016 date has not been synced.
func Timestamp(now time.Time) string {
	if now.IsZero() || now.Year() < syncedAfter {
		return UnsyncedTimestamp
	}
	return now.In(Zone).Format(timestampLayout)
}
