package logic

import (
	"math"
	"sync/atomic"
	"time"
)

// neverAccepted keeps the first press outside any window without overflowing
// the subtraction in Record.
const neverAccepted = math.MinInt64 / 2

// EdgeLatch is the edge-triggered debounce variant.
//
// Record is called from the falling-edge callback context and Take from the
// control loop. The two share exactly two words, the pending button id and
// the last accepted timestamp, both accessed atomically. Record never blocks,
// allocates, or performs I/O.
//
// An accepted edge that replaces a pending one the loop has not taken yet is
// counted as superseded, per button, so the loop can report it as dropped.
//
// The cooldown is global: a press on any button starts the window for all
// buttons. This differs from Poller, which tracks each button separately.
type EdgeLatch struct {
	window  int64
	pending    atomic.Int32
	last       atomic.Int64
	superseded [NumButtons]atomic.Int32
}

// NewEdgeLatch creates a latch with the given shared debounce window.
func NewEdgeLatch(window time.Duration) *EdgeLatch {
	l := &EdgeLatch{window: int64(window)}
	l.last.Store(neverAccepted)
	return l
}

// Record registers a falling edge on button id at monotonic time at.
// It reports whether the edge was accepted. The edge is accepted only if
// strictly more than the window has elapsed since the last accepted edge.
func (l *EdgeLatch) Record(id int, at time.Duration) bool {
	last := l.last.Load()
	if int64(at)-last <= l.window {
		return false
	}
	if !l.last.CompareAndSwap(last, int64(at)) {
		return false
	}
	if prev := l.pending.Swap(int32(id)); prev >= 1 && prev <= NumButtons {
		l.superseded[prev-1].Add(1)
	}
	return true
}

// Take consumes the pending press, if any.
func (l *EdgeLatch) Take() (id int, ok bool) {
	v := l.pending.Swap(0)
	if v == 0 {
		return 0, false
	}
	return int(v), true
}

// TakeSuperseded returns the ids of accepted edges that were replaced before
// Take saw them, one entry per lost edge, and resets the counts.
func (l *EdgeLatch) TakeSuperseded() []int {
	var ids []int
	for i := range l.superseded {
		for n := l.superseded[i].Swap(0); n > 0; n-- {
			ids = append(ids, i+1)
		}
	}
	return ids
}
