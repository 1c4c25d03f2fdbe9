package logic

import "time"

// Poller is the polling debounce variant. Each sample is compared against the
// previous sample per button; a High→Low transition is a press. The previous
// level is updated on every sample, accepted or not.
//
// A non-zero window additionally suppresses a second press on the same
// button until window has elapsed since that button's last accepted press.
type Poller struct {
	window  time.Duration
	buttons [NumButtons]ButtonState
}

// NewPoller creates a polling debouncer. All buttons start released (High).
func NewPoller(window time.Duration) *Poller {
	p := &Poller{window: window}
	for i := range p.buttons {
		p.buttons[i].LastLevel = High
	}
	return p
}

// Process takes a new sample and returns the accepted presses in button order.
func (p *Poller) Process(input Input) []Press {
	var presses []Press
	for i := range p.buttons {
		b := &p.buttons[i]
		cur := input.Levels[i]
		if cur == Low && b.LastLevel == High && p.windowElapsed(b, input.Time) {
			b.LastAccepted = input.Time
			presses = append(presses, Press{ID: i + 1, Time: input.Time})
		}
		b.LastLevel = cur
	}
	return presses
}

func (p *Poller) windowElapsed(b *ButtonState, now time.Time) bool {
	if b.LastAccepted.IsZero() || p.window <= 0 {
		return true
	}
	return now.Sub(b.LastAccepted) >= p.window
}

// State returns a copy of the debounce state for a 1-based button id.
func (p *Poller) State(id int) ButtonState {
	return p.buttons[id-1]
}
