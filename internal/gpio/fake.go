package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/logic"
)

// FakeButtons is a test double that returns scripted button levels.
type FakeButtons struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples [][logic.NumButtons]logic.Level

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeButtons creates a FakeButtons with the given samples.
func NewFakeButtons(samples ...[logic.NumButtons]logic.Level) *FakeButtons {
	return &FakeButtons{Samples: samples}
}

// Released returns a sample with every button released.
func Released() [logic.NumButtons]logic.Level {
	return [logic.NumButtons]logic.Level{logic.High, logic.High, logic.High, logic.High, logic.High}
}

// Pressed returns a sample with the given 1-based button ids held down.
func Pressed(ids ...int) [logic.NumButtons]logic.Level {
	l := Released()
	for _, id := range ids {
		l[id-1] = logic.Low
	}
	return l
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeButtons) Read() ([logic.NumButtons]logic.Level, error) {
	if f.ReadError != nil {
		return [logic.NumButtons]logic.Level{}, f.ReadError
	}

	if len(f.Samples) == 0 {
		return [logic.NumButtons]logic.Level{}, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the buttons as closed.
func (f *FakeButtons) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeButtons) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeLED records every pattern it is driven with. Safe for concurrent use.
type FakeLED struct {
	mu       sync.Mutex
	patterns []feedback.Pattern
	closed   bool

	// SetError, if set, will be returned by Set.
	SetError error

	// OnSet, if set, is called after every Set with the new pattern.
	OnSet func(p feedback.Pattern)
}

// NewFakeLED creates a FakeLED for testing.
func NewFakeLED() *FakeLED {
	return &FakeLED{}
}

// Set records the pattern.
func (f *FakeLED) Set(p feedback.Pattern) error {
	f.mu.Lock()
	if f.SetError != nil {
		err := f.SetError
		f.mu.Unlock()
		return err
	}
	f.patterns = append(f.patterns, p)
	hook := f.OnSet
	f.mu.Unlock()

	if hook != nil {
		hook(p)
	}
	return nil
}

// Close marks the LED as closed.
func (f *FakeLED) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Patterns returns a copy of the recorded patterns.
func (f *FakeLED) Patterns() []feedback.Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feedback.Pattern(nil), f.patterns...)
}

// Closed reports whether Close was called.
func (f *FakeLED) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Last returns the most recent pattern, or Off if none was set.
func (f *FakeLED) Last() feedback.Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.patterns) == 0 {
		return feedback.Off
	}
	return f.patterns[len(f.patterns)-1]
}
