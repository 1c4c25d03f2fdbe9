// Package logic contains the pure input-capture logic for the sender node.
// This package has NO external dependencies (no GPIO, network, OS, or time.Sleep).
// Time is always injectable via time.Time or time.Duration parameters.
package logic

import "time"

// NumButtons is the number of physical inputs on a sender.
const NumButtons = 5

// Level is a raw input level. Buttons are wired active-low with pull-ups,
// so a released button reads High and a pressed button reads Low.
type Level bool

const (
	High Level = true
	Low  Level = false
)

// Input represents a single sample of all button levels.
type Input struct {
	Levels [NumButtons]Level
	Time   time.Time
}

// Press is an accepted press transition. ID is the 1-based button/category id.
type Press struct {
	ID   int
	Time time.Time
}

// ButtonState tracks debounce state for a single button.
type ButtonState struct {
	// Level seen on the previous sample
	LastLevel Level
	// Time of the last accepted press (zero if none yet)
	LastAccepted time.Time
}
