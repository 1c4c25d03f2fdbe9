// Package gpio provides button input and RGB LED output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/logic"
)

// Buttons samples the raw levels of the five feedback buttons.
type Buttons interface {
	// Read returns the raw level of each button, ordered by category id.
	// Buttons are active-low: a pressed button reads logic.Low.
	Read() ([logic.NumButtons]logic.Level, error)

	// Close releases GPIO resources.
	Close() error
}

// EdgeHandler is invoked on a falling edge with the 1-based button id and the
// kernel's monotonic event timestamp. It runs on the GPIO event goroutine and
// must not block.
type EdgeHandler func(id int, at time.Duration)

// LED drives a tri-color LED.
type LED interface {
	// Set drives each color channel on or off.
	Set(p feedback.Pattern) error

	// Close turns the LED off and releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
var (
	// DefaultButtonPins are ordered by category id: tired, space, company, pain, music.
	DefaultButtonPins = [logic.NumButtons]int{16, 4, 13, 17, 26}

	// DefaultLEDPins are ordered red, green, blue.
	DefaultLEDPins = [3]int{27, 22, 23}
)

// DefaultChip is the GPIO character device used when none is configured.
const DefaultChip = "gpiochip0"

func patternValues(p feedback.Pattern) []int {
	return []int{boolToInt(p.Red), boolToInt(p.Green), boolToInt(p.Blue)}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
