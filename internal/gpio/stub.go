//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealButtons is not available on non-Linux platforms.
type RealButtons struct{}

// NewRealButtons returns an error on non-Linux platforms.
func NewRealButtons(chipName string, pins [logic.NumButtons]int) (*RealButtons, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealButtons) Read() ([logic.NumButtons]logic.Level, error) {
	return [logic.NumButtons]logic.Level{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealButtons) Close() error {
	return nil
}

// EdgeWatcher is not available on non-Linux platforms.
type EdgeWatcher struct{}

// NewEdgeWatcher returns an error on non-Linux platforms.
func NewEdgeWatcher(chipName string, pins [logic.NumButtons]int, h EdgeHandler) (*EdgeWatcher, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (w *EdgeWatcher) Close() error {
	return nil
}

// RealLED is not available on non-Linux platforms.
type RealLED struct{}

// NewRealLED returns an error on non-Linux platforms.
func NewRealLED(chipName string, pins [3]int, activeLow bool) (*RealLED, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (l *RealLED) Set(p feedback.Pattern) error {
	return errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (l *RealLED) Close() error {
	return nil
}
