//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/logic"
)

// RealButtons reads buttons from actual hardware using Linux GPIO character device.
type RealButtons struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewRealButtons requests the button lines as inputs with pull-ups.
func NewRealButtons(chipName string, pins [logic.NumButtons]int) (*RealButtons, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines(pins[:], gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button pins %v: %w", pins, err)
	}

	return &RealButtons{chip: chip, lines: lines}, nil
}

// Read returns the raw level of each button (1 = High = released).
func (r *RealButtons) Read() ([logic.NumButtons]logic.Level, error) {
	var levels [logic.NumButtons]logic.Level
	vals := make([]int, logic.NumButtons)
	if err := r.lines.Values(vals); err != nil {
		return levels, fmt.Errorf("read button pins: %w", err)
	}
	for i, v := range vals {
		levels[i] = logic.Level(v != 0)
	}
	return levels, nil
}

// Close releases GPIO resources.
func (r *RealButtons) Close() error {
	return closeLines(r.lines, r.chip)
}

// EdgeWatcher delivers falling edges on the button lines to a handler.
type EdgeWatcher struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewEdgeWatcher requests the button lines with falling-edge detection.
// The handler runs on the gpiocdev event goroutine.
func NewEdgeWatcher(chipName string, pins [logic.NumButtons]int, h EdgeHandler) (*EdgeWatcher, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	offsets := pins
	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		for i, off := range offsets {
			if off == evt.Offset {
				h(i+1, evt.Timestamp)
				return
			}
		}
	}

	lines, err := chip.RequestLines(pins[:],
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request edge pins %v: %w", pins, err)
	}

	return &EdgeWatcher{chip: chip, lines: lines}, nil
}

// Close stops edge delivery and releases GPIO resources.
func (w *EdgeWatcher) Close() error {
	return closeLines(w.lines, w.chip)
}

// RealLED drives a tri-color LED on three output lines.
type RealLED struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewRealLED requests the LED lines as outputs driven low with pull-downs,
// so the LED stays dark from the moment the lines are claimed.
// Set activeLow for common-anode wiring.
func NewRealLED(chipName string, pins [3]int, activeLow bool) (*RealLED, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0, 0, 0), gpiocdev.WithPullDown}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	lines, err := chip.RequestLines(pins[:], opts...)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request LED pins %v: %w", pins, err)
	}

	return &RealLED{chip: chip, lines: lines}, nil
}

// Set drives the three color channels.
func (l *RealLED) Set(p feedback.Pattern) error {
	if err := l.lines.SetValues(patternValues(p)); err != nil {
		return fmt.Errorf("set LED: %w", err)
	}
	return nil
}

// Close turns the LED off, then releases GPIO resources.
func (l *RealLED) Close() error {
	var errs []error
	if l.lines != nil {
		if err := l.lines.SetValues(patternValues(feedback.Off)); err != nil {
			errs = append(errs, fmt.Errorf("turn LED off: %w", err))
		}
	}
	if err := closeLines(l.lines, l.chip); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// closeLines reconfigures lines to input with pull-down (matching Pi boot
// defaults) before closing, so nothing is left driven through a reboot.
func closeLines(lines *gpiocdev.Lines, chip *gpiocdev.Chip) error {
	var errs []error

	if lines != nil {
		if err := lines.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure lines: %w", err))
		}
		if err := lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if chip != nil {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
