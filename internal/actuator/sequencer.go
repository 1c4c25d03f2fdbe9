// Package actuator runs the blocking flash sequences on a node's tri-color LED.
package actuator

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/gpio"
)

// Config sets the shape of a flash sequence.
type Config struct {
	Cycles int
	On     time.Duration
	Off    time.Duration
}

// DefaultConfig is 3 cycles of 200ms on, 200ms off.
var DefaultConfig = Config{Cycles: 3, On: 200 * time.Millisecond, Off: 200 * time.Millisecond}

// Duration is the total blocking time of one Flash.
func (c Config) Duration() time.Duration {
	return time.Duration(c.Cycles) * (c.On + c.Off)
}

// Sequencer drives flash patterns on an LED. Flash blocks for the whole
// sequence; concurrent callers are serialized.
type Sequencer struct {
	mu     sync.Mutex
	led    gpio.LED
	cfg    Config
	sleep  func(time.Duration)
	logger *zap.Logger
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithSleep replaces time.Sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Sequencer) { s.sleep = fn }
}

// New creates a Sequencer and immediately forces every output off.
func New(led gpio.LED, cfg Config, logger *zap.Logger, opts ...Option) *Sequencer {
	s := &Sequencer{
		led:    led,
		cfg:    cfg,
		sleep:  time.Sleep,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	if err := s.AllOff(); err != nil {
		logger.Warn("failed to force LED off at start", zap.Error(err))
	}
	return s
}

// AllOff forces every output off.
func (s *Sequencer) AllOff() error {
	return s.led.Set(feedback.Off)
}

// Flash runs the configured number of on/off cycles with pattern p.
// Outputs are forced off before and after the sequence, including on error.
func (s *Sequencer) Flash(p feedback.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.AllOff(); err != nil {
		return fmt.Errorf("flash: %w", err)
	}

	var flashErr error
	for i := 0; i < s.cfg.Cycles; i++ {
		if err := s.led.Set(p); err != nil {
			flashErr = fmt.Errorf("flash cycle %d on: %w", i, err)
			break
		}
		s.sleep(s.cfg.On)
		if err := s.led.Set(feedback.Off); err != nil {
			flashErr = fmt.Errorf("flash cycle %d off: %w", i, err)
			break
		}
		s.sleep(s.cfg.Off)
	}

	if err := s.AllOff(); err != nil {
		return errors.Join(flashErr, fmt.Errorf("flash: %w", err))
	}
	return flashErr
}

// ReadySequence flashes red, yellow and green separated by gap, then forces
// the LED off. Used by the receiver to signal it is listening.
func (s *Sequencer) ReadySequence(gap time.Duration) error {
	steps := []feedback.Color{feedback.ColorRed, feedback.ColorYellow, feedback.ColorGreen}
	for i, color := range steps {
		c, err := feedback.ByColor(color)
		if err != nil {
			return err
		}
		if err := s.Flash(c.Pattern); err != nil {
			return fmt.Errorf("ready sequence: %w", err)
		}
		if i < len(steps)-1 {
			s.sleep(gap)
		}
	}
	return s.AllOff()
}
