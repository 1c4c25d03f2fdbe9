package actuator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/feedback"
	"github.com/sweeney/caresync/internal/gpio"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) { r.calls = append(r.calls, d) }

func (r *sleepRecorder) total() time.Duration {
	var sum time.Duration
	for _, d := range r.calls {
		sum += d
	}
	return sum
}

func newTestSequencer(t *testing.T) (*Sequencer, *gpio.FakeLED, *sleepRecorder) {
	t.Helper()
	led := gpio.NewFakeLED()
	rec := &sleepRecorder{}
	s := New(led, DefaultConfig, zap.NewNop(), WithSleep(rec.sleep))
	return s, led, rec
}

func TestNewForcesOff(t *testing.T) {
	_, led, _ := newTestSequencer(t)
	assert.Equal(t, []feedback.Pattern{feedback.Off}, led.Patterns())
}

func TestFlashPainIsBlueThreeCycles(t *testing.T) {
	s, led, rec := newTestSequencer(t)
	pain, err := feedback.ByLabel("pain")
	require.NoError(t, err)
	assert.Equal(t, feedback.Pattern{Red: false, Green: false, Blue: true}, pain.Pattern)

	require.NoError(t, s.Flash(pain.Pattern))

	blue := pain.Pattern
	off := feedback.Off
	want := []feedback.Pattern{
		off,                // New
		off,                // before
		blue, off, blue, off, blue, off,
		off, // after
	}
	assert.Equal(t, want, led.Patterns())

	ms200 := 200 * time.Millisecond
	assert.Equal(t, []time.Duration{ms200, ms200, ms200, ms200, ms200, ms200}, rec.calls)
	assert.Equal(t, DefaultConfig.Duration(), rec.total())
	assert.Equal(t, off, led.Last())
}

func TestFlashErrorStillForcesOff(t *testing.T) {
	led := &flakyLED{FakeLED: gpio.NewFakeLED(), failOn: feedback.Pattern{Red: true}}
	s := New(led, DefaultConfig, zap.NewNop(), WithSleep(func(time.Duration) {}))

	err := s.Flash(feedback.Pattern{Red: true})
	require.Error(t, err)
	assert.Equal(t, feedback.Off, led.Last())
}

func TestReadySequence(t *testing.T) {
	s, led, rec := newTestSequencer(t)
	require.NoError(t, s.ReadySequence(300*time.Millisecond))

	var lit []feedback.Pattern
	for _, p := range led.Patterns() {
		if p != feedback.Off && (len(lit) == 0 || lit[len(lit)-1] != p) {
			lit = append(lit, p)
		}
	}
	assert.Equal(t, []feedback.Pattern{
		{Red: true},
		{Red: true, Green: true},
		{Green: true},
	}, lit)

	gaps := 0
	for _, d := range rec.calls {
		if d == 300*time.Millisecond {
			gaps++
		}
	}
	assert.Equal(t, 2, gaps)
	assert.Equal(t, feedback.Off, led.Last())
}

func TestConfigDuration(t *testing.T) {
	assert.Equal(t, 1200*time.Millisecond, DefaultConfig.Duration())
}

// flakyLED fails whenever it is driven with failOn.
type flakyLED struct {
	*gpio.FakeLED
	failOn feedback.Pattern
}

func (f *flakyLED) Set(p feedback.Pattern) error {
	if p == f.failOn {
		return errors.New("line busy")
	}
	return f.FakeLED.Set(p)
}
