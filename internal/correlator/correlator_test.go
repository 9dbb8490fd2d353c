package correlator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfence/keyfence/internal/keycode"
)

func TestBasicTapThrough(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()

	t0 := time.Now()
	W := keycode.Code(13)

	s.RecordHIDDown(W, t0)
	require.Equal(t, Block, s.ShouldBlockDown(W, t0.Add(10*time.Millisecond)))

	s.RecordHIDUp(W, t0.Add(50*time.Millisecond))
	require.Equal(t, Block, s.ShouldBlockUp(W))
	assert.False(t, s.IsPressed(W))
}

func TestHeldKeyAutoRepeat(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()

	D := keycode.Code(2)
	t0 := time.Now()
	s.RecordHIDDown(D, t0)
	require.Equal(t, Block, s.ShouldBlockDown(D, t0.Add(5*time.Millisecond)))

	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(200+i*200) * time.Millisecond)
		require.Equal(t, Block, s.ShouldBlockDown(D, at), "repeat %d", i)
	}

	s.RecordHIDUp(D, t0.Add(2*time.Second))
	require.Equal(t, Block, s.ShouldBlockUp(D))
	assert.False(t, s.IsPressed(D))
}

func TestBuiltInKeyboardPassesThrough(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()

	Q := keycode.Code(12)
	// No HID Down ever recorded for Q.
	assert.Equal(t, Pass, s.ShouldBlockDown(Q, time.Now()))
	assert.False(t, s.IsPressed(Q))
}

func TestStaleHeldKeyCleanup(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()

	Space := keycode.Code(49)
	t0 := time.Now()
	s.RecordHIDDown(Space, t0)
	require.Equal(t, Block, s.ShouldBlockDown(Space, t0.Add(1*time.Millisecond)))

	decision := s.ShouldBlockDown(Space, t0.Add(11*time.Second))
	assert.Equal(t, Pass, decision)
	assert.False(t, s.IsPressed(Space))
}

func TestInitialWindowBoundary(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()

	// Interleaved HID Down/Up: the key is no longer pressed, so only the
	// initial window decides the host Down.
	k := keycode.Code(1)
	t0 := time.Now()
	s.RecordHIDDown(k, t0)
	s.RecordHIDUp(k, t0.Add(30*time.Millisecond))

	within := s.ShouldBlockDown(k, t0.Add(80*time.Millisecond))
	assert.Equal(t, Block, within)

	s2 := NewState(DefaultConfig())
	defer s2.Stop()
	s2.RecordHIDDown(k, t0)
	s2.RecordHIDUp(k, t0.Add(30*time.Millisecond))
	outside := s2.ShouldBlockDown(k, t0.Add(90*time.Millisecond))
	assert.Equal(t, Pass, outside)
}

func TestShouldBlockUpTrustsPressedAlone(t *testing.T) {
	s := NewState(DefaultConfig())
	defer s.Stop()
	k := keycode.Code(0)
	assert.Equal(t, Pass, s.ShouldBlockUp(k))

	s.RecordHIDDown(k, time.Now())
	s.ShouldBlockDown(k, time.Now())
	assert.Equal(t, Block, s.ShouldBlockUp(k))
	assert.Equal(t, Pass, s.ShouldBlockUp(k))
}

func TestJanitorEnforcesSizeCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JanitorInterval = 10 * time.Millisecond
	cfg.MaxEntries = 5
	cfg.MaxEntryAge = time.Hour

	s := NewState(cfg)
	defer s.Stop()

	base := time.Now()
	for i := 0; i < 20; i++ {
		s.RecordHIDDown(keycode.Code(i), base.Add(time.Duration(i)*time.Millisecond))
	}

	assert.Eventually(t, func() bool {
		_, down, _ := s.Snapshot()
		return down <= 5
	}, time.Second, 5*time.Millisecond)
}
