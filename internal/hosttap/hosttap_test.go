package hosttap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/keyfence/keyfence/internal/correlator"
	"github.com/keyfence/keyfence/internal/keycode"
)

func newTestTap(t *testing.T) *Tap {
	t.Helper()
	state := correlator.NewState(correlator.DefaultConfig())
	t.Cleanup(state.Stop)
	return &Tap{state: state}
}

func TestDecideBlocksFreshHIDMatch(t *testing.T) {
	tap := newTestTap(t)
	tap.state.RecordHIDDown(keycode.Code(13), time.Now())

	decision := tap.Decide(keycode.Code(13), keycode.Down)
	assert.Equal(t, correlator.Block, decision)
}

func TestDecidePassesUnmatchedKey(t *testing.T) {
	tap := newTestTap(t)

	decision := tap.Decide(keycode.Code(99), keycode.Down)
	assert.Equal(t, correlator.Pass, decision)
}

func TestDecideUpTrustsPressedAlone(t *testing.T) {
	tap := newTestTap(t)
	tap.state.RecordHIDDown(keycode.Code(13), time.Now())
	tap.Decide(keycode.Code(13), keycode.Down)

	decision := tap.Decide(keycode.Code(13), keycode.Up)
	assert.Equal(t, correlator.Block, decision)

	decision = tap.Decide(keycode.Code(13), keycode.Up)
	assert.Equal(t, correlator.Pass, decision)
}
