package guestfwd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  bool
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]string(nil), args...)
	f.calls = append(f.calls, cp)
	if f.fail {
		return "", "boom", errors.New("exit status 1")
	}
	return "", "", nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestForwarderDeliversPressAndRelease(t *testing.T) {
	runner := &fakeRunner{}
	fw := New(runner, "VM-X", 2, nil)
	defer fw.Stop()

	fw.Enqueue(RelayIntent{ScanCode: 17, Direction: Press})
	fw.Enqueue(RelayIntent{ScanCode: 17, Direction: Release})

	assert.Eventually(t, func() bool { return runner.callCount() == 2 }, time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Contains(t, runner.calls[0], "send-key-event")
	assert.Contains(t, runner.calls[0], "VM-X")
	assert.Contains(t, runner.calls[0], "17")
	assert.Contains(t, runner.calls[0], "press")
}

func TestForwarderSurvivesFailedInvocation(t *testing.T) {
	runner := &fakeRunner{fail: true}
	fw := New(runner, "VM-X", 2, nil)
	defer fw.Stop()

	fw.Enqueue(RelayIntent{ScanCode: 30, Direction: Press})
	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestParseGuestList(t *testing.T) {
	out := "UUID STATUS NAME\n" +
		"abc-123 running vm-one\n" +
		"\n" +
		"def-456 stopped vm two words\n" +
		"ghi-789 paused odd-state\n"

	guests := parseGuestList(out)
	require.Len(t, guests, 3)
	assert.Equal(t, Guest{UUID: "abc-123", Status: Running, Name: "vm-one"}, guests[0])
	assert.Equal(t, Guest{UUID: "def-456", Status: Stopped, Name: "vm two words"}, guests[1])
	assert.Equal(t, UnknownStatus, guests[2].Status)
}

func TestListGuests(t *testing.T) {
	runner := &stubRunner{out: "UUID STATUS NAME\nabc running vm\n"}
	guests, err := ListGuests(context.Background(), runner)
	require.NoError(t, err)
	require.Len(t, guests, 1)
	assert.Equal(t, "abc", guests[0].UUID)
}

type stubRunner struct {
	out string
	err error
}

func (s *stubRunner) Run(ctx context.Context, args ...string) (string, string, error) {
	return s.out, "", s.err
}
