// Package correlator implements the Correlator: it owns CorrelatorState
// and the two O(1) decision functions that decide whether a host keyboard
// event belongs to the selected device and must be blocked.
//
// One mutex guards a small bundle of maps touched from two different
// callback contexts: the Device Stream's HID reader and the Host Stream
// Tap's event handler.
package correlator

import (
	"sync"
	"time"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/keycode"
)

var log = applog.For("correlator")

// Decision is the outcome of a host event classification.
type Decision int

const (
	Pass Decision = iota
	Block
)

// Config carries the Correlator's tunable constants. Defaults match the
// conservative default operating values.
type Config struct {
	HoldTTL         time.Duration // default 10s
	InitialWindow   time.Duration // default 80ms
	JanitorInterval time.Duration // default 5s
	MaxEntries      int           // default 50
	MaxEntryAge     time.Duration // default 30s
}

// DefaultConfig returns the conservative default operating values.
func DefaultConfig() Config {
	return Config{
		HoldTTL:         10 * time.Second,
		InitialWindow:   80 * time.Millisecond,
		JanitorInterval: 5 * time.Second,
		MaxEntries:      50,
		MaxEntryAge:     30 * time.Second,
	}
}

// State is the Correlator's shared state: pressed, last_hid_down and
// last_hid_up, all protected by one mutex touched from the HID thread
// (Device Stream) and the tap thread (Host Stream Tap).
type State struct {
	cfg Config

	mu          sync.Mutex
	pressed     map[keycode.Code]bool
	lastHIDDown map[keycode.Code]time.Time
	lastHIDUp   map[keycode.Code]time.Time

	stopJanitor chan struct{}
	janitorDone chan struct{}
}

// NewState creates a CorrelatorState and starts its janitor goroutine.
func NewState(cfg Config) *State {
	s := &State{
		cfg:         cfg,
		pressed:     make(map[keycode.Code]bool),
		lastHIDDown: make(map[keycode.Code]time.Time),
		lastHIDUp:   make(map[keycode.Code]time.Time),
		stopJanitor: make(chan struct{}),
		janitorDone: make(chan struct{}),
	}
	go s.runJanitor()
	return s
}

// RecordHIDDown is called by Device Stream on every emitted Down
// transition, under the correlator lock.
func (s *State) RecordHIDDown(k keycode.Code, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pressed[k] = true
	s.lastHIDDown[k] = at
}

// RecordHIDUp is called by Device Stream on every emitted Up transition.
func (s *State) RecordHIDUp(k keycode.Code, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pressed, k)
	s.lastHIDUp[k] = at
}

// IsPressed reports whether k is currently tracked as pressed; exposed
// for testable-property checks and status reporting.
func (s *State) IsPressed(k keycode.Code) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pressed[k]
}

// ShouldBlockDown decides whether a host key-down should be blocked.
func (s *State) ShouldBlockDown(k keycode.Code, at time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pressed[k] {
		if at.Sub(s.lastHIDDown[k]) > s.cfg.HoldTTL {
			delete(s.pressed, k)
			log.Warn("stale correlation, passing through", "key_code", k)
			return Pass
		}
		return Block
	}

	if at.Sub(s.lastHIDDown[k]) <= s.cfg.InitialWindow {
		s.pressed[k] = true
		return Block
	}

	return Pass
}

// ShouldBlockUp decides whether a host key-up should be blocked.
// Releases are trusted against pressed alone; no HID corroboration is
// required, since waiting for it would leak keys to the host on release.
func (s *State) ShouldBlockUp(k keycode.Code) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pressed[k] {
		delete(s.pressed, k)
		return Block
	}
	return Pass
}

// runJanitor prunes entries older than MaxEntryAge and enforces the
// MaxEntries hard cap, every JanitorInterval.
func (s *State) runJanitor() {
	defer close(s.janitorDone)
	t := time.NewTicker(s.cfg.JanitorInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stopJanitor:
			return
		case <-t.C:
			s.sweep(time.Now())
		}
	}
}

func (s *State) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, at := range s.lastHIDDown {
		if now.Sub(at) > s.cfg.MaxEntryAge {
			delete(s.lastHIDDown, k)
		}
	}
	for k, at := range s.lastHIDUp {
		if now.Sub(at) > s.cfg.MaxEntryAge {
			delete(s.lastHIDUp, k)
		}
	}

	pruneOldest(s.lastHIDDown, s.cfg.MaxEntries)
	pruneOldest(s.lastHIDUp, s.cfg.MaxEntries)
}

// pruneOldest removes the oldest entries from m until its size is within
// max.
func pruneOldest(m map[keycode.Code]time.Time, max int) {
	if len(m) <= max {
		return
	}
	type kv struct {
		k  keycode.Code
		at time.Time
	}
	entries := make([]kv, 0, len(m))
	for k, at := range m {
		entries = append(entries, kv{k, at})
	}
	// simple selection: repeatedly remove the minimum until within bound,
	// fine at this scale (<=50 entries by design).
	for len(entries) > max {
		oldest := 0
		for i := range entries {
			if entries[i].at.Before(entries[oldest].at) {
				oldest = i
			}
		}
		delete(m, entries[oldest].k)
		entries = append(entries[:oldest], entries[oldest+1:]...)
	}
}

// Stop halts the janitor. Must be called at Session teardown after D and
// E have both been closed.
func (s *State) Stop() {
	close(s.stopJanitor)
	<-s.janitorDone
}

// Snapshot returns the current pressed-set size and map sizes, for
// session_status reporting and the size-bound testable property.
func (s *State) Snapshot() (pressedCount, downEntries, upEntries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pressed), len(s.lastHIDDown), len(s.lastHIDUp)
}
