// Package supervisor implements the Session Supervisor: it owns the
// lifecycle of Device Stream, Host Stream Tap, Correlator and Guest
// Forwarder for one (device, optional VM, duration) Session, and
// enforces the safety timer.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/correlator"
	"github.com/keyfence/keyfence/internal/devstream"
	"github.com/keyfence/keyfence/internal/events"
	"github.com/keyfence/keyfence/internal/guestfwd"
	"github.com/keyfence/keyfence/internal/hidenum"
	"github.com/keyfence/keyfence/internal/hosttap"
	"github.com/keyfence/keyfence/internal/identity"
)

var log = applog.For("supervisor")

// SessionState is the Supervisor's lifecycle state machine:
// Idle → Preparing → Active → Draining → Idle.
type SessionState int

const (
	Idle SessionState = iota
	Preparing
	Active
	Draining
)

func (s SessionState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Active:
		return "active"
	case Draining:
		return "draining"
	default:
		return "unknown"
	}
}

// Mode is the Session's capture/relay mode.
type Mode int

const (
	CaptureOnly Mode = iota
	Relay
)

// Status is the read-only snapshot session_status() returns.
type Status struct {
	Active         bool
	EventsCaptured int
	TimeRemaining  time.Duration
}

// Session owns one run of capture (and optional relay) against one
// Selection, bounded by operator stop or a safety deadline.
type Session struct {
	mu    sync.Mutex
	state SessionState

	selection identity.Selection
	mode      Mode
	guestID   string
	deadline  time.Time // zero means no deadline

	startedAt      time.Time
	eventsCaptured int

	correlatorState *correlator.State
	forwarder       *guestfwd.Forwarder
	tap             *hosttap.Tap
	bus             *events.Bus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles the construction-time collaborators a Session needs,
// passed in as construction arguments rather than cyclic ownership.
type Deps struct {
	Runner        guestfwd.Runner
	MaxInFlight   int
	CorrelatorCfg correlator.Config
	Bus           *events.Bus
}

// New creates a Session in the Idle state for the given target, mode and
// duration (0 = no deadline). Caller must call Prepare, then Start.
func New(selection identity.Selection, mode Mode, guestID string, duration time.Duration, deps Deps) *Session {
	s := &Session{
		state:     Idle,
		selection: selection,
		mode:      mode,
		guestID:   guestID,
		bus:       deps.Bus,
	}
	if duration > 0 {
		s.deadline = time.Now().Add(duration)
	}
	s.correlatorState = correlator.NewState(deps.CorrelatorCfg)
	if mode == Relay {
		s.forwarder = guestfwd.New(deps.Runner, guestID, deps.MaxInFlight, deps.Bus)
	}
	return s
}

// Prepare verifies permissions via a dry tap open and transitions
// Idle → Preparing.
func (s *Session) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return nil
	}

	tap, err := hosttap.Open(s.correlatorState)
	if err != nil {
		// Permission failure at dry-open time; CaptureOnly-only
		// degraded mode is still possible downstream in Start.
		log.Warn("host tap dry-open failed", "err", err)
	} else {
		s.tap = tap
	}

	s.state = Preparing
	s.publish()
	return nil
}

// Start transitions Preparing → Active: D and E are started, the safety
// timer is armed.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != Preparing {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.startedAt = time.Now()
	s.state = Active
	s.publish()
	s.mu.Unlock()

	selectionKeys := s.selection.DeviceKeys()

	if s.tap == nil {
		log.Warn("session running in capture-only degraded mode: host tap unavailable")
	}

	var streamsStarted int
	for _, d := range s.selection.Devices {
		stream := devstream.New(d, selectionKeys, s.correlatorState, s.tap, s.forwarder, s.bus)
		s.wg.Add(1)
		streamsStarted++
		go func(st *devstream.Stream) {
			defer s.wg.Done()
			if err := st.Run(runCtx); err != nil {
				log.Warn("device stream stopped", "err", err)
			}
		}(stream)
	}

	// A selection with no devices starts no stream; the session still goes
	// Active rather than aborting, but nothing is captured or blocked. A
	// stream whose device fails to open exits on its own and is only logged.
	if streamsStarted == 0 {
		log.Warn("session running with no device streams: nothing is captured or blocked")
	}

	if !s.deadline.IsZero() {
		// Not tracked by s.wg: this goroutine calls Stop, which waits on s.wg.
		go func() {
			timer := time.NewTimer(time.Until(s.deadline))
			defer timer.Stop()
			select {
			case <-timer.C:
				s.Stop()
			case <-runCtx.Done():
			}
		}()
	}
}

// Stop triggers Active → Draining → Idle: cancel the device streams
// first, wait for their goroutines to exit (each releases its grab on
// the way out), then close the uinput injection target and the
// forwarder.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return
	}
	s.state = Draining
	s.publish()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	if s.tap != nil {
		_ = s.tap.Close()
	}
	if s.forwarder != nil {
		s.forwarder.Stop()
	}
	s.correlatorState.Stop()

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()
	s.publish()
}

// Status returns a read-only snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var remaining time.Duration
	if !s.deadline.IsZero() {
		remaining = time.Until(s.deadline)
		if remaining < 0 {
			remaining = 0
		}
	}
	return Status{
		Active:         s.state == Active,
		EventsCaptured: s.eventsCaptured,
		TimeRemaining:  remaining,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) publish() {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{Kind: events.StateTransitioned, Data: s.state})
}

// RefreshTarget builds a Selection from the devices in available that
// share physicalID. Nothing in this module calls it, and a stream's read
// error (such as a vanished device) is only logged: the session is not
// stopped by it.
func RefreshTarget(available []hidenum.Device, physicalID string) identity.Selection {
	var devs []hidenum.Device
	for _, d := range available {
		if d.PhysicalID == physicalID {
			devs = append(devs, d)
		}
	}
	return identity.Selection{PhysicalID: physicalID, Devices: devs}
}
