// Package engine is the thin operator surface: it exposes device
// enumeration, identity detection, and session start/stop/status/log
// over a small Go API that cmd/kbinterposed wires into an HTTP control
// surface and cmd/kbinterposectl calls into as a client.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/config"
	"github.com/keyfence/keyfence/internal/correlator"
	"github.com/keyfence/keyfence/internal/devstream"
	"github.com/keyfence/keyfence/internal/events"
	"github.com/keyfence/keyfence/internal/guestfwd"
	"github.com/keyfence/keyfence/internal/hidenum"
	"github.com/keyfence/keyfence/internal/identity"
	"github.com/keyfence/keyfence/internal/supervisor"
)

var log = applog.For("engine")

// SessionHandle identifies one started Session to the operator surface.
type SessionHandle string

// Engine is the process-wide handle collection the operator surface
// calls into. It is constructed once, in cmd/kbinterposed/main.go, and
// passed down explicitly rather than reached for as a singleton.
type Engine struct {
	cfg *config.Config
	bus *events.Bus

	mu       sync.Mutex
	sessions map[SessionHandle]*supervisor.Session
	logs     map[SessionHandle][]devstream.Keystroke
	next     int
}

// New constructs an Engine from a loaded config and a domain event bus.
func New(cfg *config.Config, bus *events.Bus) *Engine {
	return &Engine{
		cfg:      cfg,
		bus:      bus,
		sessions: make(map[SessionHandle]*supervisor.Session),
		logs:     make(map[SessionHandle][]devstream.Keystroke),
	}
}

// EnumerateDevices implements enumerate_devices().
func (e *Engine) EnumerateDevices() ([]hidenum.Device, error) {
	return hidenum.Enumerate()
}

// DetectIdentity implements detect_identity(stop_predicate).
func (e *Engine) DetectIdentity(ctx context.Context, available []hidenum.Device, stop identity.StopPredicate) (identity.Selection, error) {
	return identity.Detect(ctx, available, stop)
}

// StartOpts bundles start_session's (selection, mode, duration) triple.
type StartOpts struct {
	Selection identity.Selection
	Mode      supervisor.Mode
	GuestID   string
	Duration  time.Duration
}

// StartSession implements start_session(selection, mode, duration).
func (e *Engine) StartSession(ctx context.Context, opts StartOpts) (SessionHandle, error) {
	corrCfg := e.cfg.GetCorrelator()
	deps := supervisor.Deps{
		Runner:        guestfwd.NewExecRunner(e.cfg.GetControllerPath()),
		MaxInFlight:   e.cfg.GetMaxInFlightRelays(),
		CorrelatorCfg: correlator.Config{
			HoldTTL:         corrCfg.HoldTTL(),
			InitialWindow:   corrCfg.InitialWindow(),
			JanitorInterval: corrCfg.JanitorInterval(),
			MaxEntries:      corrCfg.MaxEntries,
			MaxEntryAge:     corrCfg.MaxEntryAge(),
		},
		Bus: e.bus,
	}

	sess := supervisor.New(opts.Selection, opts.Mode, opts.GuestID, opts.Duration, deps)
	if err := sess.Prepare(); err != nil {
		return "", err
	}
	sess.Start(ctx)

	e.mu.Lock()
	e.next++
	handle := SessionHandle(fmt.Sprintf("session-%d", e.next))
	e.sessions[handle] = sess
	e.mu.Unlock()

	log.Info("session started", "handle", handle, "physical_id", opts.Selection.PhysicalID)
	return handle, nil
}

// StopSession implements stop_session(handle).
func (e *Engine) StopSession(handle SessionHandle) error {
	e.mu.Lock()
	sess, ok := e.sessions[handle]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown session handle: %s", handle)
	}
	sess.Stop()
	return nil
}

// SessionStatus implements session_status(handle).
func (e *Engine) SessionStatus(handle SessionHandle) (supervisor.Status, error) {
	e.mu.Lock()
	sess, ok := e.sessions[handle]
	e.mu.Unlock()
	if !ok {
		return supervisor.Status{}, fmt.Errorf("unknown session handle: %s", handle)
	}
	return sess.Status(), nil
}

// CopyKeystrokeLog returns a copy of the keystroke history captured for
// handle, served from events already published on the bus by
// WatchKeystrokes rather than a separately maintained log array.
func (e *Engine) CopyKeystrokeLog(handle SessionHandle) []devstream.Keystroke {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]devstream.Keystroke, len(e.logs[handle]))
	copy(out, e.logs[handle])
	return out
}

// WatchKeystrokes subscribes to the bus and appends every
// KeystrokeCaptured event into handle's in-memory log that
// CopyKeystrokeLog serves. Events are not filtered by session: keystrokes
// from any session on the same bus land in this log, and the
// subscription stays open after the session stops. Call once per started
// session.
func (e *Engine) WatchKeystrokes(handle SessionHandle) {
	if e.bus == nil {
		return
	}
	ch, _ := e.bus.Subscribe()
	go func() {
		for ev := range ch {
			if ev.Kind != events.KeystrokeCaptured {
				continue
			}
			ks, ok := ev.Data.(devstream.Keystroke)
			if !ok {
				continue
			}
			e.mu.Lock()
			e.logs[handle] = append(e.logs[handle], ks)
			e.mu.Unlock()
		}
	}()
}
