// Package hosttap implements the Host Stream Tap: the system-wide
// key-event interceptor able to drop events before they reach host
// applications.
//
// Linux has no CGEventTap-style callback with a pass/drop return value,
// so this realizes the same contract with two evdev primitives: an
// EVIOCGRAB exclusive grab on the selected device node (so the kernel
// stops delivering its events to any other reader — the
// rosmo-go-hidproxy dev.Grab()/dev.Release() pattern), and a uinput
// virtual keyboard that re-emits whichever events the Correlator decides
// to "pass", so passed keys still reach the host exactly once.
//
// The grab itself is owned by Device Stream (internal/devstream), since
// EVIOCGRAB is exclusive: once one fd on a node holds it, every other
// open fd on that same node — including a second one this package might
// open — stops receiving events entirely. Tap therefore does not open or
// read the device node itself; it only holds the Correlator state and
// the uinput re-injection target, and exposes Decide/Emit for Device
// Stream's already-grabbed read loop to call on each raw transition.
package hosttap

import (
	"errors"
	"os"
	"time"

	"github.com/keyfence/keyfence/internal/correlator"
	"github.com/keyfence/keyfence/internal/kbinterr"
	"github.com/keyfence/keyfence/internal/keycode"
)

// Tap holds the Correlator state and the uinput re-injection target a
// grabbed Device Stream calls into on each raw transition.
type Tap struct {
	state  *correlator.State
	inject *uinputKeyboard
}

// Open opens the uinput re-injection target. Returns a PermissionDenied
// error if /dev/uinput cannot be opened for lack of permission; other
// failures are returned as they are.
func Open(state *correlator.State) (*Tap, error) {
	inject, err := newUinputKeyboard()
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, kbinterr.Wrap(kbinterr.PermissionDenied, "open uinput", err)
		}
		return nil, err
	}
	return &Tap{state: state, inject: inject}, nil
}

// Decide classifies one raw HID transition already recorded against the
// Correlator by the grabbing Device Stream, and reports whether it
// should reach the host.
func (t *Tap) Decide(code keycode.Code, dir keycode.Direction) correlator.Decision {
	if dir == keycode.Down {
		return t.state.ShouldBlockDown(code, time.Now())
	}
	return t.state.ShouldBlockUp(code)
}

// Emit re-injects a passed transition on the uinput virtual keyboard so
// it still reaches the host exactly once.
func (t *Tap) Emit(code keycode.Code, dir keycode.Direction) {
	t.inject.Emit(code, dir)
}

// Close releases the uinput device.
func (t *Tap) Close() error {
	return t.inject.Close()
}
