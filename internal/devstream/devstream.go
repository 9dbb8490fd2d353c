// Package devstream implements the Device Stream: a per-selected-device
// HID reader that derives down/up key transitions from raw state reports
// and feeds them to the Correlator and, in Relay mode, the Guest
// Forwarder.
//
// Grounded on rosmo-go-hidproxy's HandleKeyboard read loop (dev.ReadOne,
// EV_KEY filtering, non-blocking fd via SetReadDeadline) and
// writerslogic-witnessd's HIDInputMonitor.readInputLoop prev-state
// tracking idiom.
//
// A Stream EVIOCGRABs its node exclusively: it is the only reader the
// selected device ever gets, so it also carries the Host Stream Tap's
// block decision and re-injection for that node (see internal/hosttap).
// A second, ungrabbed open of the same node would simply stop receiving
// events once the grab takes effect.
package devstream

import (
	"context"
	"time"

	"github.com/gvalkov/golang-evdev"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/correlator"
	"github.com/keyfence/keyfence/internal/events"
	"github.com/keyfence/keyfence/internal/guestfwd"
	"github.com/keyfence/keyfence/internal/hidenum"
	"github.com/keyfence/keyfence/internal/hosttap"
	"github.com/keyfence/keyfence/internal/keycode"
)

var log = applog.For("devstream")

// Keystroke is the Data Model's Keystroke record, produced from HID
// transitions.
type Keystroke struct {
	KeyCode         keycode.Code
	Direction       keycode.Direction
	At              time.Time
	SourceDeviceKey string
}

// Stream reads one evdev node's raw key reports and turns them into
// Keystrokes, updating Correlator state and (in Relay mode) enqueuing
// RelayIntents for each emission.
type Stream struct {
	device    hidenum.Device
	selection map[string]bool     // allowed device_keys for this session
	state     *correlator.State
	tap       *hosttap.Tap        // nil when the host tap failed to open; degraded mode
	forwarder *guestfwd.Forwarder // nil in CaptureOnly mode
	bus       *events.Bus

	prevState map[keycode.Code]bool
}

// New creates a Stream for one evdev device node. selection is the set
// of device_keys the owning Session is targeting; tap is nil in degraded
// mode, where no Correlator decision is made and nothing is re-injected
// (the grab, when it succeeds, still keeps this device's events from the
// host); forwarder is nil when the Session mode is CaptureOnly.
func New(d hidenum.Device, selection map[string]bool, state *correlator.State, tap *hosttap.Tap, forwarder *guestfwd.Forwarder, bus *events.Bus) *Stream {
	return &Stream{
		device:    d,
		selection: selection,
		state:     state,
		tap:       tap,
		forwarder: forwarder,
		bus:       bus,
		prevState: make(map[keycode.Code]bool),
	}
}

// Run opens the device, grabs it exclusively so the kernel stops
// delivering its events anywhere else, and reads until ctx is cancelled
// or the device vanishes. Grab failure (e.g. another process already
// holds it) is logged and tolerated: the Stream still records and
// relays, it just can't block the host side. Blocking is confined to
// this goroutine; Run never shares synchronization with other streams
// beyond the Correlator's own mutex.
func (s *Stream) Run(ctx context.Context) error {
	if !s.selection[s.device.DeviceKey] {
		// Device filtering: a selection may list devices this Stream
		// was not built for; defensive no-op rather than a panic.
		return nil
	}

	dev, err := evdev.Open(s.device.Path)
	if err != nil {
		return err
	}
	defer dev.File.Close()

	if err := dev.Grab(); err != nil {
		log.Warn("grab failed, host blocking unavailable for this device", "device", s.device.DeviceKey, "err", err)
	} else {
		defer dev.Release()
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	for {
		select {
		case <-done:
			return nil
		default:
		}

		ev, err := dev.ReadOne()
		if err != nil {
			log.Warn("device vanished mid-session", "device", s.device.DeviceKey, "err", err)
			return err
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		s.handleRaw(uint32(ev.Code), ev.Value)
	}
}

// handleRaw applies the filter/map/transition pipeline to one
// raw HID value.
func (s *Stream) handleRaw(usage uint32, value int32) {
	if keycode.IsRollover(usage) {
		return
	}
	code := keycode.FromHIDUsage(usage)

	prev := s.prevState[code]
	cur := value > 0

	var dir keycode.Direction
	switch {
	case !prev && cur:
		dir = keycode.Down
	case prev && !cur:
		dir = keycode.Up
	default:
		return // steady state, no transition
	}
	s.prevState[code] = cur

	ks := Keystroke{KeyCode: code, Direction: dir, At: time.Now(), SourceDeviceKey: s.device.DeviceKey}
	s.emit(ks)
}

// emit updates CorrelatorState, asks the Host Stream Tap whether this
// transition should still reach the host, and, in Relay mode, enqueues a
// RelayIntent.
func (s *Stream) emit(ks Keystroke) {
	switch ks.Direction {
	case keycode.Down:
		s.state.RecordHIDDown(ks.KeyCode, ks.At)
	case keycode.Up:
		s.state.RecordHIDUp(ks.KeyCode, ks.At)
	}

	if s.tap != nil {
		if s.tap.Decide(ks.KeyCode, ks.Direction) == correlator.Pass {
			s.tap.Emit(ks.KeyCode, ks.Direction)
		}
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.KeystrokeCaptured, Data: ks})
	}

	if s.forwarder != nil {
		s.forwarder.Enqueue(guestfwd.RelayIntent{
			ScanCode:  keycode.ScanCode(ks.KeyCode),
			Direction: directionToRelay(ks.Direction),
		})
	}
}

func directionToRelay(d keycode.Direction) guestfwd.RelayDirection {
	if d == keycode.Down {
		return guestfwd.Press
	}
	return guestfwd.Release
}
