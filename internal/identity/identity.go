// Package identity implements the Identity Detector: it watches raw HID
// presses across every enumerated keyboard and infers which physical
// device the user is currently typing on.
//
// Grounded on the per-device evdev read-loop style of
// rosmo-go-hidproxy's HandleKeyboard and AshBuk-speak-to-ai's
// EvdevKeyboardProvider, fanned out across every candidate device
// concurrently instead of one.
package identity

import (
	"context"
	"sync"

	"github.com/gvalkov/golang-evdev"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/hidenum"
	"github.com/keyfence/keyfence/internal/kbinterr"
	"github.com/keyfence/keyfence/internal/keycode"
)

var log = applog.For("identity")

// Selection is the set of Device records sharing one physical_id,
// returned by Detect.
type Selection struct {
	PhysicalID string
	Devices    []hidenum.Device
}

// DeviceKeys returns the set of device_key strings in this selection,
// the match criterion the Correlator and Device Stream use.
func (s Selection) DeviceKeys() map[string]bool {
	out := make(map[string]bool, len(s.Devices))
	for _, d := range s.Devices {
		out[d.DeviceKey] = true
	}
	return out
}

// StopPredicate decides when enough presses have been observed. The
// engine accepts it as a parameter rather than hard-coding a press count.
type StopPredicate func(observedPresses int) bool

// MinPresses returns a StopPredicate that fires once n distinct presses
// have been observed.
func MinPresses(n int) StopPredicate {
	return func(observed int) bool { return observed >= n }
}

// Detect opens a read-only listener across every available device and
// blocks until stop fires (or ctx is cancelled), then correlates the
// observed identities against available.
func Detect(ctx context.Context, available []hidenum.Device, stop StopPredicate) (Selection, error) {
	observed := newObservationSet()

	var wg sync.WaitGroup
	listenCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, d := range available {
		wg.Add(1)
		go func(d hidenum.Device) {
			defer wg.Done()
			listenOne(listenCtx, d, observed, stop, cancel)
		}(d)
	}
	wg.Wait()

	return correlate(observed, available)
}

// listenOne reads raw key-down events off one device, ignoring releases
// and the rollover sentinel, recording each press's derived identity.
func listenOne(ctx context.Context, d hidenum.Device, observed *observationSet, stop StopPredicate, cancelAll func()) {
	dev, err := evdev.Open(d.Path)
	if err != nil {
		log.Warn("open failed during detection", "device", d.DeviceKey, "err", err)
		return
	}
	defer dev.File.Close()

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		ev, err := dev.ReadOne()
		if err != nil {
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		usage := uint32(ev.Code)
		if keycode.IsRollover(usage) {
			continue
		}
		if ev.Value == 0 {
			continue // release, ignored
		}

		observed.record(d.VendorID, d.ProductID, d.Location)
		if stop(observed.count()) {
			cancelAll()
			return
		}
	}
}

// correlate maps observed identities back onto available: exact
// device_key match first, else physical_id match, returning the union
// deduplicated by (physical_id, transport).
func correlate(observed *observationSet, available []hidenum.Device) (Selection, error) {
	keys, physIDs := observed.snapshot()
	if len(keys) == 0 && len(physIDs) == 0 {
		return Selection{}, kbinterr.New(kbinterr.NoMatch, "no presses observed during detection")
	}

	var matched []hidenum.Device
	seen := make(map[string]bool) // physical_id+transport dedup key

	addIfNew := func(d hidenum.Device) {
		dk := d.PhysicalID + "|" + string(d.Transport)
		if seen[dk] {
			return
		}
		seen[dk] = true
		matched = append(matched, d)
	}

	for _, d := range available {
		if keys[d.DeviceKey] {
			addIfNew(d)
		}
	}
	if len(matched) == 0 {
		for _, d := range available {
			if physIDs[d.PhysicalID] {
				addIfNew(d)
			}
		}
	} else {
		// Still pull in sibling interfaces sharing a physical_id with
		// any exact match, so all transports of the device are included.
		targets := make(map[string]bool, len(matched))
		for _, d := range matched {
			targets[d.PhysicalID] = true
		}
		for _, d := range available {
			if targets[d.PhysicalID] {
				addIfNew(d)
			}
		}
	}

	if len(matched) == 0 {
		return Selection{}, kbinterr.New(kbinterr.NoMatch, "observed presses did not correlate with enumerated devices")
	}

	return Selection{PhysicalID: matched[0].PhysicalID, Devices: matched}, nil
}

// observationSet is the concurrency-safe accumulator listenOne writes
// into from multiple goroutines (one per candidate device).
type observationSet struct {
	mu      sync.Mutex
	keys    map[string]bool
	physIDs map[string]bool
	n       int
}

func newObservationSet() *observationSet {
	return &observationSet{keys: make(map[string]bool), physIDs: make(map[string]bool)}
}

func (o *observationSet) record(vendor, product uint16, location uint32) {
	dk, pid := hidenum.DeriveKeys(vendor, product, location)
	o.mu.Lock()
	defer o.mu.Unlock()
	o.keys[dk] = true
	o.physIDs[pid] = true
	o.n++
}

func (o *observationSet) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.n
}

func (o *observationSet) snapshot() (map[string]bool, map[string]bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	keys := make(map[string]bool, len(o.keys))
	for k := range o.keys {
		keys[k] = true
	}
	phys := make(map[string]bool, len(o.physIDs))
	for k := range o.physIDs {
		phys[k] = true
	}
	return keys, phys
}
