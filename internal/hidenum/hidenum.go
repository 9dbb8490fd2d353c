// Package hidenum implements the Device Enumerator: it queries the Linux
// evdev subsystem for keyboard-capable input handles and builds the
// engine's Device records.
//
// Grounded on the gvalkov/golang-evdev enumeration style used by
// AshBuk-speak-to-ai/hotkeys/evdev_provider.go (glob /dev/input/event*,
// Open, check Capabilities for EV_KEY) and on the I:/N:/P: parsing idiom
// of writerslogic-witnessd's internal/keystroke/device_info_linux.go,
// adapted here to golang-evdev's InputId/Phys fields instead of hand
// parsing /proc/bus/input/devices.
package hidenum

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gvalkov/golang-evdev"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/kbinterr"
)

var log = applog.For("hidenum")

// Transport is the physical link a Device communicates over.
type Transport string

const (
	USB       Transport = "USB"
	Bluetooth Transport = "Bluetooth"
	BuiltIn   Transport = "BuiltIn"
	Unknown   Transport = "Unknown"
)

// Linux bus type constants from linux/input.h, as used by evdev.Inputid.Bustype.
const (
	busUSB       = 0x03
	busBluetooth = 0x05
	busHost      = 0x19
	busI8042     = 0x11
)

// Device is an immutable record produced by Enumerate.
type Device struct {
	DeviceKey    string
	PhysicalID   string
	Name         string
	Manufacturer string
	Transport    Transport
	VendorID     uint16
	ProductID    uint16
	Location     uint32

	// Path is the backing /dev/input/eventN node; not part of the Data
	// Model's Device record, but needed by devstream and identity to open it.
	Path string
}

// deviceKey builds the stable "vendor:product:location" opaque string,
// lowercase hex, 4/4/8 width, per the Data Model's Device.device_key.
func deviceKey(vendor, product uint16, location uint32) string {
	return fmt.Sprintf("%04x:%04x:%08x", vendor, product, location)
}

// physicalID builds "vendor-product-(location>>8)", collapsing transport
// interfaces of one physical keyboard into one identity.
func physicalID(vendor, product uint16, location uint32) string {
	return fmt.Sprintf("%04x-%04x-%06x", vendor, product, location>>8)
}

// DeriveKeys computes device_key and physical_id for a given identity
// triple; exported so Identity Detector can derive the same values from
// observed HID presses without re-enumerating.
func DeriveKeys(vendor, product uint16, location uint32) (deviceKeyStr, physicalIDStr string) {
	return deviceKey(vendor, product, location), physicalID(vendor, product, location)
}

// classifyTransport maps a bustype+phys pair to a Transport. BUS_HOST and
// BUS_I8042 are the kernel's internal keyboard controller buses; an empty
// Phys or zero location indicates no external physical path at all.
func classifyTransport(bustype uint16, phys string, location uint32) Transport {
	switch {
	case location == 0, bustype == busHost, bustype == busI8042, phys == "":
		return BuiltIn
	case bustype == busUSB:
		return USB
	case bustype == busBluetooth:
		return Bluetooth
	default:
		return Unknown
	}
}

// deriveLocation hashes the USB/Bluetooth physical path segment of Phys
// (the portion before "/input") into a stable 32-bit location, since
// evdev does not expose a raw platform location_id the way IOHIDManager
// does. Built-in buses are forced to location 0 regardless of the hash,
// matching the invariant that location==0 is reserved for BuiltIn.
func deriveLocation(bustype uint16, phys string) uint32 {
	if bustype == busHost || bustype == busI8042 || phys == "" {
		return 0
	}
	path := phys
	if i := strings.Index(phys, "/input"); i >= 0 {
		path = phys[:i]
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	loc := h.Sum32()
	if loc == 0 {
		loc = 1 // 0 is reserved for BuiltIn; avoid an accidental collision
	}
	return loc
}

// isKeyboard reports whether a device's capability set includes standard
// keyboard/keypad keys, following the rosmo-go-hidproxy and
// AshBuk-speak-to-ai pattern of scanning dev.Capabilities for an EV_KEY
// bucket, then requiring a letter-row key code (KEY_A=30) to exclude
// devices that only expose a handful of consumer-control buttons.
func isKeyboard(dev *evdev.InputDevice) bool {
	for capType, codes := range dev.Capabilities {
		if capType.Name != "EV_KEY" {
			continue
		}
		for _, code := range codes {
			if code.Code == 30 {
				return true
			}
		}
	}
	return false
}

// Enumerate lists every keyboard-capable evdev node and builds Device
// records.
func Enumerate() ([]Device, error) {
	paths, err := filepath.Glob("/dev/input/event*")
	if err != nil {
		return nil, kbinterr.Wrap(kbinterr.SubsystemUnavailable, "glob /dev/input", err)
	}
	if paths == nil {
		return nil, kbinterr.New(kbinterr.SubsystemUnavailable, "no /dev/input/event* nodes present")
	}
	sort.Strings(paths)

	var out []Device
	var permDenied int
	for _, p := range paths {
		dev, err := evdev.Open(p)
		if err != nil {
			if isPermission(err) {
				permDenied++
				continue
			}
			log.Warn("open failed, skipping", "path", p, "err", err)
			continue
		}

		if !isKeyboard(dev) {
			dev.File.Close()
			continue
		}

		id := dev.Inputid
		location := deriveLocation(id.Bustype, dev.Phys)
		transport := classifyTransport(id.Bustype, dev.Phys, location)
		dk, pid := DeriveKeys(id.Vendor, id.Product, location)

		out = append(out, Device{
			DeviceKey:    dk,
			PhysicalID:   pid,
			Name:         dev.Name,
			Manufacturer: manufacturerGuess(dev.Name),
			Transport:    transport,
			VendorID:     id.Vendor,
			ProductID:    id.Product,
			Location:     location,
			Path:         p,
		})
		dev.File.Close()
	}

	if len(out) == 0 && permDenied > 0 {
		return nil, kbinterr.New(kbinterr.PermissionDenied, "insufficient privilege to open /dev/input nodes")
	}
	return out, nil
}

// Refresh re-runs Enumerate, picking up devices plugged in since.
func Refresh() ([]Device, error) {
	return Enumerate()
}

// manufacturerGuess extracts a manufacturer token from a device name when
// evdev exposes no separate manufacturer string (unlike IOHIDManager,
// Linux's evdev only reports a single combined Name field).
func manufacturerGuess(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "Unknown"
	}
	return fields[0]
}

func isPermission(err error) bool {
	return strings.Contains(err.Error(), "permission denied")
}

// ParseHex parses a lowercase hex field from a device_key/physical_id
// component; exported for tests and tooling that display raw identities.
func ParseHex(s string) (uint64, error) {
	return strconv.ParseUint(s, 16, 64)
}
