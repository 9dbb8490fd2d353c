// Package keycode translates raw HID usage codes into the engine's internal
// key codes and onward into the scan codes a guest keyboard expects.
//
// All four tables are pure, total functions over their domain: every raw
// HID usage has a key code, and every key code has a name, a scan code and
// a Linux KEY_* code. There is no per-session state here — the tables are
// module-level constants, the one piece of global state this engine
// tolerates (see DESIGN.md).
package keycode

import "log"

// Code is the engine's internal key code space. It follows the physical
// key identity used throughout the capture pipeline (Keystroke.key_code,
// HostEvent.key_code) — not a layout-dependent character.
type Code int32

// Direction distinguishes a key-down transition from a key-up transition.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// rolloverSentinel is the all-ones HID usage reported when too many keys
// are pressed simultaneously for the device to report individually.
const rolloverSentinel = 0xFFFFFFFF

// IsRollover reports whether a raw HID usage value is the rollover
// sentinel that must be dropped before any table lookup.
func IsRollover(usage uint32) bool {
	return usage == rolloverSentinel
}

// hidUsageToCode maps HID Usage Page 0x07 (Keyboard/Keypad) usage IDs to
// internal key codes. Unlisted usages fall back through FromHIDUsage's
// documented default.
var hidUsageToCode = map[uint32]Code{
	0x04: 0, 0x16: 1, 0x07: 2, 0x09: 3, 0x0B: 4, 0x0A: 5, 0x1D: 6, 0x1B: 7,
	0x06: 8, 0x19: 9, 0x05: 11, 0x14: 12, 0x1A: 13, 0x08: 14, 0x15: 15,
	0x1C: 16, 0x17: 17, 0x1E: 18, 0x1F: 19, 0x20: 20, 0x21: 21, 0x23: 22,
	0x22: 23, 0x2E: 24, 0x26: 25, 0x24: 26, 0x2D: 27, 0x25: 28, 0x27: 29,
	0x30: 30, 0x12: 31, 0x18: 32, 0x2F: 33, 0x0C: 34, 0x13: 35,
	0x28: 36, // Return
	0x0F: 37, 0x0D: 38, 0x34: 39, 0x0E: 40, 0x33: 41, 0x31: 42, 0x36: 43,
	0x38: 44, 0x11: 45, 0x10: 46, 0x37: 47,
	0x2B: 48, // Tab
	0x2C: 49, // Space
	0x35: 50, // Grave
	0x2A: 51, // Backspace (Delete on a Mac-style keyboard)
	0x29: 53, // Escape
	0x39: 57, // CapsLock
	0x3A: 122, 0x3B: 120, 0x3C: 99, 0x3D: 118, 0x3E: 96, 0x3F: 97,
	0x40: 98, 0x41: 100, 0x42: 101, 0x43: 109, 0x44: 103, 0x45: 111,
	0x4C: 117, // ForwardDelete
	0x4F: 124, // RightArrow
	0x50: 123, // LeftArrow
	0x51: 125, // DownArrow
	0x52: 126, // UpArrow
}

// FromHIDUsage maps a raw HID usage code to an internal key code.
// Default on miss: usages at or below 127 are identity-mapped (with a
// warning, since they are within the keyboard/keypad page's normal range
// but absent from our curated table); usages above 127 map to 0 keycode 0
// with a warning.
func FromHIDUsage(usage uint32) Code {
	if c, ok := hidUsageToCode[usage]; ok {
		return c
	}
	if usage <= 127 {
		log.Printf("keycode: usage %#x not in table, identity-mapping", usage)
		return Code(usage)
	}
	log.Printf("keycode: usage %#x out of keyboard/keypad range, dropping to 0", usage)
	return 0
}

// codeToName gives human-readable names for the codes above plus the
// frequently-remapped navigation/function keys.
var codeToName = map[Code]string{
	0: "A", 1: "S", 2: "D", 3: "F", 4: "H", 5: "G", 6: "Z", 7: "X", 8: "C",
	9: "V", 11: "B", 12: "Q", 13: "W", 14: "E", 15: "R", 16: "Y", 17: "T",
	18: "1", 19: "2", 20: "3", 21: "4", 22: "6", 23: "5", 24: "=", 25: "9",
	26: "7", 27: "-", 28: "8", 29: "0", 30: "]", 31: "O", 32: "U", 33: "[",
	34: "I", 35: "P", 36: "Return", 37: "L", 38: "J", 39: "'", 40: "K",
	41: ";", 42: "\\", 43: ",", 44: "/", 45: "N", 46: "M", 47: ".",
	48: "Tab", 49: "Space", 50: "`", 51: "Delete", 53: "Escape", 57: "Caps",
	122: "F1", 120: "F2", 99: "F3", 118: "F4", 96: "F5", 97: "F6", 98: "F7",
	100: "F8", 101: "F9", 109: "F10", 103: "F11", 111: "F12",
	117: "ForwardDelete", 123: "Left", 124: "Right", 125: "Down", 126: "Up",
}

// Name returns the human-readable name for an internal key code,
// defaulting to "Key<n>" for codes outside the curated set.
func Name(c Code) string {
	if n, ok := codeToName[c]; ok {
		return n
	}
	return keyN(c)
}

func keyN(c Code) string {
	return "Key" + itoa(int32(c))
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// fallbackScanCode is the scan code of 'A', used whenever an internal key
// code has no guest scan code mapping — this substitution, not a silent
// drop, keeps this table total instead of panicking on an unknown usage.
const fallbackScanCode = 30

// codeToScanCode maps internal key codes to the guest's scan-code space:
// the classic single-byte PS/2 "Scan Code Set 1" make codes, with the 0xE0
// extended-key prefix dropped (the guest controller is expected to know
// which codes are extended; this engine only forwards the base byte, as
// the physical-position invariant this table is meant to preserve).
var codeToScanCode = map[Code]int32{
	0: 30, 1: 31, 2: 32, 3: 33, 4: 35, 5: 34, 6: 44, 7: 45, 8: 46, 9: 47,
	11: 48, 12: 16, 13: 17, 14: 18, 15: 19, 16: 21, 17: 20, 18: 2, 19: 3,
	20: 4, 21: 5, 22: 7, 23: 6, 24: 13, 25: 10, 26: 8, 27: 12, 28: 9, 29: 11,
	30: 27, 31: 24, 32: 22, 33: 26, 34: 23, 35: 25, 36: 28, 37: 38, 38: 36,
	39: 40, 40: 37, 41: 39, 42: 43, 43: 51, 44: 53, 45: 49, 46: 50, 47: 52,
	48: 15, 49: 57, 50: 41, 51: 14, 53: 1, 57: 58,
	122: 59, 120: 60, 99: 61, 118: 62, 96: 63, 97: 64, 98: 65, 100: 66,
	101: 67, 109: 68, 103: 87, 111: 88,
	117: 83, // ForwardDelete
	123: 75, // Left
	124: 77, // Right
	125: 80, // Down
	126: 72, // Up
}

// ScanCode maps an internal key code to the guest's scan code. On a miss
// it substitutes the scan code of 'A' and warns — the relay must never
// silently drop a key event.
func ScanCode(c Code) int32 {
	if sc, ok := codeToScanCode[c]; ok {
		return sc
	}
	log.Printf("keycode: key code %d has no scan code mapping, substituting 'A' (%d)", c, fallbackScanCode)
	return fallbackScanCode
}

// fallbackLinuxKey is KEY_A, used whenever an internal key code has no
// Linux keycode mapping.
const fallbackLinuxKey = 30

// codeToLinuxKey maps internal key codes to the Linux evdev/uinput KEY_*
// constant space (linux/input-event-codes.h). This is a distinct table
// from codeToScanCode: the two numbering spaces agree for most of the
// main alphanumeric block (an artifact of Linux's KEY_* assignment
// following PC/AT Set 1 there) but diverge for the extended keys —
// KEY_LEFT is 105, not the 0xE0-prefixed PS/2 make code 75.
var codeToLinuxKey = map[Code]uint16{
	0: 30, 1: 31, 2: 32, 3: 33, 4: 35, 5: 34, 6: 44, 7: 45, 8: 46, 9: 47,
	11: 48, 12: 16, 13: 17, 14: 18, 15: 19, 16: 21, 17: 20, 18: 2, 19: 3,
	20: 4, 21: 5, 22: 7, 23: 6, 24: 13, 25: 10, 26: 8, 27: 12, 28: 9, 29: 11,
	30: 27, 31: 24, 32: 22, 33: 26, 34: 23, 35: 25, 36: 28, 37: 38, 38: 36,
	39: 40, 40: 37, 41: 39, 42: 43, 43: 51, 44: 53, 45: 49, 46: 50, 47: 52,
	48: 15, 49: 57, 50: 41, 51: 14, 53: 1, 57: 58,
	122: 59, 120: 60, 99: 61, 118: 62, 96: 63, 97: 64, 98: 65, 100: 66,
	101: 67, 109: 68, 103: 87, 111: 88,
	117: 111, // Delete
	123: 105, // Left
	124: 106, // Right
	125: 108, // Down
	126: 103, // Up
}

// LinuxKeyCode maps an internal key code to the Linux KEY_* constant
// uinput needs to re-inject it as the matching physical key. On a miss
// it substitutes KEY_A and warns, the same total-table discipline
// ScanCode uses.
func LinuxKeyCode(c Code) uint16 {
	if lc, ok := codeToLinuxKey[c]; ok {
		return lc
	}
	log.Printf("keycode: key code %d has no Linux keycode mapping, substituting KEY_A (%d)", c, fallbackLinuxKey)
	return fallbackLinuxKey
}
