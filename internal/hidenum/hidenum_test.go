package hidenum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveKeys(t *testing.T) {
	dk, pid := DeriveKeys(0x046d, 0xc52b, 0x14000001)
	assert.Equal(t, "046d:c52b:14000001", dk)
	assert.Equal(t, "046d-c52b-140000", pid)
}

func TestDeriveKeysBuiltIn(t *testing.T) {
	dk, pid := DeriveKeys(0x05ac, 0x0220, 0)
	assert.Equal(t, "05ac:0220:00000000", dk)
	assert.Equal(t, "05ac-0220-000000", pid)
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, BuiltIn, classifyTransport(busUSB, "usb-0000:00:14.0-1/input0", 0))
	assert.Equal(t, BuiltIn, classifyTransport(busI8042, "isa0060/serio0/input0", 5))
	assert.Equal(t, USB, classifyTransport(busUSB, "usb-0000:00:14.0-1/input0", 42))
	assert.Equal(t, Bluetooth, classifyTransport(busBluetooth, "ab:cd:ef:01:02:03", 99))
	assert.Equal(t, Unknown, classifyTransport(0x99, "something", 7))
}

func TestDeriveLocationBuiltInIsZero(t *testing.T) {
	assert.Equal(t, uint32(0), deriveLocation(busI8042, "isa0060/serio0/input0"))
	assert.Equal(t, uint32(0), deriveLocation(busUSB, ""))
}

func TestDeriveLocationStableAndNonZeroForExternal(t *testing.T) {
	loc := deriveLocation(busUSB, "usb-0000:00:14.0-1/input0")
	assert.NotZero(t, loc)
	again := deriveLocation(busUSB, "usb-0000:00:14.0-1/input0")
	assert.Equal(t, loc, again)
}

func TestManufacturerGuess(t *testing.T) {
	assert.Equal(t, "Logitech", manufacturerGuess("Logitech USB Keyboard"))
	assert.Equal(t, "Unknown", manufacturerGuess(""))
}
