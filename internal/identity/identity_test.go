package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfence/keyfence/internal/hidenum"
)

func devFor(vendor, product uint16, location uint32, transport hidenum.Transport) hidenum.Device {
	dk, pid := hidenum.DeriveKeys(vendor, product, location)
	return hidenum.Device{
		DeviceKey: dk, PhysicalID: pid, VendorID: vendor, ProductID: product,
		Location: location, Transport: transport,
	}
}

func TestCorrelateTwoInterfaces(t *testing.T) {
	dev1 := devFor(0x1234, 0x5678, 0x14000100, hidenum.USB)
	dev2 := devFor(0x1234, 0x5678, 0x14000180, hidenum.Bluetooth) // same location>>8
	dev3 := devFor(0xaaaa, 0xbbbb, 0x99000000, hidenum.USB)
	available := []hidenum.Device{dev1, dev2, dev3}

	obs := newObservationSet()
	obs.record(dev1.VendorID, dev1.ProductID, dev1.Location)
	obs.record(dev1.VendorID, dev1.ProductID, dev1.Location)
	obs.record(dev1.VendorID, dev1.ProductID, dev1.Location)

	sel, err := correlate(obs, available)
	require.NoError(t, err)
	assert.Equal(t, dev1.PhysicalID, sel.PhysicalID)
	assert.Len(t, sel.Devices, 2)
	keys := sel.DeviceKeys()
	assert.True(t, keys[dev1.DeviceKey])
	assert.True(t, keys[dev2.DeviceKey])
	assert.False(t, keys[dev3.DeviceKey])
}

func TestCorrelateNoMatch(t *testing.T) {
	available := []hidenum.Device{devFor(1, 2, 3, hidenum.USB)}
	obs := newObservationSet()
	obs.record(9, 9, 9)

	_, err := correlate(obs, available)
	require.Error(t, err)
}

func TestCorrelateEmptyObservations(t *testing.T) {
	available := []hidenum.Device{devFor(1, 2, 3, hidenum.USB)}
	obs := newObservationSet()

	_, err := correlate(obs, available)
	require.Error(t, err)
}

func TestMinPresses(t *testing.T) {
	p := MinPresses(3)
	assert.False(t, p(2))
	assert.True(t, p(3))
	assert.True(t, p(4))
}
