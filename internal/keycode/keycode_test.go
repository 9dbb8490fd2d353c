package keycode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		usage    uint32
		wantCode Code
		wantScan int32
	}{
		{"W", 0x1A, 13, 17},
		{"Space", 0x2C, 49, 57},
		{"RightArrow", 0x4F, 124, 77},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code := FromHIDUsage(tc.usage)
			require.Equal(t, tc.wantCode, code)
			assert.Equal(t, tc.wantScan, ScanCode(code))
		})
	}
}

func TestFromHIDUsageFullDomain(t *testing.T) {
	for usage := range hidUsageToCode {
		t.Run("", func(t *testing.T) {
			code := FromHIDUsage(usage)
			assert.NotPanics(t, func() { _ = Name(code) })
			assert.NotPanics(t, func() { _ = ScanCode(code) })
		})
	}
}

func TestFromHIDUsageMissDefaults(t *testing.T) {
	assert.Equal(t, Code(100), FromHIDUsage(100))
	assert.Equal(t, Code(0), FromHIDUsage(200))
}

func TestNameFallback(t *testing.T) {
	assert.Equal(t, "A", Name(0))
	assert.Equal(t, "Key999", Name(999))
}

func TestScanCodeFallback(t *testing.T) {
	assert.Equal(t, int32(30), ScanCode(999))
}

func TestIsRollover(t *testing.T) {
	assert.True(t, IsRollover(0xFFFFFFFF))
	assert.False(t, IsRollover(0x1A))
}
