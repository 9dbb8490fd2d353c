package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "hypervisorctl", cfg.GetControllerPath())
	assert.Equal(t, 2, cfg.GetMaxInFlightRelays())
	assert.False(t, cfg.GetAutoStart())

	corr := cfg.GetCorrelator()
	assert.Equal(t, int64(10_000), corr.HoldTTLMillis)
	assert.Equal(t, int64(80), corr.InitialWindowMillis)
	assert.Equal(t, 50, corr.MaxEntries)
}

func TestCorrelatorConfigDurations(t *testing.T) {
	c := CorrelatorConfig{
		HoldTTLMillis:       10_000,
		InitialWindowMillis: 80,
		JanitorIntervalSecs: 5,
		MaxEntryAgeSecs:     30,
	}
	assert.Equal(t, 10_000_000_000, int(c.HoldTTL()))
	assert.Equal(t, 80_000_000, int(c.InitialWindow()))
	assert.Equal(t, 5_000_000_000, int(c.JanitorInterval()))
	assert.Equal(t, 30_000_000_000, int(c.MaxEntryAge()))
}

func TestLoadFromCreatesDefaultWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "nested", "config.toml")

	cfg, err := LoadFrom(p)
	require.NoError(t, err)
	assert.Equal(t, "hypervisorctl", cfg.GetControllerPath())

	_, err = LoadFrom(p)
	require.NoError(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	require.NoError(t, cfg.SetControllerPath("/usr/local/bin/hvctl"))
	require.NoError(t, cfg.SaveTo(p))

	loaded, err := LoadFrom(p)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/hvctl", loaded.GetControllerPath())
}

func TestAutoStartRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "config.toml")

	cfg := DefaultConfig()
	cfg.AutoStart = true
	require.NoError(t, cfg.SaveTo(p))

	loaded, err := LoadFrom(p)
	require.NoError(t, err)
	assert.True(t, loaded.GetAutoStart())
}
