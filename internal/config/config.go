// Package config handles loading the keyfence engine's daemon
// configuration: correlator tuning, Guest Forwarder concurrency, the
// hypervisor controller binary path and the auto-start flag. It carries
// no safety-timer default; a session's duration comes from its caller.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the engine's daemon configuration.
type Config struct {
	mu sync.RWMutex

	Controller ControllerConfig `toml:"controller"`
	Correlator CorrelatorConfig `toml:"correlator"`
	Session    SessionConfig    `toml:"session"`
	AutoStart  bool             `toml:"auto_start"`
}

// ControllerConfig locates the hypervisor controller CLI.
type ControllerConfig struct {
	BinaryPath string `toml:"binary_path"`
}

// CorrelatorConfig carries the Correlator's tunable constants.
type CorrelatorConfig struct {
	HoldTTLMillis       int64 `toml:"hold_ttl_millis"`
	InitialWindowMillis int64 `toml:"initial_window_millis"`
	JanitorIntervalSecs int64 `toml:"janitor_interval_secs"`
	MaxEntries          int   `toml:"max_entries"`
	MaxEntryAgeSecs     int64 `toml:"max_entry_age_secs"`
}

// SessionConfig carries the Guest Forwarder's concurrency limit.
type SessionConfig struct {
	MaxInFlightRelays int `toml:"max_in_flight_relays"`
}

// HoldTTL returns the correlator hold TTL as a time.Duration.
func (c CorrelatorConfig) HoldTTL() time.Duration {
	return time.Duration(c.HoldTTLMillis) * time.Millisecond
}

// InitialWindow returns the correlator initial window as a time.Duration.
func (c CorrelatorConfig) InitialWindow() time.Duration {
	return time.Duration(c.InitialWindowMillis) * time.Millisecond
}

// JanitorInterval returns the janitor sweep interval as a time.Duration.
func (c CorrelatorConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSecs) * time.Second
}

// MaxEntryAge returns the janitor's prune age as a time.Duration.
func (c CorrelatorConfig) MaxEntryAge() time.Duration {
	return time.Duration(c.MaxEntryAgeSecs) * time.Second
}

// DefaultConfig returns the engine's default configuration.
func DefaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			BinaryPath: "hypervisorctl",
		},
		Correlator: CorrelatorConfig{
			HoldTTLMillis:       10_000,
			InitialWindowMillis: 80,
			JanitorIntervalSecs: 5,
			MaxEntries:          50,
			MaxEntryAgeSecs:     30,
		},
		Session: SessionConfig{
			MaxInFlightRelays: 2,
		},
	}
}

// Dir returns the OS-appropriate config directory for keyfence.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(base, "keyfence"), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config from disk. If the file doesn't exist, it creates
// a default config and saves it.
func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(p)
}

// LoadFrom loads (creating if absent) a config at an explicit path.
func LoadFrom(p string) (*Config, error) {
	if _, err := os.Stat(p); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if saveErr := cfg.SaveTo(p); saveErr != nil {
			return nil, fmt.Errorf("create default config: %w", saveErr)
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(p, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to its default path atomically.
func (c *Config) Save() error {
	p, err := Path()
	if err != nil {
		return err
	}
	return c.SaveTo(p)
}

// SaveTo writes the config atomically: write to a temp file, then rename.
func (c *Config) SaveTo(p string) error {
	c.mu.RLock()
	buf, err := encodeTOML(c)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func encodeTOML(c *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GetControllerPath returns the configured hypervisor controller path.
func (c *Config) GetControllerPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Controller.BinaryPath
}

// SetControllerPath updates and saves the controller path.
func (c *Config) SetControllerPath(path string) error {
	c.mu.Lock()
	c.Controller.BinaryPath = path
	c.mu.Unlock()
	return c.Save()
}

// GetCorrelator returns a copy of the correlator tuning config.
func (c *Config) GetCorrelator() CorrelatorConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Correlator
}

// GetMaxInFlightRelays returns the configured Guest Forwarder concurrency.
func (c *Config) GetMaxInFlightRelays() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Session.MaxInFlightRelays <= 0 {
		return 2
	}
	return c.Session.MaxInFlightRelays
}

// GetAutoStart reports whether launch-on-login is enabled.
func (c *Config) GetAutoStart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.AutoStart
}

// SetAutoStart updates and saves the launch-on-login flag.
func (c *Config) SetAutoStart(enabled bool) error {
	c.mu.Lock()
	c.AutoStart = enabled
	c.mu.Unlock()
	return c.Save()
}
