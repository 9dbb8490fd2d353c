//go:build linux

package autostart

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/godbus/dbus/v5"
)

const (
	unitName     = "keyfence.service"
	unitFileTmpl = `[Unit]
Description=keyfence keyboard interposer daemon

[Service]
ExecStart=%s daemon
Restart=on-failure

[Install]
WantedBy=default.target
`
)

func unitPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("user config dir: %w", err)
	}
	return filepath.Join(configDir, "systemd", "user", unitName), nil
}

// IsEnabled returns true if the unit file exists on disk. Querying
// systemd's live enabled-state would require an extra D-Bus round trip
// this read-only check doesn't need.
func IsEnabled() bool {
	p, err := unitPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Enable writes the unit file and asks the systemd user manager (over
// D-Bus, org.freedesktop.systemd1) to reload its unit list and enable it.
func Enable() error {
	exe, err := appPath()
	if err != nil {
		return fmt.Errorf("get executable path: %w", err)
	}

	p, err := unitPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create systemd user dir: %w", err)
	}

	content := fmt.Sprintf(unitFileTmpl, exe)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	manager := conn.Object("org.freedesktop.systemd1", dbus.ObjectPath("/org/freedesktop/systemd1"))
	if call := manager.Call("org.freedesktop.systemd1.Manager.Reload", 0); call.Err != nil {
		return fmt.Errorf("reload systemd user manager: %w", call.Err)
	}
	call := manager.Call("org.freedesktop.systemd1.Manager.EnableUnitFiles", 0,
		[]string{p}, false, true)
	if call.Err != nil {
		return fmt.Errorf("enable unit: %w", call.Err)
	}
	return nil
}

// Disable asks systemd to disable the unit and removes the file.
func Disable() error {
	p, err := unitPath()
	if err != nil {
		return err
	}

	conn, err := dbus.ConnectSessionBus()
	if err == nil {
		manager := conn.Object("org.freedesktop.systemd1", dbus.ObjectPath("/org/freedesktop/systemd1"))
		manager.Call("org.freedesktop.systemd1.Manager.DisableUnitFiles", 0, []string{unitName}, false)
		conn.Close()
	}

	err = os.Remove(p)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
