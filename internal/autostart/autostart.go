// Package autostart manages registering the keyfence daemon as a systemd
// user unit via D-Bus (org.freedesktop.systemd1), since this engine is
// Linux-only by construction (it depends on evdev and uinput).
package autostart

import "os"

// appPath returns the path to the currently running executable.
func appPath() (string, error) {
	return os.Executable()
}
