// Package tray manages the system tray icon and menu for the out-of-
// scope operator shell, reflecting Session state (Idle/Preparing/Active/
// Draining) instead of a raw device connection state.
package tray

import (
	"strings"

	"fyne.io/systray"

	"github.com/keyfence/keyfence/internal/supervisor"
)

// RunOpts configures the system tray.
type RunOpts struct {
	Version          string
	AutoStartEnabled bool
	OnReady          func()
	OnStart          func() // start a capture session from the tray
	OnStop           func() // stop the active session
	OnAutoStart      func(enabled bool)
	OnQuit           func()
}

// Run starts the system tray. It blocks on the main thread.
func Run(opts RunOpts) {
	systray.Run(func() {
		systray.SetIcon(IconIdle)
		systray.SetTitle("")
		systray.SetTooltip("keyfence — idle")

		versionLabel := "keyfence"
		if opts.Version != "" && opts.Version != "dev" {
			versionLabel += " v" + strings.TrimPrefix(opts.Version, "v")
		}
		mVersion := systray.AddMenuItem(versionLabel, "")
		mVersion.Disable()

		systray.AddSeparator()

		mStart := systray.AddMenuItem("Start Capture", "Detect and start intercepting a keyboard")
		mStop := systray.AddMenuItem("Stop Capture", "Stop the active session")
		mAutoStart := systray.AddMenuItemCheckbox("Start on Login", "Launch automatically on login", opts.AutoStartEnabled)

		systray.AddSeparator()

		mStatus := systray.AddMenuItem("Status: Idle", "")
		mStatus.Disable()

		systray.AddSeparator()

		mQuit := systray.AddMenuItem("Quit", "Exit keyfence")

		statusItem = mStatus

		if opts.OnReady != nil {
			opts.OnReady()
		}

		go func() {
			for {
				select {
				case <-mStart.ClickedCh:
					if opts.OnStart != nil {
						opts.OnStart()
					}
				case <-mStop.ClickedCh:
					if opts.OnStop != nil {
						opts.OnStop()
					}
				case <-mAutoStart.ClickedCh:
					if mAutoStart.Checked() {
						mAutoStart.Uncheck()
						if opts.OnAutoStart != nil {
							opts.OnAutoStart(false)
						}
					} else {
						mAutoStart.Check()
						if opts.OnAutoStart != nil {
							opts.OnAutoStart(true)
						}
					}
				case <-mQuit.ClickedCh:
					if opts.OnQuit != nil {
						opts.OnQuit()
					}
					systray.Quit()
				}
			}
		}()
	}, func() {
		// cleanup on systray exit
	})
}

var statusItem *systray.MenuItem

// SetState updates the tray icon and tooltip based on Session state.
func SetState(state supervisor.SessionState) {
	switch state {
	case supervisor.Idle:
		systray.SetIcon(IconIdle)
		systray.SetTooltip("keyfence — idle")
		setStatus("Status: Idle")
	case supervisor.Preparing:
		systray.SetIcon(IconIdle)
		systray.SetTooltip("keyfence — preparing")
		setStatus("Status: Preparing")
	case supervisor.Active:
		systray.SetIcon(IconActive)
		systray.SetTooltip("keyfence — capturing")
		setStatus("Status: Active")
	case supervisor.Draining:
		systray.SetIcon(IconIdle)
		systray.SetTooltip("keyfence — stopping")
		setStatus("Status: Draining")
	}
}

func setStatus(title string) {
	if statusItem != nil {
		statusItem.SetTitle(title)
	}
}

// Quit stops the system tray.
func Quit() {
	systray.Quit()
}
