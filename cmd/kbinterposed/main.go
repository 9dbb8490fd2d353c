// keyfence — host-side keyboard interposer daemon.
//
// Enumerates attached HID keyboards, lets an operator identify one by
// typing on it, then captures and optionally relays its keystrokes to a
// hypervisor-managed VM guest while blocking them from the host.
package main

import (
	"context"
	"log"

	"github.com/keyfence/keyfence/internal/autostart"
	"github.com/keyfence/keyfence/internal/config"
	"github.com/keyfence/keyfence/internal/engine"
	"github.com/keyfence/keyfence/internal/events"
	"github.com/keyfence/keyfence/internal/server"
	"github.com/keyfence/keyfence/internal/supervisor"
	"github.com/keyfence/keyfence/internal/tray"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[keyfence] config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	eng := engine.New(cfg, bus)
	srv := server.New(eng)

	sub, unsub := bus.Subscribe()
	go func() {
		for ev := range sub {
			if ev.Kind == events.StateTransitioned {
				if st, ok := ev.Data.(supervisor.SessionState); ok {
					tray.SetState(st)
				}
			}
		}
	}()
	defer unsub()

	tray.Run(tray.RunOpts{
		Version:          version,
		AutoStartEnabled: cfg.GetAutoStart(),

		OnReady: func() {
			url, err := srv.Start("127.0.0.1:0")
			if err != nil {
				log.Printf("[keyfence] control surface: %v", err)
				return
			}
			log.Printf("[keyfence] ready (version %s), control surface at %s", version, url)
		},

		OnStart: func() {
			go func() {
				devices, err := eng.EnumerateDevices()
				if err != nil {
					log.Printf("[keyfence] enumerate: %v", err)
					return
				}
				sel, err := eng.DetectIdentity(ctx, devices, stopAfterThree)
				if err != nil {
					log.Printf("[keyfence] detect: %v", err)
					return
				}
				handle, err := eng.StartSession(ctx, engine.StartOpts{
					Selection: sel,
					Mode:      supervisor.CaptureOnly,
				})
				if err != nil {
					log.Printf("[keyfence] start session: %v", err)
					return
				}
				eng.WatchKeystrokes(handle)
				log.Printf("[keyfence] session started: %s", handle)
			}()
		},

		OnAutoStart: func(enabled bool) {
			var err error
			if enabled {
				err = autostart.Enable()
			} else {
				err = autostart.Disable()
			}
			if err != nil {
				log.Printf("[keyfence] autostart: %v", err)
				return
			}
			if err := cfg.SetAutoStart(enabled); err != nil {
				log.Printf("[keyfence] save autostart config: %v", err)
			}
		},

		OnQuit: func() {
			cancel()
			srv.Stop()
		},
	})

}

func stopAfterThree(observed int) bool { return observed >= 3 }
