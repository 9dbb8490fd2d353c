// Package applog wraps log/slog with the bracketed-component naming the
// rest of this codebase's log lines use ("[correlator] ...", "[hidenum]
// ..."), so every package gets structured attributes without giving up
// the terse prefix convention.
package applog

import (
	"log/slog"
	"os"
	"sync"
)

var (
	once sync.Once
	base *slog.Logger
)

// Configure installs the process-wide base logger. Call once at startup;
// safe to call multiple times, only the first call takes effect.
func Configure(level slog.Level, addSource bool) {
	once.Do(func() {
		h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:     level,
			AddSource: addSource,
		})
		base = slog.New(h)
	})
}

// For returns a logger scoped to component, e.g. applog.For("correlator").
// Log lines carry component="correlator" as a structured attribute, and
// also get a "[component] message" first arg for terse reading in a
// terminal.
func For(component string) *Component {
	Configure(slog.LevelInfo, false)
	return &Component{name: component, log: base.With("component", component)}
}

// Component is a component-scoped logger.
type Component struct {
	name string
	log  *slog.Logger
}

func (c *Component) bracket(msg string) string {
	return "[" + c.name + "] " + msg
}

func (c *Component) Info(msg string, args ...any)  { c.log.Info(c.bracket(msg), args...) }
func (c *Component) Warn(msg string, args ...any)  { c.log.Warn(c.bracket(msg), args...) }
func (c *Component) Error(msg string, args ...any) { c.log.Error(c.bracket(msg), args...) }
func (c *Component) Debug(msg string, args ...any) { c.log.Debug(c.bracket(msg), args...) }
