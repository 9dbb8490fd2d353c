// Package guestfwd implements the Guest Forwarder: it dispatches relay
// intents onto a bounded worker pool and invokes the hypervisor
// controller CLI via os/exec, concurrency-limited.
package guestfwd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/keyfence/keyfence/internal/applog"
	"github.com/keyfence/keyfence/internal/events"
	"github.com/keyfence/keyfence/internal/kbinterr"
)

var log = applog.For("guestfwd")

// RelayDirection is the press/release verb the controller CLI expects.
type RelayDirection string

const (
	Press   RelayDirection = "press"
	Release RelayDirection = "release"
)

// RelayIntent is the Data Model's RelayIntent, produced by Device Stream
// and consumed by the Forwarder.
type RelayIntent struct {
	ScanCode  int32
	Direction RelayDirection
	Target    string // GuestId; set by the owning Session
}

// GuestStatus is one of the hypervisor's reported guest states.
type GuestStatus string

const (
	Running       GuestStatus = "running"
	Stopped       GuestStatus = "stopped"
	Suspended     GuestStatus = "suspended"
	UnknownStatus GuestStatus = "unknown"
)

// Guest is one entry from the controller's `list --all` output.
type Guest struct {
	UUID   string
	Status GuestStatus
	Name   string
}

// Runner abstracts subprocess execution so tests can substitute a fake
// controller without invoking os/exec.
type Runner interface {
	Run(ctx context.Context, args ...string) (stdout string, stderr string, err error)
}

// execRunner is the production Runner, invoking the configured
// controller binary via os/exec.
type execRunner struct {
	binaryPath string
}

// NewExecRunner returns a Runner that shells out to the hypervisor
// controller CLI at binaryPath.
func NewExecRunner(binaryPath string) Runner {
	return &execRunner{binaryPath: binaryPath}
}

// Forwarder dispatches RelayIntents across a bounded worker pool (default
// 2 in-flight invocations).
type Forwarder struct {
	runner      Runner
	target      string
	maxInFlight int
	bus         *events.Bus

	queue chan RelayIntent
	sem   chan struct{}
	wg    sync.WaitGroup

	stop chan struct{}
	done chan struct{}
}

// New creates a Forwarder targeting guest id target, invoking controller
// commands through runner with at most maxInFlight concurrent
// invocations.
func New(runner Runner, target string, maxInFlight int, bus *events.Bus) *Forwarder {
	if maxInFlight <= 0 {
		maxInFlight = 2
	}
	f := &Forwarder{
		runner:      runner,
		target:      target,
		maxInFlight: maxInFlight,
		bus:         bus,
		queue:       make(chan RelayIntent, 256),
		sem:         make(chan struct{}, maxInFlight),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go f.dispatch()
	return f
}

// Enqueue submits a RelayIntent for delivery. Never blocks the producer
// for long: the queue is generously buffered, since D's emit() call must
// stay non-blocking.
func (f *Forwarder) Enqueue(intent RelayIntent) {
	if intent.Target == "" {
		intent.Target = f.target
	}
	select {
	case f.queue <- intent:
	default:
		log.Warn("relay queue full, dropping intent", "scan_code", intent.ScanCode)
	}
}

// dispatch pulls intents off the queue and runs each one on a bounded
// worker, enforcing the max_in_flight=2 concurrency cap via a semaphore
// channel.
func (f *Forwarder) dispatch() {
	defer close(f.done)
	for {
		var intent RelayIntent
		select {
		case <-f.stop:
			// Stopping: keep delivering what is still queued, then wait
			// for the in-flight invocations.
			select {
			case intent = <-f.queue:
			default:
				f.wg.Wait()
				return
			}
		case intent = <-f.queue:
		}
		f.sem <- struct{}{}
		f.wg.Add(1)
		go func(in RelayIntent) {
			defer f.wg.Done()
			defer func() { <-f.sem }()
			f.deliver(in)
		}(intent)
	}
}

func (f *Forwarder) deliver(intent RelayIntent) {
	ctx := context.Background()
	args := []string{
		"send-key-event", intent.Target,
		"--scancode", strconv.Itoa(int(intent.ScanCode)),
		"--event", string(intent.Direction),
	}
	_, stderr, err := f.runner.Run(ctx, args...)
	if err != nil {
		wrapped := kbinterr.Wrap(kbinterr.GuestInvocationFailed, fmt.Sprintf("scan_code=%d guest=%s", intent.ScanCode, intent.Target), err)
		log.Error("guest invocation failed", "err", wrapped, "stderr", stderr)
		if f.bus != nil {
			f.bus.Publish(events.Event{Kind: events.RelayFailed, Data: intent})
		}
		return
	}
	if f.bus != nil {
		f.bus.Publish(events.Event{Kind: events.RelaySucceeded, Data: intent})
	}
}

// Stop drains outstanding jobs (no cancellation) and waits for them to
// finish.
func (f *Forwarder) Stop() {
	close(f.stop)
	<-f.done
}

// ListGuests runs the controller's `list --all` subcommand and parses its
// output.
func ListGuests(ctx context.Context, runner Runner) ([]Guest, error) {
	stdout, stderr, err := runner.Run(ctx, "list", "--all")
	if err != nil {
		return nil, kbinterr.Wrap(kbinterr.GuestInvocationFailed, "list --all: "+stderr, err)
	}
	return parseGuestList(stdout), nil
}

// parseGuestList parses whitespace-separated UUID/STATUS/NAME records,
// skipping the header line (starts with "UUID") and blank lines.
func parseGuestList(out string) []Guest {
	var guests []Guest
	sc := bufio.NewScanner(bytes.NewBufferString(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "UUID") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		g := Guest{UUID: fields[0], Status: parseStatus(fields[1])}
		if len(fields) >= 3 {
			g.Name = strings.Join(fields[2:], " ")
		}
		guests = append(guests, g)
	}
	return guests
}

func parseStatus(s string) GuestStatus {
	switch strings.ToLower(s) {
	case "running":
		return Running
	case "stopped":
		return Stopped
	case "suspended":
		return Suspended
	default:
		return UnknownStatus
	}
}
