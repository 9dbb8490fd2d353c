// Package kbinterr defines the engine's error taxonomy as sentinel kinds,
// wrapped with fmt.Errorf("...: %w", err) so callers can errors.Is against
// a Kind instead of matching error strings.
package kbinterr

import (
	"errors"
	"fmt"
)

// Kind is one of the engine's recoverable or fatal error categories.
type Kind string

const (
	PermissionDenied      Kind = "permission_denied"
	SubsystemUnavailable  Kind = "subsystem_unavailable"
	NoMatch               Kind = "no_match"
	DeviceVanished        Kind = "device_vanished"
	GuestInvocationFailed Kind = "guest_invocation_failed"
	StaleCorrelation      Kind = "stale_correlation"
	MappingMiss           Kind = "mapping_miss"
)

// sentinel errors for errors.Is comparisons; Wrap attaches context while
// preserving the kind for unwrapping.
var (
	ErrPermissionDenied      = errors.New(string(PermissionDenied))
	ErrSubsystemUnavailable  = errors.New(string(SubsystemUnavailable))
	ErrNoMatch               = errors.New(string(NoMatch))
	ErrDeviceVanished        = errors.New(string(DeviceVanished))
	ErrGuestInvocationFailed = errors.New(string(GuestInvocationFailed))
	ErrStaleCorrelation      = errors.New(string(StaleCorrelation))
	ErrMappingMiss           = errors.New(string(MappingMiss))
)

func sentinelFor(k Kind) error {
	switch k {
	case PermissionDenied:
		return ErrPermissionDenied
	case SubsystemUnavailable:
		return ErrSubsystemUnavailable
	case NoMatch:
		return ErrNoMatch
	case DeviceVanished:
		return ErrDeviceVanished
	case GuestInvocationFailed:
		return ErrGuestInvocationFailed
	case StaleCorrelation:
		return ErrStaleCorrelation
	case MappingMiss:
		return ErrMappingMiss
	default:
		return errors.New(string(k))
	}
}

// kindError wraps a sentinel so errors.Is(err, kbinterr.ErrNoMatch) and
// errors.Is(err, kbinterr.NoMatch-derived sentinel) both work, while
// fmt.Errorf %w chains still unwrap down to the sentinel.
type kindError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *kindError) Unwrap() error {
	if e.err != nil {
		return e.err
	}
	return sentinelFor(e.kind)
}

func (e *kindError) Is(target error) bool {
	return target == sentinelFor(e.kind)
}

// New builds an error of kind k with a message.
func New(k Kind, msg string) error {
	return &kindError{kind: k, msg: msg}
}

// Wrap attaches kind k and a message to an underlying error.
func Wrap(k Kind, msg string, err error) error {
	if err == nil {
		return New(k, msg)
	}
	return &kindError{kind: k, msg: msg, err: err}
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	return errors.Is(err, sentinelFor(k))
}
