// Package status implements the agent's global Active/Inactive switch.
//
// The Machine holds the single authoritative status, fans every transition out
// to its listeners and periodically reports the status to the control plane.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the global agent status.
type Status int

const (
	// Inactive means no sampling and no scheduling.
	Inactive Status = iota
	// Active means baselines are sampled and policies are scheduled.
	Active
)

// ErrUnknownStatus is returned for values outside the Status enum.
var ErrUnknownStatus = errors.New("unknown agent status")

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Active || s == Inactive
}

// Parse maps a configuration value to a Status.
func Parse(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "active":
		return Active, nil
	case "inactive":
		return Inactive, nil
	default:
		return Inactive, fmt.Errorf("%w: %q", ErrUnknownStatus, v)
	}
}

// Listener receives every status transition, including the initial one.
type Listener interface {
	OnStatusChanged(s Status) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(s Status) error

// OnStatusChanged implements Listener.
func (f ListenerFunc) OnStatusChanged(s Status) error { return f(s) }
