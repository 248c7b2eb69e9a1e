package session

import (
	"fmt"
	"time"

	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/scan"
)

// Status is the authorization status of the current user.
type Status int

// Authorization statuses. StatusUnresolved is the value before the boot
// lookup completes; it is never returned by a lookup.
const (
	StatusUnresolved Status = iota
	StatusNew
	StatusWaitlisted
	StatusApproved
	StatusPaid
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusWaitlisted:
		return "waitlisted"
	case StatusApproved:
		return "approved"
	case StatusPaid:
		return "paid"
	case StatusUnresolved:
		return "unresolved"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusUnresolved, StatusNew, StatusWaitlisted, StatusApproved, StatusPaid} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", text)
}

// State is a snapshot of the session.
type State struct {
	AuthorizationID        string
	AuthorizationStatus    Status
	Engine                 engine.Engine
	EngineError            error
	Initializing           bool
	Federations            []engine.FederationIdentity
	Balance                *engine.Balance
	LastSync               time.Time
	IsSyncing              bool
	ScanResult             *scan.Result
	HasBackedUp            bool
	DismissedRestorePrompt bool
	Price                  float64

	// Version increases by one with every change. Snapshots delivered to
	// subscribers from different goroutines can arrive out of order.
	Version uint64
}

// EngineReady reports whether an engine is present.
func (s State) EngineReady() bool {
	return s.Engine != nil
}

// clone returns a copy that shares nothing mutable with s.
func (s *State) clone() State {
	out := *s
	if s.Federations != nil {
		out.Federations = make([]engine.FederationIdentity, len(s.Federations))
		copy(out.Federations, s.Federations)
	}
	if s.Balance != nil {
		b := *s.Balance
		out.Balance = &b
	}
	if s.ScanResult != nil {
		r := *s.ScanResult
		out.ScanResult = &r
	}
	return out
}
