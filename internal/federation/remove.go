package federation

import (
	"context"
	"sync"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// GateState is the state of a RemoveGate.
type GateState int

// Gate states.
const (
	GateIdle GateState = iota
	GateArmed
	GateBusy
)

func (s GateState) String() string {
	switch s {
	case GateIdle:
		return "idle"
	case GateArmed:
		return "armed"
	case GateBusy:
		return "busy"
	}
	return "unknown"
}

// RemoveGate guards leaving one federation behind an explicit confirmation:
// Arm, then Confirm. At most one removal runs at a time.
type RemoveGate struct {
	session      Container
	federationID string
	opts         Options

	mu    sync.Mutex
	state GateState
}

// NewRemoveGate creates an idle gate for federationID.
func NewRemoveGate(c Container, federationID string, opts Options) *RemoveGate {
	return &RemoveGate{session: c, federationID: federationID, opts: opts.withDefaults()}
}

// FederationID returns the federation the gate removes.
func (g *RemoveGate) FederationID() string {
	return g.federationID
}

// State returns the gate state.
func (g *RemoveGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Arm requests confirmation. It is a no-op when already armed and fails
// with ErrBusy while a removal runs.
func (g *RemoveGate) Arm() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateBusy {
		return fwerr.ErrBusy
	}
	g.state = GateArmed
	return nil
}

// Cancel withdraws an armed request.
func (g *RemoveGate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == GateArmed {
		g.state = GateIdle
	}
}

// Confirm removes the federation. The gate returns to idle whether or not
// the removal succeeded; on success the federation list is refreshed.
func (g *RemoveGate) Confirm(ctx context.Context) error {
	g.mu.Lock()
	switch g.state {
	case GateBusy:
		g.mu.Unlock()
		return fwerr.ErrBusy
	case GateIdle:
		g.mu.Unlock()
		return fwerr.ErrNotArmed
	}
	g.state = GateBusy
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.state = GateIdle
		g.mu.Unlock()
	}()

	eng, err := g.session.Engine()
	if err != nil {
		return err
	}
	err = eng.RemoveFederation(ctx, g.federationID)
	g.opts.Metrics.RecordFederationRemove(err)
	if err != nil {
		g.opts.Logger.Error("removing federation %s: %v", g.federationID, err)
		return fwerr.Wrap(fwerr.Because(fwerr.ErrEngine, err), "leaving federation %s", g.federationID)
	}
	g.opts.Logger.Info("removed federation %s", g.federationID)

	if err := g.session.RefreshFederations(ctx); err != nil {
		g.opts.Logger.Error("refreshing federations after removal: %v", err)
	}
	return nil
}
