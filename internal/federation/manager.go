// Package federation manages the wallet's federation memberships: joining
// through a validated form, leaving behind a confirmation gate, and joining
// the federation list with per-federation balances for display.
package federation

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/session"
)

// Container is the part of the session the membership workflow uses.
type Container interface {
	Engine() (engine.Engine, error)
	RefreshFederations(ctx context.Context) error
	State() session.State
}

// Options configure the manager and the forms it creates.
type Options struct {
	Logger  config.LogWriter
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = config.NullLogger()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Global
	}
	return o
}

// Manager bundles the session with a cached balance snapshot.
type Manager struct {
	session Container
	opts    Options

	mu       sync.Mutex
	snapshot []engine.FederationBalance
	fetched  bool
}

// NewManager creates a manager over c.
func NewManager(c Container, opts Options) *Manager {
	return &Manager{session: c, opts: opts.withDefaults()}
}

// Refetch replaces the cached balance snapshot. It is the hook the add
// form runs after a successful join.
func (m *Manager) Refetch(ctx context.Context) {
	snap := FetchSnapshot(ctx, m.session, m.opts.Logger)
	m.mu.Lock()
	m.snapshot = snap
	m.fetched = true
	m.mu.Unlock()
}

// Rows refreshes the federation list and the balance snapshot together and
// returns their join. A failed list refresh keeps the previous list.
func (m *Manager) Rows(ctx context.Context) []Row {
	var g errgroup.Group
	g.Go(func() error {
		if err := m.session.RefreshFederations(ctx); err != nil {
			m.opts.Logger.Error("refreshing federations: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		m.Refetch(ctx)
		return nil
	})
	_ = g.Wait()

	return m.CachedRows()
}

// CachedRows joins the current federation list with the cached snapshot
// without calling the engine. Before the first fetch every balance is
// unknown.
func (m *Manager) CachedRows() []Row {
	m.mu.Lock()
	snap := m.snapshot
	fetched := m.fetched
	m.mu.Unlock()

	if fetched {
		m.opts.Metrics.RecordCacheHit()
	} else {
		m.opts.Metrics.RecordCacheMiss()
	}
	return Join(m.session.State().Federations, snap)
}

// AddForm returns a join form that refetches balances after each join.
func (m *Manager) AddForm() *AddForm {
	return NewAddForm(m.session, m.opts, m.Refetch)
}

// RemoveGate returns a removal gate for federationID.
func (m *Manager) RemoveGate(federationID string) *RemoveGate {
	return NewRemoveGate(m.session, federationID, m.opts)
}

// Find resolves query against the current federation list.
func (m *Manager) Find(query string) (engine.FederationIdentity, error) {
	return FindFederation(m.session.State().Federations, query)
}
