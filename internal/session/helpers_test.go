package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/engine/enginetest"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/prefs"
)

var fixedNow = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

// fakeLookup is a scripted StatusLookup.
type fakeLookup struct {
	mu    sync.Mutex
	rec   *authz.Record
	err   error
	calls int
	ids   []string
}

func approved() *fakeLookup {
	return &fakeLookup{rec: &authz.Record{ID: "abc", ApprovalDate: "2023-04-01"}}
}

func (f *fakeLookup) Lookup(_ context.Context, id string) (*authz.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ids = append(f.ids, id)
	if f.err != nil {
		return nil, f.err
	}
	return f.rec, nil
}

func (f *fakeLookup) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// manualTicker delivers ticks only when the test sends them.
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) start(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() { m.stopped.Store(true) }
}

// fixture wires a container to in-memory collaborators.
type fixture struct {
	container *Container
	engine    *enginetest.Engine
	factory   *enginetest.Factory
	lookup    *fakeLookup
	store     *prefs.MemoryStore
	ticker    *manualTicker
	metrics   *metrics.Metrics
}

func newFixture(t *testing.T, lookup *fakeLookup, initial map[string]string) *fixture {
	t.Helper()

	f := &fixture{
		engine:  enginetest.New(),
		lookup:  lookup,
		store:   prefs.NewMemoryStore(initial),
		ticker:  newManualTicker(),
		metrics: &metrics.Metrics{},
	}
	f.factory = enginetest.NewFactory(f.engine)

	c, err := New(context.Background(), Options{
		Factory:   f.factory,
		Lookup:    lookup,
		Prefs:     prefs.New(f.store),
		Metrics:   f.metrics,
		Price:     30000,
		Now:       func() time.Time { return fixedNow },
		NewTicker: f.ticker.start,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	f.container = c
	return f
}

// withEngine brings the engine up directly, without the driver.
func (f *fixture) withEngine(t *testing.T) *fixture {
	t.Helper()
	require.NoError(t, f.container.InitializeEngine(context.Background(), nil))
	return f
}

// tick sends one tick, failing the test if the ticker goroutine is not
// listening within a second.
func (f *fixture) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ticker.ch <- fixedNow:
	case <-time.After(time.Second):
		t.Fatal("ticker goroutine not receiving")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}
