// Package session holds the wallet session: authorization status, the
// engine handle, balances and the federation list, plus the actions that
// change them and the lifecycle driver that reacts to those changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/prefs"
	"github.com/mrz1836/fedwallet/internal/scan"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// DefaultSyncInterval is the period of background synchronization.
const DefaultSyncInterval = 60 * time.Second

// StatusLookup queries the authorization service for an id.
type StatusLookup interface {
	Lookup(ctx context.Context, id string) (*authz.Record, error)
}

// TickerFunc starts a ticker with period d and returns its channel and a
// stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Options configure a Container.
type Options struct {
	Factory engine.Factory
	Lookup  StatusLookup
	Prefs   *prefs.Preferences

	// Settings are passed to Factory when the driver brings the engine up.
	Settings *engine.Settings

	Logger  config.LogWriter
	Metrics *metrics.Metrics

	// SyncInterval defaults to DefaultSyncInterval.
	SyncInterval time.Duration

	// Price is the fiat price per BTC used for display.
	Price float64

	Now       func() time.Time
	NewTicker TickerFunc
}

// Container is the session state container. It is safe for concurrent use.
// Any method called on a nil *Container panics with ErrNotInitialized.
type Container struct {
	factory   engine.Factory
	lookup    StatusLookup
	prefs     *prefs.Preferences
	settings  *engine.Settings
	log       config.LogWriter
	metrics   *metrics.Metrics
	interval  time.Duration
	now       func() time.Time
	newTicker TickerFunc

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int

	// lifecycle
	started   bool
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	notify    chan struct{}
	retryInit chan struct{}
	persisted string
}

// New builds a container, seeding persisted values from preferences.
func New(ctx context.Context, opts Options) (*Container, error) {
	if opts.Factory == nil {
		return nil, fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{"option": "Factory"})
	}
	if opts.Lookup == nil {
		return nil, fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{"option": "Lookup"})
	}
	if opts.Prefs == nil {
		return nil, fwerr.WithDetails(fwerr.ErrInvalidInput, map[string]string{"option": "Prefs"})
	}

	id, err := opts.Prefs.AuthorizationID(ctx)
	if err != nil {
		return nil, err
	}
	backedUp, err := opts.Prefs.HasBackedUp(ctx)
	if err != nil {
		return nil, err
	}
	dismissed, err := opts.Prefs.DismissedRestorePrompt(ctx)
	if err != nil {
		return nil, err
	}

	c := &Container{
		factory:   opts.Factory,
		lookup:    opts.Lookup,
		prefs:     opts.Prefs,
		settings:  opts.Settings,
		log:       opts.Logger,
		metrics:   opts.Metrics,
		interval:  opts.SyncInterval,
		now:       opts.Now,
		newTicker: opts.NewTicker,
		subs:      make(map[int]func(State)),
		notify:    make(chan struct{}, 1),
		retryInit: make(chan struct{}, 1),
		persisted: id,
		state: State{
			AuthorizationID:        id,
			AuthorizationStatus:    StatusUnresolved,
			HasBackedUp:            backedUp,
			DismissedRestorePrompt: dismissed,
			Price:                  opts.Price,
		},
	}
	if c.settings == nil {
		c.settings = &engine.Settings{}
	}
	if c.log == nil {
		c.log = config.NullLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.Global
	}
	if c.interval <= 0 {
		c.interval = DefaultSyncInterval
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newTicker == nil {
		c.newTicker = func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		}
	}
	return c, nil
}

func (c *Container) mustInit() {
	if c == nil {
		panic(fwerr.ErrNotInitialized)
	}
}

// State returns a copy of the current state.
func (c *Container) State() State {
	c.mustInit()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
// Concurrent changes may be delivered out of order; use State.Version to
// drop stale snapshots.
func (c *Container) Subscribe(fn func(State)) (cancel func()) {
	c.mustInit()
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// update applies mutate under the lock, then notifies subscribers and the
// driver outside of it.
func (c *Container) update(mutate func(*State)) {
	c.updateIf(func(s *State) bool {
		mutate(s)
		return true
	})
}

// updateIf is update for conditional changes: when mutate returns false
// nobody is notified.
func (c *Container) updateIf(mutate func(*State) bool) bool {
	c.mu.Lock()
	if !mutate(&c.state) {
		c.mu.Unlock()
		return false
	}
	c.state.Version++
	snap := c.state.clone()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// ResolveAuthorizationStatus looks up the current authorization id. It
// never fails: an absent id is StatusNew without a lookup, and any lookup
// failure degrades to StatusNew.
func (c *Container) ResolveAuthorizationStatus(ctx context.Context) Status {
	c.mustInit()
	c.mu.Lock()
	id := c.state.AuthorizationID
	c.mu.Unlock()

	if id == "" {
		return StatusNew
	}

	rec, err := c.lookup.Lookup(ctx, id)
	if err != nil {
		c.log.Error("authorization lookup for %s failed: %v", id, err)
		return StatusNew
	}
	if rec.Approved() {
		return StatusApproved
	}
	return StatusWaitlisted
}

// setStatus moves the status out of StatusUnresolved. Later calls are
// ignored so the status changes at most once per session.
func (c *Container) setStatus(status Status) bool {
	if status == StatusUnresolved {
		return false
	}
	changed := c.updateIf(func(s *State) bool {
		if s.AuthorizationStatus != StatusUnresolved {
			return false
		}
		s.AuthorizationStatus = status
		return true
	})
	if changed {
		c.log.Info("authorization status resolved: %s", status)
	}
	return changed
}

// InitializeEngine brings the engine up through the factory. It is a no-op
// when an engine is already present and fails with ErrEngineInitializing
// while another bring-up is in flight. On failure the engine stays absent
// and the call may be retried.
func (c *Container) InitializeEngine(ctx context.Context, settings *engine.Settings) error {
	c.mustInit()
	var refusal error
	began := c.updateIf(func(s *State) bool {
		switch {
		case c.closed:
			refusal = fwerr.ErrEngineNotReady
		case s.Engine != nil:
		case s.Initializing:
			refusal = fwerr.ErrEngineInitializing
		default:
			s.Initializing = true
			return true
		}
		return false
	})
	if !began {
		return refusal
	}

	if settings == nil {
		settings = c.settings
	}
	c.log.Debug("initializing engine (network %s)", settings.Network)
	eng, err := c.initialize(ctx, settings)
	c.metrics.RecordEngineInit(err)

	if err != nil {
		c.log.Error("engine initialization failed: %v", err)
		c.update(func(s *State) {
			s.Initializing = false
			s.EngineError = err
		})
		return fwerr.Because(fwerr.ErrEngine, err)
	}

	rejected := false
	c.update(func(s *State) {
		s.Initializing = false
		if c.closed {
			rejected = true
			return
		}
		s.Engine = eng
		s.EngineError = nil
	})
	if rejected {
		_ = eng.Close()
		return fwerr.ErrEngineNotReady
	}
	c.log.Info("engine initialized")
	return nil
}

// initialize calls the factory, turning a panic into an error so the
// Initializing flag is always cleared.
func (c *Container) initialize(ctx context.Context, settings *engine.Settings) (eng engine.Engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			eng, err = nil, fmt.Errorf("engine factory panicked: %v", r)
		}
	}()
	eng, err = c.factory.Initialize(ctx, settings)
	if err == nil && eng == nil {
		err = errors.New("engine factory returned no engine")
	}
	return eng, err
}

// SetAuthorizationID stores id (trimmed). An empty id clears it.
func (c *Container) SetAuthorizationID(id string) {
	c.mustInit()
	id = strings.TrimSpace(id)
	c.update(func(s *State) { s.AuthorizationID = id })
}

// ClearAuthorizationID removes the authorization id.
func (c *Container) ClearAuthorizationID() {
	c.SetAuthorizationID("")
}

// SetScanResult replaces the last scan result.
func (c *Container) SetScanResult(r *scan.Result) {
	c.mustInit()
	c.update(func(s *State) { s.ScanResult = r })
}

// SetHasBackedUp records that the user saved their recovery phrase.
func (c *Container) SetHasBackedUp(ctx context.Context) error {
	c.mustInit()
	if err := c.prefs.SetHasBackedUp(ctx); err != nil {
		return err
	}
	c.update(func(s *State) { s.HasBackedUp = true })
	return nil
}

// DismissRestorePrompt records that the restore prompt was dismissed.
func (c *Container) DismissRestorePrompt(ctx context.Context) error {
	c.mustInit()
	if err := c.prefs.SetDismissedRestorePrompt(ctx); err != nil {
		return err
	}
	c.update(func(s *State) { s.DismissedRestorePrompt = true })
	return nil
}

// Synchronize syncs the engine and refreshes the balance. A call made
// while another synchronization is running returns immediately. Without
// an engine it returns ErrEngineNotReady and changes nothing. A failed
// sync leaves Balance and LastSync as they were.
func (c *Container) Synchronize(ctx context.Context) error {
	c.mustInit()
	var eng engine.Engine
	started := c.updateIf(func(s *State) bool {
		eng = s.Engine
		if eng == nil || s.IsSyncing {
			return false
		}
		s.IsSyncing = true
		return true
	})
	if !started {
		c.metrics.RecordSyncSkipped()
		if eng == nil {
			return fwerr.ErrEngineNotReady
		}
		c.log.Debug("sync already in progress, skipping")
		return nil
	}

	var (
		balance  *engine.Balance
		syncedAt time.Time
	)
	defer func() {
		c.update(func(s *State) {
			s.IsSyncing = false
			if balance != nil {
				s.Balance = balance
				s.LastSync = syncedAt
			}
		})
	}()

	start := time.Now()
	err := eng.Sync(ctx)
	if err == nil {
		balance, err = eng.GetBalance(ctx)
	}
	c.metrics.RecordSync(time.Since(start), err)
	if err != nil {
		balance = nil
		c.log.Error("sync failed: %v", err)
		return fwerr.Because(fwerr.ErrEngine, err)
	}
	syncedAt = c.now()
	c.log.Debug("sync finished in %s", time.Since(start))
	return nil
}

// RefreshFederations replaces the federation list with the engine's.
// On error the list is left untouched.
func (c *Container) RefreshFederations(ctx context.Context) error {
	c.mustInit()
	c.mu.Lock()
	eng := c.state.Engine
	c.mu.Unlock()
	if eng == nil {
		return fwerr.ErrEngineNotReady
	}

	list, err := eng.ListFederations(ctx)
	if err != nil {
		c.log.Error("listing federations failed: %v", err)
		return fwerr.Because(fwerr.ErrEngine, err)
	}
	feds := make([]engine.FederationIdentity, len(list))
	copy(feds, list)
	c.update(func(s *State) { s.Federations = feds })
	return nil
}

// Engine returns the engine or ErrEngineNotReady.
func (c *Container) Engine() (engine.Engine, error) {
	c.mustInit()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Engine == nil {
		return nil, fwerr.ErrEngineNotReady
	}
	return c.state.Engine, nil
}

// Logger returns the container's logger.
func (c *Container) Logger() config.LogWriter {
	c.mustInit()
	return c.log
}

// Metrics returns the container's metrics.
func (c *Container) Metrics() *metrics.Metrics {
	c.mustInit()
	return c.metrics
}
