package session

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// Start launches the lifecycle driver: the boot authorization lookup, engine
// bring-up once approved, authorization id persistence and the periodic
// sync ticker. It fails with ErrAlreadyStarted on a second call.
func (c *Container) Start(ctx context.Context) error {
	c.mustInit()
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return fwerr.ErrAlreadyStarted
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(2)
	c.mu.Unlock()

	go c.drive(ctx)
	go c.tick(ctx)
	return nil
}

// Close stops the driver and waits for it, persists a pending
// authorization id and closes the engine. It is safe to call more than once.
func (c *Container) Close() error {
	c.mustInit()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	id := c.state.AuthorizationID
	eng := c.state.Engine
	c.state.Engine = nil
	c.subs = make(map[int]func(State))
	c.mu.Unlock()

	var err error
	if id != c.persisted {
		if perr := c.prefs.SetAuthorizationID(context.Background(), id); perr != nil {
			err = multierr.Append(err, perr)
		} else {
			c.persisted = id
		}
	}
	if eng != nil {
		err = multierr.Append(err, eng.Close())
	}
	return err
}

// drive runs every rule on a single goroutine. Rules are idempotent, so
// coalesced notifications lose nothing.
func (c *Container) drive(ctx context.Context) {
	defer c.wg.Done()

	status := c.ResolveAuthorizationStatus(ctx)
	if ctx.Err() != nil {
		return
	}
	c.setStatus(status)

	initFailed := false
	for {
		c.evaluate(ctx, &initFailed)
		select {
		case <-ctx.Done():
			return
		case <-c.notify:
		case <-c.retryInit:
			initFailed = false
		}
	}
}

func (c *Container) evaluate(ctx context.Context, initFailed *bool) {
	s := c.State()
	c.persistAuthorizationID(ctx, s.AuthorizationID)

	if s.AuthorizationStatus != StatusApproved || s.Engine != nil || s.Initializing || *initFailed {
		return
	}
	if err := c.InitializeEngine(ctx, c.settings); err != nil {
		if !errors.Is(err, fwerr.ErrEngineInitializing) {
			// retried on the next tick
			*initFailed = true
		}
		return
	}
	if err := c.RefreshFederations(ctx); err != nil {
		c.log.Error("loading federations after engine start: %v", err)
	}
}

// persistAuthorizationID writes id when it differs from what was last
// stored. Only the driver goroutine, or Close after it exits, calls this.
func (c *Container) persistAuthorizationID(ctx context.Context, id string) {
	if id == c.persisted {
		return
	}
	if err := c.prefs.SetAuthorizationID(ctx, id); err != nil {
		c.log.Error("saving authorization id: %v", err)
		return
	}
	c.persisted = id
	c.log.Debug("authorization id saved")
}

func (c *Container) tick(ctx context.Context) {
	defer c.wg.Done()

	ticks, stop := c.newTicker(c.interval)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			select {
			case c.retryInit <- struct{}{}:
			default:
			}
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				_ = c.Synchronize(ctx)
			}()
		}
	}
}

// WaitReady blocks until the boot lookup has resolved and, for an approved
// user, the engine is up. It fails with ErrNotApproved for any other status
// and with ErrEngine when the bring-up failed.
func (c *Container) WaitReady(ctx context.Context) (State, error) {
	c.mustInit()
	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		s := c.State()
		switch {
		case s.AuthorizationStatus == StatusUnresolved:
		case s.AuthorizationStatus != StatusApproved:
			return s, fwerr.WithDetails(fwerr.ErrNotApproved, map[string]string{"status": s.AuthorizationStatus.String()})
		case s.Engine != nil:
			return s, nil
		case s.EngineError != nil && !s.Initializing:
			return s, fwerr.Because(fwerr.ErrEngine, s.EngineError)
		}

		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-changed:
		}
	}
}
