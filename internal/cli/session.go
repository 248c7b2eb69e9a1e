package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/engine/local"
	"github.com/mrz1836/fedwallet/internal/federation"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/prefs"
	"github.com/mrz1836/fedwallet/internal/session"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// Session collaborators are variables so tests can replace them.
//
//nolint:gochecknoglobals // swapped by tests
var (
	newEngineFactory = func(_ *config.Config) engine.Factory {
		return local.NewFactory()
	}
	newStatusLookup = func(c *config.Config) session.StatusLookup {
		return authz.NewClient(&authz.ClientOptions{
			BaseURL:       c.GetAuthorizationURL(),
			Timeout:       c.GetAuthorizationTimeout(),
			RatePerSecond: c.Authorization.RatePerSecond,
			Burst:         c.Authorization.Burst,
			Metrics:       metrics.Global,
		})
	}
	openPrefs = prefs.Open
)

// walletSession is a session container plus the resources the CLI opened
// for it.
type walletSession struct {
	*session.Container
	store      prefs.ClosableStore
	federation *federation.Manager
}

// openSession builds a session container from the command's configuration.
// The container is not started.
func openSession(cmd *cobra.Command) (*walletSession, error) {
	cc := GetCmdContext(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	settings, err := engineSettings(cc.Cfg)
	if err != nil {
		return nil, err
	}

	store, err := openPrefs(ctx, cc.Cfg)
	if err != nil {
		return nil, err
	}

	c, err := session.New(ctx, session.Options{
		Factory:      newEngineFactory(cc.Cfg),
		Lookup:       newStatusLookup(cc.Cfg),
		Prefs:        prefs.New(store),
		Settings:     settings,
		Logger:       cc.Log,
		Metrics:      metrics.Global,
		SyncInterval: cc.Cfg.GetSyncInterval(),
		Price:        cc.Cfg.Display.BTCPriceUSD,
	})
	if err != nil {
		return nil, multierr.Append(err, store.Close())
	}

	return &walletSession{
		Container: c,
		store:     store,
		federation: federation.NewManager(c, federation.Options{
			Logger:  cc.Log,
			Metrics: metrics.Global,
		}),
	}, nil
}

// bootSession opens and starts a session, then waits until the engine is up.
func bootSession(ctx context.Context, cmd *cobra.Command) (*walletSession, error) {
	ws, err := openSession(cmd)
	if err != nil {
		return nil, err
	}
	if err = ws.Start(ctx); err != nil {
		return nil, multierr.Append(err, ws.Close())
	}
	if _, err = ws.WaitReady(ctx); err != nil {
		return nil, multierr.Append(readyError(err), ws.Close())
	}
	// the driver loads federations after bring-up; do it here so callers
	// never see the list before that load finishes
	if err = ws.RefreshFederations(ctx); err != nil {
		return nil, multierr.Append(err, ws.Close())
	}
	return ws, nil
}

// Close stops the container and closes the preference store.
func (w *walletSession) Close() error {
	return multierr.Combine(w.Container.Close(), w.store.Close())
}

// readyError adds a next step to the errors WaitReady returns.
func readyError(err error) error {
	switch {
	case errors.Is(err, fwerr.ErrNotApproved):
		return fwerr.WithSuggestion(err, "run 'fedwallet auth register' to join the waitlist, or 'fedwallet auth set <id>' if you have an approved id")
	case errors.Is(err, fwerr.ErrDecryptionFailed):
		return fwerr.Because(fwerr.ErrDecryptionFailed, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fwerr.WithSuggestion(fwerr.Because(fwerr.ErrEngineNotReady, err), "the authorization service or engine did not respond in time")
	default:
		return err
	}
}

// engineSettings maps the engine config section to bring-up settings.
func engineSettings(c *config.Config) (*engine.Settings, error) {
	s := &engine.Settings{
		Network:    c.Engine.Network,
		Esplora:    c.Engine.Esplora,
		RGS:        c.Engine.RGS,
		LSP:        c.Engine.LSP,
		Proxy:      c.Engine.Proxy,
		StorageDir: c.EngineStorageDir(),
		StateFile:  c.Engine.StateFile,
		Passphrase: c.Engine.Passphrase,
	}
	if askPassphrase && s.Passphrase == "" {
		pw, err := promptPassphraseFn()
		if err != nil {
			return nil, err
		}
		if pw == "" {
			return nil, fwerr.WithSuggestion(fwerr.ErrInvalidInput, "passphrase must not be empty")
		}
		s.Passphrase = pw
	}
	return s, nil
}
