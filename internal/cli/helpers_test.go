package cli

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/engine/local"
	"github.com/mrz1836/fedwallet/internal/session"
)

const testPassphrase = "correct horse battery staple"

// stubLookup answers every authorization lookup the same way.
type stubLookup struct {
	mu       sync.Mutex
	approved bool
	err      error
	ids      []string
}

func (s *stubLookup) Lookup(_ context.Context, id string) (*authz.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, id)
	if s.err != nil {
		return nil, s.err
	}
	rec := &authz.Record{ID: id}
	if s.approved {
		rec.ApprovalDate = "2023-04-01T00:00:00Z"
	}
	return rec, nil
}

func (s *stubLookup) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// cliHarness runs commands against a temporary home with a fast local
// engine and a scripted authorization lookup.
type cliHarness struct {
	home        string
	lookup      *stubLookup
	engineInits atomic.Int32
}

// newHarness replaces the session collaborators and restores every global
// when the test ends.
// NOT parallel: mutates package-level globals.
func newHarness(t *testing.T) *cliHarness {
	t.Helper()

	origFactory, origLookup, origPrefs := newEngineFactory, newStatusLookup, openPrefs
	origConfirm, origPassphrase := promptConfirmFn, promptPassphraseFn
	origCfg, origLogger, origFormatter := cfg, logger, formatter
	origHome, origFormat, origVerbose, origAsk := homeDir, outputFormat, verbose, askPassphrase
	t.Cleanup(func() {
		newEngineFactory, newStatusLookup, openPrefs = origFactory, origLookup, origPrefs
		promptConfirmFn, promptPassphraseFn = origConfirm, origPassphrase
		cfg, logger, formatter = origCfg, origLogger, origFormatter
		homeDir, outputFormat, verbose, askPassphrase = origHome, origFormat, origVerbose, origAsk
		resetCommandFlags()
	})

	for _, key := range []string{
		config.EnvHome, config.EnvAuthURL, config.EnvNetwork, config.EnvOutputFormat,
		config.EnvVerbose, config.EnvLogLevel, config.EnvSyncInterval, config.EnvPrefsBackend,
		config.EnvMetricsAddr,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvEnginePassphrase, testPassphrase)

	h := &cliHarness{home: t.TempDir(), lookup: &stubLookup{approved: true}}
	newEngineFactory = func(_ *config.Config) engine.Factory {
		f := &local.Factory{WorkFactor: 10}
		return engine.FactoryFunc(func(ctx context.Context, s *engine.Settings) (engine.Engine, error) {
			h.engineInits.Add(1)
			return f.Initialize(ctx, s)
		})
	}
	newStatusLookup = func(_ *config.Config) session.StatusLookup { return h.lookup }
	promptConfirmFn = func(string) bool { return false }
	promptPassphraseFn = func() (string, error) { return testPassphrase, nil }
	return h
}

// resetCommandFlags clears flag variables that cobra leaves set between
// executions of the shared command tree.
func resetCommandFlags() {
	homeDir = ""
	outputFormat = "auto"
	verbose = false
	askPassphrase = false
	runMetricsAddr = ""
	federationAddLink = ""
	federationRemoveYes = false
	federationInviteQR = true
	backupShowYes = false
	configInitForce = false

	// cobra only hands the execution context to commands without one
	walkCommands(rootCmd, func(c *cobra.Command) {
		c.SetContext(nil) //nolint:staticcheck // clearing, not passing, a context
	})
}

// run executes the command tree with text output and returns stdout and stderr.
func (h *cliHarness) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return h.runContext(context.Background(), t, append([]string{"-o", "text"}, args...)...)
}

// runJSON executes the command tree with JSON output.
func (h *cliHarness) runJSON(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := h.runContext(context.Background(), t, append([]string{"-o", "json"}, args...)...)
	return stdout, err
}

func (h *cliHarness) runContext(ctx context.Context, t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetCommandFlags()

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--home", h.home}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// approve stores an authorization id the stub lookup approves.
func (h *cliHarness) approve(t *testing.T) {
	t.Helper()
	_, _, err := h.run(t, "auth", "set", "approved-id")
	require.NoError(t, err)
}

func withTimeout(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
