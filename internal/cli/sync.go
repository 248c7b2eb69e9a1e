package cli

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/config"
	"github.com/mrz1836/fedwallet/internal/metrics"
	"github.com/mrz1836/fedwallet/internal/output"
	"github.com/mrz1836/fedwallet/internal/session"
)

const (
	syncTimeout           = 2 * time.Minute
	metricsShutdownPeriod = 5 * time.Second
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var runMetricsAddr string

// syncCmd runs one synchronization.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the wallet once",
	Long: `Start the session, wait for the engine and run a single
synchronization, then print the refreshed state.

Example:
  fedwallet sync`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

// runCmd keeps a session alive.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session until interrupted",
	Long: `Run the wallet session in the foreground. The engine is brought up
once the authorization id is approved and the wallet synchronizes on the
configured interval until SIGINT or SIGTERM.

With --metrics-addr, session counters are served in Prometheus format at
/metrics on that address.

Example:
  fedwallet run
  fedwallet run --metrics-addr 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runSync(cmd *cobra.Command, _ []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, syncTimeout)
	defer cancel()

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	if err = ws.Synchronize(ctx); err != nil {
		return err
	}

	s := ws.State()
	return printStatus(GetCmdContext(cmd).Output(cmd), newStatusView(&s))
}

func runRun(cmd *cobra.Command, _ []string) (err error) {
	cc := GetCmdContext(cmd)
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := runMetricsAddr
	if addr == "" {
		addr = cc.Cfg.Metrics.ListenAddr
	}
	if addr != "" {
		shutdown, serr := serveMetrics(addr, cc)
		if serr != nil {
			return serr
		}
		defer multierr.AppendInvoke(&err, multierr.Invoke(shutdown))
		output.Info(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics", addr)
	}

	ws, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	w := cmd.ErrOrStderr()
	reporter := &transitionReporter{w: w, log: cc.Log, last: ws.State()}
	unsubscribe := ws.Subscribe(reporter.observe)
	defer unsubscribe()

	if err = ws.Start(ctx); err != nil {
		return err
	}
	output.Info(w, "Session started, syncing every %s. Press Ctrl+C to stop.", cc.Cfg.GetSyncInterval())

	<-ctx.Done()
	output.Info(w, "Shutting down")
	return nil
}

// transitionReporter prints the state changes worth telling an operator
// about.
type transitionReporter struct {
	w   io.Writer
	log config.LogWriter

	mu   sync.Mutex
	last session.State
}

func (r *transitionReporter) observe(next session.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if next.Version <= r.last.Version {
		return
	}
	prev := r.last
	r.last = next

	if prev.AuthorizationStatus != next.AuthorizationStatus {
		output.Info(r.w, "Authorization status: %s", next.AuthorizationStatus)
		if next.AuthorizationStatus != session.StatusApproved {
			output.Warn(r.w, "The engine starts once the authorization id is approved")
		}
	}
	if !prev.EngineReady() && next.EngineReady() {
		output.Success(r.w, "Engine ready")
	}
	if next.EngineError != nil && !errors.Is(prev.EngineError, next.EngineError) {
		output.Warn(r.w, "Engine failed: %v (retrying on next tick)", next.EngineError)
	}
	if !next.LastSync.IsZero() && !next.LastSync.Equal(prev.LastSync) {
		r.log.Info("synchronized, balance %d sats", next.Balance.Total())
		output.Info(r.w, "Synchronized: %s", output.FormatSats(next.Balance.Total()))
	}
}

// serveMetrics starts the Prometheus listener and returns its shutdown.
func serveMetrics(addr string, cc *CommandContext) (func() error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(metrics.NewRegistry(metrics.Global)))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			cc.Log.Error("metrics server: %v", serveErr)
		}
	}()

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownPeriod)
		defer cancel()
		return srv.Shutdown(ctx)
	}, nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.AddCommand(syncCmd, runCmd)
}
