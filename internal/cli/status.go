package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/output"
	"github.com/mrz1836/fedwallet/internal/session"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

const statusTimeout = 90 * time.Second

// statusCmd shows the session state.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authorization, engine and balance state",
	Long: `Resolve the authorization status of this client and, when approved,
bring the engine up and synchronize once before printing the session state.

Example:
  fedwallet status
  fedwallet status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// statusView is the printable form of session.State.
type statusView struct {
	AuthorizationID        string          `json:"authorization_id,omitempty"`
	Status                 session.Status  `json:"status"`
	EngineReady            bool            `json:"engine_ready"`
	EngineError            string          `json:"engine_error,omitempty"`
	Balance                *engine.Balance `json:"balance,omitempty"`
	BalanceTotal           uint64          `json:"balance_total"`
	BalanceUSD             string          `json:"balance_usd,omitempty"`
	LastSync               *time.Time      `json:"last_sync,omitempty"`
	Federations            int             `json:"federations"`
	HasBackedUp            bool            `json:"has_backed_up"`
	DismissedRestorePrompt bool            `json:"dismissed_restore_prompt"`
}

func newStatusView(s *session.State) statusView {
	v := statusView{
		AuthorizationID:        s.AuthorizationID,
		Status:                 s.AuthorizationStatus,
		EngineReady:            s.EngineReady(),
		Balance:                s.Balance,
		BalanceTotal:           s.Balance.Total(),
		Federations:            len(s.Federations),
		HasBackedUp:            s.HasBackedUp,
		DismissedRestorePrompt: s.DismissedRestorePrompt,
	}
	if s.EngineError != nil {
		v.EngineError = s.EngineError.Error()
	}
	if s.Balance != nil && s.Price > 0 {
		v.BalanceUSD = output.FormatUSD(v.BalanceTotal, s.Price)
	}
	if !s.LastSync.IsZero() {
		t := s.LastSync
		v.LastSync = &t
	}
	return v
}

func runStatus(cmd *cobra.Command, _ []string) (err error) {
	cc := GetCmdContext(cmd)
	ctx, cancel := contextWithTimeout(cmd, statusTimeout)
	defer cancel()

	ws, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	if err = ws.Start(ctx); err != nil {
		return err
	}

	_, err = ws.WaitReady(ctx)
	switch {
	case err == nil:
		if syncErr := ws.Synchronize(ctx); syncErr != nil {
			cc.Log.Error("status sync: %v", syncErr)
			output.Warn(cmd.ErrOrStderr(), "sync failed: %v", syncErr)
		}
	case errors.Is(err, fwerr.ErrNotApproved), errors.Is(err, fwerr.ErrEngine):
		// reported through the state below
	default:
		return readyError(err)
	}
	err = nil

	s := ws.State()
	return printStatus(cc.Output(cmd), newStatusView(&s))
}

func printStatus(f *output.Formatter, v statusView) error {
	if f.IsJSON() {
		return f.Print(v)
	}
	return writeStatusText(f.Writer(), v)
}

func writeStatusText(w io.Writer, v statusView) error {
	var lines []string
	add := func(label, value string) {
		lines = append(lines, fmt.Sprintf("%-18s %s", label+":", value))
	}

	id := v.AuthorizationID
	if id == "" {
		id = "(none)"
	}
	add("Authorization id", id)
	add("Status", v.Status.String())

	switch {
	case v.EngineReady:
		add("Engine", "ready")
	case v.EngineError != "":
		add("Engine", "failed: "+v.EngineError)
	default:
		add("Engine", "not started")
	}

	if v.Balance != nil {
		total := output.FormatSats(v.BalanceTotal)
		if v.BalanceUSD != "" {
			total += " (" + v.BalanceUSD + ")"
		}
		add("Balance", total)
		add("  on-chain", output.FormatSats(v.Balance.Confirmed+v.Balance.Unconfirmed))
		add("  lightning", output.FormatSats(v.Balance.Lightning))
		add("  federations", output.FormatSats(v.Balance.Federation))
	}
	if v.LastSync != nil {
		add("Last sync", v.LastSync.Local().Format(time.RFC3339))
	}
	if v.EngineReady {
		add("Federations", fmt.Sprintf("%d", v.Federations))
	}
	add("Backed up", yesNo(v.HasBackedUp))

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}

	if v.EngineReady && !v.HasBackedUp {
		_, _ = fmt.Fprintln(w)
		output.Info(w, "Your recovery phrase is not backed up. Run 'fedwallet backup show'.")
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(statusCmd)
}
