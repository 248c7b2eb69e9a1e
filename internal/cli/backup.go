package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/output"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

const backupTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var backupShowYes bool

// backupCmd is the parent command for recovery phrase operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up the wallet recovery phrase",
	Long:  `Show the recovery phrase and track whether it has been saved.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the recovery phrase",
	Long: `Print the engine's 12-word recovery phrase. After you confirm that you
wrote it down, the wallet stops reminding you to back up.

WARNING: anyone with these words can spend your funds.

Example:
  fedwallet backup show
  fedwallet backup show --yes`,
	Args: cobra.NoArgs,
	RunE: runBackupShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backupDismissRestoreCmd = &cobra.Command{
	Use:   "dismiss-restore",
	Short: "Stop offering to restore an existing wallet",
	Args:  cobra.NoArgs,
	RunE:  runBackupDismissRestore,
}

// backupView is the JSON shape of backup show.
type backupView struct {
	Words     []string `json:"words"`
	BackedUp  bool     `json:"backed_up"`
	WordCount int      `json:"word_count"`
}

func runBackupShow(cmd *cobra.Command, _ []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, backupTimeout)
	defer cancel()

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	eng, err := ws.Engine()
	if err != nil {
		return err
	}
	words := strings.Fields(eng.Mnemonic())
	if len(words) == 0 {
		return fwerr.WithSuggestion(fwerr.ErrEngine, "the engine did not return a recovery phrase")
	}

	f := GetCmdContext(cmd).Output(cmd)
	if !f.IsJSON() {
		writeWords(cmd.OutOrStdout(), words)
	}

	backedUp := ws.State().HasBackedUp
	if !backedUp && (backupShowYes || promptConfirmFn("Have you written down all the words?")) {
		if err = ws.SetHasBackedUp(ctx); err != nil {
			return err
		}
		backedUp = true
	}

	if f.IsJSON() {
		return f.Print(backupView{Words: words, BackedUp: backedUp, WordCount: len(words)})
	}
	if backedUp {
		output.Success(cmd.OutOrStdout(), "Recovery phrase marked as backed up")
	}
	return nil
}

func writeWords(w io.Writer, words []string) {
	output.Warn(w, "Anyone with these words can spend your funds. Never share them.")
	_, _ = fmt.Fprintln(w)
	for i, word := range words {
		_, _ = fmt.Fprintf(w, "%2d. %s\n", i+1, word)
	}
	_, _ = fmt.Fprintln(w)
}

func runBackupDismissRestore(cmd *cobra.Command, _ []string) (err error) {
	ws, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	if err = ws.DismissRestorePrompt(cmd.Context()); err != nil {
		return err
	}

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		return f.Print(map[string]bool{"dismissed_restore_prompt": true})
	}
	output.Success(cmd.OutOrStdout(), "Restore prompt dismissed")
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	backupShowCmd.Flags().BoolVarP(&backupShowYes, "yes", "y", false, "mark the phrase as backed up without asking")

	backupCmd.AddCommand(backupShowCmd, backupDismissRestoreCmd)
	rootCmd.AddCommand(backupCmd)
}
