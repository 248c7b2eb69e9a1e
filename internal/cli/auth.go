package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/fedwallet/internal/authz"
	"github.com/mrz1836/fedwallet/internal/output"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// authCmd is the parent command for the authorization id.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the authorization id",
	Long: `The authorization id identifies this client to the waitlist service.
The engine only starts once the id has been approved.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var authSetCmd = &cobra.Command{
	Use:   "set <id>",
	Short: "Store an authorization id",
	Long: `Store the authorization id used for the approval lookup.

Example:
  fedwallet auth set 6f1c2a3e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var authClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget the authorization id",
	Args:  cobra.NoArgs,
	RunE:  runAuthClear,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Generate and store a new authorization id",
	Long: `Generate a fresh authorization id and store it. Submit the printed id
to the waitlist; 'fedwallet status' reports when it has been approved.`,
	Args: cobra.NoArgs,
	RunE: runAuthRegister,
}

// authResult is the JSON shape of every auth subcommand.
type authResult struct {
	AuthorizationID string `json:"authorization_id"`
	Action          string `json:"action"`
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fwerr.WithSuggestion(fwerr.ErrInvalidInput, "authorization id must not be empty")
	}
	return storeAuthorizationID(cmd, id, "set")
}

func runAuthClear(cmd *cobra.Command, _ []string) error {
	return storeAuthorizationID(cmd, "", "cleared")
}

func runAuthRegister(cmd *cobra.Command, _ []string) error {
	return storeAuthorizationID(cmd, authz.NewID(), "registered")
}

// storeAuthorizationID updates the id in a session that is never started.
// Close writes it through to the preference store.
func storeAuthorizationID(cmd *cobra.Command, id, action string) error {
	ws, err := openSession(cmd)
	if err != nil {
		return err
	}
	ws.SetAuthorizationID(id)
	if err = ws.Close(); err != nil {
		return err
	}

	cc := GetCmdContext(cmd)
	cc.Log.Info("authorization id %s", action)
	f := cc.Output(cmd)
	if f.IsJSON() {
		return f.Print(authResult{AuthorizationID: id, Action: action})
	}

	w := cmd.OutOrStdout()
	switch action {
	case "cleared":
		output.Success(w, "Authorization id cleared")
	case "registered":
		output.Success(w, "Registered authorization id %s", id)
		output.Info(w, "Submit this id to the waitlist, then run 'fedwallet status'.")
	default:
		output.Success(w, "Authorization id set to %s", id)
	}
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	authCmd.AddCommand(authSetCmd, authClearCmd, authRegisterCmd)
	rootCmd.AddCommand(authCmd)
}
