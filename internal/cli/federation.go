package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/federation"
	"github.com/mrz1836/fedwallet/internal/output"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

const federationTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
var (
	federationAddLink   string
	federationRemoveYes bool
	federationInviteQR  bool
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var federationCmd = &cobra.Command{
	Use:     "federation",
	Aliases: []string{"fed"},
	Short:   "Manage federation memberships",
	Long:    `List, join and leave federations.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var federationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List joined federations with their balances",
	Long: `List every joined federation with its balance. A balance the engine
did not report is shown as unknown.

Example:
  fedwallet federation list
  fedwallet federation list -o json`,
	Args: cobra.NoArgs,
	RunE: runFederationList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var federationAddCmd = &cobra.Command{
	Use:   "add [invite-code]",
	Short: "Join a federation",
	Long: `Join a federation with an invite code. The code can also come from a
deep link carrying the fedimint_invite parameter.

Example:
  fedwallet federation add fed1...
  fedwallet federation add --link 'fedwallet://settings/federations?fedimint_invite=fed1...'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFederationAdd,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var federationRemoveCmd = &cobra.Command{
	Use:   "remove <federation>",
	Short: "Leave a federation",
	Long: `Leave a federation. The federation is named by its id, a unique id
prefix or its name. You are asked to confirm unless --yes is given.

Example:
  fedwallet federation remove 3fa9
  fedwallet federation remove 3fa9 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runFederationRemove,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var federationInviteCmd = &cobra.Command{
	Use:   "invite <federation>",
	Short: "Show the invite code of a joined federation",
	Long: `Print the invite code a federation was joined with so it can be shared.
On a terminal the code is also drawn as a QR code.

Example:
  fedwallet federation invite 3fa9`,
	Args: cobra.ExactArgs(1),
	RunE: runFederationInvite,
}

// federationRowView is the JSON shape of one list row.
type federationRowView struct {
	ID             string  `json:"federation_id"`
	Name           string  `json:"federation_name,omitempty"`
	WelcomeMessage string  `json:"welcome_message,omitempty"`
	Expires        *string `json:"expires,omitempty"`
	Balance        *uint64 `json:"balance"`
}

func newFederationRowView(r federation.Row) federationRowView {
	v := federationRowView{
		ID:             r.Federation.ID,
		Name:           r.Federation.Name,
		WelcomeMessage: r.Federation.WelcomeMessage,
	}
	if r.Known {
		b := r.Balance
		v.Balance = &b
	}
	if ts := r.Federation.ExpiryTimestamp; ts != nil {
		exp := time.Unix(*ts, 0).UTC().Format(time.RFC3339)
		v.Expires = &exp
	}
	return v
}

func runFederationList(cmd *cobra.Command, _ []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, federationTimeout)
	defer cancel()

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	rows := ws.federation.Rows(ctx)

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		views := make([]federationRowView, 0, len(rows))
		for _, r := range rows {
			views = append(views, newFederationRowView(r))
		}
		return f.Print(views)
	}

	w := cmd.OutOrStdout()
	if len(rows) == 0 {
		output.Info(w, "No federations joined. Add one with 'fedwallet federation add <invite-code>'.")
		return nil
	}

	t := output.NewTable("ID", "NAME", "BALANCE", "EXPIRES")
	for _, r := range rows {
		v := newFederationRowView(r)
		balance := "unknown"
		if v.Balance != nil {
			balance = output.FormatSats(*v.Balance)
		}
		expires := "-"
		if v.Expires != nil {
			expires = *v.Expires
		}
		t.AddRow(shortID(v.ID), v.Name, balance, expires)
	}
	return t.Render(w)
}

func runFederationAdd(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, federationTimeout)
	defer cancel()

	var link *federation.LinkParams
	if federationAddLink != "" {
		if link, err = federation.ParseLink(federationAddLink); err != nil {
			return fwerr.WithSuggestion(fwerr.Because(fwerr.ErrInvalidInput, err), "pass the link exactly as received")
		}
	}

	// validated before the engine is brought up
	input := federation.NewAddForm(nil, federation.Options{}, nil)
	fillAddForm(input, args, link)
	if err = input.Validate(); err != nil {
		return err
	}

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	form := ws.federation.AddForm()
	form.SetCode(input.Code())
	fed, err := form.Submit(ctx)
	if err != nil {
		return err
	}

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		return f.Print(fed)
	}
	w := cmd.OutOrStdout()
	output.Success(w, "%s", form.Success())
	if fed.WelcomeMessage != "" {
		_, _ = fmt.Fprintln(w, fed.WelcomeMessage)
	}
	return nil
}

// fillAddForm applies the deep link first so an explicit argument wins.
func fillAddForm(form *federation.AddForm, args []string, link *federation.LinkParams) {
	if link != nil {
		form.ApplyDeepLink(link)
	}
	if len(args) > 0 {
		form.SetCode(args[0])
	}
}

func runFederationRemove(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, federationTimeout)
	defer cancel()

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	fed, err := ws.federation.Find(args[0])
	if err != nil {
		return err
	}

	gate := ws.federation.RemoveGate(fed.ID)
	if err = gate.Arm(); err != nil {
		return err
	}
	if !federationRemoveYes && !promptConfirmFn(fmt.Sprintf("Leave federation %s (%s)?", federationLabel(fed), shortID(fed.ID))) {
		gate.Cancel()
		output.Info(cmd.ErrOrStderr(), "Cancelled")
		return nil
	}
	if err = gate.Confirm(ctx); err != nil {
		return err
	}

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		return f.Print(map[string]string{"removed": fed.ID})
	}
	output.Success(cmd.OutOrStdout(), "Left %s", federationLabel(fed))
	return nil
}

func runFederationInvite(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := contextWithTimeout(cmd, federationTimeout)
	defer cancel()

	ws, err := bootSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))

	fed, err := ws.federation.Find(args[0])
	if err != nil {
		return err
	}
	eng, err := ws.Engine()
	if err != nil {
		return err
	}
	sharer, ok := eng.(engine.InviteSharer)
	if !ok {
		return fwerr.WithSuggestion(fwerr.ErrEngine, "this engine does not keep invite codes")
	}
	code, err := sharer.InviteCode(ctx, fed.ID)
	if err != nil {
		return fwerr.Because(fwerr.ErrEngine, err)
	}

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		return f.Print(map[string]string{"federation_id": fed.ID, "invite_code": code})
	}
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, code)
	if federationInviteQR {
		output.RenderQR(w, code, output.DefaultQRConfig())
	}
	return nil
}

func federationLabel(fed engine.FederationIdentity) string {
	if fed.Name != "" {
		return fed.Name
	}
	return shortID(fed.ID)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	federationAddCmd.Flags().StringVar(&federationAddLink, "link", "", "deep link carrying a fedimint_invite parameter")
	federationRemoveCmd.Flags().BoolVarP(&federationRemoveYes, "yes", "y", false, "skip the confirmation prompt")
	federationInviteCmd.Flags().BoolVar(&federationInviteQR, "qr", true, "draw the invite as a QR code on terminals")

	federationCmd.AddCommand(federationListCmd, federationAddCmd, federationRemoveCmd, federationInviteCmd)
	rootCmd.AddCommand(federationCmd)
}
