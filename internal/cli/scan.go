package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/mrz1836/fedwallet/internal/output"
	"github.com/mrz1836/fedwallet/internal/scan"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var scanCmd = &cobra.Command{
	Use:   "scan <input>",
	Short: "Decode a payment string",
	Long: `Decode what a QR scanner or paste produced: a bitcoin: URI, a lightning
invoice, an LNURL, a federation invite or a bare address.

Example:
  fedwallet scan 'bitcoin:tb1q...?amount=0.001'
  fedwallet scan fed1...`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) (err error) {
	res, err := scan.Parse(args[0])
	if err != nil {
		return fwerr.WithSuggestion(fwerr.Because(fwerr.ErrInvalidInput, err),
			"expected a bitcoin: URI, lightning invoice, LNURL, fed1 invite or address")
	}

	ws, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer multierr.AppendInvoke(&err, multierr.Close(ws))
	ws.SetScanResult(res)

	f := GetCmdContext(cmd).Output(cmd)
	if f.IsJSON() {
		return f.Print(ws.State().ScanResult)
	}
	writeScanText(cmd, res, ws.State().Price)
	return nil
}

func writeScanText(cmd *cobra.Command, res *scan.Result, price float64) {
	w := cmd.OutOrStdout()
	line := func(label, value string) {
		if value != "" {
			_, _ = fmt.Fprintf(w, "%-10s %s\n", label+":", value)
		}
	}

	line("Kind", string(res.Kind))
	line("Network", res.Network)
	line("Address", res.Address)
	line("Invoice", res.Invoice)
	line("LNURL", res.LNURL)
	line("Invite", res.Invite)
	if res.AmountSats > 0 {
		amount := output.FormatSats(res.AmountSats)
		if price > 0 {
			amount += " (" + output.FormatUSD(res.AmountSats, price) + ")"
		}
		line("Amount", amount)
	}
	line("Memo", res.Memo)

	if res.Kind == scan.KindFederation {
		_, _ = fmt.Fprintln(w)
		output.Info(w, "Join it with 'fedwallet federation add %s'", res.Invite)
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(scanCmd)
}
