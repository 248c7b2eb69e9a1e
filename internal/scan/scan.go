// Package scan decodes the strings a QR scanner or clipboard paste hands to
// the wallet: BIP21 URIs, lightning invoices, LNURLs, federation invites and
// bare on-chain addresses.
package scan

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind identifies what a scanned string contains.
type Kind string

// Recognized kinds.
const (
	KindOnchain    Kind = "onchain"
	KindLightning  Kind = "lightning"
	KindLNURL      Kind = "lnurl"
	KindFederation Kind = "federation_invite"
)

// Networks inferred from address and invoice prefixes.
const (
	NetworkBitcoin = "bitcoin"
	NetworkTestnet = "testnet"
	NetworkSignet  = "signet"
	NetworkRegtest = "regtest"
)

const satsPerBTC = 100_000_000

// Errors returned by Parse.
var (
	ErrEmpty       = errors.New("nothing to parse")
	ErrUnsupported = errors.New("unrecognized payment string")
	ErrBadAmount   = errors.New("invalid amount")
)

// Result is a decoded scan.
type Result struct {
	Original   string `json:"original"`
	Kind       Kind   `json:"kind"`
	Address    string `json:"address,omitempty"`
	Invoice    string `json:"invoice,omitempty"`
	LNURL      string `json:"lnurl,omitempty"`
	Invite     string `json:"invite,omitempty"`
	AmountSats uint64 `json:"amount_sats,omitempty"`
	Memo       string `json:"memo,omitempty"`
	Network    string `json:"network,omitempty"`
}

// Parse decodes input. Surrounding whitespace and a "lightning:" scheme are
// ignored; prefixes are matched case-insensitively.
func Parse(input string) (*Result, error) {
	original := strings.TrimSpace(input)
	if original == "" {
		return nil, ErrEmpty
	}

	lower := strings.ToLower(original)
	switch {
	case strings.HasPrefix(lower, "bitcoin:"):
		return parseBIP21(original)
	case strings.HasPrefix(lower, "lightning:"):
		res, err := parseLightning(original[len("lightning:"):])
		if err != nil {
			return nil, err
		}
		res.Original = original
		return res, nil
	case strings.HasPrefix(lower, "fed1"):
		return &Result{Original: original, Kind: KindFederation, Invite: original}, nil
	}

	if res, err := parseLightning(original); err == nil {
		return res, nil
	}
	if network := addressNetwork(original); network != "" {
		return &Result{Original: original, Kind: KindOnchain, Address: original, Network: network}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, truncate(original, 24))
}

func parseLightning(s string) (*Result, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(lower, "lnurl"):
		return &Result{Original: s, Kind: KindLNURL, LNURL: lower}, nil
	case strings.HasPrefix(lower, "ln"):
		network := invoiceNetwork(lower)
		if network == "" {
			return nil, ErrUnsupported
		}
		return &Result{Original: s, Kind: KindLightning, Invoice: lower, Network: network}, nil
	}
	return nil, ErrUnsupported
}

func parseBIP21(original string) (*Result, error) {
	rest := original[len("bitcoin:"):]
	address, rawQuery, _ := strings.Cut(rest, "?")

	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return nil, fmt.Errorf("parsing bitcoin uri: %w", err)
	}

	res := &Result{
		Original: original,
		Kind:     KindOnchain,
		Address:  address,
		Network:  addressNetwork(address),
	}
	if amount := query.Get("amount"); amount != "" {
		sats, err := btcToSats(amount)
		if err != nil {
			return nil, err
		}
		res.AmountSats = sats
	}
	res.Memo = query.Get("message")
	if res.Memo == "" {
		res.Memo = query.Get("label")
	}
	if ln := query.Get("lightning"); ln != "" {
		if inv, err := parseLightning(ln); err == nil {
			res.Invoice = inv.Invoice
			res.LNURL = inv.LNURL
			if res.Network == "" {
				res.Network = inv.Network
			}
		}
	}
	if res.Address == "" && res.Invoice == "" && res.LNURL == "" {
		return nil, fmt.Errorf("%w: bitcoin uri without address", ErrUnsupported)
	}
	return res, nil
}

// btcToSats converts a decimal BTC amount with at most eight fractional
// digits to satoshis without going through floating point.
func btcToSats(amount string) (uint64, error) {
	whole, frac, _ := strings.Cut(amount, ".")
	if whole == "" && frac == "" {
		return 0, ErrBadAmount
	}
	if len(frac) > 8 {
		return 0, fmt.Errorf("%w: more than 8 decimal places", ErrBadAmount)
	}

	var w, f uint64
	var err error
	if whole != "" {
		if w, err = strconv.ParseUint(whole, 10, 64); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadAmount, amount)
		}
	}
	if frac != "" {
		if f, err = strconv.ParseUint(frac+strings.Repeat("0", 8-len(frac)), 10, 64); err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadAmount, amount)
		}
	}
	if w > (^uint64(0)-f)/satsPerBTC {
		return 0, fmt.Errorf("%w: overflow", ErrBadAmount)
	}
	return w*satsPerBTC + f, nil
}

func invoiceNetwork(lower string) string {
	switch {
	case strings.HasPrefix(lower, "lnbcrt"):
		return NetworkRegtest
	case strings.HasPrefix(lower, "lnbc"):
		return NetworkBitcoin
	case strings.HasPrefix(lower, "lntbs"):
		return NetworkSignet
	case strings.HasPrefix(lower, "lntb"):
		return NetworkTestnet
	}
	return ""
}

// addressNetwork guesses the network from the address prefix. Legacy testnet
// and signet addresses share prefixes and are reported as testnet.
func addressNetwork(addr string) string {
	lower := strings.ToLower(addr)
	switch {
	case strings.HasPrefix(lower, "bcrt1"):
		return NetworkRegtest
	case strings.HasPrefix(lower, "bc1"):
		return NetworkBitcoin
	case strings.HasPrefix(lower, "tb1"):
		return NetworkTestnet
	}
	if len(addr) < 26 || len(addr) > 35 {
		return ""
	}
	switch addr[0] {
	case '1', '3':
		return NetworkBitcoin
	case 'm', 'n', '2':
		return NetworkTestnet
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
