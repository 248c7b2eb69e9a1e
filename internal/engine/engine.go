// Package engine defines the capability surface of the wallet engine: the
// component that owns keys, talks to federations and reports balances.
// The session layer only ever sees these interfaces.
package engine

import (
	"context"
)

// Settings configure engine bring-up. Empty fields select engine defaults.
type Settings struct {
	Network    string
	Esplora    string
	RGS        string
	LSP        string
	Proxy      string
	StorageDir string
	StateFile  string
	Passphrase string
}

// Balance is the wallet balance in satoshis.
type Balance struct {
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
	Lightning   uint64 `json:"lightning"`
	Federation  uint64 `json:"federation"`
}

// Total returns the sum of every component of the balance.
func (b *Balance) Total() uint64 {
	if b == nil {
		return 0
	}
	return b.Confirmed + b.Unconfirmed + b.Lightning + b.Federation
}

// FederationIdentity describes a joined federation.
type FederationIdentity struct {
	ID              string `json:"federation_id"`
	Name            string `json:"federation_name,omitempty"`
	WelcomeMessage  string `json:"welcome_message,omitempty"`
	ExpiryTimestamp *int64 `json:"federation_expiry_timestamp,omitempty"`
}

// FederationBalance is the balance held in one federation.
type FederationBalance struct {
	IdentityFederationID string `json:"identity_federation_id"`
	Balance              uint64 `json:"balance"`
}

// Engine is a running wallet engine.
type Engine interface {
	Sync(ctx context.Context) error
	GetBalance(ctx context.Context) (*Balance, error)
	NewFederation(ctx context.Context, inviteCode string) (*FederationIdentity, error)
	RemoveFederation(ctx context.Context, federationID string) error
	ListFederations(ctx context.Context) ([]FederationIdentity, error)
	GetFederationBalances(ctx context.Context) ([]FederationBalance, error)
	Mnemonic() string
	Close() error
}

// InviteSharer is implemented by engines that remember the invite code a
// federation was joined with.
type InviteSharer interface {
	InviteCode(ctx context.Context, federationID string) (string, error)
}

// Factory brings up an engine.
type Factory interface {
	Initialize(ctx context.Context, settings *Settings) (Engine, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, settings *Settings) (Engine, error)

// Initialize implements Factory.
func (f FactoryFunc) Initialize(ctx context.Context, settings *Settings) (Engine, error) {
	return f(ctx, settings)
}
