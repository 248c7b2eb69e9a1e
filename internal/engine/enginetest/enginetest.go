// Package enginetest provides an in-memory engine.Engine and engine.Factory
// with call counting, error injection and blocking hooks for tests.
package enginetest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/mrz1836/fedwallet/internal/engine"
)

// Op names an engine operation for error injection and call counting.
type Op string

// Engine operations.
const (
	OpSync                  Op = "sync"
	OpGetBalance            Op = "get_balance"
	OpNewFederation         Op = "new_federation"
	OpRemoveFederation      Op = "remove_federation"
	OpListFederations       Op = "list_federations"
	OpGetFederationBalances Op = "get_federation_balances"
	OpInviteCode            Op = "invite_code"
)

// Errors returned by the fake for invalid requests.
var (
	ErrDuplicate = errors.New("already a member of this federation")
	ErrUnknown   = errors.New("unknown federation")
)

// Hook runs before an operation's body, outside the engine lock. It may
// block; a non-nil error is returned in place of the operation's result.
type Hook func(ctx context.Context) error

// Engine is a scriptable in-memory engine.
type Engine struct {
	mu          sync.Mutex
	federations map[string]engine.FederationIdentity
	invites     map[string]string
	balances    map[string]uint64
	balance     engine.Balance
	mnemonic    string
	errs        map[Op]error
	hooks       map[Op]Hook
	calls       map[Op]int
	inflight    int
	maxInflight int
	closed      bool
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{
		federations: make(map[string]engine.FederationIdentity),
		invites:     make(map[string]string),
		balances:    make(map[string]uint64),
		mnemonic:    "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		errs:        make(map[Op]error),
		hooks:       make(map[Op]Hook),
		calls:       make(map[Op]int),
	}
}

// FederationID returns the id the fake assigns to an invite code.
func FederationID(inviteCode string) string {
	return "id-" + strings.TrimSpace(inviteCode)
}

// SetError makes op fail with err until cleared with a nil err.
func (e *Engine) SetError(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.errs, op)
		return
	}
	e.errs[op] = err
}

// SetHook installs h for op. A nil h removes it.
func (e *Engine) SetHook(op Op, h Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil {
		delete(e.hooks, op)
		return
	}
	e.hooks[op] = h
}

// Calls returns how many times op was invoked.
func (e *Engine) Calls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// MaxConcurrentSyncs returns the highest number of simultaneous Sync calls seen.
func (e *Engine) MaxConcurrentSyncs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxInflight
}

// AddFederation registers a federation as joined with the given balance.
func (e *Engine) AddFederation(fed engine.FederationIdentity, balance uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.federations[fed.ID] = fed
	e.balances[fed.ID] = balance
}

// DropBalance removes the balance entry for id while keeping the federation.
func (e *Engine) DropBalance(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.balances, id)
}

// SetBalance sets the on-chain and lightning parts of the balance.
func (e *Engine) SetBalance(b engine.Balance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balance = b
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// begin counts the call and runs its hook, then returns the injected error.
func (e *Engine) begin(ctx context.Context, op Op) error {
	e.mu.Lock()
	e.calls[op]++
	hook := e.hooks[op]
	e.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errs[op]
}

// Sync implements engine.Engine.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	e.inflight++
	e.maxInflight = max(e.maxInflight, e.inflight)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.inflight--
		e.mu.Unlock()
	}()

	return e.begin(ctx, OpSync)
}

// GetBalance implements engine.Engine.
func (e *Engine) GetBalance(ctx context.Context) (*engine.Balance, error) {
	if err := e.begin(ctx, OpGetBalance); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b := e.balance
	b.Federation = 0
	for _, v := range e.balances {
		b.Federation += v
	}
	return &b, nil
}

// NewFederation implements engine.Engine.
func (e *Engine) NewFederation(ctx context.Context, inviteCode string) (*engine.FederationIdentity, error) {
	if err := e.begin(ctx, OpNewFederation); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	id := FederationID(inviteCode)
	if _, ok := e.federations[id]; ok {
		return nil, ErrDuplicate
	}
	fed := engine.FederationIdentity{ID: id, Name: "Federation " + id}
	e.federations[id] = fed
	e.invites[id] = strings.TrimSpace(inviteCode)
	e.balances[id] = 0
	return &fed, nil
}

// RemoveFederation implements engine.Engine.
func (e *Engine) RemoveFederation(ctx context.Context, federationID string) error {
	if err := e.begin(ctx, OpRemoveFederation); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.federations[federationID]; !ok {
		return ErrUnknown
	}
	delete(e.federations, federationID)
	delete(e.invites, federationID)
	delete(e.balances, federationID)
	return nil
}

// ListFederations implements engine.Engine. Results are sorted by id.
func (e *Engine) ListFederations(ctx context.Context) ([]engine.FederationIdentity, error) {
	if err := e.begin(ctx, OpListFederations); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]engine.FederationIdentity, 0, len(e.federations))
	for _, f := range e.federations {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetFederationBalances implements engine.Engine. Results are sorted by id.
func (e *Engine) GetFederationBalances(ctx context.Context) ([]engine.FederationBalance, error) {
	if err := e.begin(ctx, OpGetFederationBalances); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]engine.FederationBalance, 0, len(e.balances))
	for id, v := range e.balances {
		out = append(out, engine.FederationBalance{IdentityFederationID: id, Balance: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityFederationID < out[j].IdentityFederationID })
	return out, nil
}

// InviteCode implements engine.InviteSharer.
func (e *Engine) InviteCode(ctx context.Context, federationID string) (string, error) {
	if err := e.begin(ctx, OpInviteCode); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	code, ok := e.invites[federationID]
	if !ok {
		return "", ErrUnknown
	}
	return code, nil
}

// Mnemonic implements engine.Engine.
func (e *Engine) Mnemonic() string {
	return e.mnemonic
}

// Close implements engine.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Factory hands out a fixed Engine.
type Factory struct {
	mu       sync.Mutex
	engine   *Engine
	err      error
	hook     Hook
	calls    int
	settings []*engine.Settings
}

// NewFactory returns a factory that initializes to e.
func NewFactory(e *Engine) *Factory {
	return &Factory{engine: e}
}

// SetError makes Initialize fail with err. A nil err restores success.
func (f *Factory) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// SetHook installs a hook that runs at the start of Initialize.
func (f *Factory) SetHook(h Hook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

// Calls returns how many times Initialize was invoked.
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Settings returns the settings passed to each Initialize call.
func (f *Factory) Settings() []*engine.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*engine.Settings(nil), f.settings...)
}

// Initialize implements engine.Factory.
func (f *Factory) Initialize(ctx context.Context, settings *engine.Settings) (engine.Engine, error) {
	f.mu.Lock()
	f.calls++
	f.settings = append(f.settings, settings)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.engine, nil
}

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.InviteSharer = (*Engine)(nil)
	_ engine.Factory      = (*Factory)(nil)
)
