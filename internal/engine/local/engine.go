// Package local is a self-contained wallet engine that keeps its state in an
// age-encrypted file. It holds a BIP39 seed, a node identity and the set of
// joined federations; it does not talk to any network.
package local

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"

	"github.com/mrz1836/fedwallet/internal/engine"
	"github.com/mrz1836/fedwallet/internal/fileutil"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

const (
	// DefaultStateFile is the state file name used when settings leave it empty.
	DefaultStateFile = "engine.age"

	// DefaultNetwork is used when settings leave the network empty.
	DefaultNetwork = "signet"

	// InvitePrefix starts every federation invite code.
	InvitePrefix = "fed1"

	stateVersion = 1
)

// Errors returned by the local engine.
var (
	ErrNoPassphrase      = errors.New("no passphrase available for engine state")
	ErrInvalidInvite     = errors.New("invite code must start with " + InvitePrefix)
	ErrAlreadyJoined     = errors.New("already a member of this federation")
	ErrUnknownFederation = errors.New("unknown federation")
	ErrClosed            = errors.New("engine is closed")
	ErrCorruptState      = errors.New("engine state is corrupted")
)

type federationRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	WelcomeMessage  string    `json:"welcome_message,omitempty"`
	ExpiryTimestamp *int64    `json:"expiry_timestamp,omitempty"`
	InviteCode      string    `json:"invite_code"`
	Balance         uint64    `json:"balance"`
	JoinedAt        time.Time `json:"joined_at"`
}

type state struct {
	Version     int                `json:"version"`
	Network     string             `json:"network"`
	Mnemonic    string             `json:"mnemonic"`
	NodeID      string             `json:"node_id"`
	Confirmed   uint64             `json:"confirmed"`
	Unconfirmed uint64             `json:"unconfirmed"`
	Lightning   uint64             `json:"lightning"`
	Federations []federationRecord `json:"federations"`
	LastSync    time.Time          `json:"last_sync,omitempty"`
}

// Factory creates local engines.
type Factory struct {
	// Keyring supplies the passphrase when settings carry none.
	Keyring Keyring
	// WorkFactor is the scrypt log2 work factor for new seals; 0 keeps age's default.
	WorkFactor int
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewFactory returns a factory using the OS keyring.
func NewFactory() *Factory {
	return &Factory{Keyring: NewOSKeyring()}
}

// Initialize opens the state file named by settings, creating a fresh
// wallet when it does not exist yet.
func (f *Factory) Initialize(ctx context.Context, settings *engine.Settings) (engine.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if settings == nil {
		settings = &engine.Settings{}
	}
	if settings.StorageDir == "" {
		return nil, errors.New("engine storage directory is not set")
	}

	network := settings.Network
	if network == "" {
		network = DefaultNetwork
	}
	name := settings.StateFile
	if name == "" {
		name = DefaultStateFile
	}
	path := filepath.Join(settings.StorageDir, name)

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("checking engine state: %w", statErr)
	}

	passphrase, err := resolvePassphrase(f.Keyring, network, settings.Passphrase, !exists)
	if err != nil {
		return nil, err
	}

	now := f.Now
	if now == nil {
		now = time.Now
	}
	e := &Engine{
		path:       path,
		passphrase: passphrase,
		workFactor: f.WorkFactor,
		now:        now,
	}

	if exists {
		if err := e.load(); err != nil {
			return nil, err
		}
	} else {
		st, err := newState(network)
		if err != nil {
			return nil, err
		}
		e.state = st
		if err := e.save(); err != nil {
			return nil, err
		}
	}

	if err := e.deriveSeed(); err != nil {
		return nil, err
	}
	return e, nil
}

// Engine is a running local engine. It is safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	path       string
	passphrase string
	workFactor int
	now        func() time.Time
	state      *state
	seed       []byte
	locked     bool
	closed     bool
}

// NodeID returns the hex-encoded public key identifying this wallet.
func (e *Engine) NodeID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.NodeID
}

// Network returns the network the wallet was created for.
func (e *Engine) Network() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Network
}

// LastSync returns the time of the last successful Sync.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.LastSync
}

// Sync reloads the state file so that changes made by other processes
// sharing it become visible, then records the sync time.
func (e *Engine) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := e.load(); err != nil {
		return err
	}
	e.state.LastSync = e.now().UTC()
	return e.save()
}

// GetBalance implements engine.Engine.
func (e *Engine) GetBalance(ctx context.Context) (*engine.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	b := &engine.Balance{
		Confirmed:   e.state.Confirmed,
		Unconfirmed: e.state.Unconfirmed,
		Lightning:   e.state.Lightning,
	}
	for _, f := range e.state.Federations {
		b.Federation += f.Balance
	}
	return b, nil
}

// NewFederation joins the federation described by inviteCode.
func (e *Engine) NewFederation(ctx context.Context, inviteCode string) (*engine.FederationIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	code := strings.TrimSpace(inviteCode)
	if !strings.HasPrefix(strings.ToLower(code), InvitePrefix) {
		return nil, ErrInvalidInvite
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	id := FederationID(code)
	for _, f := range e.state.Federations {
		if f.ID == id {
			return nil, ErrAlreadyJoined
		}
	}

	rec := federationRecord{
		ID:         id,
		Name:       "Federation " + id[:8],
		InviteCode: code,
		JoinedAt:   e.now().UTC(),
	}
	e.state.Federations = append(e.state.Federations, rec)
	if err := e.save(); err != nil {
		e.state.Federations = e.state.Federations[:len(e.state.Federations)-1]
		return nil, err
	}
	ident := rec.identity()
	return &ident, nil
}

// RemoveFederation leaves the federation with the given id.
func (e *Engine) RemoveFederation(ctx context.Context, federationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	idx := -1
	for i, f := range e.state.Federations {
		if f.ID == federationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownFederation
	}

	prev := e.state.Federations
	next := make([]federationRecord, 0, len(prev)-1)
	next = append(next, prev[:idx]...)
	next = append(next, prev[idx+1:]...)
	e.state.Federations = next
	if err := e.save(); err != nil {
		e.state.Federations = prev
		return err
	}
	return nil
}

// ListFederations returns joined federations sorted by id.
func (e *Engine) ListFederations(ctx context.Context) ([]engine.FederationIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	out := make([]engine.FederationIdentity, 0, len(e.state.Federations))
	for _, f := range e.state.Federations {
		out = append(out, f.identity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetFederationBalances returns per-federation balances sorted by id.
func (e *Engine) GetFederationBalances(ctx context.Context) ([]engine.FederationBalance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	out := make([]engine.FederationBalance, 0, len(e.state.Federations))
	for _, f := range e.state.Federations {
		out = append(out, engine.FederationBalance{IdentityFederationID: f.ID, Balance: f.Balance})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityFederationID < out[j].IdentityFederationID })
	return out, nil
}

// InviteCode returns the code the federation was joined with.
func (e *Engine) InviteCode(ctx context.Context, federationID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.state.Federations {
		if f.ID == federationID {
			return f.InviteCode, nil
		}
	}
	return "", ErrUnknownFederation
}

// Mnemonic returns the wallet's BIP39 recovery phrase.
func (e *Engine) Mnemonic() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return ""
	}
	return e.state.Mnemonic
}

// Close wipes the in-memory seed. Further calls fail with ErrClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	wipe(e.seed)
	if e.locked {
		unlockMemory(e.seed)
	}
	e.seed = nil
	return nil
}

// FederationID derives the federation id for an invite code: the hex
// BLAKE2b-256 digest of the trimmed code.
func FederationID(inviteCode string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(inviteCode)))
	return hex.EncodeToString(sum[:])
}

func (r federationRecord) identity() engine.FederationIdentity {
	return engine.FederationIdentity{
		ID:              r.ID,
		Name:            r.Name,
		WelcomeMessage:  r.WelcomeMessage,
		ExpiryTimestamp: r.ExpiryTimestamp,
	}
}

func newState(network string) (*state, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, fmt.Errorf("generating entropy: %w", err)
	}
	defer wipe(entropy)

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("generating mnemonic: %w", err)
	}

	seed := bip39.NewSeed(mnemonic, "")
	defer wipe(seed)
	nodeID, err := deriveNodeID(seed)
	if err != nil {
		return nil, err
	}

	return &state{
		Version:  stateVersion,
		Network:  network,
		Mnemonic: mnemonic,
		NodeID:   nodeID,
	}, nil
}

// deriveNodeID returns the hex compressed public key at m/0'.
func deriveNodeID(seed []byte) (string, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return "", fmt.Errorf("deriving master key: %w", err)
	}
	child, err := master.NewChildKey(bip32.FirstHardenedChild)
	if err != nil {
		return "", fmt.Errorf("deriving node key: %w", err)
	}
	return hex.EncodeToString(child.PublicKey().Key), nil
}

// deriveSeed recomputes the seed from the mnemonic, keeps it locked in
// memory and checks it still matches the stored node id.
func (e *Engine) deriveSeed() error {
	if !bip39.IsMnemonicValid(e.state.Mnemonic) {
		return ErrCorruptState
	}
	seed := bip39.NewSeed(e.state.Mnemonic, "")
	nodeID, err := deriveNodeID(seed)
	if err != nil {
		wipe(seed)
		return err
	}
	if nodeID != e.state.NodeID {
		wipe(seed)
		return fmt.Errorf("%w: node id mismatch", ErrCorruptState)
	}
	e.seed = seed
	e.locked = lockMemory(seed)
	return nil
}

func (e *Engine) load() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading engine state: %w", err)
	}
	plaintext, err := unseal(data, e.passphrase)
	if err != nil {
		return fwerr.Because(fwerr.ErrDecryptionFailed, fmt.Errorf("decrypting engine state: %w", err))
	}
	defer wipe(plaintext)

	var st state
	if err := json.Unmarshal(plaintext, &st); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptState, err)
	}
	if st.Version != stateVersion || st.Mnemonic == "" {
		return ErrCorruptState
	}
	e.state = &st
	return nil
}

func (e *Engine) save() error {
	plaintext, err := json.Marshal(e.state)
	if err != nil {
		return fmt.Errorf("encoding engine state: %w", err)
	}
	defer wipe(plaintext)

	sealed, err := seal(plaintext, e.passphrase, e.workFactor)
	if err != nil {
		return err
	}
	if err := fileutil.WriteAtomic(e.path, sealed, 0o600); err != nil {
		return fmt.Errorf("writing engine state: %w", err)
	}
	return nil
}

var (
	_ engine.Engine       = (*Engine)(nil)
	_ engine.InviteSharer = (*Engine)(nil)
	_ engine.Factory      = (*Factory)(nil)
)
