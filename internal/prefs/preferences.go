package prefs

import (
	"context"
	"strings"
)

const trueValue = "true"

// Preferences gives typed access to the known keys of a Store.
type Preferences struct {
	store Store
}

// New wraps store.
func New(store Store) *Preferences {
	return &Preferences{store: store}
}

// Store returns the underlying store.
func (p *Preferences) Store() Store {
	return p.store
}

// AuthorizationID returns the stored id, or "" when none is stored.
func (p *Preferences) AuthorizationID(ctx context.Context) (string, error) {
	v, _, err := p.store.Get(ctx, KeyAuthorizationID)
	return strings.TrimSpace(v), err
}

// SetAuthorizationID stores id, or removes the key when id is empty.
func (p *Preferences) SetAuthorizationID(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return p.store.Remove(ctx, KeyAuthorizationID)
	}
	return p.store.Set(ctx, KeyAuthorizationID, id)
}

// HasBackedUp reports whether the seed backup was completed.
func (p *Preferences) HasBackedUp(ctx context.Context) (bool, error) {
	return p.flag(ctx, KeyHasBackedUp)
}

// SetHasBackedUp records that the seed backup was completed.
func (p *Preferences) SetHasBackedUp(ctx context.Context) error {
	return p.store.Set(ctx, KeyHasBackedUp, trueValue)
}

// DismissedRestorePrompt reports whether the restore prompt was dismissed.
func (p *Preferences) DismissedRestorePrompt(ctx context.Context) (bool, error) {
	return p.flag(ctx, KeyDismissedRestorePrompt)
}

// SetDismissedRestorePrompt records that the restore prompt was dismissed.
func (p *Preferences) SetDismissedRestorePrompt(ctx context.Context) error {
	return p.store.Set(ctx, KeyDismissedRestorePrompt, trueValue)
}

// Only the literal "true" counts as set.
func (p *Preferences) flag(ctx context.Context, key string) (bool, error) {
	v, _, err := p.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return v == trueValue, nil
}
