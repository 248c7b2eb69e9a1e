// Package prefs persists the small set of user preferences that survive
// restarts: the pending authorization id and the backup reminder flags.
package prefs

import (
	"context"
	"fmt"

	"github.com/mrz1836/fedwallet/internal/config"
	fwerr "github.com/mrz1836/fedwallet/pkg/errors"
)

// Preference keys.
const (
	KeyAuthorizationID        = "waitlist_id"
	KeyHasBackedUp            = "has_backed_up"
	KeyDismissedRestorePrompt = "dismissed_restore_prompt"
)

// Store is a string key/value store. Get reports found=false for a missing
// key. Remove of a missing key is not an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ClosableStore is a Store holding resources that must be released.
type ClosableStore interface {
	Store
	Close() error
}

// Open returns the store selected by cfg.Preferences.Backend.
func Open(ctx context.Context, cfg *config.Config) (ClosableStore, error) {
	path := cfg.PrefsPath()
	switch cfg.Preferences.Backend {
	case config.PrefsBackendSQLite:
		return OpenSQLite(ctx, path)
	case config.PrefsBackendFile, "":
		return NewFileStore(path), nil
	default:
		return nil, fwerr.WithDetails(fwerr.ErrConfigInvalid, map[string]string{
			"preferences.backend": cfg.Preferences.Backend,
		})
	}
}

func storeError(op, key string, err error) error {
	return fwerr.Because(fwerr.ErrPreferences, fmt.Errorf("%s %s: %w", op, key, err))
}
