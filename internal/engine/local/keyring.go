package local

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name passphrases are stored under.
const KeyringService = "fedwallet"

// Keyring stores secrets outside the state file.
type Keyring interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}

// ErrSecretNotFound is returned by Keyring.Get when nothing is stored.
var ErrSecretNotFound = keyring.ErrNotFound

// OSKeyring implements Keyring using the OS keychain.
type OSKeyring struct{}

// NewOSKeyring creates a new OS keyring wrapper.
func NewOSKeyring() *OSKeyring {
	return &OSKeyring{}
}

// Get retrieves a secret from the OS keyring.
func (k *OSKeyring) Get(service, user string) (string, error) {
	return keyring.Get(service, user)
}

// Set stores a secret in the OS keyring.
func (k *OSKeyring) Set(service, user, password string) error {
	return keyring.Set(service, user, password)
}

// Delete removes a secret from the OS keyring.
func (k *OSKeyring) Delete(service, user string) error {
	return keyring.Delete(service, user)
}

// resolvePassphrase returns explicit when set. Otherwise it reads the
// passphrase for account from kr, generating and storing a random one when
// none exists yet and create is true.
func resolvePassphrase(kr Keyring, account, explicit string, create bool) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if kr == nil {
		return "", ErrNoPassphrase
	}

	secret, err := kr.Get(KeyringService, account)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return "", fmt.Errorf("reading keyring: %w", err)
	}
	if !create {
		return "", ErrNoPassphrase
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating passphrase: %w", err)
	}
	secret = hex.EncodeToString(buf)
	if err := kr.Set(KeyringService, account, secret); err != nil {
		return "", fmt.Errorf("storing passphrase in keyring: %w", err)
	}
	return secret, nil
}
