// Package errors provides structured error handling for fedwallet.
// It defines sentinel errors, exit codes, and helpers for adding
// context, details, and suggestions to errors.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess  = 0 // Successful execution
	ExitGeneral  = 1 // General/unknown error
	ExitInput    = 2 // Invalid input
	ExitAuth     = 3 // Not authorized to use the engine
	ExitNotFound = 4 // Resource not found
	ExitEngine   = 5 // Engine operation failed
	ExitBusy     = 6 // Operation already in progress
)

// WalletError is the structured error type for fedwallet.
type WalletError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *WalletError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *WalletError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for WalletError.
func (e *WalletError) Is(target error) bool {
	var t *WalletError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &WalletError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &WalletError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// ErrValidation is returned when user input fails validation before
	// reaching the engine.
	ErrValidation = &WalletError{
		Code:     "VALIDATION_FAILED",
		Message:  "validation failed",
		ExitCode: ExitInput,
	}

	// Engine errors.
	ErrEngine = &WalletError{
		Code:     "ENGINE_ERROR",
		Message:  "engine operation failed",
		ExitCode: ExitEngine,
	}

	ErrEngineNotReady = &WalletError{
		Code:       "ENGINE_NOT_READY",
		Message:    "wallet engine is not initialized",
		Suggestion: "Check authorization with 'fedwallet status'",
		ExitCode:   ExitAuth,
	}

	ErrEngineInitializing = &WalletError{
		Code:     "ENGINE_INITIALIZING",
		Message:  "wallet engine initialization already in progress",
		ExitCode: ExitBusy,
	}

	// Authorization errors.
	ErrNotApproved = &WalletError{
		Code:       "NOT_APPROVED",
		Message:    "this client is not approved to use the wallet engine",
		Suggestion: "Set an approved id with 'fedwallet auth set <id>'",
		ExitCode:   ExitAuth,
	}

	ErrAuthLookup = &WalletError{
		Code:     "AUTH_LOOKUP_FAILED",
		Message:  "authorization lookup failed",
		ExitCode: ExitGeneral,
	}

	// Workflow errors.
	ErrBusy = &WalletError{
		Code:     "BUSY",
		Message:  "operation already in progress",
		ExitCode: ExitBusy,
	}

	ErrNotArmed = &WalletError{
		Code:     "NOT_ARMED",
		Message:  "removal has not been requested",
		ExitCode: ExitInput,
	}

	ErrFederationNotFound = &WalletError{
		Code:     "FEDERATION_NOT_FOUND",
		Message:  "federation not found",
		ExitCode: ExitNotFound,
	}

	// ErrNotInitialized signals programmer misuse: an action was invoked
	// without a constructed session container.
	ErrNotInitialized = &WalletError{
		Code:     "NOT_INITIALIZED",
		Message:  "session container is not initialized",
		ExitCode: ExitGeneral,
	}

	ErrAlreadyStarted = &WalletError{
		Code:     "ALREADY_STARTED",
		Message:  "session lifecycle already started",
		ExitCode: ExitGeneral,
	}

	// Config-specific errors.
	ErrConfigInvalid = &WalletError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &WalletError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}

	// Storage errors.
	ErrPreferences = &WalletError{
		Code:     "PREFERENCES_ERROR",
		Message:  "preference storage failed",
		ExitCode: ExitGeneral,
	}

	ErrDecryptionFailed = &WalletError{
		Code:       "DECRYPTION_FAILED",
		Message:    "decryption failed - wrong passphrase or corrupted file",
		Suggestion: "Check the engine passphrase (FEDWALLET_ENGINE_PASSPHRASE, --ask-passphrase or the OS keyring)",
		ExitCode:   ExitAuth,
	}
)

// New creates a new WalletError with the given code and message.
func New(code, message string) *WalletError {
	return &WalletError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Because returns a copy of sentinel carrying cause. The result still matches
// the sentinel with errors.Is and its message ends with the cause's message.
func Because(sentinel *WalletError, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &WalletError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var se *WalletError
	if errors.As(err, &se) {
		return &WalletError{
			Code:       se.Code,
			Message:    fmt.Sprintf("%s: %s", msg, se.Message),
			Details:    se.Details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var se *WalletError
	if errors.As(err, &se) {
		return &WalletError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    details,
			Suggestion: se.Suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &WalletError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var se *WalletError
	if errors.As(err, &se) {
		return &WalletError{
			Code:       se.Code,
			Message:    se.Message,
			Details:    se.Details,
			Suggestion: suggestion,
			Cause:      se.Cause,
			ExitCode:   se.ExitCode,
		}
	}

	return &WalletError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var se *WalletError
	if errors.As(err, &se) {
		return se.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var se *WalletError
	if errors.As(err, &se) {
		return se.Code
	}
	return "GENERAL_ERROR"
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
