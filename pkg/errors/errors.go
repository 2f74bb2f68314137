// Package errors provides structured error handling for agrosync.
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
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Rejected by the signing agent
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Not ready, not connected, or insufficient funds
)

// AgroError is the structured error type for agrosync.
type AgroError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *AgroError) Error() string {
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

func (e *AgroError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for AgroError. Two errors match when their codes match.
func (e *AgroError) Is(target error) bool {
	var t *AgroError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Sentinel errors.
var (
	ErrGeneral = &AgroError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrInvalidInput = &AgroError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		ExitCode: ExitInput,
	}

	ErrNotFound = &AgroError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	// Wallet session errors.
	ErrAgentMissing = &AgroError{
		Code:       "AGENT_MISSING",
		Message:    "no signing agent available",
		Suggestion: "configure an agent key source (mnemonic, keystore, or age key file)",
		ExitCode:   ExitAuth,
	}

	ErrKeyUnavailable = &AgroError{
		Code:       "KEY_UNAVAILABLE",
		Message:    "could not unlock the signing key",
		Suggestion: "check the key file path and passphrase",
		ExitCode:   ExitAuth,
	}

	ErrConnection = &AgroError{
		Code:     "CONNECTION_FAILED",
		Message:  "failed to connect wallet",
		ExitCode: ExitGeneral,
	}

	ErrUserRejected = &AgroError{
		Code:     "USER_REJECTED",
		Message:  "connection rejected by user",
		ExitCode: ExitAuth,
	}

	ErrRequestPending = &AgroError{
		Code:       "REQUEST_PENDING",
		Message:    "connection request already pending",
		Suggestion: "approve or dismiss the pending request in the signing agent",
		ExitCode:   ExitGeneral,
	}

	ErrNoAccounts = &AgroError{
		Code:       "NO_ACCOUNTS",
		Message:    "no accounts found",
		Suggestion: "make sure the signing agent is unlocked",
		ExitCode:   ExitAuth,
	}

	ErrNetworkMismatch = &AgroError{
		Code:     "NETWORK_MISMATCH",
		Message:  "wallet is on the wrong network",
		ExitCode: ExitGeneral,
	}

	ErrNotConnected = &AgroError{
		Code:       "NOT_CONNECTED",
		Message:    "wallet not connected",
		Suggestion: "connect a wallet first",
		ExitCode:   ExitPermission,
	}

	// Binding errors.
	ErrBindingNotReady = &AgroError{
		Code:     "BINDING_NOT_READY",
		Message:  "contracts not ready",
		ExitCode: ExitPermission,
	}

	ErrBindingFailed = &AgroError{
		Code:     "BINDING_FAILED",
		Message:  "contract initialization failed",
		ExitCode: ExitGeneral,
	}

	// Mutation errors.
	ErrInsufficientBalance = &AgroError{
		Code:     "INSUFFICIENT_BALANCE",
		Message:  "insufficient token balance",
		ExitCode: ExitPermission,
	}

	ErrInsufficientAllowance = &AgroError{
		Code:     "INSUFFICIENT_ALLOWANCE",
		Message:  "token approval failed",
		ExitCode: ExitPermission,
	}

	ErrTransactionFailed = &AgroError{
		Code:     "TX_FAILED",
		Message:  "transaction failed",
		ExitCode: ExitGeneral,
	}

	ErrInvalidAmount = &AgroError{
		Code:     "INVALID_AMOUNT",
		Message:  "invalid amount format",
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &AgroError{
		Code:     "INVALID_ADDRESS",
		Message:  "invalid address format",
		ExitCode: ExitInput,
	}

	// Read path errors.
	ErrFetchFailed = &AgroError{
		Code:     "FETCH_FAILED",
		Message:  "content could not be fetched from any gateway",
		ExitCode: ExitGeneral,
	}

	ErrNetworkError = &AgroError{
		Code:     "NETWORK_ERROR",
		Message:  "network communication failed",
		ExitCode: ExitGeneral,
	}

	// Config errors.
	ErrConfigNotFound = &AgroError{
		Code:     "CONFIG_NOT_FOUND",
		Message:  "configuration file not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &AgroError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrNotConfigured = &AgroError{
		Code:     "NOT_CONFIGURED",
		Message:  "required setting is not configured",
		ExitCode: ExitInput,
	}

	ErrClosed = &AgroError{
		Code:     "CLOSED",
		Message:  "component has been shut down",
		ExitCode: ExitGeneral,
	}
)

// New creates a new AgroError with the given code and message.
func New(code, message string) *AgroError {
	return &AgroError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ae *AgroError
	if errors.As(err, &ae) {
		return &AgroError{
			Code:       ae.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ae.Message),
			Details:    ae.Details,
			Suggestion: ae.Suggestion,
			Cause:      err,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AgroError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel carrying cause as its underlying error.
func WithCause(sentinel *AgroError, cause error) error {
	return &AgroError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		Cause:      cause,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithMessage returns a copy of the sentinel with a replaced human-readable message.
func WithMessage(sentinel *AgroError, message string) error {
	return &AgroError{
		Code:       sentinel.Code,
		Message:    message,
		Details:    sentinel.Details,
		Suggestion: sentinel.Suggestion,
		ExitCode:   sentinel.ExitCode,
	}
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ae *AgroError
	if errors.As(err, &ae) {
		return &AgroError{
			Code:       ae.Code,
			Message:    ae.Message,
			Details:    details,
			Suggestion: ae.Suggestion,
			Cause:      ae.Cause,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AgroError{
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

	var ae *AgroError
	if errors.As(err, &ae) {
		return &AgroError{
			Code:       ae.Code,
			Message:    ae.Message,
			Details:    ae.Details,
			Suggestion: suggestion,
			Cause:      ae.Cause,
			ExitCode:   ae.ExitCode,
		}
	}

	return &AgroError{
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

	var ae *AgroError
	if errors.As(err, &ae) {
		return ae.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ae *AgroError
	if errors.As(err, &ae) {
		return ae.Code
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
