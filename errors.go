package lifecycle

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced to API clients alongside rich errors.
const (
	TextCodeInvalidTransition = "INVALID_LIFECYCLE_TRANSITION"
	TextCodeTerminalStatus    = "TERMINAL_LIFECYCLE_STATUS"
	TextCodeMissingReason     = "MISSING_TRANSITION_REASON"
	TextCodeConflict          = "LIFECYCLE_CONFLICT"
	TextCodeDuplicateUsername = "DUPLICATE_CREDENTIAL_USERNAME"
	TextCodeCredentialExpired = "CREDENTIAL_EXPIRED"
	TextCodeInvalidCreds      = "INVALID_CREDENTIALS"
	TextCodeSessionExpired    = "SESSION_EXPIRED"
	TextCodeRecordNotFound    = "LIFECYCLE_RECORD_NOT_FOUND"
	TextCodeEmptyPassword     = "EMPTY_PASSWORD"
)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid lifecycle transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTerminalStatus is returned when attempting to move away from a terminal status.
var ErrTerminalStatus = goerrors.New("lifecycle status is terminal", goerrors.CategoryConflict).
	WithTextCode(TextCodeTerminalStatus).
	WithCode(goerrors.CodeConflict)

// ErrMissingReason is returned when an action that records a reason got a
// blank one. Correctable by resubmission.
var ErrMissingReason = goerrors.New("transition requires a reason", goerrors.CategoryValidation).
	WithTextCode(TextCodeMissingReason).
	WithCode(goerrors.CodeBadRequest)

// ErrConflict is returned when a compare-and-swap lost a concurrent race.
// Callers must re-read current state before retrying; the losing decision
// may no longer be valid.
var ErrConflict = goerrors.New("lifecycle state changed concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrDuplicateUsername is returned when issuing a credential whose username
// is still held by an active (non-expired) credential.
var ErrDuplicateUsername = goerrors.New("an active credential already uses this username", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateUsername).
	WithCode(goerrors.CodeConflict)

// ErrCredentialExpired is returned when a credential is presented after its
// expiry instant, regardless of password correctness.
var ErrCredentialExpired = goerrors.New("credential has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeCredentialExpired)

// ErrInvalidCredentials is returned for unknown usernames or bad passwords.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrSessionExpired is terminal for the session; the principal must fully
// re-authenticate. Identical to an explicit logout from the caller's view.
var ErrSessionExpired = goerrors.New("session expired due to inactivity", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired)

// ErrRecordNotFound wraps repository misses with a lifecycle text code.
var ErrRecordNotFound = goerrors.New("lifecycle record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsConflictError checks whether err represents a lost concurrent race.
func IsConflictError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == TextCodeConflict
	}
	return false
}

// IsSessionExpiredError checks for inactivity-expired sessions, including
// legacy string-matched variants coming from middleware layers.
func IsSessionExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeSessionExpired {
		return true
	}
	return strings.Contains(err.Error(), "session expired")
}
