// Package common defines shared constants, helpers and sentinel errors used
// across the server, the client and the CLI. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Store-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")

	// Session lifecycle errors.
	ErrInternal        = errors.New("internal error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidState    = errors.New("invalid state")
	ErrAccountDisabled = errors.New("account disabled")
	ErrForbidden       = errors.New("permission denied")

	// Verification flow errors.
	ErrCodeExpired   = errors.New("verification code expired")
	ErrCodeMismatch  = errors.New("verification code mismatch")
	ErrNoPendingCode = errors.New("no pending verification code")
	ErrRateLimited   = errors.New("rate limited")

	// Token flow errors.
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("malformed token")

	// Input errors.
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kinds lists every sentinel a caller may receive from the session layer.
// Transport adapters use it to translate remote error messages back.
var Kinds = []error{
	ErrNotFound,
	ErrConflict,
	ErrInternal,
	ErrUnauthorized,
	ErrInvalidState,
	ErrAccountDisabled,
	ErrForbidden,
	ErrCodeExpired,
	ErrCodeMismatch,
	ErrNoPendingCode,
	ErrRateLimited,
	ErrTokenExpired,
	ErrTokenInvalid,
	ErrTokenMalformed,
	ErrInvalidIdentity,
	ErrInvalidArgument,
}

// KindFromMessage returns the sentinel whose text equals msg, or nil.
func KindFromMessage(msg string) error {
	for _, k := range Kinds {
		if k.Error() == msg {
			return k
		}
	}
	return nil
}
