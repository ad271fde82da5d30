package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the callers of the bridge
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindUpstream   Kind = "upstream"
)

// Error is a classified error with a machine readable reason and a display message
type Error struct {
	Kind    Kind
	Reason  string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

var (
	// Validation
	ErrInvalidAmount       = newError(KindValidation, "invalid_amount", "amount must be a positive decimal")
	ErrInvalidWallet       = newError(KindValidation, "invalid_wallet", "invalid wallet public key")
	ErrInvalidTransaction  = newError(KindValidation, "invalid_transaction", "transaction could not be decoded")
	ErrTransactionMismatch = newError(KindValidation, "transaction_mismatch", "transaction does not match the requested conversion")
	ErrMissingField        = newError(KindValidation, "missing_field", "missing required field")
	ErrInvalidState        = newError(KindValidation, "invalid_state", "unknown conversion state")

	// Auth
	ErrInvalidSignature = newError(KindAuth, "invalid_signature", "invalid signature")
	ErrUnauthorized     = newError(KindAuth, "unauthorized", "invalid or expired token")

	// Forbidden
	ErrForbidden   = newError(KindForbidden, "forbidden", "insufficient role")
	ErrWrongWallet = newError(KindForbidden, "wrong_wallet", "session does not belong to this wallet")

	// Not found
	ErrNonceNotFound      = newError(KindNotFound, "nonce_not_found", "nonce not found or expired, request a new nonce")
	ErrPlayerNotFound     = newError(KindNotFound, "player_not_found", "no matching player account found")
	ErrUserNotFound       = newError(KindNotFound, "user_not_found", "user not found")
	ErrConversionNotFound = newError(KindNotFound, "conversion_not_found", "conversion not found")
	ErrNotFound           = newError(KindNotFound, "not_found", "not found")

	// Conflict
	ErrAddressMismatch     = newError(KindConflict, "address_mismatch", "synced wallet does not match in-game wallet")
	ErrInsufficientBalance = newError(KindConflict, "insufficient_balance", "not enough in-game balance")
	ErrBlockhashExpired    = newError(KindConflict, "blockhash_expired", "blockhash expired, rebuild required")
	ErrDuplicateConversion = newError(KindConflict, "duplicate_conversion", "transaction was already submitted")
	ErrLedgerConflict      = newError(KindConflict, "ledger_conflict", "ledger record changed concurrently")
	ErrConversionConflict  = newError(KindConflict, "conversion_conflict", "conversion record changed concurrently")

	// Upstream
	ErrUpstreamAuth   = newError(KindUpstream, "upstream_auth", "ledger provider rejected service credentials")
	ErrUpstream       = newError(KindUpstream, "upstream", "upstream service failure")
	ErrSubmit         = newError(KindUpstream, "submit_error", "transaction submission failed")
	ErrConfirmTimeout = newError(KindUpstream, "confirm_timeout", "transaction was not confirmed before the blockhash expired")
)

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are reported as upstream failures.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUpstream
}

// Classify returns err unchanged when it is already classified,
// otherwise it wraps it as an upstream failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
