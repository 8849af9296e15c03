package types

import "fmt"

// Error is the single error shape surfaced by every entry point. Code is one
// of the Err* constants below; Message carries short human-readable detail.
// Errors are never persisted as records.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches two protocol errors by code, so errors.Is(err, types.Err(code))
// works regardless of detail text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Err returns a bare error for the given code, mainly for errors.Is targets.
func Err(code string) *Error {
	return &Error{Code: code}
}

// Errf builds an error with a formatted detail message.
func Errf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Shape errors.
const (
	ErrAddressMismatch  = "address_mismatch"
	ErrWrongClass       = "wrong_class"
	ErrMissingSigner    = "missing_signer"
	ErrBadSerialization = "bad_serialization"
)

// Existence errors.
const (
	ErrNotFound      = "not_found"
	ErrAlreadyExists = "already_exists"
	ErrNoTreasury    = "no_treasury"
)

// Value errors.
const (
	ErrBadAmount    = "bad_amount"
	ErrMemoTooLong  = "memo_too_long"
	ErrExpiryInPast = "expiry_in_past"
	ErrInsufficient = "insufficient_funds"
)

// State errors.
const (
	ErrNotPending      = "not_pending"
	ErrExpired         = "expired"
	ErrNotExpired      = "not_expired"
	ErrAlreadyTerminal = "already_terminal"
	ErrInvoiceNotPaid  = "invoice_not_paid"
	ErrWrongRecipient  = "wrong_recipient"
	ErrSumMismatch     = "sum_mismatch"
)

// Auth and role errors.
const (
	ErrNotParty          = "not_party"
	ErrNotArbiter        = "not_arbiter"
	ErrProviderInactive  = "provider_inactive"
	ErrUnknownCapability = "unknown_capability"
	ErrPriceBelowMinimum = "price_below_minimum"
)

// Size errors.
const (
	ErrEmptyBatch             = "empty_batch"
	ErrBatchTooLarge          = "batch_too_large"
	ErrCapabilityListTooLarge = "capability_list_too_large"
	ErrNameTooLong            = "name_too_long"
	ErrDescriptionTooLong     = "description_too_long"
	ErrCapabilityTooLong      = "capability_too_long"
)

// Dispute errors.
const (
	ErrWindowExpired   = "dispute_window_expired"
	ErrAlreadyDisputed = "already_disputed"
	ErrNotDisputed     = "not_disputed"
	ErrBadResolution   = "bad_resolution"
)

// Stream errors.
const (
	ErrStreamNotActive = "stream_not_active"
	ErrBadSchedule     = "bad_schedule"
	ErrNotPaused       = "not_paused"
	ErrAlreadyPaused   = "already_paused"
)
