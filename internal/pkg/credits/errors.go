package credits

import "errors"

// Sentinel errors surfaced by the credit ledger service. Caller-misuse
// errors are never retried; ErrInsufficientCredits is a business rule
// violation surfaced to the caller unchanged.
var (
	ErrInvalidParams       = errors.New("credits: invalid parameters")
	ErrInvalidAmount       = errors.New("credits: amount must be positive")
	ErrInvalidExpireDays   = errors.New("credits: expire days must not be negative")
	ErrInsufficientCredits = errors.New("credits: insufficient credits")

	// ErrDuplicatePeriodGrant is returned when the unique index on
	// (user, type, period) rejects a grant lot: another transaction already
	// granted this period. Callers treat it as an idempotent skip.
	ErrDuplicatePeriodGrant = errors.New("credits: periodic grant already recorded")
)
