package services

import "errors"

// Failure classes surfaced to the route layer. Handlers map these to
// HTTP statuses with errors.Is; anything unmatched becomes a 500.
var (
	// ErrValidation marks a rejected payload; the wrapping message names
	// the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidCredentials is deliberately generic. It never reveals
	// whether the email exists or which check failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken covers bad signature, malformed token, expiry and
	// revocation alike. Callers must not branch on the cause.
	ErrInvalidToken = errors.New("invalid or expired token")

	ErrEmailTaken = errors.New("email is already registered")
	ErrForbidden  = errors.New("forbidden")

	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrNoActiveReset      = errors.New("no active password reset request")
	ErrNoPendingEmailSwap = errors.New("no pending email change request")

	// Cancellation failures carry user-displayable reasons.
	ErrCancellationWindowExpired    = errors.New("Order cancellation window has expired (30 minutes)")
	ErrInvalidStatusForCancellation = errors.New("order can no longer be cancelled in its current status")

	ErrInvalidTransition = errors.New("order status transition not allowed")
)
