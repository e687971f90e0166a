package model

import "errors"

// Error kinds surfaced by the engines. Operations wrap these with
// fmt.Errorf("%w: ...") so callers can match with errors.Is and still see
// the specific detail. Every failure is local and non-retryable by the
// engine itself; the caller decides whether to retry.
var (
	// ErrInvalidInput rejects malformed input (non-positive amount or
	// duration, unknown enum value, empty principal).
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidState rejects an operation against a negotiation that is
	// not in the required status.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthorized rejects a caller lacking the required role.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound signals an unknown id or out-of-range index.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyAccepted signals that the RFQ already has an accepted quote.
	ErrAlreadyAccepted = errors.New("quote already accepted")

	// ErrAlreadyExecuted signals that a credit line already exists for the
	// negotiation. Returned, never silently ignored, so callers can tell
	// "already done" from "failed".
	ErrAlreadyExecuted = errors.New("already executed")

	// ErrInsufficientFunds signals a reservation or withdrawal exceeding
	// the lender's available liquidity.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTooEarly rejects auction finalization before the bidding window ends.
	ErrTooEarly = errors.New("bidding window still open")

	// ErrNoWinner rejects settlement of a finalized auction with zero bids.
	ErrNoWinner = errors.New("no winning bid")
)

// ErrorKind returns a stable label for metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyAccepted):
		return "already_accepted"
	case errors.Is(err, ErrAlreadyExecuted):
		return "already_executed"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrNoWinner):
		return "no_winner"
	default:
		return "internal"
	}
}
