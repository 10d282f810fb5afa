package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidAmount           = errors.New("amount must be greater than zero")
	ErrSelfTransfer            = errors.New("cannot transfer to same account")
	ErrSenderNotFound          = errors.New("sender not found")
	ErrReceiverNotFound        = errors.New("receiver not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrInsufficientFunds       = errors.New("insufficient funds")
	ErrCurrencyMismatch        = errors.New("currency mismatch")
	ErrLimitExceeded           = errors.New("transfer limit exceeded")
	ErrStoreUnavailable        = errors.New("store unavailable")
	ErrLedgerWriteFailed       = errors.New("balances moved but ledger entry was not recorded")
	ErrCompensationFailed      = errors.New("transfer partially applied and could not be reversed")
	ErrDebitUnconfirmed        = errors.New("debit was sent but its outcome is unknown")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrIdempotencyConflict     = errors.New("idempotency key already used with a different transfer")
	ErrInvalidLimit            = errors.New("limit must be greater than zero")
	ErrInvalidCursor           = errors.New("invalid cursor")
	ErrInvalidQRPayload        = errors.New("invalid qr payload")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrHandleTaken             = errors.New("handle already taken")
)

// InsufficientFundsError carries the balance observed when the check ran.
// That balance may already be stale by the time the caller reads it.
type InsufficientFundsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

type ErrorClass string

const (
	// ClassRejected: nothing happened, the input must change.
	ClassRejected ErrorClass = "rejected"
	// ClassRetryable: nothing happened, the same request may be retried.
	ClassRetryable ErrorClass = "retryable"
	// ClassUnconfirmed: money may have moved. Retrying can double-spend.
	ClassUnconfirmed ErrorClass = "unconfirmed"
	ClassUnknown     ErrorClass = "unknown"
)

func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLedgerWriteFailed),
		errors.Is(err, ErrCompensationFailed),
		errors.Is(err, ErrDebitUnconfirmed):
		return ClassUnconfirmed
	case errors.Is(err, ErrStoreUnavailable):
		return ClassRetryable
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrSenderNotFound),
		errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrLimitExceeded),
		errors.Is(err, ErrIdempotencyConflict),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInvalidCursor),
		errors.Is(err, ErrInvalidQRPayload),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrHandleTaken):
		return ClassRejected
	default:
		return ClassUnknown
	}
}
