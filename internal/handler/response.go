package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

type insufficientFundsDetails struct {
	Available string `json:"available"`
	Requested string `json:"requested"`
}

// RespondDomainError maps engine errors to API errors. Unconfirmed outcomes
// are checked first: they may wrap a store error that would otherwise read
// as retryable.
func RespondDomainError(w http.ResponseWriter, err error, exponent int32) {
	var (
		appErr  *AppError
		details any
	)

	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.Is(err, domain.ErrCompensationFailed):
		appErr = ErrTransferNeedsReconciliation
	case errors.Is(err, domain.ErrLedgerWriteFailed), errors.Is(err, domain.ErrDebitUnconfirmed):
		appErr = ErrTransferUnconfirmed
	case errors.As(err, &insufficient):
		appErr = ErrInsufficientFunds
		details = insufficientFundsDetails{
			Available: domain.FormatAmount(insufficient.Available, exponent),
			Requested: domain.FormatAmount(insufficient.Requested, exponent),
		}
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrStoreUnavailable):
		appErr = ErrServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		appErr = ErrRequestTimeout
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrSelfTransfer):
		appErr = ErrSelfTransfer
	case errors.Is(err, domain.ErrSenderNotFound):
		appErr = ErrSenderNotFound
	case errors.Is(err, domain.ErrReceiverNotFound):
		appErr = ErrRecipientNotFound
	case errors.Is(err, domain.ErrAccountNotFound):
		appErr = ErrAccountNotFound
	case errors.Is(err, domain.ErrCurrencyMismatch):
		appErr = ErrCurrencyMismatch
	case errors.Is(err, domain.ErrLimitExceeded):
		appErr = ErrLimitExceeded
	case errors.Is(err, domain.ErrIdempotencyConflict):
		appErr = ErrIdempotencyConflict
	case errors.Is(err, domain.ErrInvalidLimit):
		appErr = ErrInvalidLimit
	case errors.Is(err, domain.ErrInvalidCursor):
		appErr = ErrInvalidCursor
	case errors.Is(err, domain.ErrInvalidQRPayload):
		appErr = ErrInvalidQRPayload
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, details)
}
