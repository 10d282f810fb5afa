package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrRateLimited      = &AppError{http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount       = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero"}
	ErrSelfTransfer        = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot transfer to the same account"}
	ErrSenderNotFound      = &AppError{http.StatusNotFound, "SENDER_NOT_FOUND", "Sender account not found"}
	ErrRecipientNotFound   = &AppError{http.StatusNotFound, "RECIPIENT_NOT_FOUND", "Recipient not found"}
	ErrAccountNotFound     = &AppError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", "Account not found"}
	ErrInsufficientFunds   = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrCurrencyMismatch    = &AppError{http.StatusUnprocessableEntity, "CURRENCY_MISMATCH", "Currency mismatch"}
	ErrLimitExceeded       = &AppError{http.StatusUnprocessableEntity, "TRANSACTION_LIMIT_EXCEEDED", "Transaction limit exceeded"}
	ErrIdempotencyConflict = &AppError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency key already used with a different request"}
	ErrInvalidLimit        = &AppError{http.StatusBadRequest, "INVALID_LIMIT", "Limit must be greater than zero"}
	ErrInvalidCursor       = &AppError{http.StatusBadRequest, "INVALID_CURSOR", "Cursor is invalid"}
	ErrInvalidQRPayload    = &AppError{http.StatusBadRequest, "INVALID_QR_PAYLOAD", "QR code is not a recognised recipient code"}
	ErrServiceUnavailable  = &AppError{http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable, please retry"}
	ErrRequestTimeout      = &AppError{http.StatusServiceUnavailable, "REQUEST_TIMEOUT", "Request was not processed in time, please retry"}

	// Money may have moved. Clients must not retry these blindly.
	ErrTransferUnconfirmed = &AppError{http.StatusInternalServerError, "TRANSFER_UNCONFIRMED",
		"Transfer outcome could not be confirmed. Do not retry; check your history or contact support"}
	ErrTransferNeedsReconciliation = &AppError{http.StatusInternalServerError, "TRANSFER_NEEDS_RECONCILIATION",
		"Transfer was partially applied and is being reviewed. Do not retry; contact support"}
)
