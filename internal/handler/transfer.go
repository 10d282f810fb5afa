package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/auth"
	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/logging"
	"github.com/josh-kwaku/peerpay/internal/service/transfer"
)

type transferEngine interface {
	Transfer(ctx context.Context, req transfer.Request) (*transfer.Result, error)
}

type TransferHandler struct {
	engine   transferEngine
	exponent int32
	timeout  time.Duration
}

func NewTransferHandler(engine transferEngine, exponent int32, timeout time.Duration) *TransferHandler {
	return &TransferHandler{engine: engine, exponent: exponent, timeout: timeout}
}

const maxIdempotencyKeyLen = 128

type createTransferRequest struct {
	Receiver string `json:"receiver" validate:"required,max=128"`
	Amount   string `json:"amount" validate:"required,max=32"`
	Currency string `json:"currency" validate:"omitempty,currency"`
	Note     string `json:"note" validate:"max=140"`
}

func (r createTransferRequest) Validate(exponent int32) (int64, []FieldError) {
	errs := validateStruct(r)
	for _, fe := range errs {
		if fe.Field == "amount" {
			return 0, errs
		}
	}

	amount, err := domain.ParseAmount(r.Amount, exponent)
	if err != nil {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a positive amount with at most the currency's decimal places"})
	}
	return amount, errs
}

type transferDTO struct {
	ID          uuid.UUID `json:"id"`
	SenderID    uuid.UUID `json:"sender_id"`
	ReceiverID  uuid.UUID `json:"receiver_id"`
	Amount      string    `json:"amount"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toTransferDTO(e domain.LedgerEntry, exponent int32) transferDTO {
	return transferDTO{
		ID:          e.ID,
		SenderID:    e.SenderID,
		ReceiverID:  e.ReceiverID,
		Amount:      domain.FormatAmount(e.Amount, exponent),
		AmountMinor: e.Amount,
		Currency:    string(e.Currency),
		Note:        e.Note,
		CreatedAt:   e.CreatedAt,
	}
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(idempotencyKey) > maxIdempotencyKeyLen {
		RespondValidationError(w, []FieldError{{Field: "Idempotency-Key", Message: "must be at most 128 characters"}})
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	amount, fields := req.Validate(h.exponent)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res, err := h.engine.Transfer(ctx, transfer.Request{
		SenderID:       accountID,
		Receiver:       req.Receiver,
		Amount:         amount,
		Currency:       domain.Currency(strings.ToUpper(req.Currency)),
		Note:           strings.TrimSpace(req.Note),
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		if domain.Classify(err) == domain.ClassUnconfirmed {
			log.Error("transfer outcome unconfirmed", "error", err, "idempotency_key", idempotencyKey)
		} else if !errors.Is(err, domain.ErrInsufficientFunds) {
			log.Warn("transfer failed", "error", err)
		}
		RespondDomainError(w, err, h.exponent)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		w.Header().Set("X-Idempotent-Replayed", "true")
		status = http.StatusOK
	}
	RespondSuccess(w, status, toTransferDTO(res.Entry, h.exponent))
}
