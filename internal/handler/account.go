package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/auth"
	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/logging"
)

type accountReader interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	HistoryPage(ctx context.Context, accountID uuid.UUID, limit int, cursor string) ([]domain.HistoryItem, string, error)
	Currency() domain.Currency
}

type AccountHandler struct {
	accounts accountReader
	exponent int32
}

func NewAccountHandler(accounts accountReader, exponent int32) *AccountHandler {
	return &AccountHandler{accounts: accounts, exponent: exponent}
}

const defaultHistoryLimit = 20

type accountDTO struct {
	ID           uuid.UUID `json:"id"`
	Handle       string    `json:"handle"`
	DisplayName  string    `json:"display_name"`
	Balance      string    `json:"balance"`
	BalanceMinor int64     `json:"balance_minor"`
	Currency     string    `json:"currency"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type historyItemDTO struct {
	ID             uuid.UUID `json:"id"`
	Direction      string    `json:"direction"`
	CounterpartyID uuid.UUID `json:"counterparty_id"`
	Amount         string    `json:"amount"`
	AmountMinor    int64     `json:"amount_minor"`
	Currency       string    `json:"currency"`
	Note           string    `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type historyPageDTO struct {
	Items      []historyItemDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	a, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account lookup failed", "error", err)
		RespondDomainError(w, err, h.exponent)
		return
	}

	RespondSuccess(w, http.StatusOK, accountDTO{
		ID:           a.ID,
		Handle:       a.Handle,
		DisplayName:  a.DisplayName,
		Balance:      domain.FormatAmount(a.Balance, h.exponent),
		BalanceMinor: a.Balance,
		Currency:     string(h.accounts.Currency()),
		UpdatedAt:    a.UpdatedAt,
	})
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID, ok := auth.AccountIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be an integer"}})
			return
		}
		limit = n
	}

	items, next, err := h.accounts.HistoryPage(r.Context(), accountID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		logging.FromContext(r.Context()).Warn("history lookup failed", "error", err)
		RespondDomainError(w, err, h.exponent)
		return
	}

	page := historyPageDTO{Items: make([]historyItemDTO, len(items)), NextCursor: next}
	for i, it := range items {
		page.Items[i] = historyItemDTO{
			ID:             it.Entry.ID,
			Direction:      string(it.Perspective),
			CounterpartyID: it.CounterpartyID,
			Amount:         domain.FormatAmount(it.Entry.Amount, h.exponent),
			AmountMinor:    it.Entry.Amount,
			Currency:       string(it.Entry.Currency),
			Note:           it.Entry.Note,
			CreatedAt:      it.Entry.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, page)
}
