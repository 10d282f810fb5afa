package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/logging"
)

type recipientResolver interface {
	ResolveRecipient(ctx context.Context, identifier string) (*domain.Account, error)
	ResolveQRPayload(ctx context.Context, raw []byte) (*domain.Account, error)
}

type RecipientHandler struct {
	resolver recipientResolver
}

func NewRecipientHandler(resolver recipientResolver) *RecipientHandler {
	return &RecipientHandler{resolver: resolver}
}

const maxQRPayloadBytes = 4 << 10

// recipientDTO is what a payer may see about someone else. No balance.
type recipientDTO struct {
	ID          uuid.UUID `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
}

func toRecipientDTO(a *domain.Account) recipientDTO {
	return recipientDTO{ID: a.ID, Handle: a.Handle, DisplayName: a.DisplayName}
}

func (h *RecipientHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	a, err := h.resolver.ResolveRecipient(r.Context(), r.PathValue("identifier"))
	if err != nil {
		logging.FromContext(r.Context()).Info("recipient lookup failed", "error", err)
		RespondDomainError(w, err, domain.DefaultMinorUnitExponent)
		return
	}
	RespondSuccess(w, http.StatusOK, toRecipientDTO(a))
}

func (h *RecipientHandler) ResolveQR(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxQRPayloadBytes+1))
	if err != nil || len(raw) == 0 || len(raw) > maxQRPayloadBytes {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	a, err := h.resolver.ResolveQRPayload(r.Context(), raw)
	if err != nil {
		logging.FromContext(r.Context()).Info("qr resolution failed", "error", err)
		RespondDomainError(w, err, domain.DefaultMinorUnitExponent)
		return
	}
	RespondSuccess(w, http.StatusOK, toRecipientDTO(a))
}
