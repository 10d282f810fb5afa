package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

// ResolveRecipient looks up an account by id or handle so the caller can
// confirm who they are paying before sending.
func (e *Engine) ResolveRecipient(ctx context.Context, identifier string) (*domain.Account, error) {
	a, err := e.store.ResolveIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ResolveRecipient: %w", domain.ErrReceiverNotFound)
		}
		return nil, fmt.Errorf("ResolveRecipient: %w", err)
	}
	return a, nil
}

// ResolveQRPayload resolves a scanned recipient code. The account id wins;
// the handle is only consulted when the code carries no id.
func (e *Engine) ResolveQRPayload(ctx context.Context, raw []byte) (*domain.Account, error) {
	p, err := domain.ParseQRPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("ResolveQRPayload: %w", err)
	}

	identifier := p.Handle
	if p.AccountID != uuid.Nil {
		identifier = p.AccountID.String()
	}

	a, err := e.ResolveRecipient(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("ResolveQRPayload: %w", err)
	}
	return a, nil
}
