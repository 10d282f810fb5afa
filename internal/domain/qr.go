package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const QRPayloadTypeRecipient = "wallet_recipient"

// QRPayload is produced by the QR component. Freshness of CreatedAt is the
// caller's policy and is not checked here.
type QRPayload struct {
	Type      string    `json:"type"`
	AccountID uuid.UUID `json:"account_id"`
	Handle    string    `json:"handle,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func ParseQRPayload(raw []byte) (*QRPayload, error) {
	var p QRPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("ParseQRPayload: %w", ErrInvalidQRPayload)
	}
	if p.Type != QRPayloadTypeRecipient {
		return nil, fmt.Errorf("ParseQRPayload: unexpected type %q: %w", p.Type, ErrInvalidQRPayload)
	}
	if p.AccountID == uuid.Nil && NormalizeHandle(p.Handle) == "" {
		return nil, fmt.Errorf("ParseQRPayload: no recipient: %w", ErrInvalidQRPayload)
	}
	return &p, nil
}
