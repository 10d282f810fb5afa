package transfer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

type cursorToken struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// EncodeCursor turns a keyset position into an opaque base64 JSON token.
func EncodeCursor(c domain.HistoryCursor) (string, error) {
	if c.ID == uuid.Nil || c.CreatedAt.IsZero() {
		return "", domain.ErrInvalidCursor
	}

	b, err := json.Marshal(cursorToken{CreatedAt: c.CreatedAt.UTC(), ID: c.ID.String()})
	if err != nil {
		return "", fmt.Errorf("EncodeCursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*domain.HistoryCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %w", domain.ErrInvalidCursor, err)
	}

	var t cursorToken
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("%w: unmarshal failed: %w", domain.ErrInvalidCursor, err)
	}

	id, err := uuid.Parse(t.ID)
	if err != nil || id == uuid.Nil {
		return nil, fmt.Errorf("%w: bad id", domain.ErrInvalidCursor)
	}
	if t.CreatedAt.IsZero() {
		return nil, fmt.Errorf("%w: missing created_at", domain.ErrInvalidCursor)
	}

	return &domain.HistoryCursor{CreatedAt: t.CreatedAt.UTC(), ID: id}, nil
}
