package domain

import (
	"bytes"
	"time"

	"github.com/google/uuid"
)

// LedgerEntry records one completed transfer. Entries are append-only.
type LedgerEntry struct {
	ID             uuid.UUID
	SenderID       uuid.UUID
	ReceiverID     uuid.UUID
	Amount         int64
	Currency       Currency
	Note           string
	IdempotencyKey string
	CreatedAt      time.Time
}

type Perspective string

const (
	PerspectiveSent     Perspective = "sent"
	PerspectiveReceived Perspective = "received"
)

// PerspectiveFor derives how viewer sees the entry. It is never stored.
func (e LedgerEntry) PerspectiveFor(viewer uuid.UUID) Perspective {
	if e.SenderID == viewer {
		return PerspectiveSent
	}
	return PerspectiveReceived
}

func (e LedgerEntry) CounterpartyFor(viewer uuid.UUID) uuid.UUID {
	if e.SenderID == viewer {
		return e.ReceiverID
	}
	return e.SenderID
}

type HistoryItem struct {
	Entry          LedgerEntry
	Perspective    Perspective
	CounterpartyID uuid.UUID
}

func NewHistoryItem(e LedgerEntry, viewer uuid.UUID) HistoryItem {
	return HistoryItem{
		Entry:          e,
		Perspective:    e.PerspectiveFor(viewer),
		CounterpartyID: e.CounterpartyFor(viewer),
	}
}

// HistoryCursor is a keyset position in the (created_at DESC, id DESC)
// ordering of an account's ledger.
type HistoryCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func CursorAt(e LedgerEntry) *HistoryCursor {
	return &HistoryCursor{CreatedAt: e.CreatedAt, ID: e.ID}
}

// Precedes reports whether the cursor sorts strictly before e, i.e. e
// belongs on a later page.
func (c HistoryCursor) Precedes(e LedgerEntry) bool {
	if !e.CreatedAt.Equal(c.CreatedAt) {
		return e.CreatedAt.Before(c.CreatedAt)
	}
	return bytes.Compare(e.ID[:], c.ID[:]) < 0
}
