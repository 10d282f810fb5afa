// Package events publishes transfer lifecycle events for downstream
// consumers (notifications, reconciliation tooling).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeTransferCompleted      Type = "transfer.completed"
	TypeReconciliationRequired Type = "transfer.reconciliation_required"
)

type Event struct {
	Type Type
	// Key orders events per partition; the sender account id is used so
	// one account's transfers stay in order.
	Key        string
	OccurredAt time.Time
	Payload    any
}

type TransferCompleted struct {
	EntryID    uuid.UUID `json:"entry_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReconciliationRequired is raised when a transfer was partially applied and
// the reversal also failed, or when a debit was sent and its reply lost.
// Someone has to check the balances by hand.
type ReconciliationRequired struct {
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Stage      string    `json:"stage"`
	Reason     string    `json:"reason"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
