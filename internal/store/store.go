// Package store holds the storage contracts the transfer engine depends on.
// Implementations live under internal/repository.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

// Accounts is the Account Store. ApplyDelta must be a single atomic
// conditional update: it never lets a balance go below zero and never loses
// a concurrent update.
type Accounts interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ResolveIdentifier(ctx context.Context, text string) (*domain.Account, error)
	ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (*domain.Account, error)
}

// Ledger is the append-only Ledger Store.
type Ledger interface {
	Append(ctx context.Context, entry *domain.LedgerEntry) error
	ListByAccount(ctx context.Context, accountID uuid.UUID, after *domain.HistoryCursor, limit int) ([]domain.LedgerEntry, error)
	GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.LedgerEntry, error)
}

type Store interface {
	Accounts
	Ledger
}

// Transactional stores can apply several mutations atomically. fn receives a
// view bound to the transaction; returning an error rolls everything back.
type Transactional interface {
	Store
	WithinTx(ctx context.Context, lock []uuid.UUID, fn func(tx Store) error) error
}
