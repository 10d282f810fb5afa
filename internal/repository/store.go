package repository

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/store"
)

// Store is the Postgres-backed account and ledger store. It supports
// multi-row transactions, so transfers run inside one.
type Store struct {
	*AccountRepository
	*LedgerRepository
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		AccountRepository: NewAccountRepository(db),
		LedgerRepository:  NewLedgerRepository(db),
		db:                db,
	}
}

// TxStore is a Store view bound to an open transaction.
type TxStore struct {
	*AccountRepository
	*LedgerRepository
}

// WithinTx runs fn in a transaction after locking the given accounts in id
// order. Any error from fn rolls the whole transaction back.
func (s *Store) WithinTx(ctx context.Context, lock []uuid.UUID, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("WithinTx: begin tx", err)
	}
	defer tx.Rollback()

	txs := &TxStore{
		AccountRepository: NewAccountRepository(tx),
		LedgerRepository:  NewLedgerRepository(tx),
	}

	if err := txs.LockInOrder(ctx, lock...); err != nil {
		return fmt.Errorf("WithinTx: %w", err)
	}

	if err := fn(txs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return unavailable("WithinTx: commit", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

var (
	_ store.Transactional = (*Store)(nil)
	_ store.Store         = (*TxStore)(nil)
)

func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(sorted)
}
