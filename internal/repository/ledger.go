package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

const ledgerColumns = `id, sender_id, receiver_id, amount, currency, note,
	idempotency_key, created_at`

type LedgerRepository struct {
	db querier
}

func NewLedgerRepository(db querier) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	var key *string
	if entry.IdempotencyKey != "" {
		key = &entry.IdempotencyKey
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, sender_id, receiver_id, amount, currency, note, idempotency_key, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.SenderID, entry.ReceiverID, entry.Amount,
		entry.Currency, entry.Note, key, entry.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation && key != nil {
			return fmt.Errorf("Append: %w", domain.ErrDuplicateIdempotencyKey)
		}
		return unavailable("Append", err)
	}
	return nil
}

// ListByAccount returns entries where the account is sender or receiver,
// newest first, strictly after the cursor when one is given.
func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, after *domain.HistoryCursor, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE (sender_id = $1 OR receiver_id = $1)`
	args := []any{accountID}

	if after != nil {
		query += ` AND (created_at, id) < ($2, $3)`
		args = append(args, after.CreatedAt, after.ID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("ListByAccount", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, unavailable("ListByAccount: scan", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("ListByAccount: rows", err)
	}
	return entries, nil
}

func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE sender_id = $1 AND idempotency_key = $2`,
		senderID, key,
	)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		return nil, unavailable("GetByIdempotencyKey", err)
	}
	return e, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var key sql.NullString
	err := s.Scan(
		&e.ID, &e.SenderID, &e.ReceiverID, &e.Amount,
		&e.Currency, &e.Note, &key, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.IdempotencyKey = key.String
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}
