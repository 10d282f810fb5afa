package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

const accountColumns = `id, handle, display_name, balance, version, created_at, updated_at`

type AccountRepository struct {
	db querier
}

func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetAccount: %w", domain.ErrNotFound)
		}
		return nil, unavailable("GetAccount", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(handle) = $1`, domain.NormalizeHandle(handle),
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByHandle: %w", domain.ErrNotFound)
		}
		return nil, unavailable("GetByHandle", err)
	}
	return a, nil
}

func (r *AccountRepository) ResolveIdentifier(ctx context.Context, text string) (*domain.Account, error) {
	for _, l := range domain.Lookups(text) {
		var (
			a   *domain.Account
			err error
		)
		switch l.Kind {
		case domain.LookupByID:
			a, err = r.GetAccount(ctx, l.ID)
		case domain.LookupByHandle:
			a, err = r.GetByHandle(ctx, l.Handle)
		}
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ResolveIdentifier: %w", err)
		}
	}
	return nil, fmt.Errorf("ResolveIdentifier: %w", domain.ErrNotFound)
}

// ApplyDelta adds delta to the balance in a single conditional UPDATE, so
// concurrent callers can never drive the balance negative or lose an update.
func (r *AccountRepository) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = now()
		WHERE id = $1 AND balance + $2 >= 0
		RETURNING `+accountColumns,
		id, delta,
	)
	a, err := scanAccount(row)
	if err == nil {
		return a, nil
	}
	if pqCode(err) == pqCheckViolation {
		return nil, fmt.Errorf("ApplyDelta: %w", &domain.InsufficientFundsError{Requested: -delta})
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("ApplyDelta", err)
	}

	// No row matched: the account is missing or the guard rejected the delta.
	current, err := r.GetAccount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ApplyDelta: %w", err)
	}
	return nil, fmt.Errorf("ApplyDelta: %w", &domain.InsufficientFundsError{
		Available: current.Balance,
		Requested: -delta,
	})
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, handle, display_name, balance, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		account.ID, domain.NormalizeHandle(account.Handle), account.DisplayName,
		account.Balance, account.Version, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return fmt.Errorf("Create: %w", domain.ErrHandleTaken)
		}
		return unavailable("Create", err)
	}
	return nil
}

// LockInOrder takes row locks on the given accounts sorted by id, so two
// transfers touching the same pair in opposite directions cannot deadlock.
// It must run inside a transaction.
func (r *AccountRepository) LockInOrder(ctx context.Context, ids ...uuid.UUID) error {
	for _, id := range sortedIDs(ids) {
		var locked uuid.UUID
		err := r.db.QueryRowContext(ctx,
			`SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id,
		).Scan(&locked)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("LockInOrder: %s: %w", id, domain.ErrNotFound)
			}
			return unavailable("LockInOrder", err)
		}
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.Handle, &a.DisplayName,
		&a.Balance, &a.Version,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
