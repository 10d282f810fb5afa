package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

// AccountCreator is satisfied by every store implementation that can
// provision accounts.
type AccountCreator interface {
	Create(ctx context.Context, a *domain.Account) error
}

func NewAccount(handle string, balance int64) *domain.Account {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Account{
		ID:          uuid.New(),
		Handle:      handle,
		DisplayName: handle,
		Balance:     balance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func SeedAccount(t *testing.T, s AccountCreator, handle string, balance int64) *domain.Account {
	t.Helper()

	a := NewAccount(handle, balance)
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("seed account %s: %v", handle, err)
	}
	a.Handle = domain.NormalizeHandle(handle)
	return a
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, accountID uuid.UUID) int {
	t.Helper()

	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM ledger_entries WHERE sender_id = $1 OR receiver_id = $1`, accountID,
	).Scan(&count)
	if err != nil {
		t.Fatalf("count ledger entries for account %s: %v", accountID, err)
	}
	return count
}

func SumBalances(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	var sum int64
	if err := db.QueryRow(`SELECT COALESCE(SUM(balance), 0) FROM accounts`).Scan(&sum); err != nil {
		t.Fatalf("sum balances: %v", err)
	}
	return sum
}
