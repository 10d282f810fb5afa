// Package memory is an in-process account and ledger store. Every operation
// is atomic on its own but there are no multi-row transactions, so the
// transfer engine uses compensating actions on top of it.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]domain.Account
	handles  map[string]uuid.UUID
	entries  []domain.LedgerEntry
	idem     map[idemKey]int
}

type idemKey struct {
	sender uuid.UUID
	key    string
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		accounts: make(map[uuid.UUID]domain.Account),
		handles:  make(map[string]uuid.UUID),
		idem:     make(map[idemKey]int),
	}
}

// Create adds an account. Account provisioning belongs to another
// component; this exists for wiring and tests.
func (s *Store) Create(_ context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := domain.NormalizeHandle(a.Handle)
	if _, ok := s.handles[h]; ok {
		return fmt.Errorf("Create: %q: %w", h, domain.ErrHandleTaken)
	}
	stored := *a
	stored.Handle = h
	s.accounts[a.ID] = stored
	s.handles[h] = a.ID
	return nil
}

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("GetAccount: %w", domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) ResolveIdentifier(ctx context.Context, text string) (*domain.Account, error) {
	for _, l := range domain.Lookups(text) {
		switch l.Kind {
		case domain.LookupByID:
			if a, err := s.GetAccount(ctx, l.ID); err == nil {
				return a, nil
			}
		case domain.LookupByHandle:
			s.mu.RLock()
			id, ok := s.handles[l.Handle]
			s.mu.RUnlock()
			if ok {
				return s.GetAccount(ctx, id)
			}
		}
	}
	return nil, fmt.Errorf("ResolveIdentifier: %w", domain.ErrNotFound)
}

func (s *Store) ApplyDelta(_ context.Context, id uuid.UUID, delta int64) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("ApplyDelta: %w", domain.ErrNotFound)
	}
	if a.Balance+delta < 0 {
		return nil, fmt.Errorf("ApplyDelta: %w", &domain.InsufficientFundsError{
			Available: a.Balance,
			Requested: -delta,
		})
	}
	a.Balance += delta
	a.Version++
	s.accounts[id] = a
	return &a, nil
}

func (s *Store) Append(_ context.Context, entry *domain.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.IdempotencyKey != "" {
		k := idemKey{sender: entry.SenderID, key: entry.IdempotencyKey}
		if _, ok := s.idem[k]; ok {
			return fmt.Errorf("Append: %w", domain.ErrDuplicateIdempotencyKey)
		}
		s.idem[k] = len(s.entries)
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *Store) ListByAccount(_ context.Context, accountID uuid.UUID, after *domain.HistoryCursor, limit int) ([]domain.LedgerEntry, error) {
	s.mu.RLock()
	var matched []domain.LedgerEntry
	for _, e := range s.entries {
		if e.SenderID != accountID && e.ReceiverID != accountID {
			continue
		}
		if after != nil && !after.Precedes(e) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b domain.LedgerEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return bytes.Compare(b.ID[:], a.ID[:])
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) GetByIdempotencyKey(_ context.Context, senderID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.idem[idemKey{sender: senderID, key: key}]
	if !ok {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
	}
	e := s.entries[i]
	return &e, nil
}

// Entries returns a copy of every ledger entry in insertion order.
func (s *Store) Entries() []domain.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }
