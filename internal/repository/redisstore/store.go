// Package redisstore keeps balances and the ledger in Redis. Each operation
// is one atomic Lua script; there are no multi-key transactions across a
// transfer, so the engine compensates on partial failure.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/store"
)

const (
	statusApplied      = 1
	statusMissing      = -1
	statusInsufficient = -2
)

type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ store.Store = (*Store)(nil)

func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "peerpay"
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) accountKey(id uuid.UUID) string { return s.prefix + ":account:" + id.String() }
func (s *Store) handleKey(h string) string      { return s.prefix + ":handle:" + h }
func (s *Store) entryKey(id string) string      { return s.prefix + ":entry:" + id }
func (s *Store) historyKey(id uuid.UUID) string { return s.prefix + ":history:" + id.String() }
func (s *Store) idemKey(sender uuid.UUID, key string) string {
	return s.prefix + ":idem:" + sender.String() + ":" + key
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// Create provisions an account. Account provisioning belongs to another
// component; this exists for wiring and tests.
func (s *Store) Create(ctx context.Context, a *domain.Account) error {
	h := domain.NormalizeHandle(a.Handle)
	ok, err := s.rdb.SetNX(ctx, s.handleKey(h), a.ID.String(), 0).Result()
	if err != nil {
		return unavailable("Create", err)
	}
	if !ok {
		return fmt.Errorf("Create: %q: %w", h, domain.ErrHandleTaken)
	}

	err = s.rdb.HSet(ctx, s.accountKey(a.ID), map[string]any{
		"handle":       h,
		"display_name": a.DisplayName,
		"balance":      a.Balance,
		"version":      a.Version,
		"created_at":   a.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":   a.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}).Err()
	if err != nil {
		return unavailable("Create", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	fields, err := s.rdb.HGetAll(ctx, s.accountKey(id)).Result()
	if err != nil {
		return nil, unavailable("GetAccount", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("GetAccount: %w", domain.ErrNotFound)
	}
	a, err := parseAccount(id, fields)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

func (s *Store) ResolveIdentifier(ctx context.Context, text string) (*domain.Account, error) {
	for _, l := range domain.Lookups(text) {
		id := l.ID
		if l.Kind == domain.LookupByHandle {
			raw, err := s.rdb.Get(ctx, s.handleKey(l.Handle)).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, unavailable("ResolveIdentifier", err)
			}
			if id, err = uuid.Parse(raw); err != nil {
				return nil, fmt.Errorf("ResolveIdentifier: corrupt handle index %q: %w", l.Handle, err)
			}
		}

		a, err := s.GetAccount(ctx, id)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("ResolveIdentifier: %w", err)
		}
	}
	return nil, fmt.Errorf("ResolveIdentifier: %w", domain.ErrNotFound)
}

// ApplyDelta never fails once the script has replied with a committed delta;
// the account is built from the script's own reply.
func (s *Store) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (*domain.Account, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	reply, err := applyDeltaScript.Run(ctx, s.rdb, []string{s.accountKey(id)}, delta, now).Slice()
	if err != nil {
		return nil, unavailable("ApplyDelta", err)
	}
	status, ok := replyInt(reply, 0)
	if !ok {
		return nil, fmt.Errorf("ApplyDelta: unexpected script reply %v", reply)
	}

	switch status {
	case statusMissing:
		return nil, fmt.Errorf("ApplyDelta: %w", domain.ErrNotFound)
	case statusInsufficient:
		available, _ := replyInt(reply, 1)
		return nil, fmt.Errorf("ApplyDelta: %w", &domain.InsufficientFundsError{
			Available: available,
			Requested: -delta,
		})
	}

	balance, _ := replyInt(reply, 1)
	return accountFromReply(id, balance, reply[min(2, len(reply)):]), nil
}

func replyInt(reply []any, i int) (int64, bool) {
	if i >= len(reply) {
		return 0, false
	}
	n, ok := reply[i].(int64)
	return n, ok
}

// accountFromReply builds the account from the field/value pairs the delta
// script returned. The delta is already committed, so a field that fails to
// parse is logged and left zero instead of failing the call.
func accountFromReply(id uuid.UUID, balance int64, pairs []any) *domain.Account {
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}

	a, err := parseAccount(id, fields)
	if err != nil {
		slog.Warn("account hash unreadable after applied delta", "account_id", id, "error", err)
		a = &domain.Account{ID: id, Handle: fields["handle"], DisplayName: fields["display_name"]}
	}
	a.Balance = balance
	return a
}

type entryRecord struct {
	ID             uuid.UUID `json:"id"`
	SenderID       uuid.UUID `json:"sender_id"`
	ReceiverID     uuid.UUID `json:"receiver_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Note           string    `json:"note,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	body, err := json.Marshal(entryRecord{
		ID:             entry.ID,
		SenderID:       entry.SenderID,
		ReceiverID:     entry.ReceiverID,
		Amount:         entry.Amount,
		Currency:       string(entry.Currency),
		Note:           entry.Note,
		IdempotencyKey: entry.IdempotencyKey,
		CreatedAt:      entry.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("Append: encode: %w", err)
	}

	keys := []string{
		s.entryKey(entry.ID.String()),
		s.historyKey(entry.SenderID),
		s.historyKey(entry.ReceiverID),
	}
	if entry.IdempotencyKey != "" {
		keys = append(keys, s.idemKey(entry.SenderID, entry.IdempotencyKey))
	}

	ok, err := appendEntryScript.Run(ctx, s.rdb, keys,
		body, entry.CreatedAt.UnixMicro(), entry.ID.String(),
	).Int64()
	if err != nil {
		return unavailable("Append", err)
	}
	if ok == 0 {
		return fmt.Errorf("Append: %w", domain.ErrDuplicateIdempotencyKey)
	}
	return nil
}

// ListByAccount walks the account's history index newest first. Members with
// equal scores come back in reverse lexical order, which matches the id
// tie-break, so filtering against the cursor is enough for exact paging.
func (s *Store) ListByAccount(ctx context.Context, accountID uuid.UUID, after *domain.HistoryCursor, limit int) ([]domain.LedgerEntry, error) {
	maxScore := "+inf"
	if after != nil {
		maxScore = strconv.FormatInt(after.CreatedAt.UnixMicro(), 10)
	}

	var (
		out    []domain.LedgerEntry
		offset int64
		batch  = int64(limit) + 1
	)
	for len(out) < limit {
		ids, err := s.rdb.ZRevRangeByScore(ctx, s.historyKey(accountID), &redis.ZRangeBy{
			Max:    maxScore,
			Min:    "-inf",
			Offset: offset,
			Count:  batch,
		}).Result()
		if err != nil {
			return nil, unavailable("ListByAccount", err)
		}
		if len(ids) == 0 {
			break
		}
		offset += int64(len(ids))

		entries, err := s.loadEntries(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("ListByAccount: %w", err)
		}
		for _, e := range entries {
			if after != nil && !after.Precedes(e) {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *Store) GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	id, err := s.rdb.Get(ctx, s.idemKey(senderID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("GetByIdempotencyKey", err)
	}

	entries, err := s.loadEntries(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
	}
	return &entries[0], nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) loadEntries(ctx context.Context, ids []string) ([]domain.LedgerEntry, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}

	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable("loadEntries", err)
	}

	entries := make([]domain.LedgerEntry, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("loadEntries: entry %s indexed but missing", ids[i])
		}
		var rec entryRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("loadEntries: decode %s: %w", ids[i], err)
		}
		entries = append(entries, domain.LedgerEntry{
			ID:             rec.ID,
			SenderID:       rec.SenderID,
			ReceiverID:     rec.ReceiverID,
			Amount:         rec.Amount,
			Currency:       domain.Currency(rec.Currency),
			Note:           rec.Note,
			IdempotencyKey: rec.IdempotencyKey,
			CreatedAt:      rec.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

func parseAccount(id uuid.UUID, f map[string]string) (*domain.Account, error) {
	balance, err := strconv.ParseInt(f["balance"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parseAccount: balance: %w", err)
	}
	version, err := strconv.ParseInt(f["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parseAccount: version: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, f["created_at"])
	if err != nil {
		return nil, fmt.Errorf("parseAccount: created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, f["updated_at"])
	if err != nil {
		return nil, fmt.Errorf("parseAccount: updated_at: %w", err)
	}

	return &domain.Account{
		ID:          id,
		Handle:      f["handle"],
		DisplayName: f["display_name"],
		Balance:     balance,
		Version:     version,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
