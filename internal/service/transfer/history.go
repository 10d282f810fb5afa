package transfer

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
)

// GetHistory returns up to limit of the account's entries, newest first,
// each tagged sent or received from the account's point of view. The
// sequence reads the ledger lazily in pages and can be ranged over more
// than once; each pass reads from the newest entry again.
func (e *Engine) GetHistory(ctx context.Context, accountID uuid.UUID, limit int) (iter.Seq2[domain.HistoryItem, error], error) {
	limit, err := e.clampLimit(limit)
	if err != nil {
		return nil, fmt.Errorf("GetHistory: %w", err)
	}
	if err := e.accountExists(ctx, accountID); err != nil {
		return nil, fmt.Errorf("GetHistory: %w", err)
	}

	return func(yield func(domain.HistoryItem, error) bool) {
		var after *domain.HistoryCursor
		remaining := limit

		for remaining > 0 {
			n := min(remaining, historyPageSize)
			entries, err := e.store.ListByAccount(ctx, accountID, after, n)
			if err != nil {
				yield(domain.HistoryItem{}, fmt.Errorf("GetHistory: %w", err))
				return
			}

			for _, entry := range entries {
				if !yield(domain.NewHistoryItem(entry, accountID), nil) {
					return
				}
			}

			if len(entries) < n {
				return
			}
			remaining -= len(entries)
			after = domain.CursorAt(entries[len(entries)-1])
		}
	}, nil
}

// HistoryPage returns one page starting after cursor (empty for the first
// page) and the token for the next page, empty when there is none.
func (e *Engine) HistoryPage(ctx context.Context, accountID uuid.UUID, limit int, cursor string) ([]domain.HistoryItem, string, error) {
	limit, err := e.clampLimit(limit)
	if err != nil {
		return nil, "", fmt.Errorf("HistoryPage: %w", err)
	}

	var after *domain.HistoryCursor
	if cursor != "" {
		after, err = DecodeCursor(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("HistoryPage: %w", err)
		}
	}

	if err := e.accountExists(ctx, accountID); err != nil {
		return nil, "", fmt.Errorf("HistoryPage: %w", err)
	}

	// One extra row tells us whether another page exists.
	entries, err := e.store.ListByAccount(ctx, accountID, after, limit+1)
	if err != nil {
		return nil, "", fmt.Errorf("HistoryPage: %w", err)
	}

	var next string
	if len(entries) > limit {
		entries = entries[:limit]
		next, err = EncodeCursor(*domain.CursorAt(entries[limit-1]))
		if err != nil {
			return nil, "", fmt.Errorf("HistoryPage: %w", err)
		}
	}

	items := make([]domain.HistoryItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, domain.NewHistoryItem(entry, accountID))
	}
	return items, next, nil
}

func (e *Engine) clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, domain.ErrInvalidLimit
	}
	return min(limit, e.settings.MaxHistoryLimit), nil
}

func (e *Engine) accountExists(ctx context.Context, id uuid.UUID) error {
	if _, err := e.store.GetAccount(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrAccountNotFound
		}
		return err
	}
	return nil
}
