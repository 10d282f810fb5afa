package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/events"
	"github.com/josh-kwaku/peerpay/internal/repository/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// faultyStore wraps the memory store with injectable failures. ApplyDelta
// calls are numbered from 1 in the order the engine makes them.
type faultyStore struct {
	*memory.Store

	mu         sync.Mutex
	applyCalls int
	applyErrs  map[int]error
	// lostReplies applies the delta and then fails the call, as a store does
	// when the reply is lost on the way back.
	lostReplies map[int]error
	onApply     func(call int)
	appendErr   error
	// missLookups makes the next n idempotency lookups report not found.
	missLookups int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Store: memory.NewStore(), applyErrs: map[int]error{}, lostReplies: map[int]error{}}
}

func (f *faultyStore) ApplyDelta(ctx context.Context, id uuid.UUID, delta int64) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.applyCalls++
	call := f.applyCalls
	injected := f.applyErrs[call]
	lost := f.lostReplies[call]
	f.mu.Unlock()

	if injected != nil {
		return nil, injected
	}
	a, err := f.Store.ApplyDelta(ctx, id, delta)
	if f.onApply != nil {
		f.onApply(call)
	}
	if err != nil {
		return nil, err
	}
	if lost != nil {
		return nil, lost
	}
	// A context that ends while the reply is in flight loses the reply.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

func (f *faultyStore) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Store.Append(ctx, entry)
}

func (f *faultyStore) GetByIdempotencyKey(ctx context.Context, senderID uuid.UUID, key string) (*domain.LedgerEntry, error) {
	f.mu.Lock()
	miss := f.missLookups > 0
	if miss {
		f.missLookups--
	}
	f.mu.Unlock()

	if miss {
		return nil, fmt.Errorf("GetByIdempotencyKey: %w", domain.ErrNotFound)
	}
	return f.Store.GetByIdempotencyKey(ctx, senderID, key)
}

var errConnReset = fmt.Errorf("connection reset: %w", domain.ErrStoreUnavailable)

func balanceOf(t *testing.T, e *Engine, id uuid.UUID) int64 {
	t.Helper()
	a, err := e.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}
