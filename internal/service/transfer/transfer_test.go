package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/events"
	"github.com/josh-kwaku/peerpay/internal/repository/memory"
	"github.com/josh-kwaku/peerpay/internal/testutil"
)

func setupEngine(t *testing.T, settings Settings) (*Engine, *memory.Store, *recordingPublisher) {
	t.Helper()
	s := memory.NewStore()
	pub := &recordingPublisher{}
	return NewEngine(s, pub, settings), s, pub
}

func TestTransfer_Success(t *testing.T) {
	e, s, pub := setupEngine(t, Settings{})
	ctx := context.Background()

	alice := testutil.SeedAccount(t, s, "alice", 100000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	res, err := e.Transfer(ctx, Request{
		SenderID: alice.ID,
		Receiver: "@Bob",
		Amount:   25000,
		Note:     "lunch",
	})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, alice.ID, res.Entry.SenderID)
	assert.Equal(t, bob.ID, res.Entry.ReceiverID)
	assert.Equal(t, int64(25000), res.Entry.Amount)
	assert.Equal(t, domain.DefaultCurrency, res.Entry.Currency)
	assert.Equal(t, "lunch", res.Entry.Note)
	assert.Equal(t, time.UTC, res.Entry.CreatedAt.Location())
	assert.Equal(t, uuid.Version(7), res.Entry.ID.Version())

	assert.Equal(t, int64(75000), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(25000), balanceOf(t, e, bob.ID))

	entries := s.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, res.Entry.ID, entries[0].ID)

	completed := pub.ofType(events.TypeTransferCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, alice.ID.String(), completed[0].Key)
}

func TestTransfer_ReceiverByID(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	res, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: bob.ID.String(), Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, bob.ID, res.Entry.ReceiverID)
	assert.Equal(t, int64(0), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(1000), balanceOf(t, e, bob.ID))
}

func TestTransfer_Rejections(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{Currency: "PHP", TransferLimit: 50000})
	alice := testutil.SeedAccount(t, s, "alice", 10000)
	testutil.SeedAccount(t, s, "bob", 0)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"zero amount", Request{SenderID: alice.ID, Receiver: "bob", Amount: 0}, domain.ErrInvalidAmount},
		{"negative amount", Request{SenderID: alice.ID, Receiver: "bob", Amount: -5}, domain.ErrInvalidAmount},
		{"self by id", Request{SenderID: alice.ID, Receiver: alice.ID.String(), Amount: 100}, domain.ErrSelfTransfer},
		{"self by handle", Request{SenderID: alice.ID, Receiver: "@alice", Amount: 100}, domain.ErrSelfTransfer},
		{"currency mismatch", Request{SenderID: alice.ID, Receiver: "bob", Amount: 100, Currency: "USD"}, domain.ErrCurrencyMismatch},
		{"over limit", Request{SenderID: alice.ID, Receiver: "bob", Amount: 50001}, domain.ErrLimitExceeded},
		{"unknown sender", Request{SenderID: uuid.New(), Receiver: "bob", Amount: 100}, domain.ErrSenderNotFound},
		{"unknown receiver", Request{SenderID: alice.ID, Receiver: "nobody", Amount: 100}, domain.ErrReceiverNotFound},
		{"insufficient funds", Request{SenderID: alice.ID, Receiver: "bob", Amount: 10001}, domain.ErrInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Transfer(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Equal(t, domain.ClassRejected, domain.Classify(err))
		})
	}

	assert.Equal(t, int64(10000), balanceOf(t, e, alice.ID))
	assert.Empty(t, s.Entries())
}

func TestTransfer_PreconditionOrder(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 100)

	// Amount is checked before the self-transfer rule.
	_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: alice.ID.String(), Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// A raw self-transfer is caught before the sender is looked up.
	ghost := uuid.New()
	_, err = e.Transfer(context.Background(), Request{SenderID: ghost, Receiver: ghost.String(), Amount: 10})
	assert.ErrorIs(t, err, domain.ErrSelfTransfer)

	// Sender lookup precedes receiver lookup.
	_, err = e.Transfer(context.Background(), Request{SenderID: ghost, Receiver: "nobody", Amount: 10})
	assert.ErrorIs(t, err, domain.ErrSenderNotFound)
}

func TestTransfer_InsufficientFundsCarriesBalance(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 5000)
	testutil.SeedAccount(t, s, "bob", 0)

	_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 5001})

	var insufficient *domain.InsufficientFundsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, int64(5000), insufficient.Available)
	assert.Equal(t, int64(5001), insufficient.Requested)
}

func TestTransfer_ExactBalance(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 5000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 5000})
	require.NoError(t, err)
	assert.Equal(t, int64(0), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(5000), balanceOf(t, e, bob.ID))
}

func TestTransfer_IdempotentReplay(t *testing.T) {
	e, s, pub := setupEngine(t, Settings{})
	ctx := context.Background()
	alice := testutil.SeedAccount(t, s, "alice", 10000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	req := Request{SenderID: alice.ID, Receiver: "bob", Amount: 3000, IdempotencyKey: "k-1"}

	first, err := e.Transfer(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	second, err := e.Transfer(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)

	assert.Equal(t, int64(7000), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(3000), balanceOf(t, e, bob.ID))
	assert.Len(t, s.Entries(), 1)
	assert.Len(t, pub.ofType(events.TypeTransferCompleted), 1)
}

func TestTransfer_IdempotencyConflict(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	ctx := context.Background()
	alice := testutil.SeedAccount(t, s, "alice", 10000)
	testutil.SeedAccount(t, s, "bob", 0)
	testutil.SeedAccount(t, s, "carol", 0)

	_, err := e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "bob", Amount: 3000, IdempotencyKey: "k-1"})
	require.NoError(t, err)

	_, err = e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "bob", Amount: 3001, IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	_, err = e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "carol", Amount: 3000, IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)

	assert.Equal(t, int64(7000), balanceOf(t, e, alice.ID))
	assert.Len(t, s.Entries(), 1)
}

func TestTransfer_SameKeyDifferentSenders(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	ctx := context.Background()
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	bob := testutil.SeedAccount(t, s, "bob", 1000)
	testutil.SeedAccount(t, s, "carol", 0)

	_, err := e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "carol", Amount: 100, IdempotencyKey: "shared"})
	require.NoError(t, err)
	res, err := e.Transfer(ctx, Request{SenderID: bob.ID, Receiver: "carol", Amount: 100, IdempotencyKey: "shared"})
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Len(t, s.Entries(), 2)
}

func TestTransfer_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 500)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	const workers = 100
	var ok, insufficient atomic.Int64
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 10})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), ok.Load())
	assert.Equal(t, int64(50), insufficient.Load())
	assert.Equal(t, int64(0), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(500), balanceOf(t, e, bob.ID))
	assert.Len(t, s.Entries(), 50)
}

func TestTransfer_OpposingTransfersConserveTotal(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	bob := testutil.SeedAccount(t, s, "bob", 1000)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := alice, bob
			if i%2 == 1 {
				from, to = bob, alice
			}
			_, _ = e.Transfer(context.Background(), Request{SenderID: from.ID, Receiver: to.ID.String(), Amount: 70})
		}()
	}
	wg.Wait()

	a, b := balanceOf(t, e, alice.ID), balanceOf(t, e, bob.ID)
	assert.Equal(t, int64(2000), a+b)
	assert.GreaterOrEqual(t, a, int64(0))
	assert.GreaterOrEqual(t, b, int64(0))

	var net int64
	for _, entry := range s.Entries() {
		if entry.SenderID == alice.ID {
			net -= entry.Amount
		} else {
			net += entry.Amount
		}
	}
	assert.Equal(t, int64(1000)+net, a)
}

func TestTransfer_ConcurrentSameKeyMovesOnce(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 10000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	const workers = 20
	ids := make(chan uuid.UUID, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Transfer(context.Background(), Request{
				SenderID: alice.ID, Receiver: "bob", Amount: 400, IdempotencyKey: "pay-once",
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids <- res.Entry.ID
		}()
	}
	wg.Wait()
	close(ids)

	var first uuid.UUID
	for id := range ids {
		if first == uuid.Nil {
			first = id
		}
		assert.Equal(t, first, id)
	}
	assert.Len(t, s.Entries(), 1)
	assert.Equal(t, int64(9600), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(400), balanceOf(t, e, bob.ID))
}

func TestTransfer_CancelledBeforeDebit(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	bob := testutil.SeedAccount(t, s, "bob", 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "bob", Amount: 100})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(1000), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(0), balanceOf(t, e, bob.ID))
	assert.Empty(t, s.Entries())
}

func TestTransfer_CancelledAfterDebitStillCompletes(t *testing.T) {
	fs := newFaultyStore()
	alice := testutil.SeedAccount(t, fs.Store, "alice", 1000)
	bob := testutil.SeedAccount(t, fs.Store, "bob", 0)
	e := NewEngine(fs, nil, Settings{})

	ctx, cancel := context.WithCancel(context.Background())
	fs.onApply = func(call int) {
		if call == 1 {
			cancel()
		}
	}

	res, err := e.Transfer(ctx, Request{SenderID: alice.ID, Receiver: "bob", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(900), balanceOf(t, e, alice.ID))
	assert.Equal(t, int64(100), balanceOf(t, e, bob.ID))
	assert.Len(t, fs.Entries(), 1)
	assert.Equal(t, res.Entry.ID, fs.Entries()[0].ID)
}

func TestTransfer_PublishFailureDoesNotFailTransfer(t *testing.T) {
	s := memory.NewStore()
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := NewEngine(s, pub, Settings{})
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	testutil.SeedAccount(t, s, "bob", 0)

	_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 100})
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 1)
}

type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ events.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestTransfer_StalledBrokerCostsAtMostPublishTimeout(t *testing.T) {
	s := memory.NewStore()
	e := NewEngine(s, stalledPublisher{}, Settings{PublishTimeout: 20 * time.Millisecond})
	alice := testutil.SeedAccount(t, s, "alice", 1000)
	testutil.SeedAccount(t, s, "bob", 0)

	start := time.Now()
	_, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 100})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, s.Entries(), 1)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(memory.NewStore(), nil, Settings{})
	assert.Equal(t, domain.DefaultCurrency, e.Currency())
	assert.Equal(t, defaultFinishTimeout, e.settings.FinishTimeout)
	assert.Equal(t, defaultPublishTimeout, e.settings.PublishTimeout)
	assert.Equal(t, "compensating", e.strategy())
}

func TestTransfer_CreatedAtUsesClock(t *testing.T) {
	e, s, _ := setupEngine(t, Settings{})
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.FixedZone("PHT", 8*3600))
	e.now = func() time.Time { return fixed }

	alice := testutil.SeedAccount(t, s, "alice", 1000)
	testutil.SeedAccount(t, s, "bob", 0)

	res, err := e.Transfer(context.Background(), Request{SenderID: alice.ID, Receiver: "bob", Amount: 1})
	require.NoError(t, err)
	assert.True(t, fixed.Truncate(time.Microsecond).Equal(res.Entry.CreatedAt))
	assert.Equal(t, time.UTC, res.Entry.CreatedAt.Location())
}
