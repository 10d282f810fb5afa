package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/events"
	"github.com/josh-kwaku/peerpay/internal/logging"
	"github.com/josh-kwaku/peerpay/internal/metrics"
	"github.com/josh-kwaku/peerpay/internal/store"
)

type Request struct {
	SenderID uuid.UUID
	// Receiver is an account id, a handle, or a handle prefixed with '@'.
	Receiver       string
	Amount         int64
	Currency       domain.Currency
	Note           string
	IdempotencyKey string
}

type Result struct {
	Entry domain.LedgerEntry
	// Replayed is set when the idempotency key matched an earlier transfer
	// and nothing moved this time.
	Replayed bool
}

// Transfer moves req.Amount from the sender to the receiver and records one
// ledger entry. Every failure except ErrLedgerWriteFailed,
// ErrCompensationFailed and ErrDebitUnconfirmed leaves balances exactly as
// they were.
func (e *Engine) Transfer(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := e.transfer(ctx, req)

	metrics.TransferDuration.WithLabelValues(e.strategy()).Observe(time.Since(start).Seconds())
	metrics.TransfersTotal.WithLabelValues(outcome(res, err)).Inc()

	if err != nil {
		return nil, fmt.Errorf("Transfer: %w", err)
	}
	return res, nil
}

func (e *Engine) transfer(ctx context.Context, req Request) (*Result, error) {
	sender, receiver, err := e.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		res, err := e.replay(ctx, req, sender.ID, receiver.ID)
		if err != nil || res != nil {
			return res, err
		}
	}

	if sender.Balance < req.Amount {
		return nil, fmt.Errorf("transfer: %w", &domain.InsufficientFundsError{
			Available: sender.Balance,
			Requested: req.Amount,
		})
	}

	// Cancellation is only honored up to here.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transfer: cancelled before debit: %w", err)
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.Must(uuid.NewV7()),
		SenderID:       sender.ID,
		ReceiverID:     receiver.ID,
		Amount:         req.Amount,
		Currency:       e.settings.Currency,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      e.now().UTC().Truncate(time.Microsecond),
	}

	var res *Result
	if e.tx != nil {
		res, err = e.executeInTx(ctx, entry)
	} else {
		res, err = e.executeCompensating(ctx, entry)
	}
	if err != nil {
		return nil, err
	}
	if !res.Replayed {
		e.completed(ctx, res.Entry)
	}
	return res, nil
}

// validate runs the preconditions in order; the first failure wins.
func (e *Engine) validate(ctx context.Context, req Request) (*domain.Account, *domain.Account, error) {
	if req.Amount <= 0 {
		return nil, nil, fmt.Errorf("validate: %w", domain.ErrInvalidAmount)
	}

	if id, err := uuid.Parse(strings.TrimSpace(req.Receiver)); err == nil && id == req.SenderID {
		return nil, nil, fmt.Errorf("validate: %w", domain.ErrSelfTransfer)
	}

	if req.Currency != "" && req.Currency != e.settings.Currency {
		return nil, nil, fmt.Errorf("validate: %s: %w", req.Currency, domain.ErrCurrencyMismatch)
	}

	if e.settings.TransferLimit > 0 && req.Amount > e.settings.TransferLimit {
		return nil, nil, fmt.Errorf("validate: %w", domain.ErrLimitExceeded)
	}

	sender, err := e.store.GetAccount(ctx, req.SenderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("validate: %w", domain.ErrSenderNotFound)
		}
		return nil, nil, fmt.Errorf("validate: sender: %w", err)
	}

	receiver, err := e.store.ResolveIdentifier(ctx, req.Receiver)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, fmt.Errorf("validate: %w", domain.ErrReceiverNotFound)
		}
		return nil, nil, fmt.Errorf("validate: receiver: %w", err)
	}

	// A handle can point back at the sender.
	if receiver.ID == sender.ID {
		return nil, nil, fmt.Errorf("validate: %w", domain.ErrSelfTransfer)
	}

	return sender, receiver, nil
}

func (e *Engine) replay(ctx context.Context, req Request, senderID, receiverID uuid.UUID) (*Result, error) {
	existing, err := e.store.GetByIdempotencyKey(ctx, senderID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("replay: %w", err)
	}
	return matchReplay(existing, receiverID, req.Amount)
}

func matchReplay(existing *domain.LedgerEntry, receiverID uuid.UUID, amount int64) (*Result, error) {
	if existing.ReceiverID != receiverID || existing.Amount != amount {
		return nil, fmt.Errorf("replay: %w", domain.ErrIdempotencyConflict)
	}
	return &Result{Entry: *existing, Replayed: true}, nil
}

// executeInTx applies debit, credit and ledger append in one storage
// transaction. A failure anywhere rolls all three back.
func (e *Engine) executeInTx(ctx context.Context, entry *domain.LedgerEntry) (*Result, error) {
	lock := []uuid.UUID{entry.SenderID, entry.ReceiverID}
	err := e.tx.WithinTx(ctx, lock, func(tx store.Store) error {
		if _, err := tx.ApplyDelta(ctx, entry.SenderID, -entry.Amount); err != nil {
			return debitError(err)
		}
		if _, err := tx.ApplyDelta(ctx, entry.ReceiverID, entry.Amount); err != nil {
			return creditError(err)
		}
		return tx.Append(ctx, entry)
	})

	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// A concurrent request with the same key committed first.
		return e.winner(ctx, entry)
	}
	if err != nil {
		// An account deleted between validation and locking.
		if errors.Is(err, domain.ErrNotFound) &&
			!errors.Is(err, domain.ErrSenderNotFound) && !errors.Is(err, domain.ErrReceiverNotFound) {
			return nil, fmt.Errorf("executeInTx: %w: %w", domain.ErrAccountNotFound, err)
		}
		return nil, fmt.Errorf("executeInTx: %w", err)
	}
	return &Result{Entry: *entry}, nil
}

// executeCompensating is used when the store only offers per-row atomicity.
// The debit is issued on a detached context: once it is on the wire the
// caller can no longer cancel it, and every later failure reverses what was
// applied.
func (e *Engine) executeCompensating(ctx context.Context, entry *domain.LedgerEntry) (*Result, error) {
	log := logging.FromContext(ctx)

	finishCtx, cancel := e.detached(ctx)
	defer cancel()

	if _, err := e.store.ApplyDelta(finishCtx, entry.SenderID, -entry.Amount); err != nil {
		if debitRejected(err) {
			return nil, fmt.Errorf("executeCompensating: %w", debitError(err))
		}
		// Any other failure may have hit after the store applied the debit.
		return nil, e.debitUnconfirmed(ctx, entry, err)
	}

	if _, err := e.store.ApplyDelta(finishCtx, entry.ReceiverID, entry.Amount); err != nil {
		creditErr := creditError(err)
		if revErr := e.reverse(ctx, "credit", entry.SenderID, entry.Amount); revErr != nil {
			return nil, e.compensationFailed(ctx, entry, "credit", creditErr, revErr)
		}
		return nil, fmt.Errorf("executeCompensating: %w", creditErr)
	}

	if err := e.store.Append(finishCtx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
			return e.undoDuplicate(ctx, entry)
		}

		log.Error("ledger write failed after balances moved",
			"alert", true,
			"entry_id", entry.ID,
			"sender_account", entry.SenderID,
			"receiver_account", entry.ReceiverID,
			"amount", entry.Amount,
			"error", err,
		)
		return nil, fmt.Errorf("executeCompensating: entry %s: %w: %v", entry.ID, domain.ErrLedgerWriteFailed, err)
	}

	return &Result{Entry: *entry}, nil
}

// debitRejected reports whether the store refused the debit outright, so no
// balance changed.
func debitRejected(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInsufficientFunds)
}

// undoDuplicate runs when a concurrent request with the same idempotency key
// recorded its entry first. Both of our deltas are reversed and the winner
// is returned as a replay.
func (e *Engine) undoDuplicate(ctx context.Context, entry *domain.LedgerEntry) (*Result, error) {
	if err := e.reverse(ctx, "duplicate", entry.ReceiverID, -entry.Amount); err != nil {
		return nil, e.compensationFailed(ctx, entry, "duplicate", domain.ErrDuplicateIdempotencyKey, err)
	}
	if err := e.reverse(ctx, "duplicate", entry.SenderID, entry.Amount); err != nil {
		return nil, e.compensationFailed(ctx, entry, "duplicate", domain.ErrDuplicateIdempotencyKey, err)
	}
	return e.winner(ctx, entry)
}

func (e *Engine) winner(ctx context.Context, entry *domain.LedgerEntry) (*Result, error) {
	lookupCtx, cancel := e.detached(ctx)
	defer cancel()

	existing, err := e.store.GetByIdempotencyKey(lookupCtx, entry.SenderID, entry.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("winner: %w", err)
	}
	return matchReplay(existing, entry.ReceiverID, entry.Amount)
}

func (e *Engine) reverse(ctx context.Context, stage string, accountID uuid.UUID, delta int64) error {
	revCtx, cancel := e.detached(ctx)
	defer cancel()

	if _, err := e.store.ApplyDelta(revCtx, accountID, delta); err != nil {
		metrics.Compensations.WithLabelValues(stage, "failed").Inc()
		return fmt.Errorf("reverse: %w", err)
	}
	metrics.Compensations.WithLabelValues(stage, "ok").Inc()
	return nil
}

// compensationFailed reports a transfer that is partially applied and could
// not be undone.
func (e *Engine) compensationFailed(ctx context.Context, entry *domain.LedgerEntry, stage string, cause, revErr error) error {
	reason := fmt.Sprintf("%v; reversal: %v", cause, revErr)
	e.requireReconciliation(ctx, entry, stage, reason)
	return fmt.Errorf("%w: %s: %s", domain.ErrCompensationFailed, stage, reason)
}

// debitUnconfirmed reports a debit whose reply never arrived. Whether the
// sender was charged is unknown, so nothing is reversed and the caller must
// not retry blindly.
func (e *Engine) debitUnconfirmed(ctx context.Context, entry *domain.LedgerEntry, err error) error {
	e.requireReconciliation(ctx, entry, "debit", err.Error())
	return fmt.Errorf("executeCompensating: %w: %w", domain.ErrDebitUnconfirmed, err)
}

// requireReconciliation logs, counts and publishes a transfer whose balances
// may not match the ledger.
func (e *Engine) requireReconciliation(ctx context.Context, entry *domain.LedgerEntry, stage, reason string) {
	logging.FromContext(ctx).Error("transfer needs manual reconciliation",
		"alert", true,
		"stage", stage,
		"entry_id", entry.ID,
		"sender_account", entry.SenderID,
		"receiver_account", entry.ReceiverID,
		"amount", entry.Amount,
		"reason", reason,
	)
	metrics.ReconciliationRequired.Inc()

	e.publish(ctx, events.Event{
		Type:       events.TypeReconciliationRequired,
		Key:        entry.SenderID.String(),
		OccurredAt: e.now().UTC(),
		Payload: events.ReconciliationRequired{
			SenderID:   entry.SenderID,
			ReceiverID: entry.ReceiverID,
			Amount:     entry.Amount,
			Currency:   string(entry.Currency),
			Stage:      stage,
			Reason:     reason,
		},
	})
}

func (e *Engine) completed(ctx context.Context, entry domain.LedgerEntry) {
	metrics.TransferredMinorUnits.Add(float64(entry.Amount))

	logging.FromContext(ctx).Info("transfer completed",
		"entry_id", entry.ID,
		"sender_account", entry.SenderID,
		"receiver_account", entry.ReceiverID,
		"amount", entry.Amount,
		"currency", entry.Currency,
		"strategy", e.strategy(),
	)

	e.publish(ctx, events.Event{
		Type:       events.TypeTransferCompleted,
		Key:        entry.SenderID.String(),
		OccurredAt: entry.CreatedAt,
		Payload: events.TransferCompleted{
			EntryID:    entry.ID,
			SenderID:   entry.SenderID,
			ReceiverID: entry.ReceiverID,
			Amount:     entry.Amount,
			Currency:   string(entry.Currency),
			Note:       entry.Note,
			CreatedAt:  entry.CreatedAt,
		},
	})
}

// publish never fails the transfer; the ledger is the source of truth.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.settings.PublishTimeout)
	defer cancel()

	if err := e.events.Publish(pubCtx, ev); err != nil {
		metrics.EventPublishFailures.WithLabelValues(string(ev.Type)).Inc()
		logging.FromContext(ctx).Warn("event publish failed", "type", ev.Type, "error", err)
	}
}

// detached returns a context that ignores the caller's cancellation but is
// still bounded by FinishTimeout.
func (e *Engine) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.settings.FinishTimeout)
}

func debitError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("debit: %w", domain.ErrSenderNotFound)
	}
	return fmt.Errorf("debit: %w", err)
}

func creditError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("credit: %w", domain.ErrReceiverNotFound)
	}
	return fmt.Errorf("credit: %w", err)
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replayed"
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrCompensationFailed):
		return "compensation_failed"
	case errors.Is(err, domain.ErrLedgerWriteFailed):
		return "ledger_write_failed"
	case errors.Is(err, domain.ErrDebitUnconfirmed):
		return "debit_unconfirmed"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return string(domain.Classify(err))
	}
}
