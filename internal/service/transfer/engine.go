package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/peerpay/internal/domain"
	"github.com/josh-kwaku/peerpay/internal/events"
	"github.com/josh-kwaku/peerpay/internal/store"
)

type eventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type Settings struct {
	Currency domain.Currency
	// TransferLimit caps a single transfer in minor units. Zero disables it.
	TransferLimit   int64
	MaxHistoryLimit int
	// FinishTimeout bounds the steps that run after the debit, which ignore
	// caller cancellation.
	FinishTimeout time.Duration
	// PublishTimeout bounds each event write, so a slow broker adds at most
	// this much to a completed transfer.
	PublishTimeout time.Duration
}

const (
	defaultMaxHistoryLimit = 100
	defaultFinishTimeout   = 10 * time.Second
	defaultPublishTimeout  = 2 * time.Second
	historyPageSize        = 50
)

type Engine struct {
	store    store.Store
	tx       store.Transactional
	events   eventPublisher
	settings Settings
	now      func() time.Time
}

// NewEngine wires the engine to a store. Stores that implement
// store.Transactional run each transfer in one storage transaction; others
// get explicit compensation on partial failure.
func NewEngine(s store.Store, publisher eventPublisher, settings Settings) *Engine {
	if settings.Currency == "" {
		settings.Currency = domain.DefaultCurrency
	}
	if settings.MaxHistoryLimit <= 0 {
		settings.MaxHistoryLimit = defaultMaxHistoryLimit
	}
	if settings.FinishTimeout <= 0 {
		settings.FinishTimeout = defaultFinishTimeout
	}
	if settings.PublishTimeout <= 0 {
		settings.PublishTimeout = defaultPublishTimeout
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	e := &Engine{
		store:    s,
		events:   publisher,
		settings: settings,
		now:      time.Now,
	}
	if tx, ok := s.(store.Transactional); ok {
		e.tx = tx
	}
	return e
}

func (e *Engine) Currency() domain.Currency { return e.settings.Currency }

func (e *Engine) strategy() string {
	if e.tx != nil {
		return "transaction"
	}
	return "compensating"
}

func (e *Engine) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := e.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("GetAccount: %w", domain.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}
