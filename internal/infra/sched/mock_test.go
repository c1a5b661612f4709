//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync"
	"time"

	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/repository"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type mockOutbox struct {
	mu       sync.Mutex
	pending  []*model.PaymentLogEntry
	done     []string
	failed   map[string]string
	listErr  error
	payer    solana.PublicKey
	cutoff   time.Time
	maxBatch int
	txs      []repository.Tx
}

func newMockOutbox(entries ...*model.PaymentLogEntry) *mockOutbox {
	return &mockOutbox{pending: entries, failed: map[string]string{}}
}

func (m *mockOutbox) Enqueue(_ context.Context, _ repository.Tx, e *model.PaymentLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, e)
	return nil
}

func (m *mockOutbox) ListPending(_ context.Context, tx repository.Tx, payer solana.PublicKey, olderThan time.Time, limit int) ([]*model.PaymentLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	m.payer, m.cutoff, m.maxBatch = payer, olderThan, limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := m.pending
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockOutbox) MarkDone(_ context.Context, tx repository.Tx, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs = append(m.txs, tx)
	m.done = append(m.done, signature)
	return nil
}

func (m *mockOutbox) MarkFailed(_ context.Context, _ repository.Tx, signature, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[signature] = reason
	return nil
}

// mockSubmitter returns the error mapped to each signature.
type mockSubmitter struct {
	wallet    solana.PublicKey
	errs      map[string]error
	calls     []string
	deadlines []time.Time
	// onRetry runs after each submission is recorded.
	onRetry func()
}

func (m *mockSubmitter) Wallet() solana.PublicKey { return m.wallet }

func (m *mockSubmitter) RetryPaymentLog(ctx context.Context, e *model.PaymentLogEntry) error {
	m.calls = append(m.calls, e.Signature)
	if d, ok := ctx.Deadline(); ok {
		m.deadlines = append(m.deadlines, d)
	}
	if m.onRetry != nil {
		m.onRetry()
	}
	return m.errs[e.Signature]
}

type mockLocker struct {
	held     bool
	unlocked int
	ttl      time.Duration
}

func (m *mockLocker) TryLock(_ context.Context, _ string, ttl time.Duration) (string, error) {
	m.ttl = ttl
	if m.held {
		return "", errors.New("lock held")
	}
	return "token", nil
}

func (m *mockLocker) Unlock(context.Context, string, string) error {
	m.unlocked++
	return nil
}

type fakeTx struct{}

// mockTxManager hands fn a fakeTx and reports err after it ran.
type mockTxManager struct {
	calls int
	err   error
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.calls++
	if err := fn(ctx, fakeTx{}); err != nil {
		return err
	}
	return m.err
}
