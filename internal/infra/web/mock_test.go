//go:build !integration

package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"solpay-gateway/internal/config"
	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
)

var errTest = errors.New("boom")

func newTestLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

func testConfig() *config.Config {
	return &config.Config{
		HTTP:    config.HTTPConfig{RequestTimeout: 5 * time.Second, PublicBaseURL: "https://pay.example.com/"},
		Paylink: config.PaylinkConfig{DefaultTTL: time.Hour, RateLimit: 2, RateWindow: time.Minute},
	}
}

// mockLedgerReader serves fixed records; err, when set, fails every call.
type mockLedgerReader struct {
	merchant      *model.MerchantRegistration
	plans         []*model.SubscriptionPlan
	subscriptions []*model.UserSubscription
	payments      []*model.PaymentTransaction
	withPlans     []usecase.SubscriptionWithPlan
	err           error
	lastKey       solana.PublicKey
}

func (m *mockLedgerReader) MerchantByOwner(_ context.Context, owner solana.PublicKey) (*model.MerchantRegistration, error) {
	m.lastKey = owner
	if m.err != nil {
		return nil, m.err
	}
	if m.merchant == nil {
		return nil, domain.ErrMerchantNotFound
	}
	return m.merchant, nil
}

func (m *mockLedgerReader) PlansByMerchant(_ context.Context, merchant solana.PublicKey) ([]*model.SubscriptionPlan, error) {
	m.lastKey = merchant
	return m.plans, m.err
}

func (m *mockLedgerReader) SubscriptionsByMerchant(_ context.Context, merchant solana.PublicKey) ([]*model.UserSubscription, error) {
	m.lastKey = merchant
	return m.subscriptions, m.err
}

func (m *mockLedgerReader) PaymentsByMerchant(_ context.Context, merchant solana.PublicKey) ([]*model.PaymentTransaction, error) {
	m.lastKey = merchant
	return m.payments, m.err
}

func (m *mockLedgerReader) PaymentsByPayer(_ context.Context, payer solana.PublicKey) ([]*model.PaymentTransaction, error) {
	m.lastKey = payer
	return m.payments, m.err
}

func (m *mockLedgerReader) MerchantStats(_ context.Context, merchant solana.PublicKey) (*usecase.MerchantStats, error) {
	m.lastKey = merchant
	if m.err != nil {
		return nil, m.err
	}
	st := &usecase.MerchantStats{Merchant: merchant, Payments: len(m.payments)}
	for _, p := range m.payments {
		st.RevenueLamports += p.Amount
	}
	st.Revenue = model.SOL(st.RevenueLamports)
	return st, nil
}

func (m *mockLedgerReader) SubscriptionsWithPlans(_ context.Context, subscriber solana.PublicKey) ([]usecase.SubscriptionWithPlan, error) {
	m.lastKey = subscriber
	return m.withPlans, m.err
}

// mockLimiter counts hits per key like a fixed window that never resets.
type mockLimiter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (m *mockLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.hits == nil {
		m.hits = map[string]int{}
	}
	m.hits[key]++
	return m.hits[key] <= limit, nil
}

type mockOutbox struct {
	entries []*model.PaymentLogEntry
	limit   int
}

func (m *mockOutbox) Enqueue(context.Context, repository.Tx, *model.PaymentLogEntry) error {
	return nil
}

func (m *mockOutbox) ListPending(_ context.Context, _ repository.Tx, _ solana.PublicKey, _ time.Time, limit int) ([]*model.PaymentLogEntry, error) {
	m.limit = limit
	return m.entries, nil
}

func (m *mockOutbox) MarkDone(context.Context, repository.Tx, string) error { return nil }

func (m *mockOutbox) MarkFailed(context.Context, repository.Tx, string, string) error { return nil }
