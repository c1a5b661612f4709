package sched

import (
	"context"
	"time"

	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/infra/metrics"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// PaymentLogSubmitter re-submits an audit log whose transfer already settled.
// It can only sign for entries paid by Wallet.
type PaymentLogSubmitter interface {
	Wallet() solana.PublicKey
	RetryPaymentLog(ctx context.Context, e *model.PaymentLogEntry) error
}

// Locker lets several gateway instances share one outbox without draining
// the same entries concurrently.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// PaymentLogRetrier periodically drains the payment log outbox. Entries are
// idempotent by transfer signature, so a record that reached the ledger in
// the meantime counts as done.
type PaymentLogRetrier struct {
	submitter   PaymentLogSubmitter
	outbox      repository.PaymentLogOutbox
	interval    time.Duration
	minAge      time.Duration
	batch       int
	maxAttempts int
	budget      time.Duration
	perEntry    time.Duration
	locker      Locker
	lockKey     string
	txm         repository.TransactionManager
	now         func() time.Time
	log         *zerolog.Logger
}

type RetrierOption func(*PaymentLogRetrier)

// WithLocker guards each tick with key.
func WithLocker(l Locker, key string) RetrierOption {
	return func(w *PaymentLogRetrier) { w.locker, w.lockKey = l, key }
}

// WithTxManager drains each batch inside one transaction so listed rows stay
// locked until they are marked. Rows locked by another drainer are skipped.
func WithTxManager(tm repository.TransactionManager) RetrierOption {
	return func(w *PaymentLogRetrier) { w.txm = tm }
}

// WithMaxAttempts abandons entries that failed n times. Zero keeps them forever.
func WithMaxAttempts(n int) RetrierOption {
	return func(w *PaymentLogRetrier) { w.maxAttempts = n }
}

// WithDrainBudget stops starting new submissions once a pass has run for d.
// Defaults to the tick interval.
func WithDrainBudget(d time.Duration) RetrierOption {
	return func(w *PaymentLogRetrier) { w.budget = d }
}

// WithEntryTimeout bounds each re-submission, including its confirmation.
func WithEntryTimeout(d time.Duration) RetrierOption {
	return func(w *PaymentLogRetrier) { w.perEntry = d }
}

func WithRetrierClock(now func() time.Time) RetrierOption {
	return func(w *PaymentLogRetrier) { w.now = now }
}

func NewPaymentLogRetrier(submitter PaymentLogSubmitter, outbox repository.PaymentLogOutbox, interval, minAge time.Duration, batch int, logger *zerolog.Logger, opts ...RetrierOption) *PaymentLogRetrier {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 20
	}
	w := &PaymentLogRetrier{
		submitter: submitter,
		outbox:    outbox,
		interval:  interval,
		minAge:    minAge,
		batch:     batch,
		now:       time.Now,
		log:       logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.budget <= 0 {
		w.budget = w.interval
	}
	return w
}

// lockTTL covers the longest pass: the budget plus one submission started
// just before it ran out.
func (w *PaymentLogRetrier) lockTTL() time.Duration {
	return w.budget + w.perEntry
}

func (w *PaymentLogRetrier) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one drain pass and reports how many entries were settled.
func (w *PaymentLogRetrier) Tick(ctx context.Context) int {
	if w.locker != nil {
		token, err := w.locker.TryLock(ctx, w.lockKey, w.lockTTL())
		if err != nil {
			metrics.IncOutbox("skipped")
			w.log.Debug().Err(err).Msg("payment-log-retrier: lock not acquired")
			return 0
		}
		defer func() {
			if err := w.locker.Unlock(context.WithoutCancel(ctx), w.lockKey, token); err != nil {
				w.log.Warn().Err(err).Msg("payment-log-retrier: unlock failed")
			}
		}()
	}

	if w.txm == nil {
		return w.drain(ctx, repository.NoTX)
	}
	settled := 0
	err := w.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		settled = w.drain(ctx, tx)
		return nil
	})
	if err != nil {
		w.log.Error().Err(err).Msg("payment-log-retrier: drain transaction")
		return 0
	}
	return settled
}

func (w *PaymentLogRetrier) drain(ctx context.Context, tx repository.Tx) int {
	pending, err := w.outbox.ListPending(ctx, tx, w.submitter.Wallet(), w.now().Add(-w.minAge), w.batch)
	if err != nil {
		w.log.Error().Err(err).Msg("payment-log-retrier: list pending")
		return 0
	}

	start := w.now()
	settled := 0
	for i, e := range pending {
		if ctx.Err() != nil {
			break
		}
		if w.now().Sub(start) >= w.budget {
			w.log.Info().Int("deferred", len(pending)-i).Msg("payment-log-retrier: drain budget spent")
			break
		}
		if w.retry(ctx, tx, e) {
			settled++
		}
	}
	return settled
}

func (w *PaymentLogRetrier) retry(ctx context.Context, tx repository.Tx, e *model.PaymentLogEntry) bool {
	l := w.log.With().Str("signature", e.Signature).Int("attempts", e.Attempts).Logger()

	err := w.submit(ctx, e)
	if err == nil {
		if err := w.outbox.MarkDone(ctx, tx, e.Signature); err != nil {
			l.Error().Err(err).Msg("payment-log-retrier: mark done")
			return false
		}
		metrics.IncOutbox("done")
		l.Info().Msg("payment-log-retrier: payment log recorded")
		return true
	}

	if !usecase.Retryable(err) || (w.maxAttempts > 0 && e.Attempts+1 >= w.maxAttempts) {
		if markErr := w.outbox.MarkDone(ctx, tx, e.Signature); markErr != nil {
			l.Error().Err(markErr).Msg("payment-log-retrier: mark abandoned")
			return false
		}
		metrics.IncOutbox("abandoned")
		l.Error().Err(err).Msg("payment-log-retrier: payment log abandoned")
		return false
	}

	if markErr := w.outbox.MarkFailed(ctx, tx, e.Signature, err.Error()); markErr != nil {
		l.Error().Err(markErr).Msg("payment-log-retrier: mark failed")
	}
	metrics.IncOutbox("failed")
	l.Warn().Err(err).Msg("payment-log-retrier: retry failed")
	return false
}

func (w *PaymentLogRetrier) submit(ctx context.Context, e *model.PaymentLogEntry) error {
	if w.perEntry > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.perEntry)
		defer cancel()
	}
	return w.submitter.RetryPaymentLog(ctx, e)
}
