package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/repository"
)

var _ repository.PaymentLogOutbox = (*paymentLogOutboxRepo)(nil)

const (
	outboxPending = "pending"
	outboxDone    = "done"
)

type paymentLogOutboxRepo struct{ pool *pgxpool.Pool }

func NewPaymentLogOutboxRepo(pool *pgxpool.Pool) *paymentLogOutboxRepo {
	return &paymentLogOutboxRepo{pool: pool}
}

func (r *paymentLogOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, e *model.PaymentLogEntry) error {
	if e == nil || e.Signature == "" || e.Amount == 0 {
		return domain.ErrInvalidArgument
	}
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO payment_log_outbox (signature, payer, merchant, amount, asset, last_error)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (signature) DO NOTHING;`
	if _, err := exec.Exec(ctx, q, e.Signature, e.Payer.String(), e.Merchant.String(), int64(e.Amount), e.Asset.String(), e.LastError); err != nil {
		return fmt.Errorf("%w: enqueue payment log: %v", domain.ErrOperationFailed, err)
	}
	return nil
}

// ListPending returns pending entries of payer last touched at or before
// olderThan, oldest first. Inside a transaction the rows are locked and rows locked by
// another drainer are skipped.
func (r *paymentLogOutboxRepo) ListPending(ctx context.Context, tx repository.Tx, payer solana.PublicKey, olderThan time.Time, limit int) ([]*model.PaymentLogEntry, error) {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	q := `
SELECT signature, payer, merchant, amount, asset, attempts, last_error, created_at, updated_at
FROM payment_log_outbox
WHERE status = $1 AND updated_at <= $2 AND ($3 = '' OR payer = $3)
ORDER BY created_at
LIMIT $4`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE SKIP LOCKED"
	}
	q += ";"

	payerFilter := ""
	if !payer.IsZero() {
		payerFilter = payer.String()
	}
	rows, err := exec.Query(ctx, q, outboxPending, olderThan, payerFilter, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list payment log outbox: %v", domain.ErrOperationFailed, err)
	}
	defer rows.Close()

	var out []*model.PaymentLogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *paymentLogOutboxRepo) MarkDone(ctx context.Context, tx repository.Tx, signature string) error {
	const q = `UPDATE payment_log_outbox SET status=$2, updated_at=NOW() WHERE signature=$1;`
	return r.update(ctx, tx, q, signature, outboxDone)
}

func (r *paymentLogOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, signature string, reason string) error {
	const q = `UPDATE payment_log_outbox SET attempts=attempts+1, last_error=$2, updated_at=NOW() WHERE signature=$1;`
	return r.update(ctx, tx, q, signature, reason)
}

func (r *paymentLogOutboxRepo) update(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	exec, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	tag, err := exec.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: update payment log outbox: %v", domain.ErrOperationFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*model.PaymentLogEntry, error) {
	var (
		e                      model.PaymentLogEntry
		payer, merchant, asset string
		amount                 int64
	)
	if err := row.Scan(&e.Signature, &payer, &merchant, &amount, &asset, &e.Attempts, &e.LastError, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, fmt.Errorf("%w: scan payment log outbox: %v", domain.ErrOperationFailed, err)
	}
	var err error
	if e.Payer, err = solana.PublicKeyFromBase58(payer); err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	if e.Merchant, err = solana.PublicKeyFromBase58(merchant); err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	if e.Asset, err = solana.PublicKeyFromBase58(asset); err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}
	e.Amount = uint64(amount)
	return &e, nil
}
