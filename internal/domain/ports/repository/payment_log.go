package repository

import (
	"context"
	"time"

	"solpay-gateway/internal/domain/model"

	"github.com/gagliardetto/solana-go"
)

// -----------------------------
// Payment log outbox
// -----------------------------

// PaymentLogOutbox queues audit-log submissions that failed after their
// transfer confirmed, so they can be retried out-of-band. Entries are keyed
// by transfer signature; enqueueing the same signature twice is a no-op.
// Only the payer can sign an audit log, so drainers list by payer; a zero
// payer lists every entry.
type PaymentLogOutbox interface {
	Enqueue(ctx context.Context, tx Tx, e *model.PaymentLogEntry) error
	ListPending(ctx context.Context, tx Tx, payer solana.PublicKey, olderThan time.Time, limit int) ([]*model.PaymentLogEntry, error)
	MarkDone(ctx context.Context, tx Tx, signature string) error
	MarkFailed(ctx context.Context, tx Tx, signature string, reason string) error
}
