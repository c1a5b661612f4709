package adapter

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Wallet signs transactions on behalf of one identity. Declining to sign
// must surface as domain.ErrUserRejected.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}
