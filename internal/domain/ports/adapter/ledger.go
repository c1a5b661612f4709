package adapter

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Freshness is the recent-blockhash marker attached to a transaction right
// before signing. The network rejects the transaction once the chain passes
// LastValidBlockHeight.
type Freshness struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

// AccountInfo is the raw state of one ledger account.
type AccountInfo struct {
	Address  solana.PublicKey
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// MemcmpFilter matches accounts whose data contains Bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// LedgerClient is the port to the ledger network. A single instance is built
// at process start and shared; implementations hold no per-call state.
//
// GetAccount returns domain.ErrAccountNotFound (and only that) when the
// account does not exist. SendTransaction and ConfirmTransaction wrap
// transport failures with domain.ErrNetwork and report an already-initialized
// destination account as domain.ErrAccountInUse.
type LedgerClient interface {
	LatestBlockhash(ctx context.Context) (Freshness, error)
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error)
	GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters ...MemcmpFilter) ([]*AccountInfo, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	ConfirmTransaction(ctx context.Context, sig solana.Signature, fresh Freshness) error
}
