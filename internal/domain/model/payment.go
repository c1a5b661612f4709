package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

type PaymentStatus uint8

const (
	PaymentStatusPending   PaymentStatus = 0
	PaymentStatusCompleted PaymentStatus = 1
	PaymentStatusFailed    PaymentStatus = 2
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentStatusPending:
		return "pending"
	case PaymentStatusCompleted:
		return "completed"
	case PaymentStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// NativeAsset identifies native SOL in asset fields (the system program id).
var NativeAsset = solana.SystemProgramID

// PaymentTransaction is the append-only audit record of a value transfer.
// The transfer itself is authoritative; this record is a best-effort log.
type PaymentTransaction struct {
	Address   solana.PublicKey // derived from ("payment", sha256(Signature))
	Signature string           // base58 signature of the transfer transaction
	Payer     solana.PublicKey
	Merchant  solana.PublicKey
	Amount    uint64
	Asset     solana.PublicKey
	Status    PaymentStatus
	CreatedAt time.Time
}

// PaymentLogEntry is a phase-2 audit log that still has to reach the ledger.
type PaymentLogEntry struct {
	Signature string
	Payer     solana.PublicKey
	Merchant  solana.PublicKey
	Amount    uint64
	Asset     solana.PublicKey
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}
