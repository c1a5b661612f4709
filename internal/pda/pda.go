// Package pda derives the program-owned addresses of solpay records. The
// derivation must agree byte for byte with the on-chain program so both sides
// find the same account without any registry.
package pda

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
)

// Seed tags, ASCII, as the program declares them.
const (
	TagMerchant         = "merchant"
	TagPlan             = "subscription"
	TagUserSubscription = "user_subscription"
	TagPayment          = "payment"
)

// Deriver computes addresses under one program id. It is stateless and safe
// for concurrent use.
type Deriver struct {
	ProgramID solana.PublicKey
}

func New(programID solana.PublicKey) *Deriver {
	return &Deriver{ProgramID: programID}
}

// Derive searches bumps from 255 down and returns the first candidate
// address of [tag, seeds..., bump] that lies off the ed25519 curve.
func (d *Deriver) Derive(tag string, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	all := make([][]byte, 0, len(seeds)+2)
	all = append(all, []byte(tag))
	all = append(all, seeds...)
	for i, s := range all {
		if len(s) > solana.MaxSeedLength {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: seed %d is %d bytes", domain.ErrSeedTooLong, i, len(s))
		}
	}
	if len(all)+1 > solana.MaxSeeds {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: %d seeds", domain.ErrInvalidArgument, len(all))
	}

	withBump := append(all, []byte{0})
	for bump := 255; bump >= 0; bump-- {
		withBump[len(withBump)-1][0] = byte(bump)
		addr, err := solana.CreateProgramAddress(withBump, d.ProgramID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, domain.ErrDerivationExhausted
}

func (d *Deriver) Merchant(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Derive(TagMerchant, owner[:])
}

// Plan derives a plan address. The name is used raw, so names longer than
// 32 bytes cannot be plans.
func (d *Deriver) Plan(name string, merchant solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Derive(TagPlan, []byte(name), merchant[:])
}

func (d *Deriver) UserSubscription(plan, subscriber solana.PublicKey) (solana.PublicKey, uint8, error) {
	return d.Derive(TagUserSubscription, plan[:], subscriber[:])
}

// Payment derives the audit-log address for a transfer signature. Encoded
// signatures run to 88 characters, so the seed is their sha256 digest.
func (d *Deriver) Payment(signature string) (solana.PublicKey, uint8, error) {
	h := SignatureSeed(signature)
	return d.Derive(TagPayment, h[:])
}

// SignatureSeed is the fixed 32-byte seed standing in for a transfer signature.
func SignatureSeed(signature string) [32]byte {
	return sha256.Sum256([]byte(signature))
}
