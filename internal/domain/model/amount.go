package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"solpay-gateway/internal/domain"
)

// LamportsPerSOL is the number of minor units in one SOL.
const LamportsPerSOL = 1_000_000_000

var lamportsPerSOL = decimal.NewFromInt(LamportsPerSOL)

// SOL converts lamports to a SOL amount for display.
func SOL(lamports uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), 0).Div(lamportsPerSOL)
}

// Lamports converts a SOL amount to lamports. Fractions below one lamport
// and negative amounts are rejected.
func Lamports(sol decimal.Decimal) (uint64, error) {
	if sol.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", domain.ErrInvalidArgument, sol)
	}
	l := sol.Mul(lamportsPerSOL)
	if !l.Equal(l.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s SOL is not a whole number of lamports", domain.ErrInvalidArgument, sol)
	}
	if !l.BigInt().IsUint64() {
		return 0, fmt.Errorf("%w: %s SOL overflows", domain.ErrInvalidArgument, sol)
	}
	return l.BigInt().Uint64(), nil
}

// ParseSOL parses a decimal SOL string such as "0.25" into lamports.
func ParseSOL(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return Lamports(d)
}
