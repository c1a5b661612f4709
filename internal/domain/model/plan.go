package model

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
)

const secondsPerDay = 24 * 60 * 60

// SubscriptionPlan is a merchant-defined recurring price point.
// Price is in minor units (lamports for the native asset).
type SubscriptionPlan struct {
	Address          solana.PublicKey // derived from ("subscription", name, merchant)
	Name             string
	Price            uint64
	Asset            solana.PublicKey
	BillingCycleDays uint8
	Active           bool
	Merchant         solana.PublicKey // merchant owner wallet, not the registration address
	SupportedAssets  []solana.PublicKey
	CreatedAt        time.Time
}

// PlanParams carries the caller-supplied fields for a new plan.
type PlanParams struct {
	Name             string
	Price            uint64
	Asset            solana.PublicKey
	BillingCycleDays uint8
	SupportedAssets  []solana.PublicKey
	Active           bool
}

// Validate enforces the plan invariants checked before any instruction is built.
func (p PlanParams) Validate() error {
	switch {
	case p.Name == "":
		return fmt.Errorf("%w: plan name is required", domain.ErrInvalidArgument)
	case p.Price == 0:
		return fmt.Errorf("%w: plan price must be positive", domain.ErrInvalidArgument)
	case p.BillingCycleDays == 0:
		return fmt.Errorf("%w: billing cycle must be positive", domain.ErrInvalidArgument)
	}
	return nil
}

// NextBillingDate is the first renewal instant for a subscription starting at from.
func (p *SubscriptionPlan) NextBillingDate(from time.Time) time.Time {
	return time.Unix(from.Unix()+int64(p.BillingCycleDays)*secondsPerDay, 0)
}
