// File: internal/usecase/preflight.go
package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/solpay"
)

// PreflightGuard runs existence and duplicate checks before any instruction
// is built. It narrows the common failure cases to a fast rejection; it is
// not a uniqueness guarantee, since another submission can land between the
// check and the create.
type PreflightGuard struct {
	ledger  adapter.LedgerClient
	deriver *pda.Deriver
}

func NewPreflightGuard(ledger adapter.LedgerClient, deriver *pda.Deriver) *PreflightGuard {
	return &PreflightGuard{ledger: ledger, deriver: deriver}
}

// fetch returns (nil, nil) when the account is absent. Any other failure
// propagates unchanged.
func fetch[R any](ctx context.Context, g *PreflightGuard, acct solpay.Account[R], addr solana.PublicKey) (*R, error) {
	info, err := g.ledger.GetAccount(ctx, addr)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct.Decode(addr, info.Data)
}

// EnsureNoExistingSubscription fails with ErrAlreadySubscribed when the
// subscriber already holds a subscription record for plan.
func (g *PreflightGuard) EnsureNoExistingSubscription(ctx context.Context, plan, subscriber solana.PublicKey) error {
	addr, _, err := g.deriver.UserSubscription(plan, subscriber)
	if err != nil {
		return err
	}
	_, err = g.ledger.GetAccount(ctx, addr)
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return nil
	case err != nil:
		return err
	}
	return fmt.Errorf("%w: %s", domain.ErrAlreadySubscribed, addr)
}

// Merchant loads the registration owned by owner.
func (g *PreflightGuard) Merchant(ctx context.Context, owner solana.PublicKey) (*model.MerchantRegistration, error) {
	addr, _, err := g.deriver.Merchant(owner)
	if err != nil {
		return nil, err
	}
	m, err := fetch(ctx, g, solpay.MerchantAccount, addr)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: owner %s", domain.ErrMerchantNotFound, owner)
	}
	return m, nil
}

func (g *PreflightGuard) Plan(ctx context.Context, addr solana.PublicKey) (*model.SubscriptionPlan, error) {
	p, err := fetch(ctx, g, solpay.PlanAccount, addr)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanNotFound, addr)
	}
	return p, nil
}

func (g *PreflightGuard) Subscription(ctx context.Context, addr solana.PublicKey) (*model.UserSubscription, error) {
	s, err := fetch(ctx, g, solpay.UserSubscriptionAccount, addr)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSubscriptionNotFound, addr)
	}
	return s, nil
}

// EnsureBalance fails with ErrInsufficientFunds when payer holds less than
// required lamports. Fees are not included.
func (g *PreflightGuard) EnsureBalance(ctx context.Context, payer solana.PublicKey, required uint64) error {
	bal, err := g.ledger.GetBalance(ctx, payer)
	if err != nil {
		return err
	}
	if bal < required {
		return fmt.Errorf("%w: balance %d < %d", domain.ErrInsufficientFunds, bal, required)
	}
	return nil
}

// PaymentLogged returns the audit record for signature, or nil when none exists.
func (g *PreflightGuard) PaymentLogged(ctx context.Context, signature string) (*model.PaymentTransaction, error) {
	addr, _, err := g.deriver.Payment(signature)
	if err != nil {
		return nil, err
	}
	return fetch(ctx, g, solpay.PaymentAccount, addr)
}
