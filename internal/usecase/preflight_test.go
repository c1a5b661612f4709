//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/solpay"
	"solpay-gateway/internal/usecase"
)

func TestPreflightGuard(t *testing.T) {
	ctx := context.Background()
	deriver := pda.New(testProgram)
	plan := solana.NewWallet().PublicKey()
	subscriber := solana.NewWallet().PublicKey()

	t.Run("should proceed when no subscription exists", func(t *testing.T) {
		g := usecase.NewPreflightGuard(NewFakeLedger(), deriver)
		if err := g.EnsureNoExistingSubscription(ctx, plan, subscriber); err != nil {
			t.Errorf("expected no error, but got: %v", err)
		}
	})

	t.Run("should fail fast on an existing subscription", func(t *testing.T) {
		ledger := NewFakeLedger()
		addr, _, _ := deriver.UserSubscription(plan, subscriber)
		data, _ := solpay.UserSubscriptionAccount.Encode(&model.UserSubscription{Subscriber: subscriber, Plan: plan})
		ledger.Put(addr, data)

		g := usecase.NewPreflightGuard(ledger, deriver)
		if err := g.EnsureNoExistingSubscription(ctx, plan, subscriber); !errors.Is(err, domain.ErrAlreadySubscribed) {
			t.Errorf("expected ErrAlreadySubscribed, got %v", err)
		}
	})

	t.Run("should not mask network failures as absent", func(t *testing.T) {
		ledger := NewFakeLedger()
		ledger.GetAccountErr = domain.ErrNetwork
		g := usecase.NewPreflightGuard(ledger, deriver)

		if err := g.EnsureNoExistingSubscription(ctx, plan, subscriber); !errors.Is(err, domain.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
		if _, err := g.Merchant(ctx, subscriber); !errors.Is(err, domain.ErrNetwork) {
			t.Errorf("expected ErrNetwork from merchant check, got %v", err)
		}
		if _, err := g.PaymentLogged(ctx, "sig"); !errors.Is(err, domain.ErrNetwork) {
			t.Errorf("expected ErrNetwork from payment check, got %v", err)
		}
	})

	t.Run("should surface malformed records", func(t *testing.T) {
		ledger := NewFakeLedger()
		ledger.Put(plan, []byte("not a plan at all"))
		g := usecase.NewPreflightGuard(ledger, deriver)
		if _, err := g.Plan(ctx, plan); !errors.Is(err, domain.ErrMalformedAccount) {
			t.Errorf("expected ErrMalformedAccount, got %v", err)
		}
	})

	t.Run("should report missing records by kind", func(t *testing.T) {
		g := usecase.NewPreflightGuard(NewFakeLedger(), deriver)
		if _, err := g.Merchant(ctx, subscriber); !errors.Is(err, domain.ErrMerchantNotFound) {
			t.Errorf("expected ErrMerchantNotFound, got %v", err)
		}
		if _, err := g.Plan(ctx, plan); !errors.Is(err, domain.ErrPlanNotFound) {
			t.Errorf("expected ErrPlanNotFound, got %v", err)
		}
		if _, err := g.Subscription(ctx, plan); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if rec, err := g.PaymentLogged(ctx, "sig"); err != nil || rec != nil {
			t.Errorf("expected no record and no error, got %v (%v)", rec, err)
		}
	})

	t.Run("should compare balance with the required amount", func(t *testing.T) {
		ledger := NewFakeLedger()
		ledger.Fund(subscriber, 100)
		g := usecase.NewPreflightGuard(ledger, deriver)
		if err := g.EnsureBalance(ctx, subscriber, 100); err != nil {
			t.Errorf("expected exact balance to pass, got %v", err)
		}
		if err := g.EnsureBalance(ctx, subscriber, 101); !errors.Is(err, domain.ErrInsufficientFunds) {
			t.Errorf("expected ErrInsufficientFunds, got %v", err)
		}
		ledger.BalanceErr = domain.ErrNetwork
		if err := g.EnsureBalance(ctx, subscriber, 1); !errors.Is(err, domain.ErrNetwork) {
			t.Errorf("expected ErrNetwork, got %v", err)
		}
	})
}
