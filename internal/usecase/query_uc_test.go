//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/solpay"
	"solpay-gateway/internal/usecase"
)

func putPlan(t *testing.T, l *FakeLedger, name string, merchant solana.PublicKey, active bool) solana.PublicKey {
	t.Helper()
	addr, _, err := pda.New(testProgram).Plan(name, merchant)
	if err != nil {
		t.Fatalf("derive plan: %v", err)
	}
	data, _ := solpay.PlanAccount.Encode(&model.SubscriptionPlan{
		Name: name, Price: 10, Asset: model.NativeAsset, BillingCycleDays: 30, Active: active,
		Merchant: merchant, CreatedAt: time.Unix(int64(len(name)), 0),
	})
	l.Put(addr, data)
	return addr
}

func putSubscription(t *testing.T, l *FakeLedger, plan, subscriber, merchant solana.PublicKey, active bool) solana.PublicKey {
	t.Helper()
	addr, _, _ := pda.New(testProgram).UserSubscription(plan, subscriber)
	s := &model.UserSubscription{Subscriber: subscriber, Plan: plan, Active: active, Merchant: merchant}
	if !active {
		now := time.Unix(5, 0)
		s.CanceledAt = &now
	}
	data, _ := solpay.UserSubscriptionAccount.Encode(s)
	l.Put(addr, data)
	return addr
}

func putPayment(t *testing.T, l *FakeLedger, sig string, payer, merchant solana.PublicKey, amount uint64, at int64) {
	t.Helper()
	addr, _, _ := pda.New(testProgram).Payment(sig)
	data, _ := solpay.PaymentAccount.Encode(&model.PaymentTransaction{
		Signature: sig, Payer: payer, Merchant: merchant, Amount: amount, Asset: model.NativeAsset,
		Status: model.PaymentStatusCompleted, CreatedAt: time.Unix(at, 0),
	})
	l.Put(addr, data)
}

func TestLedgerQuery(t *testing.T) {
	ctx := context.Background()
	m1 := solana.NewWallet().PublicKey()
	m2 := solana.NewWallet().PublicKey()
	alice := solana.NewWallet().PublicKey()
	bob := solana.NewWallet().PublicKey()

	ledger := NewFakeLedger()
	gold := putPlan(t, ledger, "Gold", m1, true)
	putPlan(t, ledger, "Platinum", m1, false)
	silver := putPlan(t, ledger, "Silver", m2, true)
	putSubscription(t, ledger, gold, alice, m1, true)
	putSubscription(t, ledger, gold, bob, m1, false)
	putSubscription(t, ledger, silver, alice, m2, true)
	putPayment(t, ledger, "sig-old", alice, m1, 100, 10)
	putPayment(t, ledger, "sig-new", bob, m1, 250, 20)
	putPayment(t, ledger, "sig-m2", alice, m2, 7, 30)

	q := usecase.NewLedgerQuery(ledger, testProgram, newTestLogger())

	t.Run("should filter plans by merchant despite variable name length", func(t *testing.T) {
		plans, err := q.PlansByMerchant(ctx, m1)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if len(plans) != 2 {
			t.Fatalf("expected 2 plans for m1, got %d", len(plans))
		}
		for _, p := range plans {
			if !p.Merchant.Equals(m1) {
				t.Errorf("plan %s belongs to %s", p.Name, p.Merchant)
			}
		}
	})

	t.Run("should filter subscriptions at fixed offsets", func(t *testing.T) {
		byAlice, err := q.SubscriptionsBySubscriber(ctx, alice)
		if err != nil || len(byAlice) != 2 {
			t.Fatalf("expected 2 subscriptions for alice, got %d (%v)", len(byAlice), err)
		}
		byMerchant, err := q.SubscriptionsByMerchant(ctx, m1)
		if err != nil || len(byMerchant) != 2 {
			t.Fatalf("expected 2 subscriptions for m1, got %d (%v)", len(byMerchant), err)
		}
		n, err := q.ActiveSubscribers(ctx, gold)
		if err != nil || n != 1 {
			t.Errorf("expected 1 active subscriber on gold, got %d (%v)", n, err)
		}
	})

	t.Run("should list payments newest first", func(t *testing.T) {
		ps, err := q.PaymentsByMerchant(ctx, m1)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if len(ps) != 2 || ps[0].Signature != "sig-new" || ps[1].Signature != "sig-old" {
			t.Errorf("unexpected payments order: %+v", ps)
		}
		byPayer, _ := q.PaymentsByPayer(ctx, alice)
		if len(byPayer) != 2 {
			t.Errorf("expected 2 payments by alice, got %d", len(byPayer))
		}
	})

	t.Run("should enrich subscriptions with plans", func(t *testing.T) {
		orphan := solana.NewWallet().PublicKey()
		l := NewFakeLedger()
		p := putPlan(t, l, "Gold", m1, true)
		putSubscription(t, l, p, alice, m1, true)
		putSubscription(t, l, orphan, alice, m1, true)

		out, err := usecase.NewLedgerQuery(l, testProgram, nil).SubscriptionsWithPlans(ctx, alice)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		resolved := 0
		for _, sp := range out {
			if sp.Plan != nil {
				resolved++
				if sp.Plan.Name != "Gold" {
					t.Errorf("unexpected plan %s", sp.Plan.Name)
				}
			}
		}
		if len(out) != 2 || resolved != 1 {
			t.Errorf("expected 2 subscriptions with 1 resolved plan, got %d/%d", len(out), resolved)
		}
	})

	t.Run("should summarize merchant stats", func(t *testing.T) {
		st, err := q.MerchantStats(ctx, m1)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if st.Plans != 2 || st.ActivePlans != 1 || st.Subscriptions != 2 || st.ActiveSubscriptions != 1 {
			t.Errorf("unexpected counts %+v", st)
		}
		if st.Payments != 2 || st.RevenueLamports != 350 {
			t.Errorf("unexpected revenue %+v", st)
		}
	})

	t.Run("should fetch merchant by derived address", func(t *testing.T) {
		l := NewFakeLedger()
		addr, _, _ := pda.New(testProgram).Merchant(m1)
		data, _ := solpay.MerchantAccount.Encode(&model.MerchantRegistration{Name: "Coffee", Owner: m1, Active: true})
		l.Put(addr, data)
		ql := usecase.NewLedgerQuery(l, testProgram, nil)

		m, err := ql.MerchantByOwner(ctx, m1)
		if err != nil || m.Name != "Coffee" || !m.Address.Equals(addr) {
			t.Errorf("unexpected merchant %+v (%v)", m, err)
		}
		if _, err := ql.MerchantByOwner(ctx, m2); !errors.Is(err, domain.ErrMerchantNotFound) {
			t.Errorf("expected ErrMerchantNotFound, got %v", err)
		}
		all, err := usecase.ListByOwner(ctx, ql, usecase.MerchantsByOwnerFilter, m1)
		if err != nil || len(all) != 1 {
			t.Errorf("expected scan to find the merchant, got %d (%v)", len(all), err)
		}
	})

	t.Run("should fail loudly on a corrupt record", func(t *testing.T) {
		l := NewFakeLedger()
		bad := append([]byte{}, solpay.PlanAccount.Discriminator[:]...)
		l.Put(solana.NewWallet().PublicKey(), append(bad, 0xff, 0xff, 0xff, 0xff))
		_, err := usecase.NewLedgerQuery(l, testProgram, nil).PlansByMerchant(ctx, m1)
		if !errors.Is(err, domain.ErrMalformedAccount) {
			t.Errorf("expected ErrMalformedAccount, got %v", err)
		}
	})
}
