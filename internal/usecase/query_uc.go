// File: internal/usecase/query_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/solpay"
)

// Filter selects records of type R whose key field equals a value. The only
// implementations are OffsetFilter, for fields at a constant byte offset, and
// ScanFilter, for fields behind a variable-length prefix.
type Filter[R any] interface {
	account() solpay.Account[R]
	memcmp(value solana.PublicKey) []adapter.MemcmpFilter
	match(r *R, value solana.PublicKey) bool
}

// OffsetFilter matches on the ledger with a byte comparison at a fixed offset.
type OffsetFilter[R any] struct {
	acct   solpay.Account[R]
	offset uint64
}

func (f OffsetFilter[R]) account() solpay.Account[R] { return f.acct }

func (f OffsetFilter[R]) memcmp(v solana.PublicKey) []adapter.MemcmpFilter {
	return []adapter.MemcmpFilter{
		{Offset: 0, Bytes: f.acct.Discriminator[:]},
		{Offset: f.offset, Bytes: v.Bytes()},
	}
}

func (f OffsetFilter[R]) match(*R, solana.PublicKey) bool { return true }

// ScanFilter fetches every record of the type and compares the decoded field.
type ScanFilter[R any] struct {
	acct  solpay.Account[R]
	field func(*R) solana.PublicKey
}

func (f ScanFilter[R]) account() solpay.Account[R] { return f.acct }

func (f ScanFilter[R]) memcmp(solana.PublicKey) []adapter.MemcmpFilter {
	return []adapter.MemcmpFilter{{Offset: 0, Bytes: f.acct.Discriminator[:]}}
}

func (f ScanFilter[R]) match(r *R, v solana.PublicKey) bool { return f.field(r).Equals(v) }

// Read strategy per record type and field.
var (
	SubscriptionsBySubscriberFilter Filter[model.UserSubscription] = OffsetFilter[model.UserSubscription]{
		acct: solpay.UserSubscriptionAccount, offset: solpay.UserSubscriptionSubscriberOffset,
	}
	SubscriptionsByPlanFilter Filter[model.UserSubscription] = OffsetFilter[model.UserSubscription]{
		acct: solpay.UserSubscriptionAccount, offset: solpay.UserSubscriptionPlanOffset,
	}
	SubscriptionsByMerchantFilter Filter[model.UserSubscription] = OffsetFilter[model.UserSubscription]{
		acct: solpay.UserSubscriptionAccount, offset: solpay.UserSubscriptionMerchantOffset,
	}

	// plan_name precedes the merchant key.
	PlansByMerchantFilter Filter[model.SubscriptionPlan] = ScanFilter[model.SubscriptionPlan]{
		acct: solpay.PlanAccount, field: func(p *model.SubscriptionPlan) solana.PublicKey { return p.Merchant },
	}
	// tx_signature precedes both keys.
	PaymentsByMerchantFilter Filter[model.PaymentTransaction] = ScanFilter[model.PaymentTransaction]{
		acct: solpay.PaymentAccount, field: func(p *model.PaymentTransaction) solana.PublicKey { return p.Merchant },
	}
	PaymentsByPayerFilter Filter[model.PaymentTransaction] = ScanFilter[model.PaymentTransaction]{
		acct: solpay.PaymentAccount, field: func(p *model.PaymentTransaction) solana.PublicKey { return p.Payer },
	}
	// name precedes the owner key. MerchantByOwner fetches the derived address directly.
	MerchantsByOwnerFilter Filter[model.MerchantRegistration] = ScanFilter[model.MerchantRegistration]{
		acct: solpay.MerchantAccount, field: func(m *model.MerchantRegistration) solana.PublicKey { return m.Owner },
	}
)

// LedgerQuery reads program-owned records for display.
type LedgerQuery struct {
	ledger  adapter.LedgerClient
	program solana.PublicKey
	deriver *pda.Deriver
	log     *zerolog.Logger
}

func NewLedgerQuery(ledger adapter.LedgerClient, programID solana.PublicKey, logger *zerolog.Logger) *LedgerQuery {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LedgerQuery{ledger: ledger, program: programID, deriver: pda.New(programID), log: logger}
}

// ListByOwner returns every record selected by f for value.
func ListByOwner[R any](ctx context.Context, q *LedgerQuery, f Filter[R], value solana.PublicKey) ([]*R, error) {
	acct := f.account()
	infos, err := q.ledger.GetProgramAccounts(ctx, q.program, f.memcmp(value)...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", acct.Name, err)
	}
	out := make([]*R, 0, len(infos))
	for _, info := range infos {
		r, err := acct.Decode(info.Address, info.Data)
		if err != nil {
			return nil, err
		}
		if f.match(r, value) {
			out = append(out, r)
		}
	}
	logging.With(ctx, q.log).Debug().
		Str("record", acct.Name).
		Int("fetched", len(infos)).
		Int("matched", len(out)).
		Msg("ledger query")
	return out, nil
}

func (q *LedgerQuery) MerchantByOwner(ctx context.Context, owner solana.PublicKey) (*model.MerchantRegistration, error) {
	addr, _, err := q.deriver.Merchant(owner)
	if err != nil {
		return nil, err
	}
	info, err := q.ledger.GetAccount(ctx, addr)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: owner %s", domain.ErrMerchantNotFound, owner)
	}
	if err != nil {
		return nil, err
	}
	return solpay.MerchantAccount.Decode(addr, info.Data)
}

func (q *LedgerQuery) PlansByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.SubscriptionPlan, error) {
	plans, err := ListByOwner(ctx, q, PlansByMerchantFilter, merchant)
	if err != nil {
		return nil, err
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].CreatedAt.After(plans[j].CreatedAt) })
	return plans, nil
}

func (q *LedgerQuery) SubscriptionsBySubscriber(ctx context.Context, subscriber solana.PublicKey) ([]*model.UserSubscription, error) {
	return ListByOwner(ctx, q, SubscriptionsBySubscriberFilter, subscriber)
}

func (q *LedgerQuery) SubscriptionsByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.UserSubscription, error) {
	return ListByOwner(ctx, q, SubscriptionsByMerchantFilter, merchant)
}

func (q *LedgerQuery) SubscriptionsByPlan(ctx context.Context, plan solana.PublicKey) ([]*model.UserSubscription, error) {
	return ListByOwner(ctx, q, SubscriptionsByPlanFilter, plan)
}

// PaymentsByMerchant lists payment records, newest first.
func (q *LedgerQuery) PaymentsByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.PaymentTransaction, error) {
	ps, err := ListByOwner(ctx, q, PaymentsByMerchantFilter, merchant)
	if err != nil {
		return nil, err
	}
	sortPayments(ps)
	return ps, nil
}

func (q *LedgerQuery) PaymentsByPayer(ctx context.Context, payer solana.PublicKey) ([]*model.PaymentTransaction, error) {
	ps, err := ListByOwner(ctx, q, PaymentsByPayerFilter, payer)
	if err != nil {
		return nil, err
	}
	sortPayments(ps)
	return ps, nil
}

func sortPayments(ps []*model.PaymentTransaction) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].CreatedAt.After(ps[j].CreatedAt) })
}

// SubscriptionWithPlan pairs a subscription with its plan. Plan is nil when
// the plan record no longer resolves.
type SubscriptionWithPlan struct {
	Subscription *model.UserSubscription
	Plan         *model.SubscriptionPlan
}

// SubscriptionsWithPlans lists a subscriber's subscriptions with their plans.
func (q *LedgerQuery) SubscriptionsWithPlans(ctx context.Context, subscriber solana.PublicKey) ([]SubscriptionWithPlan, error) {
	subs, err := q.SubscriptionsBySubscriber(ctx, subscriber)
	if err != nil {
		return nil, err
	}
	plans := make(map[solana.PublicKey]*model.SubscriptionPlan)
	out := make([]SubscriptionWithPlan, 0, len(subs))
	for _, s := range subs {
		p, seen := plans[s.Plan]
		if !seen {
			info, err := q.ledger.GetAccount(ctx, s.Plan)
			switch {
			case errors.Is(err, domain.ErrAccountNotFound):
			case err != nil:
				return nil, err
			default:
				if p, err = solpay.PlanAccount.Decode(s.Plan, info.Data); err != nil {
					return nil, err
				}
			}
			plans[s.Plan] = p
		}
		out = append(out, SubscriptionWithPlan{Subscription: s, Plan: p})
	}
	return out, nil
}

// MerchantStats summarizes a merchant's ledger activity.
type MerchantStats struct {
	Merchant            solana.PublicKey
	Plans               int
	ActivePlans         int
	Subscriptions       int
	ActiveSubscriptions int
	Payments            int
	RevenueLamports     uint64 // completed native payments
	Revenue             decimal.Decimal
}

func (q *LedgerQuery) MerchantStats(ctx context.Context, merchant solana.PublicKey) (*MerchantStats, error) {
	plans, err := q.PlansByMerchant(ctx, merchant)
	if err != nil {
		return nil, err
	}
	subs, err := q.SubscriptionsByMerchant(ctx, merchant)
	if err != nil {
		return nil, err
	}
	payments, err := q.PaymentsByMerchant(ctx, merchant)
	if err != nil {
		return nil, err
	}
	st := &MerchantStats{Merchant: merchant, Plans: len(plans), Subscriptions: len(subs), Payments: len(payments)}
	for _, p := range plans {
		if p.Active {
			st.ActivePlans++
		}
	}
	for _, s := range subs {
		if !s.Canceled() {
			st.ActiveSubscriptions++
		}
	}
	for _, p := range payments {
		if p.Status == model.PaymentStatusCompleted && p.Asset.Equals(model.NativeAsset) {
			st.RevenueLamports += p.Amount
		}
	}
	st.Revenue = model.SOL(st.RevenueLamports)
	return st, nil
}

// ActiveSubscribers counts live subscriptions on plan. Callers use it to
// refuse deactivating a plan that still has subscribers.
func (q *LedgerQuery) ActiveSubscribers(ctx context.Context, plan solana.PublicKey) (int, error) {
	subs, err := q.SubscriptionsByPlan(ctx, plan)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range subs {
		if !s.Canceled() {
			n++
		}
	}
	return n, nil
}
