package web

import (
	"time"

	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// JSON shapes for the read-side endpoints. Keys follow the dashboard's
// camelCase; lamport amounts are paired with a SOL decimal string.

type merchantView struct {
	Address         string    `json:"address"`
	Owner           string    `json:"owner"`
	Name            string    `json:"name"`
	Website         string    `json:"website,omitempty"`
	Active          bool      `json:"active"`
	SupportedTokens []string  `json:"supportedTokens"`
	CreatedAt       time.Time `json:"createdAt"`
}

type planView struct {
	Address          string          `json:"address"`
	Name             string          `json:"name"`
	Merchant         string          `json:"merchant"`
	PriceLamports    uint64          `json:"priceLamports"`
	Price            decimal.Decimal `json:"priceSol"`
	Asset            string          `json:"asset"`
	BillingCycleDays uint8           `json:"billingCycleDays"`
	Active           bool            `json:"active"`
	SupportedTokens  []string        `json:"supportedTokens"`
	CreatedAt        time.Time       `json:"createdAt"`
}

type subscriptionView struct {
	Address         string     `json:"address"`
	Subscriber      string     `json:"subscriber"`
	Plan            string     `json:"plan"`
	Merchant        string     `json:"merchant"`
	Active          bool       `json:"active"`
	StartDate       time.Time  `json:"startDate"`
	NextBillingDate time.Time  `json:"nextBillingDate"`
	CanceledAt      *time.Time `json:"canceledAt,omitempty"`
	PlanDetails     *planView  `json:"planDetails,omitempty"`
}

type paymentView struct {
	Address        string          `json:"address"`
	Signature      string          `json:"signature"`
	Payer          string          `json:"payer"`
	Merchant       string          `json:"merchant"`
	AmountLamports uint64          `json:"amountLamports"`
	Amount         decimal.Decimal `json:"amountSol"`
	Asset          string          `json:"asset"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type statsView struct {
	Merchant            string          `json:"merchant"`
	Plans               int             `json:"plans"`
	ActivePlans         int             `json:"activePlans"`
	Subscriptions       int             `json:"subscriptions"`
	ActiveSubscriptions int             `json:"activeSubscriptions"`
	Payments            int             `json:"payments"`
	RevenueLamports     uint64          `json:"revenueLamports"`
	Revenue             decimal.Decimal `json:"revenueSol"`
}

type outboxEntryView struct {
	Signature      string    `json:"signature"`
	Payer          string    `json:"payer"`
	Merchant       string    `json:"merchant"`
	AmountLamports uint64    `json:"amountLamports"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"lastError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func keys(ks []solana.PublicKey) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.String()
	}
	return out
}

func toMerchantView(m *model.MerchantRegistration) merchantView {
	return merchantView{
		Address:         m.Address.String(),
		Owner:           m.Owner.String(),
		Name:            m.Name,
		Website:         m.Website,
		Active:          m.Active,
		SupportedTokens: keys(m.SupportedAssets),
		CreatedAt:       m.CreatedAt.UTC(),
	}
}

func toPlanView(p *model.SubscriptionPlan) planView {
	return planView{
		Address:          p.Address.String(),
		Name:             p.Name,
		Merchant:         p.Merchant.String(),
		PriceLamports:    p.Price,
		Price:            model.SOL(p.Price),
		Asset:            p.Asset.String(),
		BillingCycleDays: p.BillingCycleDays,
		Active:           p.Active,
		SupportedTokens:  keys(p.SupportedAssets),
		CreatedAt:        p.CreatedAt.UTC(),
	}
}

func toSubscriptionView(s *model.UserSubscription) subscriptionView {
	v := subscriptionView{
		Address:         s.Address.String(),
		Subscriber:      s.Subscriber.String(),
		Plan:            s.Plan.String(),
		Merchant:        s.Merchant.String(),
		Active:          !s.Canceled(),
		StartDate:       s.StartDate.UTC(),
		NextBillingDate: s.NextBillingDate.UTC(),
	}
	if s.CanceledAt != nil {
		at := s.CanceledAt.UTC()
		v.CanceledAt = &at
	}
	return v
}

func toSubscriptionWithPlanView(sp usecase.SubscriptionWithPlan) subscriptionView {
	v := toSubscriptionView(sp.Subscription)
	if sp.Plan != nil {
		pv := toPlanView(sp.Plan)
		v.PlanDetails = &pv
	}
	return v
}

func toPaymentView(p *model.PaymentTransaction) paymentView {
	return paymentView{
		Address:        p.Address.String(),
		Signature:      p.Signature,
		Payer:          p.Payer.String(),
		Merchant:       p.Merchant.String(),
		AmountLamports: p.Amount,
		Amount:         model.SOL(p.Amount),
		Asset:          p.Asset.String(),
		Status:         p.Status.String(),
		CreatedAt:      p.CreatedAt.UTC(),
	}
}

func toStatsView(s *usecase.MerchantStats) statsView {
	return statsView{
		Merchant:            s.Merchant.String(),
		Plans:               s.Plans,
		ActivePlans:         s.ActivePlans,
		Subscriptions:       s.Subscriptions,
		ActiveSubscriptions: s.ActiveSubscriptions,
		Payments:            s.Payments,
		RevenueLamports:     s.RevenueLamports,
		Revenue:             s.Revenue,
	}
}

func toOutboxEntryView(e *model.PaymentLogEntry) outboxEntryView {
	return outboxEntryView{
		Signature:      e.Signature,
		Payer:          e.Payer.String(),
		Merchant:       e.Merchant.String(),
		AmountLamports: e.Amount,
		Attempts:       e.Attempts,
		LastError:      e.LastError,
		CreatedAt:      e.CreatedAt.UTC(),
		UpdatedAt:      e.UpdatedAt.UTC(),
	}
}

func mapSlice[T, V any](in []T, f func(T) V) []V {
	out := make([]V, 0, len(in))
	for _, x := range in {
		out = append(out, f(x))
	}
	return out
}
