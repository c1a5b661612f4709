package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// UserSubscription links a subscriber wallet to a plan. It is never removed;
// cancellation flips Active and stamps CanceledAt.
type UserSubscription struct {
	Address         solana.PublicKey // derived from ("user_subscription", plan, subscriber)
	Subscriber      solana.PublicKey
	Plan            solana.PublicKey
	StartDate       time.Time
	NextBillingDate time.Time
	Active          bool
	Merchant        solana.PublicKey
	SupportedAssets []solana.PublicKey
	CanceledAt      *time.Time
}

// Canceled reports whether the subscription has been terminated.
func (s *UserSubscription) Canceled() bool {
	return s != nil && (s.CanceledAt != nil || !s.Active)
}
