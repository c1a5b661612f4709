// Package solpay binds the solpay on-chain program: anchor discriminators,
// borsh layouts of its accounts, and builders for its instructions.
package solpay

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// DefaultProgramID is the devnet deployment.
var DefaultProgramID = solana.MustPublicKeyFromBase58("EVBgMcsQdMqHrm2KMscsPUKUsFAcbpJUkAjBSWHGwL8A")

// Discriminator is the 8-byte anchor prefix of instruction data and account data.
type Discriminator [8]byte

func sighash(namespace, name string) Discriminator {
	var d Discriminator
	h := sha256.Sum256([]byte(namespace + ":" + name))
	copy(d[:], h[:8])
	return d
}

var (
	ixInitializeMerchant           = sighash("global", "initialize_merchant")
	ixInitializeSubscriptionPlan   = sighash("global", "initialize_subscription_plan")
	ixInitializeUserSubscription   = sighash("global", "initialize_user_subscription")
	ixInitializeCancelSubscription = sighash("global", "initialize_cancel_subscription")
	ixInitializePaymentTransaction = sighash("global", "initialize_payment_transaction")
	ixUpdateSubscriptionPlan       = sighash("global", "update_subscription_plan")

	accMerchantRegistration = sighash("account", "MerchantRegistration")
	accSubscriptionPlan     = sighash("account", "SubscriptionPlan")
	accUserSubscription     = sighash("account", "UserSubscription")
	accPaymentTransaction   = sighash("account", "PaymentTransaction")
)

// MaxLoggedAmount is the largest amount the program accepts in a payment record.
const MaxLoggedAmount uint64 = 1_000_000_000

// MaxPaymentStatus is the highest status code the program accepts.
const MaxPaymentStatus uint8 = 2
