package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Configuration
	ErrSignerSecretMissing = errors.New("PAY_SIGNER_SECRET not configured")
	ErrInvalidConfig       = errors.New("invalid configuration")

	// Payment link tokens
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")

	// Address derivation
	ErrSeedTooLong         = fmt.Errorf("%w: seed exceeds 32 bytes", ErrInvalidArgument)
	ErrDerivationExhausted = errors.New("no off-curve bump found for seeds")

	// Ledger records
	ErrAccountNotFound      = fmt.Errorf("%w: account missing", ErrNotFound)
	ErrMerchantNotFound     = fmt.Errorf("%w: merchant not registered", ErrNotFound)
	ErrPlanNotFound         = fmt.Errorf("%w: subscription plan", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: user subscription", ErrNotFound)
	ErrAccountInUse         = fmt.Errorf("%w: account already in use", ErrAlreadyExists)
	ErrAlreadySubscribed    = fmt.Errorf("%w: already subscribed to this plan", ErrAlreadyExists)
	ErrAlreadyPaid          = fmt.Errorf("%w: payment already recorded", ErrAlreadyExists)
	ErrPlanInactive         = fmt.Errorf("%w: subscription plan is inactive", ErrInvalidArgument)
	ErrSubscriptionInactive = fmt.Errorf("%w: subscription already canceled", ErrInvalidArgument)
	ErrNotSubscriber        = fmt.Errorf("%w: wallet is not the subscriber", ErrInvalidArgument)
	ErrMalformedAccount     = errors.New("malformed account data")

	// Persistence
	ErrInvalidExecContext = errors.New("invalid database execution context")
	ErrOperationFailed    = errors.New("database operation failed")

	// Submission
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrNetwork           = errors.New("network failure")
	ErrBlockhashExpired  = fmt.Errorf("%w: blockhash expired before confirmation", ErrNetwork)
	ErrTransactionFailed = fmt.Errorf("%w: transaction failed", ErrNetwork)
)
