package model

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// MerchantRegistration is the on-chain record created once per owner wallet.
type MerchantRegistration struct {
	Address         solana.PublicKey // derived from ("merchant", owner)
	Name            string
	Website         string
	Owner           solana.PublicKey
	Active          bool
	SupportedAssets []solana.PublicKey
	CreatedAt       time.Time
}

// Supports reports whether asset is in the merchant's supported-asset list.
func (m *MerchantRegistration) Supports(asset solana.PublicKey) bool {
	if m == nil {
		return false
	}
	for _, a := range m.SupportedAssets {
		if a.Equals(asset) {
			return true
		}
	}
	return false
}
