package paylink

import "time"

// Mode selects the checkout flow a token hands off to.
type Mode string

const (
	ModeOneTime   Mode = "one_time"
	ModeSubscribe Mode = "subscribe"
)

// DefaultTTL applies when a request asks for no positive lifetime.
const DefaultTTL = 24 * time.Hour

// Payload is the signed body of a payment link. Keys are kept to one or two
// letters because the token travels in a URL; absent fields are omitted.
type Payload struct {
	Merchant         string `json:"m"`
	Expiry           int64  `json:"e"`
	Nonce            string `json:"n"`
	Amount           *int64 `json:"a,omitempty"`
	Description      string `json:"d,omitempty"`
	Type             Mode   `json:"t,omitempty"`
	PlanName         string `json:"p,omitempty"`
	PlanAddress      string `json:"pp,omitempty"`
	BillingCycleDays *int   `json:"b,omitempty"`
}

// Mode reports the flow, treating an absent type as one-time.
func (p *Payload) Mode() Mode {
	if p.Type == "" {
		return ModeOneTime
	}
	return p.Type
}

func (p *Payload) ExpiresAt() time.Time { return time.Unix(p.Expiry, 0) }

// Request is what a merchant asks to be encoded.
type Request struct {
	Merchant         string
	Amount           *int64
	Description      string
	TTL              time.Duration
	Type             Mode
	PlanName         string
	PlanAddress      string
	BillingCycleDays *int
}
