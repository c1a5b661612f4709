// Package paylink issues and checks the signed, expiring tokens that carry a
// payment intent from a merchant to an unauthenticated checkout session.
//
// Wire form: base64url(json(payload)) "." hex(hmac_sha256(secret, base64url part)).
// Tokens are stateless; nothing is stored and nothing can be revoked.
package paylink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"solpay-gateway/internal/domain"
)

const nonceBytes = 16

type Codec struct {
	secret []byte
	now    func() time.Time
	rand   io.Reader
}

type Option func(*Codec)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option { return func(c *Codec) { c.now = now } }

// WithRand overrides the nonce source, for tests.
func WithRand(r io.Reader) Option { return func(c *Codec) { c.rand = r } }

// NewCodec fails with domain.ErrSignerSecretMissing when secret is empty so
// that no unsigned token can ever be produced.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, domain.ErrSignerSecretMissing
	}
	c := &Codec{secret: []byte(secret), now: time.Now, rand: rand.Reader}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Generate validates req, stamps expiry and nonce, and returns the signed token.
func (c *Codec) Generate(req Request) (string, *Payload, error) {
	p, err := c.build(req)
	if err != nil {
		return "", nil, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("encode payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(body)
	return encoded + "." + c.sign(encoded), p, nil
}

func (c *Codec) build(req Request) (*Payload, error) {
	if strings.TrimSpace(req.Merchant) == "" {
		return nil, fmt.Errorf("%w: missing merchantAddress", domain.ErrInvalidArgument)
	}
	mode := req.Type
	if mode == "" {
		mode = ModeOneTime
	}
	switch mode {
	case ModeSubscribe:
		if req.PlanName == "" || req.PlanAddress == "" {
			return nil, fmt.Errorf("%w: subscription token requires planName and planPda", domain.ErrInvalidArgument)
		}
	case ModeOneTime:
		if req.Amount == nil || *req.Amount <= 0 {
			return nil, fmt.Errorf("%w: missing or invalid amountLamports for one-time token", domain.ErrInvalidArgument)
		}
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", domain.ErrInvalidArgument, mode)
	}

	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	p := &Payload{
		Merchant:    req.Merchant,
		Expiry:      c.now().Unix() + int64(ttl/time.Second),
		Nonce:       hex.EncodeToString(nonce),
		Amount:      req.Amount,
		Description: req.Description,
	}
	if mode == ModeSubscribe {
		p.Type = ModeSubscribe
		p.PlanName = req.PlanName
		p.PlanAddress = req.PlanAddress
		p.BillingCycleDays = req.BillingCycleDays
	}
	return p, nil
}

// Verify checks the signature in constant time, then decodes and checks expiry.
// Signature failures are ErrTokenInvalid, shape and decode failures
// ErrTokenMalformed, and a correctly signed but stale token ErrTokenExpired.
func (c *Codec) Verify(token string) (*Payload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, domain.ErrTokenMalformed
	}
	encoded, sigHex := parts[0], parts[1]

	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, domain.ErrTokenInvalid
	}
	expected := c.mac(encoded)
	if len(provided) != len(expected) || !hmac.Equal(provided, expected) {
		return nil, domain.ErrTokenInvalid
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: payload encoding", domain.ErrTokenMalformed)
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: payload body", domain.ErrTokenMalformed)
	}
	if p.Expiry <= c.now().Unix() {
		return nil, domain.ErrTokenExpired
	}
	return &p, nil
}

func (c *Codec) mac(encoded string) []byte {
	m := hmac.New(sha256.New, c.secret)
	m.Write([]byte(encoded))
	return m.Sum(nil)
}

func (c *Codec) sign(encoded string) string {
	return hex.EncodeToString(c.mac(encoded))
}

// CheckoutPath is the browser route a token is handed to.
func CheckoutPath(token string) string {
	return "/p/" + token
}
