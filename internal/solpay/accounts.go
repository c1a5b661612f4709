package solpay

import (
	"bytes"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
)

// Account describes one record type owned by the program: its anchor
// discriminator and its borsh layout.
type Account[R any] struct {
	Name          string
	Discriminator Discriminator
	decode        func(dec *bin.Decoder, r *R) error
	encode        func(enc *bin.Encoder, r *R) error
	setAddress    func(r *R, addr solana.PublicKey)
}

// Decode parses raw account data fetched from address.
func (a Account[R]) Decode(address solana.PublicKey, data []byte) (*R, error) {
	dec := bin.NewBorshDecoder(data)
	if err := readDiscriminator(dec, a.Discriminator); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", a.Name, address, err)
	}
	r := new(R)
	if err := a.decode(dec, r); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w: %v", a.Name, address, domain.ErrMalformedAccount, err)
	}
	a.setAddress(r, address)
	return r, nil
}

// Encode renders r in the program's layout, discriminator first.
func (a Account[R]) Encode(r *R) ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteBytes(a.Discriminator[:], false); err != nil {
		return nil, err
	}
	if err := a.encode(enc, r); err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Name, err)
	}
	return buf.Bytes(), nil
}

func unix(ts int64) time.Time { return time.Unix(ts, 0) }

// MerchantAccount: name, owner, active, created_at, website, supported assets.
var MerchantAccount = Account[model.MerchantRegistration]{
	Name:          "MerchantRegistration",
	Discriminator: accMerchantRegistration,
	decode: func(dec *bin.Decoder, m *model.MerchantRegistration) (err error) {
		if m.Name, err = readString(dec); err != nil {
			return err
		}
		if m.Owner, err = readKey(dec); err != nil {
			return err
		}
		if m.Active, err = dec.ReadBool(); err != nil {
			return err
		}
		created, err := dec.ReadInt64(le)
		if err != nil {
			return err
		}
		m.CreatedAt = unix(created)
		if m.Website, err = readString(dec); err != nil {
			return err
		}
		m.SupportedAssets, err = readKeys(dec)
		return err
	},
	encode: func(enc *bin.Encoder, m *model.MerchantRegistration) error {
		return firstErr(
			func() error { return writeString(enc, m.Name) },
			func() error { return writeKey(enc, m.Owner) },
			func() error { return enc.WriteBool(m.Active) },
			func() error { return enc.WriteInt64(m.CreatedAt.Unix(), le) },
			func() error { return writeString(enc, m.Website) },
			func() error { return writeKeys(enc, m.SupportedAssets) },
		)
	},
	setAddress: func(m *model.MerchantRegistration, a solana.PublicKey) { m.Address = a },
}

// PlanAccount: name, price, asset, billing cycle, active, created_at, merchant, supported assets.
var PlanAccount = Account[model.SubscriptionPlan]{
	Name:          "SubscriptionPlan",
	Discriminator: accSubscriptionPlan,
	decode: func(dec *bin.Decoder, p *model.SubscriptionPlan) (err error) {
		if p.Name, err = readString(dec); err != nil {
			return err
		}
		if p.Price, err = dec.ReadUint64(le); err != nil {
			return err
		}
		if p.Asset, err = readKey(dec); err != nil {
			return err
		}
		if p.BillingCycleDays, err = dec.ReadUint8(); err != nil {
			return err
		}
		if p.Active, err = dec.ReadBool(); err != nil {
			return err
		}
		created, err := dec.ReadInt64(le)
		if err != nil {
			return err
		}
		p.CreatedAt = unix(created)
		if p.Merchant, err = readKey(dec); err != nil {
			return err
		}
		p.SupportedAssets, err = readKeys(dec)
		return err
	},
	encode: func(enc *bin.Encoder, p *model.SubscriptionPlan) error {
		return firstErr(
			func() error { return writeString(enc, p.Name) },
			func() error { return enc.WriteUint64(p.Price, le) },
			func() error { return writeKey(enc, p.Asset) },
			func() error { return enc.WriteUint8(p.BillingCycleDays) },
			func() error { return enc.WriteBool(p.Active) },
			func() error { return enc.WriteInt64(p.CreatedAt.Unix(), le) },
			func() error { return writeKey(enc, p.Merchant) },
			func() error { return writeKeys(enc, p.SupportedAssets) },
		)
	},
	setAddress: func(p *model.SubscriptionPlan, a solana.PublicKey) { p.Address = a },
}

// Fixed offsets inside UserSubscription data, discriminator included.
const (
	UserSubscriptionSubscriberOffset = 8
	UserSubscriptionPlanOffset       = UserSubscriptionSubscriberOffset + 32
	UserSubscriptionMerchantOffset   = UserSubscriptionPlanOffset + 32 + 8 + 8 + 1
)

// UserSubscriptionAccount: subscriber, plan, start, next billing, active,
// merchant, supported assets, canceled_at option.
var UserSubscriptionAccount = Account[model.UserSubscription]{
	Name:          "UserSubscription",
	Discriminator: accUserSubscription,
	decode: func(dec *bin.Decoder, s *model.UserSubscription) (err error) {
		if s.Subscriber, err = readKey(dec); err != nil {
			return err
		}
		if s.Plan, err = readKey(dec); err != nil {
			return err
		}
		start, err := dec.ReadInt64(le)
		if err != nil {
			return err
		}
		next, err := dec.ReadInt64(le)
		if err != nil {
			return err
		}
		s.StartDate, s.NextBillingDate = unix(start), unix(next)
		if s.Active, err = dec.ReadBool(); err != nil {
			return err
		}
		if s.Merchant, err = readKey(dec); err != nil {
			return err
		}
		if s.SupportedAssets, err = readKeys(dec); err != nil {
			return err
		}
		some, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		if some == 1 {
			ts, err := dec.ReadInt64(le)
			if err != nil {
				return err
			}
			at := unix(ts)
			s.CanceledAt = &at
		}
		return nil
	},
	encode: func(enc *bin.Encoder, s *model.UserSubscription) error {
		return firstErr(
			func() error { return writeKey(enc, s.Subscriber) },
			func() error { return writeKey(enc, s.Plan) },
			func() error { return enc.WriteInt64(s.StartDate.Unix(), le) },
			func() error { return enc.WriteInt64(s.NextBillingDate.Unix(), le) },
			func() error { return enc.WriteBool(s.Active) },
			func() error { return writeKey(enc, s.Merchant) },
			func() error { return writeKeys(enc, s.SupportedAssets) },
			func() error {
				if s.CanceledAt == nil {
					return enc.WriteUint8(0)
				}
				if err := enc.WriteUint8(1); err != nil {
					return err
				}
				return enc.WriteInt64(s.CanceledAt.Unix(), le)
			},
		)
	},
	setAddress: func(s *model.UserSubscription, a solana.PublicKey) { s.Address = a },
}

// PaymentAccount: signature, payer, merchant, amount, asset, status, created_at.
var PaymentAccount = Account[model.PaymentTransaction]{
	Name:          "PaymentTransaction",
	Discriminator: accPaymentTransaction,
	decode: func(dec *bin.Decoder, p *model.PaymentTransaction) (err error) {
		if p.Signature, err = readString(dec); err != nil {
			return err
		}
		if p.Payer, err = readKey(dec); err != nil {
			return err
		}
		if p.Merchant, err = readKey(dec); err != nil {
			return err
		}
		if p.Amount, err = dec.ReadUint64(le); err != nil {
			return err
		}
		if p.Asset, err = readKey(dec); err != nil {
			return err
		}
		status, err := dec.ReadUint8()
		if err != nil {
			return err
		}
		p.Status = model.PaymentStatus(status)
		created, err := dec.ReadInt64(le)
		if err != nil {
			return err
		}
		p.CreatedAt = unix(created)
		return nil
	},
	encode: func(enc *bin.Encoder, p *model.PaymentTransaction) error {
		return firstErr(
			func() error { return writeString(enc, p.Signature) },
			func() error { return writeKey(enc, p.Payer) },
			func() error { return writeKey(enc, p.Merchant) },
			func() error { return enc.WriteUint64(p.Amount, le) },
			func() error { return writeKey(enc, p.Asset) },
			func() error { return enc.WriteUint8(uint8(p.Status)) },
			func() error { return enc.WriteInt64(p.CreatedAt.Unix(), le) },
		)
	},
	setAddress: func(p *model.PaymentTransaction, a solana.PublicKey) { p.Address = a },
}

func firstErr(steps ...func() error) error {
	for _, s := range steps {
		if err := s(); err != nil {
			return err
		}
	}
	return nil
}
