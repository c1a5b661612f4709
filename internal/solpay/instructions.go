package solpay

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"solpay-gateway/internal/domain"
)

// Program builds instructions for one deployment of the solpay program.
type Program struct {
	ID solana.PublicKey
}

func NewProgram(id solana.PublicKey) *Program {
	return &Program{ID: id}
}

type MerchantArgs struct {
	Name            string
	Website         string
	SupportedAssets []solana.PublicKey
}

type PlanArgs struct {
	Name             string
	Price            uint64
	Asset            solana.PublicKey
	BillingCycleDays uint8
	SupportedAssets  []solana.PublicKey
	Active           bool
}

type UserSubscriptionArgs struct {
	NextBillingDate int64
	Active          bool
	SupportedAssets []solana.PublicKey
}

type PaymentArgs struct {
	SignatureHash [32]byte
	Signature     string
	Amount        uint64
	Asset         solana.PublicKey
	Status        uint8
}

func (p *Program) instruction(accounts solana.AccountMetaSlice, disc Discriminator, body func(enc *bin.Encoder) error) (solana.Instruction, error) {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteBytes(disc[:], false); err != nil {
		return nil, err
	}
	if body != nil {
		if err := body(enc); err != nil {
			return nil, err
		}
	}
	return solana.NewInstruction(p.ID, accounts, buf.Bytes()), nil
}

// InitializeMerchant creates the registration account at registration for owner.
func (p *Program) InitializeMerchant(registration, owner solana.PublicKey, args MerchantArgs) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(registration, true, false),
		solana.NewAccountMeta(owner, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, ixInitializeMerchant, func(enc *bin.Encoder) error {
		return firstErr(
			func() error { return writeString(enc, args.Name) },
			func() error { return writeString(enc, args.Website) },
			func() error { return writeKeys(enc, args.SupportedAssets) },
		)
	})
}

func (p *Program) InitializeSubscriptionPlan(plan, registration, merchant solana.PublicKey, args PlanArgs) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(plan, true, false),
		solana.NewAccountMeta(registration, false, false),
		solana.NewAccountMeta(merchant, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, ixInitializeSubscriptionPlan, func(enc *bin.Encoder) error {
		return firstErr(
			func() error { return writeString(enc, args.Name) },
			func() error { return enc.WriteUint64(args.Price, le) },
			func() error { return writeKey(enc, args.Asset) },
			func() error { return enc.WriteUint8(args.BillingCycleDays) },
			func() error { return writeKeys(enc, args.SupportedAssets) },
			func() error { return enc.WriteBool(args.Active) },
		)
	})
}

func (p *Program) InitializeUserSubscription(subscription, plan, registration, subscriber solana.PublicKey, args UserSubscriptionArgs) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(subscription, true, false),
		solana.NewAccountMeta(plan, false, false),
		solana.NewAccountMeta(registration, false, false),
		solana.NewAccountMeta(subscriber, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}, ixInitializeUserSubscription, func(enc *bin.Encoder) error {
		return firstErr(
			func() error { return enc.WriteInt64(args.NextBillingDate, le) },
			func() error { return enc.WriteBool(args.Active) },
			func() error { return writeKeys(enc, args.SupportedAssets) },
		)
	})
}

func (p *Program) CancelSubscription(subscription, plan, subscriber solana.PublicKey) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(subscription, true, false),
		solana.NewAccountMeta(plan, false, false),
		solana.NewAccountMeta(subscriber, true, true),
	}, ixInitializeCancelSubscription, nil)
}

func (p *Program) UpdateSubscriptionPlan(plan, merchant solana.PublicKey, active bool) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(plan, true, false),
		solana.NewAccountMeta(merchant, true, true),
	}, ixUpdateSubscriptionPlan, func(enc *bin.Encoder) error {
		return enc.WriteBool(active)
	})
}

// InitializePaymentTransaction records a confirmed transfer. record must be
// the address derived from args.SignatureHash.
func (p *Program) InitializePaymentTransaction(record, registration, payer solana.PublicKey, args PaymentArgs) (solana.Instruction, error) {
	return p.instruction(solana.AccountMetaSlice{
		solana.NewAccountMeta(record, true, false),
		solana.NewAccountMeta(registration, false, false),
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}, ixInitializePaymentTransaction, func(enc *bin.Encoder) error {
		return firstErr(
			func() error { return enc.WriteBytes(args.SignatureHash[:], false) },
			func() error { return writeString(enc, args.Signature) },
			func() error { return enc.WriteUint64(args.Amount, le) },
			func() error { return writeKey(enc, args.Asset) },
			func() error { return enc.WriteUint8(args.Status) },
		)
	})
}

// InstructionName identifies solpay instruction data by its discriminator.
func InstructionName(data []byte) (string, bool) {
	if len(data) < 8 {
		return "", false
	}
	switch Discriminator(data[:8]) {
	case ixInitializeMerchant:
		return "initialize_merchant", true
	case ixInitializeSubscriptionPlan:
		return "initialize_subscription_plan", true
	case ixInitializeUserSubscription:
		return "initialize_user_subscription", true
	case ixInitializeCancelSubscription:
		return "initialize_cancel_subscription", true
	case ixInitializePaymentTransaction:
		return "initialize_payment_transaction", true
	case ixUpdateSubscriptionPlan:
		return "update_subscription_plan", true
	}
	return "", false
}

func argsDecoder(data []byte, want Discriminator) (*bin.Decoder, error) {
	dec := bin.NewBorshDecoder(data)
	if err := readDiscriminator(dec, want); err != nil {
		return nil, fmt.Errorf("%w: instruction data", domain.ErrInvalidArgument)
	}
	return dec, nil
}

func DecodeMerchantArgs(data []byte) (a MerchantArgs, err error) {
	dec, err := argsDecoder(data, ixInitializeMerchant)
	if err != nil {
		return a, err
	}
	if a.Name, err = readString(dec); err != nil {
		return a, err
	}
	if a.Website, err = readString(dec); err != nil {
		return a, err
	}
	a.SupportedAssets, err = readKeys(dec)
	return a, err
}

func DecodePlanArgs(data []byte) (a PlanArgs, err error) {
	dec, err := argsDecoder(data, ixInitializeSubscriptionPlan)
	if err != nil {
		return a, err
	}
	if a.Name, err = readString(dec); err != nil {
		return a, err
	}
	if a.Price, err = dec.ReadUint64(le); err != nil {
		return a, err
	}
	if a.Asset, err = readKey(dec); err != nil {
		return a, err
	}
	if a.BillingCycleDays, err = dec.ReadUint8(); err != nil {
		return a, err
	}
	if a.SupportedAssets, err = readKeys(dec); err != nil {
		return a, err
	}
	a.Active, err = dec.ReadBool()
	return a, err
}

func DecodeUserSubscriptionArgs(data []byte) (a UserSubscriptionArgs, err error) {
	dec, err := argsDecoder(data, ixInitializeUserSubscription)
	if err != nil {
		return a, err
	}
	if a.NextBillingDate, err = dec.ReadInt64(le); err != nil {
		return a, err
	}
	if a.Active, err = dec.ReadBool(); err != nil {
		return a, err
	}
	a.SupportedAssets, err = readKeys(dec)
	return a, err
}

func DecodePaymentArgs(data []byte) (a PaymentArgs, err error) {
	dec, err := argsDecoder(data, ixInitializePaymentTransaction)
	if err != nil {
		return a, err
	}
	h, err := dec.ReadNBytes(32)
	if err != nil {
		return a, err
	}
	copy(a.SignatureHash[:], h)
	if a.Signature, err = readString(dec); err != nil {
		return a, err
	}
	if a.Amount, err = dec.ReadUint64(le); err != nil {
		return a, err
	}
	if a.Asset, err = readKey(dec); err != nil {
		return a, err
	}
	a.Status, err = dec.ReadUint8()
	return a, err
}

func DecodeUpdatePlanArgs(data []byte) (active bool, err error) {
	dec, err := argsDecoder(data, ixUpdateSubscriptionPlan)
	if err != nil {
		return false, err
	}
	return dec.ReadBool()
}
