// File: internal/usecase/orchestrator_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/rs/zerolog"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/infra/metrics"
	"solpay-gateway/internal/pda"
	"solpay-gateway/internal/solpay"
)

// Operation names used in logs and metrics.
const (
	OpRegisterMerchant = "register_merchant"
	OpCreatePlan       = "create_plan"
	OpSubscribe        = "subscribe"
	OpPayOnce          = "pay_once"
	OpCancel           = "cancel"
	OpUpdatePlan       = "update_plan"
	OpLogPayment       = "log_payment"
)

// Settlement is the result of a confirmed submission. Addresses that do not
// apply to the operation are zero. Warning is set when the transfer
// confirmed but its payment log did not.
type Settlement struct {
	Signature     solana.Signature
	Merchant      solana.PublicKey
	Plan          solana.PublicKey
	Subscription  solana.PublicKey
	PaymentRecord solana.PublicKey
	Warning       *AuditLogWarning
}

// AuditLogWarning reports a failed phase-2 log. The settlement it is
// attached to is final and must not be treated as failed.
type AuditLogWarning struct {
	Signature string
	Err       error
	Enqueued  bool // queued for out-of-band retry
}

func (w *AuditLogWarning) String() string {
	if w == nil {
		return ""
	}
	return fmt.Sprintf("payment log for %s not recorded (queued=%t): %v", w.Signature, w.Enqueued, w.Err)
}

// SubscribeRequest names the plan to join. Merchant is optional; when set it
// must match the plan's merchant.
type SubscribeRequest struct {
	Plan     solana.PublicKey
	Merchant solana.PublicKey
}

// Orchestrator builds, signs, submits and confirms solpay transactions for
// the identity behind its wallet.
type Orchestrator struct {
	ledger  adapter.LedgerClient
	wallet  adapter.Wallet
	deriver *pda.Deriver
	program *solpay.Program
	guard   *PreflightGuard
	outbox  repository.PaymentLogOutbox
	now     func() time.Time
	log     *zerolog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithOutbox queues failed payment logs for RetryPaymentLog.
func WithOutbox(o repository.PaymentLogOutbox) OrchestratorOption {
	return func(or *Orchestrator) { or.outbox = o }
}

func WithClock(now func() time.Time) OrchestratorOption {
	return func(or *Orchestrator) { or.now = now }
}

func NewOrchestrator(ledger adapter.LedgerClient, wallet adapter.Wallet, programID solana.PublicKey, logger *zerolog.Logger, opts ...OrchestratorOption) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	d := pda.New(programID)
	o := &Orchestrator{
		ledger:  ledger,
		wallet:  wallet,
		deriver: d,
		program: solpay.NewProgram(programID),
		guard:   NewPreflightGuard(ledger, d),
		now:     time.Now,
		log:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Guard exposes the preflight checks bound to the same ledger.
func (o *Orchestrator) Guard() *PreflightGuard { return o.guard }

// Wallet is the signing identity.
func (o *Orchestrator) Wallet() solana.PublicKey { return o.wallet.PublicKey() }

// RegisterMerchant creates the merchant registration for the wallet owner.
func (o *Orchestrator) RegisterMerchant(ctx context.Context, name, website string, supported []solana.PublicKey) (*Settlement, error) {
	owner := o.wallet.PublicKey()
	reg, _, err := o.deriver.Merchant(owner)
	if err != nil {
		return nil, o.fail(ctx, OpRegisterMerchant, err)
	}
	if len(supported) == 0 {
		supported = []solana.PublicKey{model.NativeAsset}
	}
	ix, err := o.program.InitializeMerchant(reg, owner, solpay.MerchantArgs{Name: name, Website: website, SupportedAssets: supported})
	if err != nil {
		return nil, o.fail(ctx, OpRegisterMerchant, err)
	}
	sig, err := o.submit(ctx, OpRegisterMerchant, ix)
	if err != nil {
		if errors.Is(err, domain.ErrAccountInUse) {
			err = fmt.Errorf("merchant %s: %w", owner, err)
		}
		return nil, o.fail(ctx, OpRegisterMerchant, err)
	}
	return &Settlement{Signature: sig, Merchant: reg}, nil
}

// CreatePlan adds a plan under the wallet's merchant registration.
func (o *Orchestrator) CreatePlan(ctx context.Context, params model.PlanParams) (*Settlement, error) {
	if err := params.Validate(); err != nil {
		return nil, o.fail(ctx, OpCreatePlan, err)
	}
	merchant := o.wallet.PublicKey()
	plan, _, err := o.deriver.Plan(params.Name, merchant)
	if err != nil {
		return nil, o.fail(ctx, OpCreatePlan, err)
	}
	reg, err := o.guard.Merchant(ctx, merchant)
	if err != nil {
		return nil, o.fail(ctx, OpCreatePlan, err)
	}
	supported := params.SupportedAssets
	if len(supported) == 0 {
		supported = []solana.PublicKey{params.Asset}
	}
	ix, err := o.program.InitializeSubscriptionPlan(plan, reg.Address, merchant, solpay.PlanArgs{
		Name:             params.Name,
		Price:            params.Price,
		Asset:            params.Asset,
		BillingCycleDays: params.BillingCycleDays,
		SupportedAssets:  supported,
		Active:           params.Active,
	})
	if err != nil {
		return nil, o.fail(ctx, OpCreatePlan, err)
	}
	sig, err := o.submit(ctx, OpCreatePlan, ix)
	if err != nil {
		return nil, o.fail(ctx, OpCreatePlan, err)
	}
	return &Settlement{Signature: sig, Merchant: reg.Address, Plan: plan}, nil
}

// SubscribeAndPay creates the wallet's subscription to a plan and pays the
// plan price to the merchant in one atomic transaction, then logs the
// payment in a second one. Callers must handle ErrAlreadySubscribed from
// the submission itself, not only from the preflight.
func (o *Orchestrator) SubscribeAndPay(ctx context.Context, req SubscribeRequest) (*Settlement, error) {
	payer := o.wallet.PublicKey()
	plan, err := o.guard.Plan(ctx, req.Plan)
	if err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}
	if !plan.Active {
		return nil, o.fail(ctx, OpSubscribe, fmt.Errorf("%w: %s", domain.ErrPlanInactive, plan.Name))
	}
	if !req.Merchant.IsZero() && !req.Merchant.Equals(plan.Merchant) {
		return nil, o.fail(ctx, OpSubscribe, fmt.Errorf("%w: plan belongs to %s", domain.ErrInvalidArgument, plan.Merchant))
	}
	reg, err := o.guard.Merchant(ctx, plan.Merchant)
	if err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}
	if err := o.guard.EnsureNoExistingSubscription(ctx, req.Plan, payer); err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}
	if err := o.guard.EnsureBalance(ctx, payer, plan.Price); err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}

	sub, _, err := o.deriver.UserSubscription(req.Plan, payer)
	if err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}
	supported := plan.SupportedAssets
	if len(supported) == 0 {
		supported = []solana.PublicKey{model.NativeAsset}
	}
	create, err := o.program.InitializeUserSubscription(sub, req.Plan, reg.Address, payer, solpay.UserSubscriptionArgs{
		NextBillingDate: plan.NextBillingDate(o.now()).Unix(),
		Active:          true,
		SupportedAssets: supported,
	})
	if err != nil {
		return nil, o.fail(ctx, OpSubscribe, err)
	}
	transfer := system.NewTransferInstruction(plan.Price, payer, plan.Merchant).Build()

	sig, err := o.submit(ctx, OpSubscribe, create, transfer)
	if err != nil {
		if errors.Is(err, domain.ErrAccountInUse) {
			err = fmt.Errorf("%w: %s", domain.ErrAlreadySubscribed, sub)
		}
		return nil, o.fail(ctx, OpSubscribe, err)
	}

	s := &Settlement{Signature: sig, Merchant: reg.Address, Plan: req.Plan, Subscription: sub}
	s.PaymentRecord, s.Warning = o.logAfterTransfer(ctx, &model.PaymentLogEntry{
		Signature: sig.String(),
		Payer:     payer,
		Merchant:  plan.Merchant,
		Amount:    plan.Price,
		Asset:     plan.Asset,
	})
	return s, nil
}

// PayOnce transfers amount lamports from the wallet to a registered
// merchant, then logs the payment in a second transaction.
func (o *Orchestrator) PayOnce(ctx context.Context, merchant solana.PublicKey, amount uint64) (*Settlement, error) {
	if amount == 0 {
		return nil, o.fail(ctx, OpPayOnce, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidArgument))
	}
	payer := o.wallet.PublicKey()
	reg, err := o.guard.Merchant(ctx, merchant)
	if err != nil {
		return nil, o.fail(ctx, OpPayOnce, err)
	}
	if err := o.guard.EnsureBalance(ctx, payer, amount); err != nil {
		return nil, o.fail(ctx, OpPayOnce, err)
	}
	transfer := system.NewTransferInstruction(amount, payer, merchant).Build()
	sig, err := o.submit(ctx, OpPayOnce, transfer)
	if err != nil {
		return nil, o.fail(ctx, OpPayOnce, err)
	}

	s := &Settlement{Signature: sig, Merchant: reg.Address}
	s.PaymentRecord, s.Warning = o.logAfterTransfer(ctx, &model.PaymentLogEntry{
		Signature: sig.String(),
		Payer:     payer,
		Merchant:  merchant,
		Amount:    amount,
		Asset:     model.NativeAsset,
	})
	return s, nil
}

// CancelSubscription terminates one of the wallet's subscriptions.
func (o *Orchestrator) CancelSubscription(ctx context.Context, subscription solana.PublicKey) (*Settlement, error) {
	subscriber := o.wallet.PublicKey()
	sub, err := o.guard.Subscription(ctx, subscription)
	if err != nil {
		return nil, o.fail(ctx, OpCancel, err)
	}
	if !sub.Subscriber.Equals(subscriber) {
		return nil, o.fail(ctx, OpCancel, fmt.Errorf("%w: %s", domain.ErrNotSubscriber, subscriber))
	}
	if sub.Canceled() {
		return nil, o.fail(ctx, OpCancel, fmt.Errorf("%w: %s", domain.ErrSubscriptionInactive, subscription))
	}
	ix, err := o.program.CancelSubscription(subscription, sub.Plan, subscriber)
	if err != nil {
		return nil, o.fail(ctx, OpCancel, err)
	}
	sig, err := o.submit(ctx, OpCancel, ix)
	if err != nil {
		return nil, o.fail(ctx, OpCancel, err)
	}
	return &Settlement{Signature: sig, Plan: sub.Plan, Subscription: subscription}, nil
}

// UpdatePlanActiveFlag toggles a plan owned by the wallet. Refusing to
// deactivate a plan with active subscribers is the caller's rule.
func (o *Orchestrator) UpdatePlanActiveFlag(ctx context.Context, plan solana.PublicKey, active bool) (*Settlement, error) {
	merchant := o.wallet.PublicKey()
	p, err := o.guard.Plan(ctx, plan)
	if err != nil {
		return nil, o.fail(ctx, OpUpdatePlan, err)
	}
	if !p.Merchant.Equals(merchant) {
		return nil, o.fail(ctx, OpUpdatePlan, fmt.Errorf("%w: plan owned by %s", domain.ErrInvalidArgument, p.Merchant))
	}
	ix, err := o.program.UpdateSubscriptionPlan(plan, merchant, active)
	if err != nil {
		return nil, o.fail(ctx, OpUpdatePlan, err)
	}
	sig, err := o.submit(ctx, OpUpdatePlan, ix)
	if err != nil {
		return nil, o.fail(ctx, OpUpdatePlan, err)
	}
	return &Settlement{Signature: sig, Plan: plan}, nil
}

// LogPayment records a confirmed transfer paid by the wallet. It returns
// ErrAlreadyPaid when a record for the signature exists.
func (o *Orchestrator) LogPayment(ctx context.Context, e *model.PaymentLogEntry) (*Settlement, error) {
	s, err := o.logPayment(ctx, e)
	if err != nil {
		return nil, o.fail(ctx, OpLogPayment, err)
	}
	return s, nil
}

func (o *Orchestrator) logPayment(ctx context.Context, e *model.PaymentLogEntry) (*Settlement, error) {
	payer := o.wallet.PublicKey()
	if !e.Payer.Equals(payer) {
		return nil, fmt.Errorf("%w: payer %s is not the signing wallet", domain.ErrInvalidArgument, e.Payer)
	}
	if e.Amount == 0 || e.Amount > solpay.MaxLoggedAmount {
		return nil, fmt.Errorf("%w: amount %d outside loggable range", domain.ErrInvalidArgument, e.Amount)
	}
	existing, err := o.guard.PaymentLogged(ctx, e.Signature)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyPaid, e.Signature)
	}
	record, _, err := o.deriver.Payment(e.Signature)
	if err != nil {
		return nil, err
	}
	reg, err := o.guard.Merchant(ctx, e.Merchant)
	if err != nil {
		return nil, err
	}
	asset := e.Asset
	if asset.IsZero() {
		asset = model.NativeAsset
	}
	if !reg.Active || !reg.Supports(asset) {
		return nil, fmt.Errorf("%w: merchant %s cannot record asset %s", domain.ErrInvalidArgument, e.Merchant, asset)
	}
	ix, err := o.program.InitializePaymentTransaction(record, reg.Address, payer, solpay.PaymentArgs{
		SignatureHash: pda.SignatureSeed(e.Signature),
		Signature:     e.Signature,
		Amount:        e.Amount,
		Asset:         asset,
		Status:        uint8(model.PaymentStatusCompleted),
	})
	if err != nil {
		return nil, err
	}
	sig, err := o.submit(ctx, OpLogPayment, ix)
	if err != nil {
		if errors.Is(err, domain.ErrAccountInUse) {
			err = fmt.Errorf("%w: %s", domain.ErrAlreadyPaid, e.Signature)
		}
		return nil, err
	}
	return &Settlement{Signature: sig, Merchant: reg.Address, PaymentRecord: record}, nil
}

// logAfterTransfer is phase 2. Its failures never fail the settlement.
func (o *Orchestrator) logAfterTransfer(ctx context.Context, e *model.PaymentLogEntry) (solana.PublicKey, *AuditLogWarning) {
	s, err := o.logPayment(ctx, e)
	if err == nil {
		metrics.IncSubmission(OpLogPayment, "ok")
		return s.PaymentRecord, nil
	}
	if errors.Is(err, domain.ErrAlreadyPaid) {
		record, _, _ := o.deriver.Payment(e.Signature)
		return record, nil
	}
	metrics.IncSubmission(OpLogPayment, outcome(err))
	metrics.IncAuditLogWarning()

	w := &AuditLogWarning{Signature: e.Signature, Err: err}
	if o.outbox != nil && Retryable(err) {
		now := o.now()
		e.LastError = err.Error()
		e.CreatedAt, e.UpdatedAt = now, now
		if qerr := o.outbox.Enqueue(ctx, repository.NoTX, e); qerr != nil {
			o.logger(ctx, OpLogPayment).Error().Err(qerr).Str("signature", e.Signature).Msg("enqueue payment log failed")
		} else {
			w.Enqueued = true
			metrics.IncOutbox("enqueued")
		}
	}
	o.logger(ctx, OpLogPayment).Warn().Err(err).
		Str("signature", e.Signature).
		Bool("enqueued", w.Enqueued).
		Msg("payment confirmed but log transaction failed")
	return solana.PublicKey{}, w
}

// RetryPaymentLog resubmits a queued log. A record that already exists
// counts as done.
func (o *Orchestrator) RetryPaymentLog(ctx context.Context, e *model.PaymentLogEntry) error {
	_, err := o.logPayment(ctx, e)
	if err == nil || errors.Is(err, domain.ErrAlreadyPaid) {
		metrics.IncSubmission(OpLogPayment, "ok")
		return nil
	}
	metrics.IncSubmission(OpLogPayment, outcome(err))
	return err
}

// submit attaches a fresh blockhash, has the wallet sign, sends and waits
// for confirmation. It never resubmits.
func (o *Orchestrator) submit(ctx context.Context, op string, ixs ...solana.Instruction) (solana.Signature, error) {
	defer logging.TraceDuration(o.logger(ctx, op), "submit")()

	fresh, err := o.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.NewTransaction(ixs, fresh.Blockhash, solana.TransactionPayer(o.wallet.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}
	if err := o.wallet.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := o.ledger.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	start := time.Now()
	if err := o.ledger.ConfirmTransaction(ctx, sig, fresh); err != nil {
		return sig, fmt.Errorf("confirm %s: %w", sig, err)
	}
	metrics.ObserveConfirm(op, time.Since(start))
	if op != OpLogPayment {
		metrics.IncSubmission(op, "ok")
	}
	o.logger(ctx, op).Info().Str("signature", sig.String()).Int("instructions", len(ixs)).Msg("transaction confirmed")
	return sig, nil
}

func (o *Orchestrator) fail(ctx context.Context, op string, err error) error {
	metrics.IncSubmission(op, outcome(err))
	o.logger(ctx, op).Debug().Err(err).Msg("operation failed")
	return err
}

func (o *Orchestrator) logger(ctx context.Context, op string) *zerolog.Logger {
	ctx = logging.WithOp(logging.WithWallet(ctx, o.wallet.PublicKey().String()), op)
	return logging.With(ctx, o.log)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrUserRejected):
		return "rejected"
	case errors.Is(err, domain.ErrNetwork):
		return "network"
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrInsufficientFunds):
		return "preflight"
	default:
		return "error"
	}
}

// Retryable reports whether a failed payment log is worth another attempt.
func Retryable(err error) bool {
	return !errors.Is(err, domain.ErrInvalidArgument) && !errors.Is(err, domain.ErrAlreadyExists)
}
