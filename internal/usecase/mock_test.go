//go:build !integration

package usecase_test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/solpay"
)

// -----------------------------
// Utilities: tiny helpers
// -----------------------------

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

var testProgram = solpay.DefaultProgramID

func fixedClock() func() time.Time {
	t := time.Unix(1_700_000_000, 0)
	return func() time.Time { return t }
}

// =============================
// Ledger
// =============================

// FakeLedger keeps accounts in memory and applies system transfers and
// solpay instructions with all-or-nothing semantics per transaction.
type FakeLedger struct {
	mu       sync.Mutex
	program  solana.PublicKey
	now      func() time.Time
	accounts map[solana.PublicKey]*adapter.AccountInfo
	balances map[solana.PublicKey]uint64
	Sent     []*solana.Transaction

	GetAccountErr error
	BalanceErr    error
	ConfirmErr    error
	// ConfirmErrs, when set, answers successive confirmations in order
	// before falling back to ConfirmErr.
	ConfirmErrs []error
	// BeforeApply runs under the lock before a transaction is applied.
	BeforeApply func(name string)
	// RejectInstruction fails any transaction containing the named instruction.
	RejectInstruction string
}

var _ adapter.LedgerClient = (*FakeLedger)(nil)

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		program:  testProgram,
		now:      fixedClock(),
		accounts: make(map[solana.PublicKey]*adapter.AccountInfo),
		balances: make(map[solana.PublicKey]uint64),
	}
}

func (l *FakeLedger) Fund(key solana.PublicKey, lamports uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[key] = lamports
}

func (l *FakeLedger) Balance(key solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[key]
}

func (l *FakeLedger) Put(addr solana.PublicKey, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[addr] = &adapter.AccountInfo{Address: addr, Owner: l.program, Data: data}
}

func (l *FakeLedger) Has(addr solana.PublicKey) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[addr]
	return ok
}

func (l *FakeLedger) CountOwned(disc solpay.Discriminator) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, a := range l.accounts {
		if len(a.Data) >= 8 && solpay.Discriminator(a.Data[:8]) == disc {
			n++
		}
	}
	return n
}

func (l *FakeLedger) SentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Sent)
}

func (l *FakeLedger) LatestBlockhash(ctx context.Context) (adapter.Freshness, error) {
	return adapter.Freshness{Blockhash: solana.Hash{1, 2, 3}, LastValidBlockHeight: 150}, nil
}

func (l *FakeLedger) GetAccount(ctx context.Context, addr solana.PublicKey) (*adapter.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.GetAccountErr != nil {
		return nil, l.GetAccountErr
	}
	a, ok := l.accounts[addr]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (l *FakeLedger) GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.BalanceErr != nil {
		return 0, l.BalanceErr
	}
	return l.balances[addr], nil
}

func (l *FakeLedger) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters ...adapter.MemcmpFilter) ([]*adapter.AccountInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*adapter.AccountInfo
next:
	for _, a := range l.accounts {
		if !a.Owner.Equals(program) {
			continue
		}
		for _, f := range filters {
			end := int(f.Offset) + len(f.Bytes)
			if end > len(a.Data) || string(a.Data[f.Offset:end]) != string(f.Bytes) {
				continue next
			}
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (l *FakeLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature, fresh adapter.Freshness) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ConfirmErrs) > 0 {
		err := l.ConfirmErrs[0]
		l.ConfirmErrs = l.ConfirmErrs[1:]
		return err
	}
	return l.ConfirmErr
}

func (l *FakeLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, fmt.Errorf("%w: unsigned", domain.ErrTransactionFailed)
	}
	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", domain.ErrTransactionFailed, err)
	}

	// work on copies so a failing instruction leaves no trace
	accounts := make(map[solana.PublicKey]*adapter.AccountInfo, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	balances := make(map[solana.PublicKey]uint64, len(l.balances))
	for k, v := range l.balances {
		balances[k] = v
	}
	st := &ledgerState{l: l, accounts: accounts, balances: balances}

	msg := tx.Message
	for _, ci := range msg.Instructions {
		prog := msg.AccountKeys[ci.ProgramIDIndex]
		keys := make([]solana.PublicKey, len(ci.Accounts))
		for i, idx := range ci.Accounts {
			keys[i] = msg.AccountKeys[idx]
		}
		if err := st.apply(prog, keys, []byte(ci.Data)); err != nil {
			return solana.Signature{}, err
		}
	}
	l.accounts, l.balances = accounts, balances
	l.Sent = append(l.Sent, tx)
	return tx.Signatures[0], nil
}

type ledgerState struct {
	l        *FakeLedger
	accounts map[solana.PublicKey]*adapter.AccountInfo
	balances map[solana.PublicKey]uint64
}

func (s *ledgerState) create(addr solana.PublicKey, data []byte) error {
	if _, ok := s.accounts[addr]; ok {
		return fmt.Errorf("%w: %s", domain.ErrAccountInUse, addr)
	}
	s.accounts[addr] = &adapter.AccountInfo{Address: addr, Owner: s.l.program, Data: data}
	return nil
}

func (s *ledgerState) apply(prog solana.PublicKey, keys []solana.PublicKey, data []byte) error {
	if prog.Equals(solana.SystemProgramID) {
		if len(data) != 12 || binary.LittleEndian.Uint32(data[:4]) != 2 {
			return fmt.Errorf("%w: unsupported system instruction", domain.ErrTransactionFailed)
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		from, to := keys[0], keys[1]
		if s.balances[from] < lamports {
			return fmt.Errorf("%w: insufficient lamports", domain.ErrTransactionFailed)
		}
		s.balances[from] -= lamports
		s.balances[to] += lamports
		return nil
	}
	if !prog.Equals(s.l.program) {
		return fmt.Errorf("%w: unknown program %s", domain.ErrTransactionFailed, prog)
	}
	name, ok := solpay.InstructionName(data)
	if !ok {
		return fmt.Errorf("%w: unknown instruction", domain.ErrTransactionFailed)
	}
	if s.l.BeforeApply != nil {
		s.l.BeforeApply(name)
	}
	if name == s.l.RejectInstruction {
		return fmt.Errorf("%w: %s rejected", domain.ErrTransactionFailed, name)
	}
	now := s.l.now()

	switch name {
	case "initialize_merchant":
		args, err := solpay.DecodeMerchantArgs(data)
		if err != nil {
			return err
		}
		rec, _ := solpay.MerchantAccount.Encode(&model.MerchantRegistration{
			Name: args.Name, Website: args.Website, Owner: keys[1], Active: true,
			SupportedAssets: args.SupportedAssets, CreatedAt: now,
		})
		return s.create(keys[0], rec)

	case "initialize_subscription_plan":
		args, err := solpay.DecodePlanArgs(data)
		if err != nil {
			return err
		}
		if _, ok := s.accounts[keys[1]]; !ok {
			return fmt.Errorf("%w: merchant not initialized", domain.ErrTransactionFailed)
		}
		rec, _ := solpay.PlanAccount.Encode(&model.SubscriptionPlan{
			Name: args.Name, Price: args.Price, Asset: args.Asset, BillingCycleDays: args.BillingCycleDays,
			Active: args.Active, CreatedAt: now, Merchant: keys[2], SupportedAssets: args.SupportedAssets,
		})
		return s.create(keys[0], rec)

	case "initialize_user_subscription":
		args, err := solpay.DecodeUserSubscriptionArgs(data)
		if err != nil {
			return err
		}
		plan, err := s.plan(keys[1])
		if err != nil {
			return err
		}
		if !plan.Active || len(args.SupportedAssets) == 0 {
			return fmt.Errorf("%w: inactive plan or empty supported tokens", domain.ErrTransactionFailed)
		}
		rec, _ := solpay.UserSubscriptionAccount.Encode(&model.UserSubscription{
			Subscriber: keys[3], Plan: keys[1], StartDate: now, NextBillingDate: time.Unix(args.NextBillingDate, 0),
			Active: args.Active, Merchant: plan.Merchant, SupportedAssets: args.SupportedAssets,
		})
		return s.create(keys[0], rec)

	case "initialize_cancel_subscription":
		a, ok := s.accounts[keys[0]]
		if !ok {
			return fmt.Errorf("%w: subscription missing", domain.ErrTransactionFailed)
		}
		sub, err := solpay.UserSubscriptionAccount.Decode(keys[0], a.Data)
		if err != nil {
			return err
		}
		if !sub.Subscriber.Equals(keys[2]) {
			return fmt.Errorf("%w: unauthorized", domain.ErrTransactionFailed)
		}
		sub.Active = false
		sub.CanceledAt = &now
		rec, _ := solpay.UserSubscriptionAccount.Encode(sub)
		s.accounts[keys[0]] = &adapter.AccountInfo{Address: keys[0], Owner: s.l.program, Data: rec}
		return nil

	case "initialize_payment_transaction":
		args, err := solpay.DecodePaymentArgs(data)
		if err != nil {
			return err
		}
		if args.Amount == 0 || args.Amount > solpay.MaxLoggedAmount || args.Status > solpay.MaxPaymentStatus {
			return fmt.Errorf("%w: invalid payment details", domain.ErrTransactionFailed)
		}
		a, ok := s.accounts[keys[1]]
		if !ok {
			return fmt.Errorf("%w: merchant missing", domain.ErrTransactionFailed)
		}
		reg, err := solpay.MerchantAccount.Decode(keys[1], a.Data)
		if err != nil {
			return err
		}
		rec, _ := solpay.PaymentAccount.Encode(&model.PaymentTransaction{
			Signature: args.Signature, Payer: keys[2], Merchant: reg.Owner, Amount: args.Amount,
			Asset: args.Asset, Status: model.PaymentStatus(args.Status), CreatedAt: now,
		})
		return s.create(keys[0], rec)

	case "update_subscription_plan":
		active, err := solpay.DecodeUpdatePlanArgs(data)
		if err != nil {
			return err
		}
		plan, err := s.plan(keys[0])
		if err != nil {
			return err
		}
		plan.Active = active
		rec, _ := solpay.PlanAccount.Encode(plan)
		s.accounts[keys[0]] = &adapter.AccountInfo{Address: keys[0], Owner: s.l.program, Data: rec}
		return nil
	}
	return fmt.Errorf("%w: %s not supported", domain.ErrTransactionFailed, name)
}

func (s *ledgerState) plan(addr solana.PublicKey) (*model.SubscriptionPlan, error) {
	a, ok := s.accounts[addr]
	if !ok {
		return nil, fmt.Errorf("%w: plan missing", domain.ErrTransactionFailed)
	}
	return solpay.PlanAccount.Decode(addr, a.Data)
}

// =============================
// Wallet
// =============================

type FakeWallet struct {
	mu     sync.Mutex
	key    solana.PrivateKey
	Reject bool
	Signed int
	// BeforeSign runs outside the lock on every signing request.
	BeforeSign func(tx *solana.Transaction)
}

var _ adapter.Wallet = (*FakeWallet)(nil)

func NewFakeWallet() *FakeWallet {
	return &FakeWallet{key: solana.NewWallet().PrivateKey}
}

func (w *FakeWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *FakeWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if w.BeforeSign != nil {
		w.BeforeSign(tx)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Reject {
		return domain.ErrUserRejected
	}
	w.Signed++
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	return err
}

func (w *FakeWallet) SignedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Signed
}

// =============================
// Outbox
// =============================

type MockOutbox struct {
	mu      sync.Mutex
	Entries map[string]*model.PaymentLogEntry
	Done    map[string]bool

	EnqueueErr error
}

var _ repository.PaymentLogOutbox = (*MockOutbox)(nil)

func NewMockOutbox() *MockOutbox {
	return &MockOutbox{Entries: map[string]*model.PaymentLogEntry{}, Done: map[string]bool{}}
}

func (m *MockOutbox) Enqueue(ctx context.Context, tx repository.Tx, e *model.PaymentLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	if _, ok := m.Entries[e.Signature]; !ok {
		cp := *e
		m.Entries[e.Signature] = &cp
	}
	return nil
}

func (m *MockOutbox) ListPending(ctx context.Context, tx repository.Tx, payer solana.PublicKey, olderThan time.Time, limit int) ([]*model.PaymentLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentLogEntry
	for sig, e := range m.Entries {
		if !payer.IsZero() && !e.Payer.Equals(payer) {
			continue
		}
		if !m.Done[sig] && len(out) < limit {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOutbox) MarkDone(ctx context.Context, tx repository.Tx, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Entries[signature]; !ok {
		return domain.ErrNotFound
	}
	m.Done[signature] = true
	return nil
}

func (m *MockOutbox) MarkFailed(ctx context.Context, tx repository.Tx, signature, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Entries[signature]
	if !ok {
		return domain.ErrNotFound
	}
	e.Attempts++
	e.LastError = reason
	return nil
}

var errBoom = errors.New("boom")
