// Package solrpc adapts the Solana JSON-RPC API and local keypairs to the
// ledger and wallet ports.
package solrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/rs/zerolog"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/infra/logging"
)

var _ adapter.LedgerClient = (*RPCLedger)(nil)

// RPCLedger is the shared ledger handle. Build it once at process start.
type RPCLedger struct {
	client         *rpc.Client
	commitment     rpc.CommitmentType
	confirmPoll    time.Duration
	confirmTimeout time.Duration
	log            *zerolog.Logger
}

type RPCOption func(*RPCLedger)

func WithCommitment(c string) RPCOption {
	return func(l *RPCLedger) { l.commitment = rpc.CommitmentType(c) }
}

func WithConfirmPolling(poll, timeout time.Duration) RPCOption {
	return func(l *RPCLedger) {
		if poll > 0 {
			l.confirmPoll = poll
		}
		if timeout > 0 {
			l.confirmTimeout = timeout
		}
	}
}

func WithLogger(logger *zerolog.Logger) RPCOption {
	return func(l *RPCLedger) { l.log = logger }
}

func NewRPCLedger(rpcURL string, opts ...RPCOption) *RPCLedger {
	l := &RPCLedger{
		client:         rpc.New(rpcURL),
		commitment:     rpc.CommitmentConfirmed,
		confirmPoll:    500 * time.Millisecond,
		confirmTimeout: 90 * time.Second,
		log:            logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RPCLedger) LatestBlockhash(ctx context.Context) (adapter.Freshness, error) {
	out, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return adapter.Freshness{}, fmt.Errorf("%w: latest blockhash: %v", domain.ErrNetwork, err)
	}
	return adapter.Freshness{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (l *RPCLedger) GetAccount(ctx context.Context, address solana.PublicKey) (*adapter.AccountInfo, error) {
	out, err := l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
		Commitment: l.commitment,
		Encoding:   solana.EncodingBase64,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (out == nil || out.Value == nil)) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, address)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get account %s: %v", domain.ErrNetwork, address, err)
	}
	return &adapter.AccountInfo{
		Address:  address,
		Owner:    out.Value.Owner,
		Lamports: out.Value.Lamports,
		Data:     out.Value.Data.GetBinary(),
	}, nil
}

func (l *RPCLedger) GetBalance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	out, err := l.client.GetBalance(ctx, address, l.commitment)
	if err != nil {
		return 0, fmt.Errorf("%w: get balance %s: %v", domain.ErrNetwork, address, err)
	}
	return out.Value, nil
}

func (l *RPCLedger) GetProgramAccounts(ctx context.Context, program solana.PublicKey, filters ...adapter.MemcmpFilter) ([]*adapter.AccountInfo, error) {
	rf := make([]rpc.RPCFilter, 0, len(filters))
	for _, f := range filters {
		rf = append(rf, rpc.RPCFilter{Memcmp: &rpc.RPCFilterMemcmp{Offset: f.Offset, Bytes: solana.Base58(f.Bytes)}})
	}
	out, err := l.client.GetProgramAccountsWithOpts(ctx, program, &rpc.GetProgramAccountsOpts{
		Commitment: l.commitment,
		Encoding:   solana.EncodingBase64,
		Filters:    rf,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: program accounts: %v", domain.ErrNetwork, err)
	}
	infos := make([]*adapter.AccountInfo, 0, len(out))
	for _, ka := range out {
		if ka == nil || ka.Account == nil {
			continue
		}
		infos = append(infos, &adapter.AccountInfo{
			Address:  ka.Pubkey,
			Owner:    ka.Account.Owner,
			Lamports: ka.Account.Lamports,
			Data:     ka.Account.Data.GetBinary(),
		})
	}
	return infos, nil
}

// SendTransaction submits with preflight simulation so program failures
// come back before the transaction lands.
func (l *RPCLedger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		return solana.Signature{}, classifySendError(err)
	}
	logging.With(ctx, l.log).Debug().Str("signature", sig.String()).Msg("transaction sent")
	return sig, nil
}

// ConfirmTransaction polls signature status until it reaches the configured
// commitment, the transaction fails, or the blockhash expires.
func (l *RPCLedger) ConfirmTransaction(ctx context.Context, sig solana.Signature, fresh adapter.Freshness) error {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()
	ticker := time.NewTicker(l.confirmPoll)
	defer ticker.Stop()

	for {
		done, err := l.checkStatus(ctx, sig, fresh)
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: confirm %s: %v", domain.ErrNetwork, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RPCLedger) checkStatus(ctx context.Context, sig solana.Signature, fresh adapter.Freshness) (bool, error) {
	out, err := l.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		logging.With(ctx, l.log).Debug().Err(err).Str("signature", sig.String()).Msg("status poll failed")
		return false, nil
	}
	if out != nil && len(out.Value) > 0 && out.Value[0] != nil {
		st := out.Value[0]
		if st.Err != nil {
			return true, classifyStatusError(st.Err)
		}
		if reached(st.ConfirmationStatus, l.commitment) {
			return true, nil
		}
		return false, nil
	}
	height, err := l.client.GetBlockHeight(ctx, l.commitment)
	if err == nil && height > fresh.LastValidBlockHeight {
		return true, fmt.Errorf("%w: %s at height %d", domain.ErrBlockhashExpired, sig, height)
	}
	return false, nil
}

// classifyStatusError maps the error of a landed transaction. Anchor's init
// allocates through the system program, whose AccountAlreadyInUse is custom
// code 0; it means another transaction created the account first.
func classifyStatusError(v any) error {
	if code, ok := customErrorCode(v); ok && code == "0" {
		return fmt.Errorf("%w: %v", domain.ErrAccountInUse, v)
	}
	return fmt.Errorf("%w: %v", domain.ErrTransactionFailed, v)
}

// customErrorCode extracts n from {"InstructionError":[i,{"Custom":n}]}.
func customErrorCode(v any) (string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", false
	}
	parts, ok := m["InstructionError"].([]any)
	if !ok || len(parts) != 2 {
		return "", false
	}
	inner, ok := parts[1].(map[string]any)
	if !ok {
		return "", false
	}
	code, ok := inner["Custom"]
	if !ok {
		return "", false
	}
	return fmt.Sprint(code), true
}

func reached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	rank := map[string]int{"processed": 1, "confirmed": 2, "finalized": 3}
	return rank[string(got)] >= rank[string(want)] && rank[string(got)] > 0
}

// classifySendError maps RPC submission failures onto domain errors. The
// program's own uniqueness constraint shows up in simulation logs as an
// account that is "already in use".
func classifySendError(err error) error {
	text := err.Error()
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		text = fmt.Sprintf("%s %v", rpcErr.Message, rpcErr.Data)
	}
	switch {
	case strings.Contains(text, "already in use"):
		return fmt.Errorf("%w: %v", domain.ErrAccountInUse, err)
	case strings.Contains(text, "Blockhash not found"), strings.Contains(text, "BlockhashNotFound"):
		return fmt.Errorf("%w: %v", domain.ErrBlockhashExpired, err)
	case strings.Contains(text, "insufficient lamports"),
		strings.Contains(text, "insufficient funds"),
		strings.Contains(text, "no record of a prior credit"):
		return fmt.Errorf("%w: %v", domain.ErrInsufficientFunds, err)
	case rpcErr != nil:
		return fmt.Errorf("%w: %s", domain.ErrTransactionFailed, rpcErr.Message)
	default:
		return fmt.Errorf("%w: send: %v", domain.ErrNetwork, err)
	}
}
