package solrpc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/ports/adapter"
	"solpay-gateway/internal/solpay"
)

var (
	_ adapter.Wallet = (*KeypairWallet)(nil)
	_ adapter.Wallet = (*ConfirmingWallet)(nil)
)

// KeypairWallet signs with a local private key.
type KeypairWallet struct {
	key solana.PrivateKey
}

func NewKeypairWallet(key solana.PrivateKey) *KeypairWallet {
	return &KeypairWallet{key: key}
}

// LoadKeypairWallet reads a solana-keygen JSON keypair file.
func LoadKeypairWallet(path string) (*KeypairWallet, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: keypair %s: %v", domain.ErrInvalidConfig, path, err)
	}
	return &KeypairWallet{key: key}, nil
}

func (w *KeypairWallet) PublicKey() solana.PublicKey { return w.key.PublicKey() }

func (w *KeypairWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		if k.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	return nil
}

// ConfirmingWallet shows each transaction to an operator and only signs
// after an explicit yes. Anything else is a rejection.
type ConfirmingWallet struct {
	inner adapter.Wallet
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
}

func NewConfirmingWallet(inner adapter.Wallet, in io.Reader, out io.Writer) *ConfirmingWallet {
	return &ConfirmingWallet{inner: inner, in: bufio.NewReader(in), out: out}
}

func (w *ConfirmingWallet) PublicKey() solana.PublicKey { return w.inner.PublicKey() }

func (w *ConfirmingWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintf(w.out, "Sign transaction as %s:\n", w.inner.PublicKey())
	for _, line := range Describe(tx) {
		fmt.Fprintf(w.out, "  - %s\n", line)
	}
	fmt.Fprint(w.out, "Approve? [y/N]: ")
	answer, err := w.in.ReadString('\n')
	if err != nil && answer == "" {
		return fmt.Errorf("%w: no answer", domain.ErrUserRejected)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return w.inner.SignTransaction(ctx, tx)
	default:
		return domain.ErrUserRejected
	}
}

// Describe renders one line per instruction for operator review.
func Describe(tx *solana.Transaction) []string {
	msg := tx.Message
	lines := make([]string, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		prog := msg.AccountKeys[ci.ProgramIDIndex]
		metas, err := accountMetas(&msg, ci.Accounts)
		if err != nil || len(metas) == 0 {
			lines = append(lines, fmt.Sprintf("%s: unresolvable accounts", prog))
			continue
		}
		switch {
		case prog.Equals(solana.SystemProgramID):
			inst, err := system.DecodeInstruction(metas, ci.Data)
			if err == nil {
				if t, ok := inst.Impl.(*system.Transfer); ok && t.Lamports != nil {
					lines = append(lines, fmt.Sprintf("transfer %d lamports %s -> %s", *t.Lamports, metas[0].PublicKey, metas[1].PublicKey))
					continue
				}
			}
			lines = append(lines, "system instruction")
		default:
			if name, ok := solpay.InstructionName(ci.Data); ok {
				lines = append(lines, fmt.Sprintf("solpay %s (%s)", name, metas[0].PublicKey))
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: unknown instruction", prog))
		}
	}
	return lines
}

func accountMetas(msg *solana.Message, idxs []uint16) ([]*solana.AccountMeta, error) {
	metas := make([]*solana.AccountMeta, len(idxs))
	for i, idx := range idxs {
		if int(idx) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("account index %d out of range", idx)
		}
		pub := msg.AccountKeys[idx]
		writable, err := msg.IsWritable(pub)
		if err != nil {
			return nil, err
		}
		metas[i] = &solana.AccountMeta{PublicKey: pub, IsSigner: msg.IsSigner(pub), IsWritable: writable}
	}
	return metas, nil
}
