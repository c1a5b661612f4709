// Command solpayctl drives solpay merchant and subscriber flows from a
// terminal, signing with a local keypair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"solpay-gateway/internal/config"
	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/ports/repository"
	pg "solpay-gateway/internal/infra/db/postgres"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/infra/solrpc"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
)

const usage = `usage: solpayctl [-config path] [-keypair path] [-yes] [-v] <command> [flags]

commands:
  derive            merchant|plan|subscription|payment address derivation
  register-merchant register the wallet as a merchant
  create-plan       create a subscription plan for the wallet's merchant
  set-plan-active   activate or deactivate a plan
  subscribe         subscribe the wallet to a plan and pay the first cycle
  pay               one-time payment to a merchant
  cancel            cancel one of the wallet's subscriptions
  plans             list a merchant's plans
  subscriptions     list subscriptions by subscriber or merchant
  payments          list payments by merchant or payer
  stats             summarize a merchant's activity
  link              issue a payment link token
  verify-link       check a payment link token
  retry-logs        drain the wallet's pending payment logs once
  admin-token       mint a bearer token for the gateway's /admin routes
`

// env carries what every command may need. Ledger-side members are built
// lazily so offline commands run without a keypair or RPC.
type env struct {
	cfg     *config.Config
	log     *zerolog.Logger
	program solana.PublicKey
	keypair string
	yes     bool
	in      io.Reader
	out     io.Writer

	ledger *solrpc.RPCLedger
	pool   *pgxpool.Pool
}

func main() {
	global := flag.NewFlagSet("solpayctl", flag.ExitOnError)
	cfgPath := global.String("config", "config.yaml", "path to config yaml")
	keypair := global.String("keypair", "", "solana-keygen keypair file (default solana.keypair_path or ~/.config/solana/id.json)")
	yes := global.Bool("yes", false, "sign without interactive confirmation")
	verbose := global.Bool("v", false, "log at the configured level instead of warn")
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = global.Parse(os.Args[1:])

	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.Log.Format = "console"
	if !*verbose {
		cfg.Log.Level = "warn"
	}
	program, err := solana.PublicKeyFromBase58(cfg.Solana.ProgramID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid program id %q: %v\n", cfg.Solana.ProgramID, err)
		os.Exit(1)
	}

	e := &env{
		cfg:     cfg,
		log:     logging.New(cfg.Log, false),
		program: program,
		keypair: *keypair,
		yes:     *yes,
		in:      os.Stdin,
		out:     os.Stdout,
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, e, global.Arg(0), global.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, e *env, cmd string, args []string) error {
	commands := map[string]func(context.Context, *env, []string) error{
		"derive":            cmdDerive,
		"register-merchant": cmdRegisterMerchant,
		"create-plan":       cmdCreatePlan,
		"set-plan-active":   cmdSetPlanActive,
		"subscribe":         cmdSubscribe,
		"pay":               cmdPay,
		"cancel":            cmdCancel,
		"plans":             cmdPlans,
		"subscriptions":     cmdSubscriptions,
		"payments":          cmdPayments,
		"stats":             cmdStats,
		"link":              cmdLink,
		"verify-link":       cmdVerifyLink,
		"retry-logs":        cmdRetryLogs,
		"admin-token":       cmdAdminToken,
	}
	fn, ok := commands[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidArgument, cmd)
	}
	return fn(ctx, e, args)
}

// exitCode separates operator refusals and bad input from ledger failures.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrUserRejected):
		return 3
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAlreadyExists):
		return 2
	default:
		return 1
	}
}

func (e *env) rpc() *solrpc.RPCLedger {
	if e.ledger == nil {
		e.ledger = solrpc.NewRPCLedger(e.cfg.Solana.RPCURL,
			solrpc.WithCommitment(e.cfg.Solana.Commitment),
			solrpc.WithConfirmPolling(e.cfg.Solana.ConfirmPoll, e.cfg.Solana.ConfirmTimeout),
			solrpc.WithLogger(e.log),
		)
	}
	return e.ledger
}

func (e *env) query() *usecase.LedgerQuery {
	return usecase.NewLedgerQuery(e.rpc(), e.program, e.log)
}

func (e *env) keypairPath() string {
	if e.keypair != "" {
		return e.keypair
	}
	if e.cfg.Solana.KeypairPath != "" {
		return e.cfg.Solana.KeypairPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

func (e *env) wallet() (*solrpc.KeypairWallet, error) {
	return solrpc.LoadKeypairWallet(e.keypairPath())
}

// orchestrator signs with the keypair, behind an interactive prompt unless
// -yes was given. Phase-2 failures are queued when a database is configured.
func (e *env) orchestrator(ctx context.Context) (*usecase.Orchestrator, error) {
	kp, err := e.wallet()
	if err != nil {
		return nil, err
	}
	var opts []usecase.OrchestratorOption
	outbox, err := e.outbox(ctx)
	if err != nil {
		return nil, err
	}
	if outbox != nil {
		opts = append(opts, usecase.WithOutbox(outbox))
	}
	if e.yes {
		return usecase.NewOrchestrator(e.rpc(), kp, e.program, e.log, opts...), nil
	}
	w := solrpc.NewConfirmingWallet(kp, e.in, os.Stderr)
	return usecase.NewOrchestrator(e.rpc(), w, e.program, e.log, opts...), nil
}

func (e *env) outbox(ctx context.Context) (repository.PaymentLogOutbox, error) {
	if e.cfg.Database.URL == "" {
		return nil, nil
	}
	if e.pool == nil {
		pool, err := pg.Connect(ctx, e.cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		e.pool = pool
	}
	return pg.NewPaymentLogOutboxRepo(e.pool), nil
}

func (e *env) close() {
	if e.pool != nil {
		e.pool.Close()
	}
}
