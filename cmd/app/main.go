// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solpay-gateway/internal/config"
	pg "solpay-gateway/internal/infra/db/postgres"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/infra/metrics"
	red "solpay-gateway/internal/infra/redis"
	"solpay-gateway/internal/infra/sched"
	"solpay-gateway/internal/infra/solrpc"
	"solpay-gateway/internal/infra/web"
	"solpay-gateway/internal/paylink"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- Config & logging ----
	cfgPath, dev := config.ParseFlags()
	cfg, err := config.LoadConfig(cfgPath, dev)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("[DEV MODE] Enabled")
	}
	metrics.MustRegister()

	programID, err := solana.PublicKeyFromBase58(cfg.Solana.ProgramID)
	if err != nil {
		logger.Fatal().Err(err).Str("program_id", cfg.Solana.ProgramID).Msg("invalid program id")
	}
	metrics.SetGatewayInfo(version, commit, programID.String())

	// ---- Ledger ----
	ledger := solrpc.NewRPCLedger(cfg.Solana.RPCURL,
		solrpc.WithCommitment(cfg.Solana.Commitment),
		solrpc.WithConfirmPolling(cfg.Solana.ConfirmPoll, cfg.Solana.ConfirmTimeout),
		solrpc.WithLogger(logger),
	)
	query := usecase.NewLedgerQuery(ledger, programID, logger)

	// ---- Payment links ----
	var codec web.TokenCodec
	if c, err := paylink.NewCodec(cfg.Paylink.SignerSecret); err != nil {
		logger.Error().Err(err).Msg("payment link endpoints will answer 500 until the signer secret is set")
	} else {
		codec = c
	}

	var opts []web.Option

	// ---- Redis ----
	var locker sched.Locker
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		opts = append(opts, web.WithRateLimiter(red.NewRateLimiter(redisClient)))
		locker = red.NewLocker(redisClient)
	} else if cfg.Paylink.RateLimit > 0 {
		logger.Warn().Msg("paylink.rate_limit set without redis.url; link generation is not rate limited")
	}

	// ---- Postgres outbox ----
	if cfg.Database.URL != "" {
		pool, err := pg.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		if err := pg.Migrate(ctx, pool); err != nil {
			logger.Fatal().Err(err).Msg("postgres migrate")
		}
		go pg.ReportPoolStats(ctx, pool, 15*time.Second)
		outbox := pg.NewPaymentLogOutboxRepo(pool)

		if cfg.HTTP.AdminJWTSecret != "" {
			auth, err := web.NewAuthManager(cfg.HTTP.AdminJWTSecret, time.Hour)
			if err != nil {
				logger.Fatal().Err(err).Msg("admin auth")
			}
			opts = append(opts, web.WithAdmin(auth, outbox))
		}

		if cfg.Solana.KeypairPath != "" {
			wallet, err := solrpc.LoadKeypairWallet(cfg.Solana.KeypairPath)
			if err != nil {
				logger.Fatal().Err(err).Msg("keypair")
			}
			orch := usecase.NewOrchestrator(ledger, wallet, programID, logger, usecase.WithOutbox(outbox))
			// a submission may wait out the confirmation timeout after fetching a blockhash and sending
			retrierOpts := []sched.RetrierOption{
				sched.WithMaxAttempts(cfg.Outbox.MaxAttempts),
				sched.WithEntryTimeout(cfg.Solana.ConfirmTimeout + 30*time.Second),
			}
			if locker != nil {
				retrierOpts = append(retrierOpts, sched.WithLocker(locker, red.OutboxDrainKey))
			} else {
				retrierOpts = append(retrierOpts, sched.WithTxManager(pg.NewTxManager(pool)))
			}
			retrier := sched.NewPaymentLogRetrier(orch, outbox, cfg.Outbox.Interval, cfg.Outbox.MinAge, cfg.Outbox.BatchSize, logger, retrierOpts...)
			go retrier.Start(ctx)
			logger.Info().Str("wallet", wallet.PublicKey().String()).Msg("payment log retrier started")
		} else {
			logger.Warn().Msg("solana.keypair_path not set; payment log outbox will not be drained")
		}
	}

	// ---- HTTP ----
	srv := web.NewServer(cfg, codec, query, logger, opts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
