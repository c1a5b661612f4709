package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"solpay-gateway/internal/config"
	"solpay-gateway/internal/domain/model"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/infra/api"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/infra/metrics"
	"solpay-gateway/internal/infra/redis"
	"solpay-gateway/internal/paylink"
	"solpay-gateway/internal/usecase"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// TokenCodec signs and checks payment link tokens. A nil codec means the
// signing secret is not configured.
type TokenCodec interface {
	Generate(req paylink.Request) (string, *paylink.Payload, error)
	Verify(token string) (*paylink.Payload, error)
}

// LedgerReader is the read side served to merchant dashboards.
type LedgerReader interface {
	MerchantByOwner(ctx context.Context, owner solana.PublicKey) (*model.MerchantRegistration, error)
	PlansByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.SubscriptionPlan, error)
	SubscriptionsByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.UserSubscription, error)
	PaymentsByMerchant(ctx context.Context, merchant solana.PublicKey) ([]*model.PaymentTransaction, error)
	PaymentsByPayer(ctx context.Context, payer solana.PublicKey) ([]*model.PaymentTransaction, error)
	MerchantStats(ctx context.Context, merchant solana.PublicKey) (*usecase.MerchantStats, error)
	SubscriptionsWithPlans(ctx context.Context, subscriber solana.PublicKey) ([]usecase.SubscriptionWithPlan, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var (
	_ LedgerReader = (*usecase.LedgerQuery)(nil)
	_ TokenCodec   = (*paylink.Codec)(nil)
	_ RateLimiter  = (*redis.RateLimiter)(nil)
)

type Server struct {
	cfg     *config.Config
	codec   TokenCodec
	ledger  LedgerReader
	limiter RateLimiter
	outbox  repository.PaymentLogOutbox
	auth    *AuthManager
	log     *zerolog.Logger
	server  *http.Server
}

type Option func(*Server)

func WithRateLimiter(l RateLimiter) Option { return func(s *Server) { s.limiter = l } }

// WithAdmin exposes the outbox under /admin, guarded by auth.
func WithAdmin(auth *AuthManager, outbox repository.PaymentLogOutbox) Option {
	return func(s *Server) { s.auth, s.outbox = auth, outbox }
}

func NewServer(cfg *config.Config, codec TokenCodec, ledger LedgerReader, logger *zerolog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Server{cfg: cfg, codec: codec, ledger: ledger, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes builds the chi router with the middleware chain applied.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		api.TraceID(),
		api.RequestLog(s.log),
		api.Recover(s.log),
		api.Timeout(s.cfg.HTTP.RequestTimeout),
	)

	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/pay", func(r chi.Router) {
		r.With(s.rateLimit).Post("/generate", generateHandler(s.codec, s.cfg.Paylink.DefaultTTL, s.cfg.HTTP.PublicBaseURL, s.log))
		r.Get("/verify/{token}", verifyHandler(s.codec, s.log))
	})

	if s.ledger != nil {
		r.Route("/merchants/{owner}", func(r chi.Router) {
			r.Get("/", merchantHandler(s.ledger, s.log))
			r.Get("/plans", merchantPlansHandler(s.ledger, s.log))
			r.Get("/subscriptions", merchantSubscriptionsHandler(s.ledger, s.log))
			r.Get("/payments", merchantPaymentsHandler(s.ledger, s.log))
			r.Get("/stats", merchantStatsHandler(s.ledger, s.log))
		})
		r.Get("/subscribers/{wallet}/subscriptions", subscriberSubscriptionsHandler(s.ledger, s.log))
		r.Get("/subscribers/{wallet}/payments", subscriberPaymentsHandler(s.ledger, s.log))
	}

	if s.auth != nil && s.outbox != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/outbox", outboxHandler(s.outbox, s.log))
		})
	}
	return r
}

// rateLimit applies the per-client generate quota. Limiter failures let the
// request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil || s.cfg.Paylink.RateLimit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.limiter.Allow(r.Context(), redis.PaylinkGenerateKey(clientIP(r)), s.cfg.Paylink.RateLimit, s.cfg.Paylink.RateWindow)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			metrics.PaylinkRateLimitedTotal.Inc()
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.HTTP.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.cfg.HTTP.Addr).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
