package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/domain/ports/repository"
	"solpay-gateway/internal/infra/logging"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

func pathKey(w http.ResponseWriter, r *http.Request, param string) (solana.PublicKey, bool) {
	k, err := solana.PublicKeyFromBase58(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+param+" address")
		return solana.PublicKey{}, false
	}
	return k, true
}

// writeLedgerError maps read-side failures: unknown records are 404, an
// unreachable ledger is 502, anything else 500.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrNetwork):
		writeError(w, http.StatusBadGateway, "Ledger unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to read ledger")
	}
	l := logging.With(r.Context(), logger)
	l.Error().Err(err).Str("path", r.URL.Path).Msg("ledger read failed")
}

func merchantHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathKey(w, r, "owner")
		if !ok {
			return
		}
		m, err := q.MerchantByOwner(r.Context(), owner)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toMerchantView(m))
	}
}

func merchantPlansHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathKey(w, r, "owner")
		if !ok {
			return
		}
		plans, err := q.PlansByMerchant(r.Context(), owner)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(plans, toPlanView))
	}
}

func merchantSubscriptionsHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathKey(w, r, "owner")
		if !ok {
			return
		}
		subs, err := q.SubscriptionsByMerchant(r.Context(), owner)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(subs, toSubscriptionView))
	}
}

func merchantPaymentsHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathKey(w, r, "owner")
		if !ok {
			return
		}
		payments, err := q.PaymentsByMerchant(r.Context(), owner)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(payments, toPaymentView))
	}
}

func merchantStatsHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := pathKey(w, r, "owner")
		if !ok {
			return
		}
		st, err := q.MerchantStats(r.Context(), owner)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toStatsView(st))
	}
}

func subscriberSubscriptionsHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, ok := pathKey(w, r, "wallet")
		if !ok {
			return
		}
		subs, err := q.SubscriptionsWithPlans(r.Context(), wallet)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(subs, toSubscriptionWithPlanView))
	}
}

func subscriberPaymentsHandler(q LedgerReader, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, ok := pathKey(w, r, "wallet")
		if !ok {
			return
		}
		payments, err := q.PaymentsByPayer(r.Context(), wallet)
		if err != nil {
			writeLedgerError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(payments, toPaymentView))
	}
}

const (
	defaultOutboxLimit = 50
	maxOutboxLimit     = 500
)

// outboxHandler lists audit logs still waiting to reach the ledger.
func outboxHandler(outbox repository.PaymentLogOutbox, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultOutboxLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 || n > maxOutboxLimit {
				writeError(w, http.StatusBadRequest, "Invalid limit")
				return
			}
			limit = n
		}
		entries, err := outbox.ListPending(r.Context(), repository.NoTX, solana.PublicKey{}, time.Now(), limit)
		if err != nil {
			l := logging.With(r.Context(), logger)
			l.Error().Err(err).Msg("list payment log outbox")
			writeError(w, http.StatusInternalServerError, "Failed to list outbox")
			return
		}
		writeJSON(w, http.StatusOK, mapSlice(entries, toOutboxEntryView))
	}
}
