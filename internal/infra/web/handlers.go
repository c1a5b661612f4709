package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"solpay-gateway/internal/domain"
	"solpay-gateway/internal/infra/logging"
	"solpay-gateway/internal/infra/metrics"
	"solpay-gateway/internal/paylink"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	validate.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
		_, err := solana.PublicKeyFromBase58(fl.Field().String())
		return err == nil
	})
}

const maxBodyBytes = 16 << 10

type generateRequest struct {
	MerchantAddress  string `json:"merchantAddress" validate:"required,pubkey"`
	AmountLamports   *int64 `json:"amountLamports" validate:"omitempty,gt=0"`
	Description      string `json:"description" validate:"max=256"`
	ExpiresInSeconds *int64 `json:"expiresInSeconds" validate:"omitempty,lte=31536000"` // at most a year
	Type             string `json:"type" validate:"omitempty,oneof=one_time subscribe"`
	PlanName         string `json:"planName" validate:"max=32"`
	PlanPda          string `json:"planPda" validate:"omitempty,pubkey"`
	BillingCycleDays *int   `json:"billingCycleDays" validate:"omitempty,gt=0,lte=255"`
}

type generateResponse struct {
	Token       string `json:"token"`
	ExpiresAt   int64  `json:"expiresAt"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

func generateHandler(codec TokenCodec, defaultTTL time.Duration, publicBaseURL string, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), logger)
		if codec == nil {
			metrics.IncToken("generate", "unconfigured")
			l.Error().Err(domain.ErrSignerSecretMissing).Msg("link generation refused")
			writeError(w, http.StatusInternalServerError, domain.ErrSignerSecretMissing.Error())
			return
		}

		var req generateRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			metrics.IncToken("generate", "bad_request")
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			metrics.IncToken("generate", "bad_request")
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}

		ttl := defaultTTL
		if req.ExpiresInSeconds != nil && *req.ExpiresInSeconds > 0 {
			ttl = time.Duration(*req.ExpiresInSeconds) * time.Second
		}
		token, payload, err := codec.Generate(paylink.Request{
			Merchant:         req.MerchantAddress,
			Amount:           req.AmountLamports,
			Description:      req.Description,
			TTL:              ttl,
			Type:             paylink.Mode(req.Type),
			PlanName:         req.PlanName,
			PlanAddress:      req.PlanPda,
			BillingCycleDays: req.BillingCycleDays,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				metrics.IncToken("generate", "bad_request")
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			metrics.IncToken("generate", "error")
			l.Error().Err(err).Msg("generate payment link")
			writeError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}

		metrics.IncToken("generate", "ok")
		l.Info().Str("merchant", payload.Merchant).Str("mode", string(payload.Mode())).Msg("payment link issued")

		resp := generateResponse{Token: token, ExpiresAt: payload.Expiry}
		if publicBaseURL != "" {
			resp.CheckoutURL = strings.TrimRight(publicBaseURL, "/") + paylink.CheckoutPath(token)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// verifyHandler answers 400 for every token problem. Malformed and forged
// tokens share one message so callers cannot probe the signature check.
func verifyHandler(codec TokenCodec, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if codec == nil {
			metrics.IncToken("verify", "unconfigured")
			writeError(w, http.StatusInternalServerError, domain.ErrSignerSecretMissing.Error())
			return
		}
		token := chi.URLParam(r, "token")
		if token == "" {
			metrics.IncToken("verify", "malformed")
			writeError(w, http.StatusBadRequest, "Missing token")
			return
		}

		payload, err := codec.Verify(token)
		switch {
		case err == nil:
			metrics.IncToken("verify", "ok")
			writeJSON(w, http.StatusOK, payload)
		case errors.Is(err, domain.ErrTokenExpired):
			metrics.IncToken("verify", "expired")
			writeError(w, http.StatusBadRequest, "Token expired")
		case errors.Is(err, domain.ErrTokenMalformed):
			metrics.IncToken("verify", "malformed")
			writeError(w, http.StatusBadRequest, "Invalid token")
		case errors.Is(err, domain.ErrTokenInvalid):
			metrics.IncToken("verify", "invalid")
			l := logging.With(r.Context(), logger)
			l.Warn().Msg("payment link with bad signature")
			writeError(w, http.StatusBadRequest, "Invalid token")
		default:
			metrics.IncToken("verify", "error")
			writeError(w, http.StatusInternalServerError, "Failed to verify token")
		}
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return "Missing " + fe.Field()
	case "pubkey":
		return fmt.Sprintf("Invalid %s: not a base58 address", fe.Field())
	default:
		return "Invalid " + fe.Field()
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
