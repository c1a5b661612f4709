//go:build !integration

package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"solpay-gateway/internal/infra/api"
	"solpay-gateway/internal/paylink"

	"github.com/gagliardetto/solana-go"
)

const testSecret = "test-signer-secret"

var t0 = time.Unix(1_700_000_000, 0)

func newCodec(t *testing.T, now time.Time) *paylink.Codec {
	t.Helper()
	c, err := paylink.NewCodec(testSecret, paylink.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	return c
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.7:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("expected JSON error body, got %q", rr.Body.String())
	}
	return body.Error
}

func TestGenerateHandler(t *testing.T) {
	merchant := solana.NewWallet().PublicKey().String()
	plan := solana.NewWallet().PublicKey().String()
	h := NewServer(testConfig(), newCodec(t, t0), nil, newTestLogger()).Routes()

	t.Run("should issue a one-time token that verifies", func(t *testing.T) {
		rr := do(h, http.MethodPost, "/pay/generate", `{"merchantAddress":"`+merchant+`","amountLamports":250000000,"description":"coffee"}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp generateResponse
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if resp.ExpiresAt != t0.Add(time.Hour).Unix() {
			t.Errorf("expected configured default ttl, got expiry %d", resp.ExpiresAt)
		}
		if resp.CheckoutURL != "https://pay.example.com/p/"+resp.Token {
			t.Errorf("unexpected checkout url %q", resp.CheckoutURL)
		}

		rr = do(h, http.MethodGet, "/pay/verify/"+resp.Token, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var raw map[string]any
		_ = json.NewDecoder(rr.Body).Decode(&raw)
		if raw["m"] != merchant || raw["a"] != float64(250000000) || raw["d"] != "coffee" {
			t.Errorf("unexpected payload %v", raw)
		}
		if _, ok := raw["t"]; ok {
			t.Error("expected no type key on a one-time token")
		}
	})

	t.Run("should issue a subscribe token without amount", func(t *testing.T) {
		body := `{"merchantAddress":"` + merchant + `","type":"subscribe","planName":"Gold","planPda":"` + plan + `","billingCycleDays":30,"expiresInSeconds":60}`
		rr := do(h, http.MethodPost, "/pay/generate", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp generateResponse
		_ = json.NewDecoder(rr.Body).Decode(&resp)
		if resp.ExpiresAt != t0.Unix()+60 {
			t.Errorf("expected requested ttl, got %d", resp.ExpiresAt)
		}
		p, err := newCodec(t, t0).Verify(resp.Token)
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if p.Mode() != paylink.ModeSubscribe || p.PlanAddress != plan || p.Amount != nil || *p.BillingCycleDays != 30 {
			t.Errorf("unexpected payload %+v", p)
		}
	})

	badRequests := []struct {
		name string
		body string
		msg  string
	}{
		{"missing merchant", `{"amountLamports":1}`, "Missing merchantAddress"},
		{"invalid json", `{"merchantAddress":`, "Invalid JSON body"},
		{"non-numeric amount", `{"merchantAddress":"` + merchant + `","amountLamports":"ten"}`, "Invalid JSON body"},
		{"one-time without amount", `{"merchantAddress":"` + merchant + `"}`, "amountLamports"},
		{"subscribe without plan address", `{"merchantAddress":"` + merchant + `","type":"subscribe","planName":"Gold"}`, "planPda"},
		{"unknown type", `{"merchantAddress":"` + merchant + `","type":"weekly","amountLamports":1}`, "Invalid type"},
		{"merchant not base58", `{"merchantAddress":"not-an-address","amountLamports":1}`, "merchantAddress"},
		{"expiry beyond a year", `{"merchantAddress":"` + merchant + `","amountLamports":1,"expiresInSeconds":9223372036854775807}`, "Invalid expiresInSeconds"},
	}
	for _, tc := range badRequests {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			rr := do(h, http.MethodPost, "/pay/generate", tc.body)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
			}
			if msg := decodeError(t, rr); !strings.Contains(msg, tc.msg) {
				t.Errorf("expected error mentioning %q, got %q", tc.msg, msg)
			}
		})
	}

	t.Run("should report a missing secret as 500", func(t *testing.T) {
		h := NewServer(testConfig(), nil, nil, newTestLogger()).Routes()
		rr := do(h, http.MethodPost, "/pay/generate", `{"merchantAddress":"`+merchant+`","amountLamports":1}`)
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rr.Code)
		}
		rr = do(h, http.MethodGet, "/pay/verify/abc.def", "")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500 on verify, got %d", rr.Code)
		}
	})
}

func TestVerifyHandler(t *testing.T) {
	issuer := newCodec(t, t0)
	token, _, err := issuer.Generate(paylink.Request{Merchant: solana.NewWallet().PublicKey().String(), Amount: ptr(int64(5)), TTL: time.Minute})
	if err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}

	cases := []struct {
		name  string
		now   time.Time
		token string
		msg   string
	}{
		{"malformed", t0, "not-a-token", "Invalid token"},
		{"too many parts", t0, token + ".x", "Invalid token"},
		{"forged signature", t0, flipLast(token), "Invalid token"},
		{"expired", t0.Add(2 * time.Minute), token, "Token expired"},
	}
	for _, tc := range cases {
		t.Run("should answer 400 for "+tc.name, func(t *testing.T) {
			h := NewServer(testConfig(), newCodec(t, tc.now), nil, newTestLogger()).Routes()
			rr := do(h, http.MethodGet, "/pay/verify/"+tc.token, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if msg := decodeError(t, rr); msg != tc.msg {
				t.Errorf("expected %q, got %q", tc.msg, msg)
			}
		})
	}
}

func TestGenerateRateLimit(t *testing.T) {
	body := `{"merchantAddress":"` + solana.NewWallet().PublicKey().String() + `","amountLamports":1}`

	t.Run("should refuse requests over the window quota", func(t *testing.T) {
		h := NewServer(testConfig(), newCodec(t, t0), nil, newTestLogger(), WithRateLimiter(&mockLimiter{})).Routes()
		for i := 0; i < 2; i++ {
			if rr := do(h, http.MethodPost, "/pay/generate", body); rr.Code != http.StatusOK {
				t.Fatalf("expected request %d to pass, got %d", i+1, rr.Code)
			}
		}
		rr := do(h, http.MethodPost, "/pay/generate", body)
		if rr.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rr.Code)
		}
		if rr := do(h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
			t.Fatalf("expected other routes unaffected, got %d", rr.Code)
		}
	})

	t.Run("should let requests through when the limiter is down", func(t *testing.T) {
		lim := &mockLimiter{err: errTest}
		h := NewServer(testConfig(), newCodec(t, t0), nil, newTestLogger(), WithRateLimiter(lim)).Routes()
		if rr := do(h, http.MethodPost, "/pay/generate", body); rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

func TestHealthAndTrace(t *testing.T) {
	h := NewServer(testConfig(), nil, nil, newTestLogger()).Routes()

	t.Run("should answer health with a trace id", func(t *testing.T) {
		rr := do(h, http.MethodGet, "/health", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if rr.Header().Get(api.TraceHeader) == "" {
			t.Error("expected a trace id header")
		}
	})

	t.Run("should echo a caller trace id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(api.TraceHeader, "abc-123")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if got := rr.Header().Get(api.TraceHeader); got != "abc-123" {
			t.Errorf("expected echoed trace id, got %q", got)
		}
	})

	t.Run("should expose metrics", func(t *testing.T) {
		if rr := do(h, http.MethodGet, "/metrics", ""); rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
	})
}

func ptr[T any](v T) *T { return &v }

func flipLast(token string) string {
	last := token[len(token)-1]
	repl := byte('0')
	if last == '0' {
		repl = '1'
	}
	return token[:len(token)-1] + string(repl)
}
