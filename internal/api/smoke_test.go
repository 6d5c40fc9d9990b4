// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — they verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dpoglobal/issuance/internal/api"
	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/service"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:  "development",
			Port: "8080",
		},
		JWT: config.JWTConfig{
			AccessSecret:  "test-access-secret-abcdefghijklmnop",
			RefreshSecret: "test-refresh-secret-abcdefghijklmnop",
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
		},
		Compliance: config.ComplianceConfig{
			MaxBatchReport:           20,
			MaxUnderlyingTrades:      50,
			MaxPendingIssuanceReplay: 100,
			VerificationRequestTTL:   72 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			AuthRPS:     100,
			TransferRPS: 100,
			CallbackRPS: 100,
		},
	}
}

// buildTestRouter creates a Gin engine with a real AuthService (no DB needed
// for token parsing) and nil for everything that requires a DB.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	// NewAuthService with nil DB works for ParseAccessToken (secret-only op)
	authSvc := service.NewAuthService(nil, nil, nil, cfg)

	r := api.SetupRouter(api.RouterDeps{
		AuthSvc:         authSvc,
		LedgerSvc:       nil,
		SettlementSvc:   nil,
		DerivativeSvc:   nil,
		VerificationSvc: nil,
		UserRepo:        nil,
		InvestorRepo:    nil,
		OfferingRepo:    nil,
		PositionRepo:    nil,
		Hub:             nil,
		Cfg:             cfg,
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v — body: %s", err, rr.Body.String())
	}
	return m
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

// ── Auth endpoints — validation layer ─────────────────────────────────────────

func TestRegister_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/register empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestRegister_InvalidEmail(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"email":"notanemail","password":"password123","wallet_address":"0xabc","jurisdiction":"US"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with invalid email = %d, want 400", rr.Code)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"email":"user@example.com","password":"short","wallet_address":"0xabc","jurisdiction":"US"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with short password = %d, want 400", rr.Code)
	}
}

func TestRegister_BadJurisdiction(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"email":"user@example.com","password":"password123","wallet_address":"0xabc","jurisdiction":"USA"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with 3-letter jurisdiction = %d, want 400", rr.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/login empty = %d, want 400", rr.Code)
	}
}

// ── JWT auth middleware (no token → 401) ──────────────────────────────────────

func TestMe_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me without token = %d, want 401", rr.Code)
	}
}

func TestTransfer_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"to_id":"11111111-1111-1111-1111-111111111111","asset_id":"DPO-BOND-1","amount":"100.00"}`
	rr := do(t, h, http.MethodPost, "/api/ledger/transfers", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/ledger/transfers without token = %d, want 401", rr.Code)
	}
}

func TestMySettlements_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/settlements/my", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/settlements/my without token = %d, want 401", rr.Code)
	}
}

func TestReportTrade_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/derivatives/trades", `{}`, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/derivatives/trades without token = %d, want 401", rr.Code)
	}
}

func TestPositions_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/positions", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/positions without token = %d, want 401", rr.Code)
	}
}

// ── JWT auth middleware (invalid token → 401) ─────────────────────────────────

func TestMe_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/me", "", map[string]string{
		"Authorization": "Bearer not.a.valid.jwt",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/me with bad JWT = %d, want 401", rr.Code)
	}
}

func TestTransfer_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"to_id":"11111111-1111-1111-1111-111111111111","asset_id":"DPO-BOND-1","amount":"100.00"}`
	// A well-formed JWT header+payload but wrong secret → ParseAccessToken will reject it
	fakeJWT := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9" +
		".eyJzdWIiOiIxMjM0NTY3ODkwIiwicm9sZSI6InBhcnRpY2lwYW50IiwidHlwZSI6ImFjY2VzcyJ9" +
		".BADSIG"
	rr := do(t, h, http.MethodPost, "/api/ledger/transfers", payload, map[string]string{
		"Authorization": "Bearer " + fakeJWT,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/ledger/transfers with invalid JWT = %d, want 401", rr.Code)
	}
}

// ── Public endpoints ──────────────────────────────────────────────────────────

func TestOfferings_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	// No token: should NOT be 401. Will be 500 (nil offeringRepo) — that's acceptable.
	rr := do(t, h, http.MethodGet, "/api/offerings", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /api/offerings should be a public endpoint (no 401)")
	}
	t.Logf("GET /api/offerings = %d (not 401, public route OK)", rr.Code)
}

func TestVerificationCallback_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	// Provider webhook carries no JWT; empty body still must not 401.
	rr := do(t, h, http.MethodPost, "/api/verifications/callback", `{}`, nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("POST /api/verifications/callback should be public (no 401)")
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/register", `{}`, nil)
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// OPTIONS should return 204 (no content) in dev mode
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/auth/login = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
