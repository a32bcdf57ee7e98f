// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database — the in-memory driver
// backs the full stack.  They verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - JWT auth middleware (401 without token, 401 with bad token)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
//   - The register → faucet → deposit → mint happy path end to end
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/api"
	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
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
		Oracle: config.OracleConfig{
			FetchTimeout:   2 * time.Second,
			PollInterval:   30 * time.Second,
			StalenessLimit: 3 * time.Hour,
		},
		Risk: config.RiskConfig{
			LiquidationThreshold: 0.5,
			LiquidationBonus:     0.1,
			WarnRatio:            1.25,
			SweepInterval:        time.Minute,
			CollateralAssets:     "WETH=ETH-USD,WBTC=BTC-USD",
		},
		Token: config.TokenConfig{
			FaucetEnabled: true,
			FaucetAmount:  10,
		},
	}
}

// buildTestRouter creates a Gin engine backed entirely by the in-memory
// driver, with fresh oracle readings seeded so valuations succeed.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testCfg()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store := repository.NewMemoryStore()
	ctx := context.Background()
	for feed, price := range map[string]int64{"ETH-USD": 2000, "BTC-USD": 50000} {
		err := store.UpsertReading(ctx, domain.PriceReading{
			FeedID:    feed,
			Price:     decimal.NewFromInt(price),
			UpdatedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("seed reading %s: %v", feed, err)
		}
	}

	registry, err := domain.ParseRegistry(cfg.Risk.CollateralAssets)
	if err != nil {
		t.Fatalf("parse registry: %v", err)
	}

	priceSvc := service.NewPriceService(cfg, store, logger)
	engine := service.NewEngineService(cfg, store, registry, priceSvc, logger)
	authSvc := service.NewAuthService(repository.NewMemoryAccountStore(), cfg)

	return api.SetupRouter(api.RouterDeps{
		AuthSvc:  authSvc,
		Engine:   engine,
		PriceSvc: priceSvc,
		Hub:      nil,
		Cfg:      cfg,
	})
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

// registerAndLogin creates an account through the API and returns its access token.
func registerAndLogin(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	payload := `{"username":"` + username + `","email":"` + username + `@example.com","password":"password123"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("register response missing access_token: %v", body)
	}
	return token
}

func authHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
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
	payload := `{"username":"testuser","email":"notanemail","password":"password123"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with invalid email = %d, want 400", rr.Code)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"username":"testuser","email":"user@example.com","password":"short"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("register with short password = %d, want 400", rr.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"username":"alice","email":"alice@example.com","password":"password123"}`
	rr := do(t, h, http.MethodPost, "/api/auth/register", payload, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("first register = %d, want 201", rr.Code)
	}
	payload2 := `{"username":"alice2","email":"alice@example.com","password":"password123"}`
	rr = do(t, h, http.MethodPost, "/api/auth/register", payload2, nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("duplicate email register = %d, want 409", rr.Code)
	}
}

func TestLogin_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/auth/login", `{}`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/auth/login empty = %d, want 400", rr.Code)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	h := buildTestRouter(t)
	registerAndLogin(t, h, "bob")
	payload := `{"email":"bob@example.com","password":"wrongpassword"}`
	rr := do(t, h, http.MethodPost, "/api/auth/login", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("login with wrong password = %d, want 401", rr.Code)
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

func TestDeposit_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"asset":"WETH","amount":"1.5"}`
	rr := do(t, h, http.MethodPost, "/api/vault/deposit", payload, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/vault/deposit without token = %d, want 401", rr.Code)
	}
}

func TestStatement_NoToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/statement", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/statement without token = %d, want 401", rr.Code)
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

func TestMint_InvalidToken_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"amount":"100.00"}`
	// A well-formed JWT header+payload but wrong secret → ParseAccessToken will reject it
	fakeJWT := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9" +
		".eyJzdWIiOiIxMjM0NTY3ODkwIiwicm9sZSI6ImhvbGRlciIsInR5cGUiOiJhY2Nlc3MifQ" +
		".BADSIG"
	rr := do(t, h, http.MethodPost, "/api/vault/mint", payload, map[string]string{
		"Authorization": "Bearer " + fakeJWT,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/vault/mint with invalid JWT = %d, want 401", rr.Code)
	}
}

// ── Public endpoints ──────────────────────────────────────────────────────────

func TestAssets_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/assets", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/assets = %d, want 200", rr.Code)
	}
}

func TestPrices_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/prices/ETH-USD", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/prices/ETH-USD = %d, want 200", rr.Code)
	}
}

func TestSolvency_IsPublic(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/solvency", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /api/solvency = %d, want 200", rr.Code)
	}
	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	if data["solvent"] != true {
		t.Errorf("empty system should be solvent, got: %v", data)
	}
}

func TestConvert_AmountToUSD(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/convert/WETH?amount=3", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/convert/WETH?amount=3 = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	// 3 WETH at $2,000 = $6,000.
	if data["usd_value"] != "6000" {
		t.Errorf("usd_value = %v, want 6000", data["usd_value"])
	}
}

func TestConvert_USDToAmount(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/convert/WBTC?usd=100000", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/convert/WBTC?usd=100000 = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	// $100,000 at $50,000 per WBTC = 2 WBTC.
	if data["amount"] != "2" {
		t.Errorf("amount = %v, want 2", data["amount"])
	}
}

func TestConvert_RequiresExactlyOneParam(t *testing.T) {
	h := buildTestRouter(t)
	for _, path := range []string{
		"/api/convert/WETH",
		"/api/convert/WETH?amount=1&usd=1",
	} {
		rr := do(t, h, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, rr.Code)
		}
	}
}

func TestConvert_UnknownAsset_Returns400(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/convert/DOGE?amount=1", "", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/convert/DOGE = %d, want 400", rr.Code)
	}
}

// ── Vault flow — register → faucet → deposit → mint ───────────────────────────

func TestVaultFlow_EndToEnd(t *testing.T) {
	h := buildTestRouter(t)
	token := registerAndLogin(t, h, "carol")

	// Faucet grants dev collateral.
	rr := do(t, h, http.MethodPost, "/api/vault/faucet", `{"asset":"WETH"}`, authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("faucet = %d, body: %s", rr.Code, rr.Body.String())
	}

	// Plus 5 more WETH on top of the 10 from the faucet → 15 WETH = $30,000.
	rr = do(t, h, http.MethodPost, "/api/vault/deposit", `{"asset":"WETH","amount":"5"}`, authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("deposit = %d, body: %s", rr.Code, rr.Body.String())
	}

	// Mint 2000 sUSD against it; threshold 0.5 → HF = 30000*0.5/2000 = 7.5.
	rr = do(t, h, http.MethodPost, "/api/vault/mint", `{"amount":"2000"}`, authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("mint = %d, body: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	data, _ := body["data"].(map[string]interface{})
	if data["debt"] == nil {
		t.Errorf("mint response missing position debt, got: %v", body)
	}

	// /api/me now reflects the minted balance.
	rr = do(t, h, http.MethodGet, "/api/me", "", authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /api/me = %d, body: %s", rr.Code, rr.Body.String())
	}
}

func TestMint_Undercollateralized_Returns409(t *testing.T) {
	h := buildTestRouter(t)
	token := registerAndLogin(t, h, "dave")

	rr := do(t, h, http.MethodPost, "/api/vault/faucet", `{"asset":"WETH"}`, authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("faucet = %d", rr.Code)
	}
	rr = do(t, h, http.MethodPost, "/api/vault/deposit", `{"asset":"WETH","amount":"1"}`, authHeader(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("deposit = %d", rr.Code)
	}

	// 11 WETH = $22,000, threshold 0.5 → max safe mint is 11,000. Ask for 50,000.
	rr = do(t, h, http.MethodPost, "/api/vault/mint", `{"amount":"50000"}`, authHeader(token))
	if rr.Code != http.StatusConflict {
		t.Errorf("over-mint = %d, want 409, body: %s", rr.Code, rr.Body.String())
	}
}

func TestDeposit_UnknownAsset_Returns400(t *testing.T) {
	h := buildTestRouter(t)
	token := registerAndLogin(t, h, "erin")

	rr := do(t, h, http.MethodPost, "/api/vault/deposit", `{"asset":"DOGE","amount":"100"}`, authHeader(token))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("deposit unknown asset = %d, want 400, body: %s", rr.Code, rr.Body.String())
	}
}

func TestDeposit_NegativeAmount_Returns400(t *testing.T) {
	h := buildTestRouter(t)
	token := registerAndLogin(t, h, "frank")

	rr := do(t, h, http.MethodPost, "/api/vault/deposit", `{"asset":"WETH","amount":"-3"}`, authHeader(token))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("negative deposit = %d, want 400", rr.Code)
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
