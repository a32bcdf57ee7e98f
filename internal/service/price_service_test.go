package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
)

// ── Mock source HTTP servers ──────────────────────────────────────────────────

// Coinbase shape: {"data":{"amount":"...","currency":"USD"}}
func mockCoinbaseOK(price float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outer := struct {
			Data struct {
				Amount   string `json:"amount"`
				Currency string `json:"currency"`
			} `json:"data"`
		}{}
		outer.Data.Amount = decimal.NewFromFloat(price).StringFixed(2)
		outer.Data.Currency = "USD"
		_ = json.NewEncoder(w).Encode(outer)
	})
}

// Binance shape: {"symbol":"ETHUSDT","price":"..."}
func mockBinanceOK(price float64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]string{"price": decimal.NewFromFloat(price).StringFixed(2)}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func mockServerError() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})
}

func buildOracleConfig(coinbaseURL, binanceURL string) *config.Config {
	return &config.Config{
		Oracle: config.OracleConfig{
			CoinbaseURL:    coinbaseURL,
			BinanceURL:     binanceURL,
			FetchTimeout:   3 * time.Second,
			PollInterval:   30 * time.Second,
			StalenessLimit: 3 * time.Hour,
		},
	}
}

func mustRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg, err := domain.ParseRegistry("WETH=ETH-USD")
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	return reg
}

// ── Refresh ───────────────────────────────────────────────────────────────────

func TestPriceService_RefreshFeedStoresReading(t *testing.T) {
	coinbase := httptest.NewServer(mockCoinbaseOK(2000))
	defer coinbase.Close()

	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig(coinbase.URL, coinbase.URL), store, testLogger())

	if err := ps.RefreshFeed(context.Background(), "ETH-USD"); err != nil {
		t.Fatalf("RefreshFeed: %v", err)
	}

	reading, err := store.LatestReading(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("LatestReading: %v", err)
	}
	if !reading.Price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("price = %s, want 2000", reading.Price)
	}
	if time.Since(reading.UpdatedAt) > time.Minute {
		t.Errorf("UpdatedAt not set to fetch time: %s", reading.UpdatedAt)
	}
}

func TestPriceService_RefreshFallsBackToSecondSource(t *testing.T) {
	down := httptest.NewServer(mockServerError())
	defer down.Close()
	binance := httptest.NewServer(mockBinanceOK(2100))
	defer binance.Close()

	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig(down.URL, binance.URL), store, testLogger())

	if err := ps.RefreshFeed(context.Background(), "ETH-USD"); err != nil {
		t.Fatalf("RefreshFeed with fallback: %v", err)
	}
	reading, _ := store.LatestReading(context.Background(), "ETH-USD")
	if !reading.Price.Equal(decimal.NewFromInt(2100)) {
		t.Errorf("price = %s, want fallback source's 2100", reading.Price)
	}
}

func TestPriceService_RefreshAllSourcesDown(t *testing.T) {
	down := httptest.NewServer(mockServerError())
	defer down.Close()

	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig(down.URL, down.URL), store, testLogger())

	if err := ps.RefreshFeed(context.Background(), "ETH-USD"); err == nil {
		t.Fatal("RefreshFeed should fail when every source is down")
	}
	if _, err := store.LatestReading(context.Background(), "ETH-USD"); !errors.Is(err, domain.ErrFeedNotFound) {
		t.Error("failed refresh must not write a reading")
	}
}

func TestPriceService_RefreshAllCountsSuccesses(t *testing.T) {
	coinbase := httptest.NewServer(mockCoinbaseOK(50000))
	defer coinbase.Close()

	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig(coinbase.URL, coinbase.URL), store, testLogger())

	reg, err := domain.ParseRegistry("WETH=ETH-USD,WBTC=BTC-USD")
	if err != nil {
		t.Fatalf("ParseRegistry: %v", err)
	}
	if n := ps.RefreshAll(context.Background(), reg); n != 2 {
		t.Errorf("RefreshAll = %d, want 2", n)
	}
}

// ── Staleness guard ───────────────────────────────────────────────────────────

func TestPriceService_LatestRejectsStaleReading(t *testing.T) {
	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig("http://unused", "http://unused"), store, testLogger())

	// 4h-old reading against the 3h limit.
	old := domain.PriceReading{
		FeedID:    "ETH-USD",
		Price:     decimal.NewFromInt(2000),
		UpdatedAt: time.Now().Add(-4 * time.Hour),
	}
	if err := store.UpsertReading(context.Background(), old); err != nil {
		t.Fatalf("UpsertReading: %v", err)
	}

	_, err := ps.Latest(context.Background(), "ETH-USD")
	if !errors.Is(err, domain.ErrStalePrice) {
		t.Errorf("Latest err = %v, want ErrStalePrice", err)
	}
}

func TestPriceService_LatestAcceptsFreshReading(t *testing.T) {
	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig("http://unused", "http://unused"), store, testLogger())

	fresh := domain.PriceReading{
		FeedID:    "ETH-USD",
		Price:     decimal.NewFromInt(2000),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	_ = store.UpsertReading(context.Background(), fresh)

	reading, err := ps.Latest(context.Background(), "ETH-USD")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !reading.Price.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("price = %s, want 2000", reading.Price)
	}
}

func TestPriceService_LatestUnknownFeed(t *testing.T) {
	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig("http://unused", "http://unused"), store, testLogger())

	if _, err := ps.Latest(context.Background(), "NO-SUCH-FEED"); !errors.Is(err, domain.ErrFeedNotFound) {
		t.Errorf("Latest err = %v, want ErrFeedNotFound", err)
	}
}

func TestPriceService_LatestRejectsNonPositivePrice(t *testing.T) {
	store := repository.NewMemoryStore()
	ps := service.NewPriceService(buildOracleConfig("http://unused", "http://unused"), store, testLogger())

	bad := domain.PriceReading{FeedID: "ETH-USD", Price: decimal.Zero, UpdatedAt: time.Now()}
	_ = store.UpsertReading(context.Background(), bad)

	if _, err := ps.Latest(context.Background(), "ETH-USD"); !errors.Is(err, domain.ErrStalePrice) {
		t.Errorf("Latest err = %v, want ErrStalePrice for zero price", err)
	}
}
