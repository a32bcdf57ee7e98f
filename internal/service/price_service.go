package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Source constants
// ──────────────────────────────────────────────────────────────────────────────

const (
	sourceCoinbase = "coinbase"
	sourceBinance  = "binance"
)

// sourceDef describes a single upstream price source.
type sourceDef struct {
	name  string
	fetch func(ctx context.Context, feedID string) (decimal.Decimal, error)
}

// ──────────────────────────────────────────────────────────────────────────────
// PriceService
// ──────────────────────────────────────────────────────────────────────────────

// PriceService refreshes feed readings from upstream REST sources and guards
// every price the engine consumes against staleness.
//
// Readings are persisted through the Store with the timestamp of the fetch;
// Latest re-reads and re-evaluates age at the instant of use so a price is
// never served from a moment when it was still fresh.
type PriceService struct {
	client *http.Client
	cfg    *config.OracleConfig
	store  repository.Store
	log    *slog.Logger

	sources []sourceDef

	// statusMu guards lastSuccess (back-office feed dashboard).
	statusMu    sync.RWMutex
	lastSuccess map[string]time.Time
}

// NewPriceService constructs a PriceService from the given config and store.
func NewPriceService(cfg *config.Config, store repository.Store, log *slog.Logger) *PriceService {
	ps := &PriceService{
		client:      &http.Client{Timeout: cfg.Oracle.FetchTimeout},
		cfg:         &cfg.Oracle,
		store:       store,
		log:         log,
		lastSuccess: make(map[string]time.Time),
	}
	ps.sources = []sourceDef{
		{name: sourceCoinbase, fetch: ps.fetchCoinbase},
		{name: sourceBinance, fetch: ps.fetchBinance},
	}
	return ps
}

// ──────────────────────────────────────────────────────────────────────────────
// Staleness guard
// ──────────────────────────────────────────────────────────────────────────────

// Latest returns the stored reading for a feed, rejecting it when older than
// the configured staleness limit.  Every engine operation that values
// collateral calls this at the moment of use.
//
// Returns domain.ErrFeedNotFound when no reading exists yet and
// domain.ErrStalePrice when the reading has aged out.
func (ps *PriceService) Latest(ctx context.Context, feedID string) (domain.PriceReading, error) {
	reading, err := ps.store.LatestReading(ctx, feedID)
	if err != nil {
		return domain.PriceReading{}, err
	}
	if reading.StaleAt(time.Now(), ps.cfg.StalenessLimit) {
		return domain.PriceReading{}, fmt.Errorf("%w: feed %s last updated %s ago",
			domain.ErrStalePrice, feedID, reading.Age(time.Now()).Round(time.Second))
	}
	if !reading.Price.IsPositive() {
		return domain.PriceReading{}, fmt.Errorf("%w: feed %s reported non-positive price",
			domain.ErrStalePrice, feedID)
	}
	return reading, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Refresh
// ──────────────────────────────────────────────────────────────────────────────

// RefreshFeed fetches one feed from the first source that answers and stores
// the reading.  Sources are tried in order; a feed only fails when every
// source does.
func (ps *PriceService) RefreshFeed(ctx context.Context, feedID string) error {
	var lastErr error
	for _, src := range ps.sources {
		price, err := src.fetch(ctx, feedID)
		if err != nil {
			lastErr = err
			continue
		}
		now := time.Now()
		reading := domain.PriceReading{FeedID: feedID, Price: price, UpdatedAt: now}
		if err := ps.store.UpsertReading(ctx, reading); err != nil {
			return err
		}
		ps.statusMu.Lock()
		ps.lastSuccess[src.name] = now
		ps.statusMu.Unlock()
		return nil
	}
	return fmt.Errorf("price_service: all sources failed for %s: %w", feedID, lastErr)
}

// RefreshAll refreshes every feed in the registry, logging and skipping feeds
// whose sources are all down.  Returns the number of feeds refreshed.
func (ps *PriceService) RefreshAll(ctx context.Context, registry *domain.Registry) int {
	refreshed := 0
	for _, asset := range registry.Assets() {
		if err := ps.RefreshFeed(ctx, asset.FeedID); err != nil {
			ps.log.Warn("feed refresh failed",
				"feed", asset.FeedID, "asset", asset.Symbol, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// SourceStatus returns source name → whether it answered within the last poll
// interval.  Used by the back-office feed dashboard.
func (ps *PriceService) SourceStatus() map[string]bool {
	threshold := 2 * ps.cfg.PollInterval
	ps.statusMu.RLock()
	defer ps.statusMu.RUnlock()

	status := make(map[string]bool, len(ps.sources))
	for _, src := range ps.sources {
		t := ps.lastSuccess[src.name]
		status[src.name] = !t.IsZero() && time.Since(t) < threshold
	}
	return status
}

// ──────────────────────────────────────────────────────────────────────────────
// Source fetchers
// ──────────────────────────────────────────────────────────────────────────────

// fetchCoinbase fetches a spot price from the Coinbase REST API.
//
//	GET /v2/prices/ETH-USD/spot
//	{"data":{"amount":"2000.00","currency":"USD"}}
func (ps *PriceService) fetchCoinbase(ctx context.Context, feedID string) (decimal.Decimal, error) {
	url := ps.cfg.CoinbaseURL + "/v2/prices/" + feedID + "/spot"
	body, err := ps.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase: %w", err)
	}

	var resp struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("coinbase parse: %w", err)
	}
	if resp.Data.Amount == "" {
		return decimal.Zero, fmt.Errorf("coinbase: empty amount field")
	}
	price, err := decimal.NewFromString(resp.Data.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("coinbase decimal: %w", err)
	}
	return price, nil
}

// fetchBinance fetches a spot price from the Binance REST API, translating the
// feed ID to Binance's USDT pair naming ("ETH-USD" → "ETHUSDT").
//
//	GET /api/v3/ticker/price?symbol=ETHUSDT
//	{"symbol":"ETHUSDT","price":"2000.00"}
func (ps *PriceService) fetchBinance(ctx context.Context, feedID string) (decimal.Decimal, error) {
	base, _, ok := strings.Cut(feedID, "-")
	if !ok {
		return decimal.Zero, fmt.Errorf("binance: cannot map feed %q to a pair", feedID)
	}
	url := ps.cfg.BinanceURL + "/api/v3/ticker/price?symbol=" + base + "USDT"
	body, err := ps.doGet(ctx, url)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance: %w", err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err = json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("binance parse: %w", err)
	}
	if resp.Price == "" {
		return decimal.Zero, fmt.Errorf("binance: empty price field")
	}
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("binance decimal: %w", err)
	}
	return price, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP helper
// ──────────────────────────────────────────────────────────────────────────────

// doGet performs an HTTP GET with the service's client and returns the body
// bytes, or an error for any non-200 status code.
func (ps *PriceService) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "synthd/1.0")

	resp, err := ps.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
