// Package domain defines the core business entities and solvency rules for
// the sUSD synthetic-dollar issuance engine.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StableSymbol is the ticker of the issued synthetic-dollar unit.
const StableSymbol = "sUSD"

// ──────────────────────────────────────────────────────────────────────────────
// Asset & registry
// ──────────────────────────────────────────────────────────────────────────────

// Asset is one approved collateral asset and the price feed that values it.
type Asset struct {
	Symbol string `json:"symbol" db:"symbol"`
	FeedID string `json:"feed_id" db:"feed_id"`
}

// Registry is the ordered, immutable set of approved collateral assets.
// Populated once at construction; every lookup after that is read-only, so the
// registry needs no locking.
type Registry struct {
	assets []Asset
	byName map[string]Asset
}

// NewRegistry builds a registry from the given assets, preserving their
// order.  It fails when a symbol repeats or an asset is missing a feed.
func NewRegistry(assets []Asset) (*Registry, error) {
	r := &Registry{
		assets: make([]Asset, 0, len(assets)),
		byName: make(map[string]Asset, len(assets)),
	}
	for _, a := range assets {
		symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
		feed := strings.TrimSpace(a.FeedID)
		if symbol == "" {
			return nil, fmt.Errorf("registry: empty asset symbol")
		}
		if feed == "" {
			return nil, fmt.Errorf("registry: asset %s has no price feed", symbol)
		}
		if strings.EqualFold(symbol, StableSymbol) {
			return nil, fmt.Errorf("registry: %s cannot collateralise itself", StableSymbol)
		}
		if _, dup := r.byName[symbol]; dup {
			return nil, fmt.Errorf("registry: asset %s registered twice", symbol)
		}
		a.Symbol = symbol
		a.FeedID = feed
		r.assets = append(r.assets, a)
		r.byName[symbol] = a
	}
	if len(r.assets) == 0 {
		return nil, fmt.Errorf("registry: at least one collateral asset is required")
	}
	return r, nil
}

// ParseRegistry builds a registry from a config string of the form
// "WETH=ETH-USD,WBTC=BTC-USD".
func ParseRegistry(spec string) (*Registry, error) {
	var assets []Asset
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		symbol, feed, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("registry: malformed asset entry %q (want SYMBOL=FEED-ID)", entry)
		}
		assets = append(assets, Asset{Symbol: symbol, FeedID: feed})
	}
	return NewRegistry(assets)
}

// Assets returns the registered assets in insertion order.
// The returned slice is a copy; callers may not mutate the registry.
func (r *Registry) Assets() []Asset {
	out := make([]Asset, len(r.assets))
	copy(out, r.assets)
	return out
}

// Lookup returns the asset for a symbol, or ErrInvalidAsset.
func (r *Registry) Lookup(symbol string) (Asset, error) {
	a, ok := r.byName[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return Asset{}, ErrInvalidAsset
	}
	return a, nil
}

// Has reports whether symbol is a registered collateral asset.
func (r *Registry) Has(symbol string) bool {
	_, ok := r.byName[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// Len returns the number of registered assets.
func (r *Registry) Len() int { return len(r.assets) }

// ──────────────────────────────────────────────────────────────────────────────
// PriceReading
// ──────────────────────────────────────────────────────────────────────────────

// PriceReading is one observation from a price feed: the USD price of a whole
// collateral unit and when the source last updated it.
type PriceReading struct {
	FeedID    string          `json:"feed_id"    db:"feed_id"`
	Price     decimal.Decimal `json:"price"      db:"price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Age returns how old the reading is relative to now.
func (p PriceReading) Age(now time.Time) time.Duration {
	return now.Sub(p.UpdatedAt)
}

// StaleAt reports whether the reading is older than timeout at the given
// instant.  Staleness is evaluated at the moment of use, never cached.
func (p PriceReading) StaleAt(now time.Time, timeout time.Duration) bool {
	return p.Age(now) > timeout
}
