package domain_test

import (
	"testing"
	"time"

	"github.com/evrimko/synthd/internal/domain"
	"github.com/shopspring/decimal"
)

// ── Health factor ─────────────────────────────────────────────────────────────

func TestHealthFactor_Basic(t *testing.T) {
	// 2 units at $2000 with a 50% threshold against 100 sUSD debt:
	// HF = (4000 × 0.5) / 100 = 20
	collateral := domain.USDValue(decimal.NewFromInt(2), decimal.NewFromInt(2000))
	debt := decimal.NewFromInt(100)
	threshold := decimal.NewFromFloat(0.5)

	hf := domain.HealthFactor(collateral, debt, threshold)
	want := decimal.NewFromInt(20)
	if !hf.Equal(want) {
		t.Errorf("HealthFactor() = %s, want %s", hf, want)
	}
}

func TestHealthFactor_ZeroDebt(t *testing.T) {
	hf := domain.HealthFactor(decimal.NewFromInt(4000), decimal.Zero, decimal.NewFromFloat(0.5))
	if !hf.Equal(domain.MaxHealthFactor) {
		t.Errorf("zero-debt health factor = %s, want MaxHealthFactor", hf)
	}
	if domain.IsLiquidatable(hf) {
		t.Error("zero-debt position must never be liquidatable")
	}
}

func TestHealthFactor_ZeroCollateral(t *testing.T) {
	hf := domain.HealthFactor(decimal.Zero, decimal.NewFromInt(100), decimal.NewFromFloat(0.5))
	if !hf.IsZero() {
		t.Errorf("no-collateral health factor = %s, want 0", hf)
	}
	if !domain.IsLiquidatable(hf) {
		t.Error("debt with no collateral must be liquidatable")
	}
}

func TestHealthFactor_BoundaryIsNotLiquidatable(t *testing.T) {
	// Exactly at the floor: (200 × 0.5) / 100 = 1.
	hf := domain.HealthFactor(decimal.NewFromInt(200), decimal.NewFromInt(100), decimal.NewFromFloat(0.5))
	if !hf.Equal(domain.MinHealthFactor) {
		t.Fatalf("boundary health factor = %s, want 1", hf)
	}
	if domain.IsLiquidatable(hf) {
		t.Error("HF exactly at the minimum must not be liquidatable")
	}
}

func TestHealthFactor_SmallDebtLargeCollateral(t *testing.T) {
	// Multiply-before-divide must not truncate: (1e9 × 0.5) / 3.
	hf := domain.HealthFactor(decimal.NewFromInt(1_000_000_000), decimal.NewFromInt(3), decimal.NewFromFloat(0.5))
	if hf.LessThan(decimal.NewFromInt(166_666_666)) {
		t.Errorf("HealthFactor() = %s, lost precision", hf)
	}
}

// ── Liquidation seizure ───────────────────────────────────────────────────────

func TestSeizureForDebt(t *testing.T) {
	// Cover 100 sUSD at $2000/token with a 10% bonus:
	// base = 0.05, bonus = 0.005, total = 0.055.
	seize := domain.SeizureForDebt(
		decimal.NewFromInt(100),
		decimal.NewFromInt(2000),
		decimal.NewFromFloat(0.1),
	)
	want := decimal.NewFromFloat(0.055)
	if !seize.Equal(want) {
		t.Errorf("SeizureForDebt() = %s, want %s", seize, want)
	}
}

// ── Position views ────────────────────────────────────────────────────────────

func TestPosition_AtRisk(t *testing.T) {
	p := &domain.Position{
		Debt:         decimal.NewFromInt(100),
		HealthFactor: decimal.NewFromFloat(1.1),
	}
	if !p.AtRisk(decimal.NewFromFloat(1.25)) {
		t.Error("HF 1.1 below warn ratio 1.25 should be at risk")
	}
	if p.AtRisk(decimal.NewFromFloat(1.05)) {
		t.Error("HF 1.1 above warn ratio 1.05 should not be at risk")
	}

	clean := &domain.Position{Debt: decimal.Zero, HealthFactor: domain.MaxHealthFactor}
	if clean.AtRisk(decimal.NewFromFloat(1.25)) {
		t.Error("debt-free position is never at risk")
	}
}

// ── Price readings ────────────────────────────────────────────────────────────

func TestPriceReading_StaleAt(t *testing.T) {
	now := time.Now()
	timeout := 3 * time.Hour

	fresh := domain.PriceReading{FeedID: "ETH-USD", UpdatedAt: now.Add(-time.Hour)}
	if fresh.StaleAt(now, timeout) {
		t.Error("1h-old reading should be fresh under a 3h timeout")
	}

	stale := domain.PriceReading{FeedID: "ETH-USD", UpdatedAt: now.Add(-4 * time.Hour)}
	if !stale.StaleAt(now, timeout) {
		t.Error("4h-old reading should be stale under a 3h timeout")
	}
}

// ── MintAuthority ─────────────────────────────────────────────────────────────

func TestMintAuthority_ZeroValueInvalid(t *testing.T) {
	var zero domain.MintAuthority
	if zero.Valid() {
		t.Error("zero-value authority must not be valid")
	}
	if !domain.NewMintAuthority().Valid() {
		t.Error("freshly issued authority must be valid")
	}
}
