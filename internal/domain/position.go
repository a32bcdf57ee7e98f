package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Solvency parameters
// ──────────────────────────────────────────────────────────────────────────────

// MaxHealthFactor is the sentinel returned for accounts with zero debt.
// Deposits alone can never make a position insolvent, so a debt-free account
// reports the maximal representable ratio regardless of collateral.
var MaxHealthFactor = decimal.New(1, 36)

// MinHealthFactor is the solvency floor.  A position whose health factor
// drops below 1 is eligible for liquidation.
var MinHealthFactor = decimal.NewFromInt(1)

// CustodyAccount is the well-known holder ID for balances held by the engine
// itself.  Collateral and repaid stable units move through this account only
// via the engine's operations.
var CustodyAccount = uuid.MustParse("00000000-0000-0000-0000-000000000001")

// RiskParams holds the flat solvency parameters applied to every collateral
// asset.
type RiskParams struct {
	// LiquidationThreshold is the fraction of collateral value counted toward
	// solvency (0.50 = 50%).
	LiquidationThreshold decimal.Decimal
	// LiquidationBonus is the extra fraction of seized collateral awarded to
	// a liquidator (0.10 = 10%).
	LiquidationBonus decimal.Decimal
}

// ──────────────────────────────────────────────────────────────────────────────
// Health factor math
// ──────────────────────────────────────────────────────────────────────────────

// HealthFactor computes the solvency ratio of a position:
//
//	HF = (collateralValueUSD × liquidationThreshold) / debt
//
// Multiplication happens before division so small debts against large
// collateral do not truncate to zero.  Zero debt yields MaxHealthFactor.
func HealthFactor(collateralValueUSD, debt decimal.Decimal, threshold decimal.Decimal) decimal.Decimal {
	if debt.IsZero() {
		return MaxHealthFactor
	}
	adjusted := collateralValueUSD.Mul(threshold)
	return adjusted.Div(debt)
}

// IsLiquidatable reports whether a health factor is below the minimum.
func IsLiquidatable(healthFactor decimal.Decimal) bool {
	return healthFactor.LessThan(MinHealthFactor)
}

// SeizureForDebt translates a debt repayment into the collateral seized during
// liquidation: the token-equivalent of the covered debt plus the liquidation
// bonus.
//
//	base  = debtToCover / price
//	bonus = base × bonusRate
func SeizureForDebt(debtToCover, price, bonusRate decimal.Decimal) decimal.Decimal {
	base := debtToCover.Div(price)
	bonus := base.Mul(bonusRate)
	return base.Add(bonus)
}

// TokenAmountForValue converts a USD amount into an equivalent token quantity
// at the given price.
func TokenAmountForValue(usdValue, price decimal.Decimal) decimal.Decimal {
	return usdValue.Div(price)
}

// USDValue converts a token quantity into its USD value at the given price.
func USDValue(amount, price decimal.Decimal) decimal.Decimal {
	return amount.Mul(price)
}

// ──────────────────────────────────────────────────────────────────────────────
// Read models
// ──────────────────────────────────────────────────────────────────────────────

// CollateralDeposit is one (asset, amount) line of an account's position.
type CollateralDeposit struct {
	Asset    string          `json:"asset"`
	Amount   decimal.Decimal `json:"amount"`
	USDValue decimal.Decimal `json:"usd_value"`
}

// Position is the full derived view of one account's ledger state.
type Position struct {
	AccountID          uuid.UUID           `json:"account_id"`
	Deposits           []CollateralDeposit `json:"deposits"`
	CollateralValueUSD decimal.Decimal     `json:"collateral_value_usd"`
	Debt               decimal.Decimal     `json:"debt"`
	HealthFactor       decimal.Decimal     `json:"health_factor"`
}

// AtRisk reports whether the position sits below the given warning ratio but
// is not necessarily liquidatable yet.
func (p *Position) AtRisk(warnRatio decimal.Decimal) bool {
	if p.Debt.IsZero() {
		return false
	}
	return p.HealthFactor.LessThan(warnRatio)
}

// SolvencyReport is the system-wide solvency snapshot served by the
// back-office: total custody collateral value versus total issued supply.
type SolvencyReport struct {
	CollateralValueUSD decimal.Decimal `json:"collateral_value_usd"`
	StableSupply       decimal.Decimal `json:"stable_supply"`
	Solvent            bool            `json:"solvent"`
	GeneratedAt        time.Time       `json:"generated_at"`
}
