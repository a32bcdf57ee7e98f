package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
)

// Solvency queries on EngineService.  Reads run against committed state and
// take no lock: the mutating operations are serialised elsewhere and a reader
// only ever sees a fully applied operation.

// Position returns the account's derived position: per-asset deposits with
// USD values, total debt, and the health factor.
func (s *EngineService) Position(ctx context.Context, accountID uuid.UUID) (*domain.Position, error) {
	balances, err := s.store.CollateralBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	debt, err := s.store.DebtOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.buildPosition(ctx, accountID, balances, debt)
}

// positionInTx derives the position from uncommitted transaction state, for
// the health checks inside mutating operations.
func (s *EngineService) positionInTx(ctx context.Context, tx repository.Tx, accountID uuid.UUID) (*domain.Position, error) {
	balances, err := tx.CollateralBalances(ctx, accountID)
	if err != nil {
		return nil, err
	}
	debt, err := tx.DebtOf(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.buildPosition(ctx, accountID, balances, debt)
}

// buildPosition values each deposit through the price guard and computes the
// health factor.  A stale feed aborts the whole derivation.
func (s *EngineService) buildPosition(ctx context.Context, accountID uuid.UUID, balances []repository.AssetAmount, debt decimal.Decimal) (*domain.Position, error) {
	p := &domain.Position{
		AccountID:          accountID,
		Deposits:           make([]domain.CollateralDeposit, 0, len(balances)),
		CollateralValueUSD: decimal.Zero,
		Debt:               debt,
	}
	for _, b := range balances {
		a, err := s.registry.Lookup(b.Asset)
		if err != nil {
			return nil, fmt.Errorf("position: unknown ledger asset %s: %w", b.Asset, err)
		}
		reading, err := s.guard.Latest(ctx, a.FeedID)
		if err != nil {
			return nil, err
		}
		value := domain.USDValue(b.Amount, reading.Price)
		p.Deposits = append(p.Deposits, domain.CollateralDeposit{
			Asset:    b.Asset,
			Amount:   b.Amount,
			USDValue: value,
		})
		p.CollateralValueUSD = p.CollateralValueUSD.Add(value)
	}
	p.HealthFactor = domain.HealthFactor(p.CollateralValueUSD, debt, s.params.LiquidationThreshold)
	return p, nil
}

// USDValueOf values a token amount of a registered collateral asset at the
// latest fresh price.
func (s *EngineService) USDValueOf(ctx context.Context, asset string, amount decimal.Decimal) (decimal.Decimal, error) {
	a, err := s.registry.Lookup(asset)
	if err != nil {
		return decimal.Zero, err
	}
	reading, err := s.guard.Latest(ctx, a.FeedID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.USDValue(amount, reading.Price), nil
}

// TokenAmountForValue converts a USD amount into the equivalent quantity of a
// registered collateral asset at the latest fresh price.
func (s *EngineService) TokenAmountForValue(ctx context.Context, asset string, usdValue decimal.Decimal) (decimal.Decimal, error) {
	a, err := s.registry.Lookup(asset)
	if err != nil {
		return decimal.Zero, err
	}
	reading, err := s.guard.Latest(ctx, a.FeedID)
	if err != nil {
		return decimal.Zero, err
	}
	return domain.TokenAmountForValue(usdValue, reading.Price), nil
}

// TokenBalance returns the account's committed sUSD balance.
func (s *EngineService) TokenBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return s.store.TokenBalance(ctx, accountID)
}

// Statement returns the account's audit trail, newest first.
func (s *EngineService) Statement(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*domain.LedgerEntry, error) {
	return s.store.LedgerEntries(ctx, accountID, limit, offset)
}

// SolvencyReport values all custody collateral against the outstanding sUSD
// supply.  The system is solvent while collateral value covers supply.
func (s *EngineService) SolvencyReport(ctx context.Context) (*domain.SolvencyReport, error) {
	totals, err := s.store.TotalCollateral(ctx)
	if err != nil {
		return nil, err
	}
	supply, err := s.store.TotalSupply(ctx)
	if err != nil {
		return nil, err
	}

	value := decimal.Zero
	for _, t := range totals {
		a, err := s.registry.Lookup(t.Asset)
		if err != nil {
			return nil, fmt.Errorf("solvency: unknown ledger asset %s: %w", t.Asset, err)
		}
		reading, err := s.guard.Latest(ctx, a.FeedID)
		if err != nil {
			return nil, err
		}
		value = value.Add(domain.USDValue(t.Amount, reading.Price))
	}

	return &domain.SolvencyReport{
		CollateralValueUSD: value,
		StableSupply:       supply,
		Solvent:            value.GreaterThanOrEqual(supply),
		GeneratedAt:        time.Now().UTC(),
	}, nil
}

// AtRiskPositions scans every debtor and returns positions below the warn
// ratio, worst first.  Feeds that cannot be valued skip the debtor rather
// than failing the sweep.
func (s *EngineService) AtRiskPositions(ctx context.Context) ([]*domain.Position, error) {
	debtors, err := s.store.Debtors(ctx)
	if err != nil {
		return nil, err
	}

	var atRisk []*domain.Position
	for _, d := range debtors {
		p, err := s.Position(ctx, d.AccountID)
		if err != nil {
			s.log.Warn("risk sweep: cannot value position",
				"account", d.AccountID, "error", err)
			continue
		}
		if p.AtRisk(s.warnRatio) {
			atRisk = append(atRisk, p)
		}
	}
	// Worst health first.
	sort.Slice(atRisk, func(i, j int) bool {
		return atRisk[i].HealthFactor.LessThan(atRisk[j].HealthFactor)
	})
	return atRisk, nil
}

// WarnRatio exposes the configured at-risk threshold for dashboards.
func (s *EngineService) WarnRatio() decimal.Decimal { return s.warnRatio }
