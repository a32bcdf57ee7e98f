package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into EngineService to avoid import cycles
// ──────────────────────────────────────────────────────────────────────────────

// PriceGuard is the minimal interface the engine needs from PriceService:
// a stale-checked reading for a feed at the instant of the call.
type PriceGuard interface {
	Latest(ctx context.Context, feedID string) (domain.PriceReading, error)
}

// Broadcaster is the minimal interface the engine needs from the WS hub.
// Implemented by ws.Hub.
type Broadcaster interface {
	BroadcastPositionUpdate(p *domain.Position)
	BroadcastLiquidation(res *LiquidationResult)
}

// LiquidationResult summarises one completed liquidation.
type LiquidationResult struct {
	Liquidator       uuid.UUID       `json:"liquidator"`
	Target           uuid.UUID       `json:"target"`
	Asset            string          `json:"asset"`
	DebtCovered      decimal.Decimal `json:"debt_covered"`
	CollateralSeized decimal.Decimal `json:"collateral_seized"`
	HealthBefore     decimal.Decimal `json:"health_before"`
	HealthAfter      decimal.Decimal `json:"health_after"`
	ExecutedAt       time.Time       `json:"executed_at"`
}

// ──────────────────────────────────────────────────────────────────────────────
// EngineService
// ──────────────────────────────────────────────────────────────────────────────

// EngineService owns the collateral, debt, and token ledgers.  Every mutating
// operation runs under one engine-wide mutex and inside a single store
// transaction: the whole operation applies or none of it does, and no two
// mutating operations ever interleave.
//
// The engine holds the only mint authority, so sUSD supply can change only
// through Mint, Burn, and Liquidate.
type EngineService struct {
	mu        sync.Mutex
	store     repository.Store
	registry  *domain.Registry
	guard     PriceGuard
	authority domain.MintAuthority
	params    domain.RiskParams
	warnRatio decimal.Decimal
	log       *slog.Logger

	faucetEnabled bool
	faucetAmount  decimal.Decimal

	broadcaster Broadcaster // injected after WS Hub is built
}

// NewEngineService creates an EngineService with a freshly issued mint
// authority.
func NewEngineService(
	cfg *config.Config,
	store repository.Store,
	registry *domain.Registry,
	guard PriceGuard,
	log *slog.Logger,
) *EngineService {
	return &EngineService{
		store:     store,
		registry:  registry,
		guard:     guard,
		authority: domain.NewMintAuthority(),
		params: domain.RiskParams{
			LiquidationThreshold: decimal.NewFromFloat(cfg.Risk.LiquidationThreshold),
			LiquidationBonus:     decimal.NewFromFloat(cfg.Risk.LiquidationBonus),
		},
		warnRatio:     decimal.NewFromFloat(cfg.Risk.WarnRatio),
		log:           log,
		faucetEnabled: cfg.Token.FaucetEnabled && !cfg.IsProd(),
		faucetAmount:  decimal.NewFromFloat(cfg.Token.FaucetAmount),
	}
}

// SetBroadcaster injects the WS Hub dependency post-construction.
func (s *EngineService) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// Registry exposes the approved collateral set for handlers.
func (s *EngineService) Registry() *domain.Registry { return s.registry }

// ──────────────────────────────────────────────────────────────────────────────
// DepositCollateral
// ──────────────────────────────────────────────────────────────────────────────

// DepositCollateral moves amount of an approved asset from the account into
// engine custody and credits the collateral ledger.  Depositing can only
// improve solvency, so no health check runs.
func (s *EngineService) DepositCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) (*domain.Position, error) {
	a, err := s.validateAssetAmount(asset, amount)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.DepositCollateral: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.CreditCollateral(ctx, accountID, a.Symbol, amount); err != nil {
		return nil, fmt.Errorf("engine.DepositCollateral: credit: %w", err)
	}
	if err = s.logEntry(ctx, tx, accountID, domain.EntryDeposit, a.Symbol, amount, nil); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.DepositCollateral: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Mint
// ──────────────────────────────────────────────────────────────────────────────

// Mint records amount of new debt against the account and, once the position
// is confirmed healthy, creates the matching sUSD.  Debt is recorded before
// the health check so the check sees the post-mint state.
func (s *EngineService) Mint(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Position, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.Mint: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.CreditDebt(ctx, accountID, amount); err != nil {
		return nil, fmt.Errorf("engine.Mint: credit debt: %w", err)
	}
	if err = s.requireHealthy(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if err = s.mintTokens(ctx, tx, s.authority, accountID, amount); err != nil {
		return nil, err
	}
	if err = s.logEntry(ctx, tx, accountID, domain.EntryMint, domain.StableSymbol, amount, nil); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.Mint: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// RedeemCollateral
// ──────────────────────────────────────────────────────────────────────────────

// RedeemCollateral returns amount of an asset from custody to the account.
// The withdrawal is applied first and the position must still be healthy
// afterwards, otherwise everything rolls back.
func (s *EngineService) RedeemCollateral(ctx context.Context, accountID uuid.UUID, asset string, amount decimal.Decimal) (*domain.Position, error) {
	a, err := s.validateAssetAmount(asset, amount)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RedeemCollateral: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.redeemInTx(ctx, tx, accountID, a, amount); err != nil {
		return nil, err
	}
	if err = s.requireHealthy(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.RedeemCollateral: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Burn
// ──────────────────────────────────────────────────────────────────────────────

// Burn repays amount of the account's debt: the sUSD moves into custody, is
// destroyed, and the debt ledger is reduced by the same amount.
func (s *EngineService) Burn(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*domain.Position, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.Burn: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.burnInTx(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.Burn: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Composite operations
// ──────────────────────────────────────────────────────────────────────────────

// DepositAndMint deposits collateral and mints sUSD in one atomic step.  The
// health check sees both the new collateral and the new debt, so positions
// can be opened in a single call.
func (s *EngineService) DepositAndMint(ctx context.Context, accountID uuid.UUID, asset string, depositAmount, mintAmount decimal.Decimal) (*domain.Position, error) {
	a, err := s.validateAssetAmount(asset, depositAmount)
	if err != nil {
		return nil, err
	}
	if !mintAmount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.DepositAndMint: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.CreditCollateral(ctx, accountID, a.Symbol, depositAmount); err != nil {
		return nil, fmt.Errorf("engine.DepositAndMint: credit collateral: %w", err)
	}
	if err = tx.CreditDebt(ctx, accountID, mintAmount); err != nil {
		return nil, fmt.Errorf("engine.DepositAndMint: credit debt: %w", err)
	}
	if err = s.requireHealthy(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if err = s.mintTokens(ctx, tx, s.authority, accountID, mintAmount); err != nil {
		return nil, err
	}
	if err = s.logEntry(ctx, tx, accountID, domain.EntryDeposit, a.Symbol, depositAmount, nil); err != nil {
		return nil, err
	}
	if err = s.logEntry(ctx, tx, accountID, domain.EntryMint, domain.StableSymbol, mintAmount, nil); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.DepositAndMint: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// RedeemAndBurn repays debt and withdraws collateral in one atomic step.  The
// burn happens first so the health check on the withdrawal sees the reduced
// debt.
func (s *EngineService) RedeemAndBurn(ctx context.Context, accountID uuid.UUID, asset string, redeemAmount, burnAmount decimal.Decimal) (*domain.Position, error) {
	a, err := s.validateAssetAmount(asset, redeemAmount)
	if err != nil {
		return nil, err
	}
	if !burnAmount.IsPositive() {
		return nil, domain.ErrAmountNotPositive
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.RedeemAndBurn: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.burnInTx(ctx, tx, accountID, burnAmount); err != nil {
		return nil, err
	}
	if err = s.redeemInTx(ctx, tx, accountID, a, redeemAmount); err != nil {
		return nil, err
	}
	if err = s.requireHealthy(ctx, tx, accountID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.RedeemAndBurn: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Liquidate
// ──────────────────────────────────────────────────────────────────────────────

// Liquidate lets one account repay part of an unhealthy target's debt in
// exchange for the target's collateral plus the liquidation bonus.
//
// Order matters: the target must be below the minimum health factor before
// anything moves, the target's health must strictly improve after the swap,
// and only then is the liquidator's own position checked.
func (s *EngineService) Liquidate(ctx context.Context, liquidatorID, targetID uuid.UUID, asset string, debtToCover decimal.Decimal) (*LiquidationResult, error) {
	a, err := s.validateAssetAmount(asset, debtToCover)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.Liquidate: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// 1. Target must already be unhealthy.
	before, err := s.positionInTx(ctx, tx, targetID)
	if err != nil {
		return nil, err
	}
	if !domain.IsLiquidatable(before.HealthFactor) {
		err = fmt.Errorf("%w: target health factor %s", domain.ErrNotLiquidatable, before.HealthFactor)
		return nil, err
	}

	// 2. Price the seizure: covered debt in tokens, plus the bonus.
	reading, err := s.guard.Latest(ctx, a.FeedID)
	if err != nil {
		return nil, err
	}
	seized := domain.SeizureForDebt(debtToCover, reading.Price, s.params.LiquidationBonus)

	// 3. Move the seized collateral from the target to the liquidator.
	if err = tx.DebitCollateral(ctx, targetID, a.Symbol, seized); err != nil {
		return nil, fmt.Errorf("engine.Liquidate: seize: %w", err)
	}
	if err = tx.CreditCollateral(ctx, liquidatorID, a.Symbol, seized); err != nil {
		return nil, fmt.Errorf("engine.Liquidate: award: %w", err)
	}

	// 4. Retire the covered debt with the liquidator's sUSD.
	if err = s.burnFrom(ctx, tx, liquidatorID, debtToCover); err != nil {
		return nil, err
	}
	if err = tx.DebitDebt(ctx, targetID, debtToCover); err != nil {
		return nil, fmt.Errorf("engine.Liquidate: reduce debt: %w", err)
	}

	// 5. The target must be strictly better off.
	after, err := s.positionInTx(ctx, tx, targetID)
	if err != nil {
		return nil, err
	}
	if !after.HealthFactor.GreaterThan(before.HealthFactor) {
		err = fmt.Errorf("%w: %s -> %s", domain.ErrHealthFactorNotImproved,
			before.HealthFactor, after.HealthFactor)
		return nil, err
	}

	// 6. Only now does the liquidator's own position get checked.
	if err = s.requireHealthy(ctx, tx, liquidatorID); err != nil {
		return nil, err
	}

	targetRef := targetID
	if err = s.logEntry(ctx, tx, liquidatorID, domain.EntryLiquidation, a.Symbol, seized, &targetRef); err != nil {
		return nil, err
	}
	liqRef := liquidatorID
	if err = s.logEntry(ctx, tx, targetID, domain.EntryLiquidation, domain.StableSymbol, debtToCover.Neg(), &liqRef); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.Liquidate: commit: %w", err)
	}

	res := &LiquidationResult{
		Liquidator:       liquidatorID,
		Target:           targetID,
		Asset:            a.Symbol,
		DebtCovered:      debtToCover,
		CollateralSeized: seized,
		HealthBefore:     before.HealthFactor,
		HealthAfter:      after.HealthFactor,
		ExecutedAt:       time.Now().UTC(),
	}
	s.log.Info("liquidation executed",
		"target", targetID, "liquidator", liquidatorID,
		"asset", a.Symbol, "debt_covered", debtToCover.String(),
		"seized", seized.String())
	if s.broadcaster != nil {
		go s.broadcaster.BroadcastLiquidation(res)
	}
	return res, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Faucet (dev mode)
// ──────────────────────────────────────────────────────────────────────────────

// Faucet grants the configured amount of an approved asset to an account.
// Disabled in production and when FAUCET_ENABLED is off.
func (s *EngineService) Faucet(ctx context.Context, accountID uuid.UUID, asset string) (*domain.Position, error) {
	if !s.faucetEnabled {
		return nil, domain.ErrForbidden
	}
	a, err := s.registry.Lookup(asset)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.Faucet: begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.CreditCollateral(ctx, accountID, a.Symbol, s.faucetAmount); err != nil {
		return nil, fmt.Errorf("engine.Faucet: credit: %w", err)
	}
	if err = s.logEntry(ctx, tx, accountID, domain.EntryFaucet, a.Symbol, s.faucetAmount, nil); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("engine.Faucet: commit: %w", err)
	}
	return s.finishOp(ctx, accountID)
}

// ──────────────────────────────────────────────────────────────────────────────
// Tx-scoped helpers
// ──────────────────────────────────────────────────────────────────────────────

// validateAssetAmount checks the common preconditions shared by every
// collateral operation.
func (s *EngineService) validateAssetAmount(asset string, amount decimal.Decimal) (domain.Asset, error) {
	if !amount.IsPositive() {
		return domain.Asset{}, domain.ErrAmountNotPositive
	}
	return s.registry.Lookup(asset)
}

// redeemInTx debits collateral and writes the audit entry.  The caller is
// responsible for the health check.
func (s *EngineService) redeemInTx(ctx context.Context, tx repository.Tx, accountID uuid.UUID, a domain.Asset, amount decimal.Decimal) error {
	if err := tx.DebitCollateral(ctx, accountID, a.Symbol, amount); err != nil {
		return fmt.Errorf("engine: redeem: %w", err)
	}
	return s.logEntry(ctx, tx, accountID, domain.EntryRedeem, a.Symbol, amount, nil)
}

// burnInTx repays debt: sUSD moves through custody, is destroyed, and the
// debt ledger shrinks.
func (s *EngineService) burnInTx(ctx context.Context, tx repository.Tx, accountID uuid.UUID, amount decimal.Decimal) error {
	if err := s.burnFrom(ctx, tx, accountID, amount); err != nil {
		return err
	}
	if err := tx.DebitDebt(ctx, accountID, amount); err != nil {
		return fmt.Errorf("engine: reduce debt: %w", err)
	}
	return s.logEntry(ctx, tx, accountID, domain.EntryBurn, domain.StableSymbol, amount, nil)
}

// burnFrom pulls amount of sUSD from payer into custody and destroys it.
func (s *EngineService) burnFrom(ctx context.Context, tx repository.Tx, payer uuid.UUID, amount decimal.Decimal) error {
	if err := tx.TransferTokens(ctx, payer, domain.CustodyAccount, amount); err != nil {
		return fmt.Errorf("engine: collect for burn: %w", err)
	}
	return s.destroyTokens(ctx, tx, s.authority, domain.CustodyAccount, amount)
}

// mintTokens creates new supply.  Only callers holding a valid authority may
// change supply.
func (s *EngineService) mintTokens(ctx context.Context, tx repository.Tx, auth domain.MintAuthority, accountID uuid.UUID, amount decimal.Decimal) error {
	if !auth.Valid() {
		return domain.ErrNotAuthorized
	}
	if err := tx.MintTokens(ctx, accountID, amount); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMintFailed, err)
	}
	return nil
}

// destroyTokens removes supply, symmetric to mintTokens.
func (s *EngineService) destroyTokens(ctx context.Context, tx repository.Tx, auth domain.MintAuthority, accountID uuid.UUID, amount decimal.Decimal) error {
	if !auth.Valid() {
		return domain.ErrNotAuthorized
	}
	if err := tx.BurnTokens(ctx, accountID, amount); err != nil {
		return fmt.Errorf("engine: burn: %w", err)
	}
	return nil
}

// requireHealthy fails with ErrHealthFactorBroken when the account's position
// inside the transaction sits below the minimum health factor.
func (s *EngineService) requireHealthy(ctx context.Context, tx repository.Tx, accountID uuid.UUID) error {
	p, err := s.positionInTx(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if p.HealthFactor.LessThan(domain.MinHealthFactor) {
		return fmt.Errorf("%w: health factor %s", domain.ErrHealthFactorBroken, p.HealthFactor)
	}
	return nil
}

// logEntry appends one audit record inside the transaction.
func (s *EngineService) logEntry(ctx context.Context, tx repository.Tx, accountID uuid.UUID, typ domain.EntryType, asset string, amount decimal.Decimal, ref *uuid.UUID) error {
	entry := &domain.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Type:      typ,
		Asset:     asset,
		Amount:    amount,
		RefID:     ref,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.AppendEntry(ctx, entry); err != nil {
		return fmt.Errorf("engine: audit: %w", err)
	}
	return nil
}

// finishOp reads the committed position and broadcasts it.  The operation
// has already committed, so a valuation failure (stale feeds after a deposit
// or burn that needed no prices) returns a nil position, not an error.
func (s *EngineService) finishOp(ctx context.Context, accountID uuid.UUID) (*domain.Position, error) {
	p, err := s.Position(ctx, accountID)
	if err != nil {
		s.log.Warn("operation committed but position cannot be valued",
			"account", accountID, "error", err)
		return nil, nil
	}
	if s.broadcaster != nil {
		go s.broadcaster.BroadcastPositionUpdate(p)
	}
	return p, nil
}
