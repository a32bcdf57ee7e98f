// Package scheduler manages the three background goroutines that keep the
// issuance engine current:
//  1. feedPollLoop     – refreshes every oracle feed on the poll interval.
//  2. riskSweepLoop    – scans open positions and flags those near liquidation.
//  3. solvencyAuditLoop – periodically recomputes the system solvency report.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/service"
)

// ──────────────────────────────────────────────────────────────────────────────
// WsHub interface — minimally required from the Hub
// ──────────────────────────────────────────────────────────────────────────────

// WsHub defines the broadcast operations the Scheduler needs from the WebSocket
// hub.  Declared here so a nil hub is valid and tests can stub it.
type WsHub interface {
	BroadcastPriceTick(reading domain.PriceReading)
	BroadcastPositionAtRisk(p *domain.Position)
}

// ──────────────────────────────────────────────────────────────────────────────
// Scheduler
// ──────────────────────────────────────────────────────────────────────────────

// Scheduler wires together the services and runs the background loops.
// Call Start(ctx) once from main(); cancel the context to shut it down.
type Scheduler struct {
	engine   *service.EngineService
	priceSvc *service.PriceService
	hub      WsHub
	cfg      *config.Config
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(
	engine *service.EngineService,
	priceSvc *service.PriceService,
	hub WsHub,
	cfg *config.Config,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		engine:   engine,
		priceSvc: priceSvc,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the background goroutines.  It returns immediately;
// all loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.feedPollLoop(ctx)
	go s.riskSweepLoop(ctx)
	go s.solvencyAuditLoop(ctx)
	s.logger.Info("scheduler started",
		"poll_interval", s.cfg.Oracle.PollInterval,
		"sweep_interval", s.cfg.Risk.SweepInterval)
}

// ──────────────────────────────────────────────────────────────────────────────
// feedPollLoop
// ──────────────────────────────────────────────────────────────────────────────

// feedPollLoop refreshes every registered feed on the configured poll
// interval and broadcasts each fresh reading to WS clients.  One refresh
// runs immediately at startup so the engine is usable before the first tick.
func (s *Scheduler) feedPollLoop(ctx context.Context) {
	defer s.recoverAndLog("feedPollLoop")

	s.pollFeeds(ctx)

	ticker := time.NewTicker(s.cfg.Oracle.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("feedPollLoop: shutting down")
			return
		case <-ticker.C:
			s.pollFeeds(ctx)
		}
	}
}

// pollFeeds is the inner body of feedPollLoop, extracted so the defer/recover
// in the loop catches panics correctly.
func (s *Scheduler) pollFeeds(ctx context.Context) {
	registry := s.engine.Registry()
	refreshed := s.priceSvc.RefreshAll(ctx, registry)
	if refreshed == 0 {
		s.logger.Error("feedPollLoop: every feed refresh failed")
		return
	}

	if s.hub == nil {
		return
	}
	for _, asset := range registry.Assets() {
		reading, err := s.priceSvc.Latest(ctx, asset.FeedID)
		if err != nil {
			continue
		}
		s.hub.BroadcastPriceTick(reading)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// riskSweepLoop
// ──────────────────────────────────────────────────────────────────────────────

// riskSweepLoop scans every indebted position on the sweep interval and
// broadcasts those whose health factor fell under the warning ratio, worst
// first, so liquidator bots can cover the riskiest debt first.
func (s *Scheduler) riskSweepLoop(ctx context.Context) {
	defer s.recoverAndLog("riskSweepLoop")

	ticker := time.NewTicker(s.cfg.Risk.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("riskSweepLoop: shutting down")
			return
		case <-ticker.C:
			s.sweepPositions(ctx)
		}
	}
}

func (s *Scheduler) sweepPositions(ctx context.Context) {
	atRisk, err := s.engine.AtRiskPositions(ctx)
	if err != nil {
		s.logger.Error("riskSweepLoop: position scan failed", "err", err)
		return
	}
	if len(atRisk) == 0 {
		return
	}

	liquidatable := 0
	for _, p := range atRisk {
		if domain.IsLiquidatable(p.HealthFactor) {
			liquidatable++
		}
		s.logger.Warn("position at risk",
			"account", p.AccountID,
			"health_factor", p.HealthFactor.String(),
			"debt", p.Debt.String())
		if s.hub != nil {
			s.hub.BroadcastPositionAtRisk(p)
		}
	}
	s.logger.Info("risk sweep complete",
		"at_risk", len(atRisk), "liquidatable", liquidatable)
}

// ──────────────────────────────────────────────────────────────────────────────
// solvencyAuditLoop
// ──────────────────────────────────────────────────────────────────────────────

// solvencyAuditLoop recomputes the system-wide solvency report every ten
// sweep intervals.  An insolvent reading is logged at error level; it means
// outstanding supply exceeds the value of all custody collateral.
func (s *Scheduler) solvencyAuditLoop(ctx context.Context) {
	defer s.recoverAndLog("solvencyAuditLoop")

	ticker := time.NewTicker(10 * s.cfg.Risk.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("solvencyAuditLoop: shutting down")
			return
		case <-ticker.C:
			report, err := s.engine.SolvencyReport(ctx)
			if err != nil {
				s.logger.Warn("solvencyAuditLoop: report failed", "err", err)
				continue
			}
			if !report.Solvent {
				s.logger.Error("SYSTEM INSOLVENT",
					"collateral_value_usd", report.CollateralValueUSD.String(),
					"stable_supply", report.StableSupply.String())
				continue
			}
			s.logger.Info("solvency audit ok",
				"collateral_value_usd", report.CollateralValueUSD.String(),
				"stable_supply", report.StableSupply.String())
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Panic recovery
// ──────────────────────────────────────────────────────────────────────────────

// recoverAndLog is deferred inside each goroutine to catch unexpected panics,
// log them, and allow the scheduler to continue running.
func (s *Scheduler) recoverAndLog(loop string) {
	if r := recover(); r != nil {
		s.logger.Error("PANIC recovered in scheduler loop",
			"loop", loop, "panic", r)
	}
}
