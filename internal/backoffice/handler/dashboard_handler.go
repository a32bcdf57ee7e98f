package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
	"github.com/evrimko/synthd/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	engine   *service.EngineService
	priceSvc *service.PriceService
	store    repository.Store
	hub      *ws.Hub
	cfg      *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	engine *service.EngineService,
	priceSvc *service.PriceService,
	store repository.Store,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		engine:   engine,
		priceSvc: priceSvc,
		store:    store,
		hub:      hub,
		cfg:      cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Solvency ─────────────────────────────────────────────────────────────
	var solvencyData gin.H
	report, err := h.engine.SolvencyReport(ctx)
	if err == nil {
		solvencyData = gin.H{
			"collateral_value_usd": report.CollateralValueUSD,
			"stable_supply":        report.StableSupply,
			"solvent":              report.Solvent,
			"generated_at":         report.GeneratedAt,
		}
	}

	// ── Custody collateral breakdown ────────────────────────────────────────
	collateral, _ := h.store.TotalCollateral(ctx)
	if collateral == nil {
		collateral = []repository.AssetAmount{}
	}

	// ── Outstanding supply ───────────────────────────────────────────────────
	var supply decimal.Decimal
	if s, err := h.store.TotalSupply(ctx); err == nil {
		supply = s
	}

	// ── Risk queue ───────────────────────────────────────────────────────────
	atRisk, _ := h.engine.AtRiskPositions(ctx)
	liquidatable := 0
	for _, p := range atRisk {
		if domain.IsLiquidatable(p.HealthFactor) {
			liquidatable++
		}
	}

	// ── Feed sources ─────────────────────────────────────────────────────────
	sources := h.priceSvc.SourceStatus()

	// ── WS connections ────────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":      time.Now().UTC(),
		"solvency":       solvencyData,
		"collateral":     collateral,
		"stable_supply":  supply,
		"at_risk":        len(atRisk),
		"liquidatable":   liquidatable,
		"warn_ratio":     h.engine.WarnRatio(),
		"feed_sources":   sources,
		"ws_connections": wsConnections,
	})
}

// healthIndicator returns GREEN/YELLOW/RED for a position health factor.
func healthIndicator(hf, warnRatio decimal.Decimal) string {
	switch {
	case domain.IsLiquidatable(hf):
		return "RED"
	case hf.LessThan(warnRatio):
		return "YELLOW"
	default:
		return "GREEN"
	}
}
