package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/service"
)

// RiskHandler serves /admin/risk endpoints.
type RiskHandler struct {
	engine *service.EngineService
	cfg    *config.Config
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(engine *service.EngineService, cfg *config.Config) *RiskHandler {
	return &RiskHandler{engine: engine, cfg: cfg}
}

// Positions godoc
// GET /admin/risk/positions
// Lists every position under the warning ratio, worst health factor first.
func (h *RiskHandler) Positions(c *gin.Context) {
	atRisk, err := h.engine.AtRiskPositions(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	warnRatio := h.engine.WarnRatio()
	type row struct {
		Position  *domain.Position `json:"position"`
		Indicator string           `json:"indicator"`
	}
	rows := make([]row, 0, len(atRisk))
	for _, p := range atRisk {
		rows = append(rows, row{Position: p, Indicator: healthIndicator(p.HealthFactor, warnRatio)})
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"warn_ratio": warnRatio,
		"positions":  rows,
	})
}

// Position godoc
// GET /admin/risk/positions/:id
func (h *RiskHandler) Position(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid account id")
		return
	}

	p, err := h.engine.Position(c.Request.Context(), id)
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ERR_FEED_UNAVAILABLE", err.Error())
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"position":  p,
		"indicator": healthIndicator(p.HealthFactor, h.engine.WarnRatio()),
	})
}

// Solvency godoc
// GET /admin/risk/solvency
func (h *RiskHandler) Solvency(c *gin.Context) {
	report, err := h.engine.SolvencyReport(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ERR_FEED_UNAVAILABLE", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, report)
}

// Alerts godoc
// GET /admin/risk/alerts
func (h *RiskHandler) Alerts(c *gin.Context) {
	ctx := c.Request.Context()

	type Alert struct {
		Level   string `json:"level"`
		Message string `json:"message"`
	}
	alerts := []Alert{}

	report, err := h.engine.SolvencyReport(ctx)
	if err != nil {
		alerts = append(alerts, Alert{"RED", "solvency report unavailable: " + err.Error()})
	} else if !report.Solvent {
		alerts = append(alerts, Alert{"RED", "outstanding supply exceeds custody collateral value"})
	}

	atRisk, err := h.engine.AtRiskPositions(ctx)
	if err == nil {
		liquidatable := 0
		for _, p := range atRisk {
			if domain.IsLiquidatable(p.HealthFactor) {
				liquidatable++
			}
		}
		if liquidatable > 0 {
			alerts = append(alerts, Alert{"RED", "positions below the minimum health factor await liquidation"})
		} else if len(atRisk) > 0 {
			alerts = append(alerts, Alert{"YELLOW", "positions under the warning ratio"})
		}
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"alerts":   alerts,
		"at_risk":  len(atRisk),
		"solvency": report,
	})
}
