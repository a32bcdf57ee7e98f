package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evrimko/synthd/internal/api/middleware"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/service"
)

// QueryHandler serves the read-only position, price, and ledger endpoints.
type QueryHandler struct {
	engine *service.EngineService
	prices *service.PriceService
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(engine *service.EngineService, prices *service.PriceService) *QueryHandler {
	return &QueryHandler{engine: engine, prices: prices}
}

// GetPosition godoc
// GET /api/positions/:id
// Anyone may inspect any position; liquidators need this to find targets.
func (h *QueryHandler) GetPosition(c *gin.Context) {
	accountID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ACCOUNT_ID", "invalid account id")
		return
	}
	p, err := h.engine.Position(c.Request.Context(), accountID)
	if err != nil {
		respondEngineError(c, err, "could not derive position")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// GetMyPosition godoc
// GET /api/position [JWT]
func (h *QueryHandler) GetMyPosition(c *gin.Context) {
	p, err := h.engine.Position(c.Request.Context(), middleware.GetAccountID(c))
	if err != nil {
		respondEngineError(c, err, "could not derive position")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// GetStatement godoc
// GET /api/statement?page=1&limit=20 [JWT]
func (h *QueryHandler) GetStatement(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	page, limit := parsePagination(c)
	offset := (page - 1) * limit

	entries, err := h.engine.Statement(c.Request.Context(), accountID, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch statement")
		return
	}
	respondList(c, entries, len(entries), page, limit)
}

// GetAssets godoc
// GET /api/assets
func (h *QueryHandler) GetAssets(c *gin.Context) {
	respondSuccess(c, http.StatusOK, h.engine.Registry().Assets())
}

// GetPrice godoc
// GET /api/prices/:feed
func (h *QueryHandler) GetPrice(c *gin.Context) {
	reading, err := h.prices.Latest(c.Request.Context(), c.Param("feed"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrFeedNotFound):
			respondError(c, http.StatusNotFound, "ERR_FEED_NOT_FOUND", err.Error())
		case errors.Is(err, domain.ErrStalePrice):
			respondError(c, http.StatusServiceUnavailable, "ERR_STALE_PRICE", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not read price")
		}
		return
	}
	respondSuccess(c, http.StatusOK, reading)
}

// Convert godoc
// GET /api/convert/:asset?amount=N | ?usd=N
// Values a token amount in USD, or a USD amount in tokens, at the latest
// fresh price.  Exactly one of the two query parameters must be given.
func (h *QueryHandler) Convert(c *gin.Context) {
	asset := c.Param("asset")
	rawAmount := c.Query("amount")
	rawUSD := c.Query("usd")
	if (rawAmount == "") == (rawUSD == "") {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "provide exactly one of amount or usd")
		return
	}

	if rawAmount != "" {
		amount, ok := parseAmount(c, rawAmount)
		if !ok {
			return
		}
		value, err := h.engine.USDValueOf(c.Request.Context(), asset, amount)
		if err != nil {
			respondEngineError(c, err, "could not value amount")
			return
		}
		respondSuccess(c, http.StatusOK, gin.H{
			"asset":     asset,
			"amount":    amount,
			"usd_value": value,
		})
		return
	}

	usd, ok := parseAmount(c, rawUSD)
	if !ok {
		return
	}
	amount, err := h.engine.TokenAmountForValue(c.Request.Context(), asset, usd)
	if err != nil {
		respondEngineError(c, err, "could not value amount")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"asset":     asset,
		"usd_value": usd,
		"amount":    amount,
	})
}

// GetSolvency godoc
// GET /api/solvency
func (h *QueryHandler) GetSolvency(c *gin.Context) {
	report, err := h.engine.SolvencyReport(c.Request.Context())
	if err != nil {
		respondEngineError(c, err, "could not compute solvency")
		return
	}
	respondSuccess(c, http.StatusOK, report)
}
