package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
)

// FeedHandler serves /admin/feeds endpoints for the oracle ops dashboard.
type FeedHandler struct {
	engine   *service.EngineService
	priceSvc *service.PriceService
	store    repository.Store
	cfg      *config.Config
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(
	engine *service.EngineService,
	priceSvc *service.PriceService,
	store repository.Store,
	cfg *config.Config,
) *FeedHandler {
	return &FeedHandler{engine: engine, priceSvc: priceSvc, store: store, cfg: cfg}
}

// Status godoc
// GET /admin/feeds
// Shows every registered feed's latest reading, its age, and source health.
func (h *FeedHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()

	type feedRow struct {
		Asset     string `json:"asset"`
		FeedID    string `json:"feed_id"`
		Price     string `json:"price,omitempty"`
		UpdatedAt string `json:"updated_at,omitempty"`
		AgeSec    int64  `json:"age_sec"`
		Stale     bool   `json:"stale"`
		Missing   bool   `json:"missing,omitempty"`
	}

	assets := h.engine.Registry().Assets()
	rows := make([]feedRow, 0, len(assets))
	for _, asset := range assets {
		row := feedRow{Asset: asset.Symbol, FeedID: asset.FeedID}
		reading, err := h.store.LatestReading(ctx, asset.FeedID)
		if err != nil {
			row.Missing = true
			row.Stale = true
		} else {
			row.Price = reading.Price.String()
			row.UpdatedAt = reading.UpdatedAt.Format(time.RFC3339)
			row.AgeSec = int64(reading.Age(now).Seconds())
			row.Stale = reading.StaleAt(now, h.cfg.Oracle.StalenessLimit)
		}
		rows = append(rows, row)
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"feeds":               rows,
		"sources":             h.priceSvc.SourceStatus(),
		"staleness_limit_sec": int64(h.cfg.Oracle.StalenessLimit.Seconds()),
		"poll_interval_sec":   int64(h.cfg.Oracle.PollInterval.Seconds()),
	})
}

// Refresh godoc
// POST /admin/feeds/refresh
// Forces an immediate refresh of every feed outside the poll schedule.
func (h *FeedHandler) Refresh(c *gin.Context) {
	registry := h.engine.Registry()
	refreshed := h.priceSvc.RefreshAll(c.Request.Context(), registry)
	respondSuccess(c, http.StatusOK, gin.H{
		"refreshed": refreshed,
		"total":     registry.Len(),
	})
}
