package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evrimko/synthd/internal/api/middleware"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/service"
)

// VaultHandler serves the position-mutating endpoints: deposits, mints,
// redemptions, burns, and liquidations.
type VaultHandler struct {
	engine *service.EngineService
}

// NewVaultHandler creates a VaultHandler.
func NewVaultHandler(engine *service.EngineService) *VaultHandler {
	return &VaultHandler{engine: engine}
}

// Deposit godoc
// POST /api/vault/deposit [JWT]
// Body: {"asset":"WETH","amount":"1.5"}
func (h *VaultHandler) Deposit(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	asset, amount, ok := bindAssetAmount(c)
	if !ok {
		return
	}
	p, err := h.engine.DepositCollateral(c.Request.Context(), accountID, asset, amount)
	if err != nil {
		respondEngineError(c, err, "could not deposit collateral")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Mint godoc
// POST /api/vault/mint [JWT]
// Body: {"amount":"100"}
func (h *VaultHandler) Mint(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	p, err := h.engine.Mint(c.Request.Context(), accountID, amount)
	if err != nil {
		respondEngineError(c, err, "could not mint")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Redeem godoc
// POST /api/vault/redeem [JWT]
// Body: {"asset":"WETH","amount":"0.5"}
func (h *VaultHandler) Redeem(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	asset, amount, ok := bindAssetAmount(c)
	if !ok {
		return
	}
	p, err := h.engine.RedeemCollateral(c.Request.Context(), accountID, asset, amount)
	if err != nil {
		respondEngineError(c, err, "could not redeem collateral")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Burn godoc
// POST /api/vault/burn [JWT]
// Body: {"amount":"100"}
func (h *VaultHandler) Burn(c *gin.Context) {
	accountID := middleware.GetAccountID(c)
	amount, ok := bindAmount(c)
	if !ok {
		return
	}
	p, err := h.engine.Burn(c.Request.Context(), accountID, amount)
	if err != nil {
		respondEngineError(c, err, "could not burn")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// DepositAndMint godoc
// POST /api/vault/open [JWT]
// Body: {"asset":"WETH","deposit_amount":"2","mint_amount":"1000"}
func (h *VaultHandler) DepositAndMint(c *gin.Context) {
	accountID := middleware.GetAccountID(c)

	var body struct {
		Asset         string `json:"asset"          binding:"required"`
		DepositAmount string `json:"deposit_amount" binding:"required"`
		MintAmount    string `json:"mint_amount"    binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	deposit, ok := parseAmount(c, body.DepositAmount)
	if !ok {
		return
	}
	mint, ok := parseAmount(c, body.MintAmount)
	if !ok {
		return
	}

	p, err := h.engine.DepositAndMint(c.Request.Context(), accountID, body.Asset, deposit, mint)
	if err != nil {
		respondEngineError(c, err, "could not open position")
		return
	}
	respondSuccess(c, http.StatusCreated, p)
}

// RedeemAndBurn godoc
// POST /api/vault/close [JWT]
// Body: {"asset":"WETH","redeem_amount":"2","burn_amount":"1000"}
func (h *VaultHandler) RedeemAndBurn(c *gin.Context) {
	accountID := middleware.GetAccountID(c)

	var body struct {
		Asset        string `json:"asset"         binding:"required"`
		RedeemAmount string `json:"redeem_amount" binding:"required"`
		BurnAmount   string `json:"burn_amount"   binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	redeem, ok := parseAmount(c, body.RedeemAmount)
	if !ok {
		return
	}
	burn, ok := parseAmount(c, body.BurnAmount)
	if !ok {
		return
	}

	p, err := h.engine.RedeemAndBurn(c.Request.Context(), accountID, body.Asset, redeem, burn)
	if err != nil {
		respondEngineError(c, err, "could not unwind position")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// Liquidate godoc
// POST /api/vault/liquidate [JWT]
// Body: {"target":"uuid","asset":"WETH","debt_to_cover":"500"}
func (h *VaultHandler) Liquidate(c *gin.Context) {
	liquidatorID := middleware.GetAccountID(c)

	var body struct {
		Target      string `json:"target"        binding:"required"`
		Asset       string `json:"asset"         binding:"required"`
		DebtToCover string `json:"debt_to_cover" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	targetID, err := uuid.Parse(body.Target)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_TARGET", "invalid target account id")
		return
	}
	debtToCover, ok := parseAmount(c, body.DebtToCover)
	if !ok {
		return
	}

	res, err := h.engine.Liquidate(c.Request.Context(), liquidatorID, targetID, body.Asset, debtToCover)
	if err != nil {
		respondEngineError(c, err, "could not liquidate")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Faucet godoc
// POST /api/vault/faucet [JWT, dev only]
// Body: {"asset":"WETH"}
func (h *VaultHandler) Faucet(c *gin.Context) {
	accountID := middleware.GetAccountID(c)

	var body struct {
		Asset string `json:"asset" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	p, err := h.engine.Faucet(c.Request.Context(), accountID, body.Asset)
	if err != nil {
		respondEngineError(c, err, "faucet unavailable")
		return
	}
	respondSuccess(c, http.StatusOK, p)
}

// ── helpers ──────────────────────────────────────────────────────────────────

// bindAssetAmount parses the common {"asset","amount"} request body.
func bindAssetAmount(c *gin.Context) (string, decimal.Decimal, bool) {
	var body struct {
		Asset  string `json:"asset"  binding:"required"`
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return "", decimal.Zero, false
	}
	amount, ok := parseAmount(c, body.Amount)
	if !ok {
		return "", decimal.Zero, false
	}
	return body.Asset, amount, true
}

// bindAmount parses the common {"amount"} request body.
func bindAmount(c *gin.Context) (decimal.Decimal, bool) {
	var body struct {
		Amount string `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return decimal.Zero, false
	}
	return parseAmount(c, body.Amount)
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return decimal.Zero, false
	}
	return amount, true
}

// respondEngineError maps engine sentinels onto HTTP statuses.
func respondEngineError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrAmountNotPositive):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", err.Error())
	case errors.Is(err, domain.ErrInvalidAsset):
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ASSET", err.Error())
	case errors.Is(err, domain.ErrInsufficientCollateral):
		respondError(c, http.StatusPaymentRequired, "ERR_INSUFFICIENT_COLLATERAL", err.Error())
	case errors.Is(err, domain.ErrInsufficientDebt):
		respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_DEBT", err.Error())
	case errors.Is(err, domain.ErrTransferFailed):
		respondError(c, http.StatusPaymentRequired, "ERR_TRANSFER_FAILED", err.Error())
	case errors.Is(err, domain.ErrHealthFactorBroken):
		respondError(c, http.StatusConflict, "ERR_HEALTH_FACTOR_BROKEN", err.Error())
	case errors.Is(err, domain.ErrHealthFactorNotImproved):
		respondError(c, http.StatusConflict, "ERR_HEALTH_NOT_IMPROVED", err.Error())
	case errors.Is(err, domain.ErrNotLiquidatable):
		respondError(c, http.StatusConflict, "ERR_NOT_LIQUIDATABLE", err.Error())
	case errors.Is(err, domain.ErrStalePrice):
		respondError(c, http.StatusServiceUnavailable, "ERR_STALE_PRICE", err.Error())
	case errors.Is(err, domain.ErrFeedNotFound):
		respondError(c, http.StatusServiceUnavailable, "ERR_FEED_UNAVAILABLE", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		respondError(c, http.StatusForbidden, "ERR_FORBIDDEN", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", fallback)
	}
}
