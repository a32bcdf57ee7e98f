package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evrimko/synthd/internal/api/middleware"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/service"
)

// AccountHandler handles authentication and profile endpoints.
type AccountHandler struct {
	authSvc *service.AuthService
	engine  *service.EngineService
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(authSvc *service.AuthService, engine *service.EngineService) *AccountHandler {
	return &AccountHandler{authSvc: authSvc, engine: engine}
}

// Register godoc
// POST /api/auth/register
func (h *AccountHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Register(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailTaken):
			respondError(c, http.StatusConflict, "ERR_EMAIL_TAKEN", err.Error())
		case errors.Is(err, domain.ErrUsernameTaken):
			respondError(c, http.StatusConflict, "ERR_USERNAME_TAKEN", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "registration failed")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, resp)
}

// Login godoc
// POST /api/auth/login
func (h *AccountHandler) Login(c *gin.Context) {
	var body struct {
		Email    string `json:"email"    binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			respondError(c, http.StatusUnauthorized, "ERR_INVALID_CREDENTIALS", err.Error())
		case errors.Is(err, domain.ErrAccountInactive):
			respondError(c, http.StatusForbidden, "ERR_ACCOUNT_DISABLED", err.Error())
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "login failed")
		}
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Refresh godoc
// POST /api/auth/refresh
func (h *AccountHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	access, refresh, err := h.authSvc.RefreshToken(c.Request.Context(), body.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "ERR_INVALID_TOKEN", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
	})
}

// Me godoc
// GET /api/me [JWT required]
func (h *AccountHandler) Me(c *gin.Context) {
	accountID := middleware.GetAccountID(c)

	tokens, err := h.engine.TokenBalance(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not read balances")
		return
	}

	resp := gin.H{
		"account_id":    accountID,
		"token_balance": tokens,
	}
	// The position needs feed prices; omit it rather than fail the profile
	// when the oracle is down.
	if p, err := h.engine.Position(c.Request.Context(), accountID); err == nil {
		resp["position"] = p
	}
	respondSuccess(c, http.StatusOK, resp)
}
