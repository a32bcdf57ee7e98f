package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/domain"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
)

// AccountAdminHandler serves /admin/accounts endpoints.
type AccountAdminHandler struct {
	accounts repository.AccountStore
	engine   *service.EngineService
	cfg      *config.Config
}

// NewAccountAdminHandler creates an AccountAdminHandler.
func NewAccountAdminHandler(
	accounts repository.AccountStore,
	engine *service.EngineService,
	cfg *config.Config,
) *AccountAdminHandler {
	return &AccountAdminHandler{accounts: accounts, engine: engine, cfg: cfg}
}

// List godoc
// GET /admin/accounts?page=1&limit=50
func (h *AccountAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	offset := (page - 1) * limit

	accounts, total, err := h.accounts.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondList(c, accounts, total, page, limit)
}

// Detail godoc
// GET /admin/accounts/:id
func (h *AccountAdminHandler) Detail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid account id")
		return
	}

	ctx := c.Request.Context()
	account, err := h.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}

	balance, _ := h.engine.TokenBalance(ctx, id)
	entries, _ := h.engine.Statement(ctx, id, 50, 0)
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}

	data := gin.H{
		"account":       account,
		"token_balance": balance,
		"entries":       entries,
	}
	// Best effort: the position is omitted when the oracle cannot value it.
	if p, err := h.engine.Position(ctx, id); err == nil {
		data["position"] = p
	}

	respondSuccess(c, http.StatusOK, data)
}

// Suspend godoc
// POST /admin/accounts/:id/suspend
func (h *AccountAdminHandler) Suspend(c *gin.Context) {
	h.setActive(c, false)
}

// Activate godoc
// POST /admin/accounts/:id/activate
func (h *AccountAdminHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *AccountAdminHandler) setActive(c *gin.Context, active bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid account id")
		return
	}
	if err = h.accounts.SetActive(c.Request.Context(), id, active); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"account_id": id, "is_active": active})
}

// SetRole godoc
// POST /admin/accounts/:id/role
// Body: {"role": "risk"}
func (h *AccountAdminHandler) SetRole(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ID", "invalid account id")
		return
	}
	var body struct {
		Role string `json:"role" binding:"required"`
	}
	if err = c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	role := domain.AccountRole(body.Role)
	validRoles := map[domain.AccountRole]bool{
		domain.RoleHolder:   true,
		domain.RoleAdmin:    true,
		domain.RoleRisk:     true,
		domain.RoleOps:      true,
		domain.RoleReadOnly: true,
	}
	if !validRoles[role] {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ROLE", "unknown role")
		return
	}
	if err = h.accounts.UpdateRole(c.Request.Context(), id, role); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"account_id": id, "role": role})
}
