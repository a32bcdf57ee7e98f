package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evrimko/synthd/internal/backoffice/handler"
	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/repository"
	"github.com/evrimko/synthd/internal/service"
	"github.com/evrimko/synthd/internal/ws"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc  *service.AuthService
	Engine   *service.EngineService
	PriceSvc *service.PriceService
	Accounts repository.AccountStore
	Store    repository.Store
	Hub      *ws.Hub
	Cfg      *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine, served on its own port.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.Engine, deps.PriceSvc, deps.Store, deps.Hub, deps.Cfg)
	riskH := handler.NewRiskHandler(deps.Engine, deps.Cfg)
	accountH := handler.NewAccountAdminHandler(deps.Accounts, deps.Engine, deps.Cfg)
	feedH := handler.NewFeedHandler(deps.Engine, deps.PriceSvc, deps.Store, deps.Cfg)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Accounts
		a := admin.Group("/accounts")
		{
			a.GET("", accountH.List)
			a.GET("/:id", accountH.Detail)
			a.POST("/:id/suspend", accountH.Suspend)
			a.POST("/:id/activate", accountH.Activate)
			a.POST("/:id/role", accountH.SetRole)
		}

		// Risk
		risk := admin.Group("/risk")
		{
			risk.GET("/positions", riskH.Positions)
			risk.GET("/positions/:id", riskH.Position)
			risk.GET("/solvency", riskH.Solvency)
			risk.GET("/alerts", riskH.Alerts)
		}

		// Feeds
		feeds := admin.Group("/feeds")
		{
			feeds.GET("", feedH.Status)
			feeds.POST("/refresh", feedH.Refresh)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "access denied: your IP is not whitelisted",
			})
			return
		}
		c.Next()
	}
}

// ── Admin JWT middleware ──────────────────────────────────────────────────────

// adminJWTMiddleware validates a JWT and requires the caller to have a
// backoffice-capable role (admin, risk, ops, readonly).
func adminJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := authSvc.ParseAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil || claims.TokenType != "access" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Require at least one backoffice role
		backofficeRoles := map[string]bool{
			"admin":    true,
			"risk":     true,
			"ops":      true,
			"readonly": true,
		}
		if !backofficeRoles[claims.Role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		c.Set("accountID", claims.Subject)
		c.Set("role", claims.Role)
		c.Next()
	}
}
