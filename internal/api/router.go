package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evrimko/synthd/internal/api/handler"
	"github.com/evrimko/synthd/internal/api/middleware"
	"github.com/evrimko/synthd/internal/config"
	"github.com/evrimko/synthd/internal/service"
	"github.com/evrimko/synthd/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc  *service.AuthService
	Engine   *service.EngineService
	PriceSvc *service.PriceService
	Hub      *ws.Hub
	Cfg      *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	accountH := handler.NewAccountHandler(deps.AuthSvc, deps.Engine)
	vaultH := handler.NewVaultHandler(deps.Engine)
	queryH := handler.NewQueryHandler(deps.Engine, deps.PriceSvc)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.RateLimitMiddleware(10)          // 10 req/s per IP for auth endpoints
	vaultRL := middleware.AccountRateLimitMiddleware(20)  // 20 req/s per account for vault ops

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", accountH.Register)
			auth.POST("/login", accountH.Login)
			auth.POST("/refresh", accountH.Refresh)
		}

		// ── Public reads ─────────────────────────────────────────────────────
		api.GET("/assets", queryH.GetAssets)
		api.GET("/prices/:feed", queryH.GetPrice)
		api.GET("/solvency", queryH.GetSolvency)
		api.GET("/convert/:asset", queryH.Convert)
		api.GET("/positions/:id", queryH.GetPosition)

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Profile
			authed.GET("/me", accountH.Me)
			authed.GET("/position", queryH.GetMyPosition)
			authed.GET("/statement", queryH.GetStatement)

			// Vault operations
			vault := authed.Group("/vault")
			vault.Use(vaultRL)
			{
				vault.POST("/deposit", vaultH.Deposit)
				vault.POST("/mint", vaultH.Mint)
				vault.POST("/redeem", vaultH.Redeem)
				vault.POST("/burn", vaultH.Burn)
				vault.POST("/open", vaultH.DepositAndMint)
				vault.POST("/close", vaultH.RedeemAndBurn)
				vault.POST("/liquidate", vaultH.Liquidate)
				vault.POST("/faucet", vaultH.Faucet)
			}
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://synthd.io":     true,
				"https://app.synthd.io": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
