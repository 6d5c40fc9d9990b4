package api

import (
	"net/http"

	"github.com/dpoglobal/issuance/internal/api/handler"
	"github.com/dpoglobal/issuance/internal/api/middleware"
	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/dpoglobal/issuance/internal/ws"
	"github.com/gin-gonic/gin"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	AuthSvc         *service.AuthService
	LedgerSvc       *service.LedgerService
	SettlementSvc   *service.SettlementService
	DerivativeSvc   *service.DerivativeService
	VerificationSvc *service.VerificationService
	UserRepo        *repository.UserRepository
	InvestorRepo    *repository.InvestorRepository
	OfferingRepo    *repository.OfferingRepository
	PositionRepo    *repository.PositionRepository
	Hub             *ws.Hub
	Cfg             *config.Config
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
	userH := handler.NewUserHandler(deps.AuthSvc, deps.UserRepo, deps.InvestorRepo)
	ledgerH := handler.NewLedgerHandler(deps.LedgerSvc, deps.OfferingRepo, deps.UserRepo)
	settlementH := handler.NewSettlementHandler(deps.SettlementSvc, deps.PositionRepo, deps.UserRepo)
	derivativeH := handler.NewDerivativeHandler(deps.DerivativeSvc)
	verificationH := handler.NewVerificationHandler(deps.VerificationSvc, deps.UserRepo)

	// ── JWT middleware (shared) ───────────────────────────────────────────────
	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	authRL := middleware.ThrottleByIP(deps.Cfg.RateLimit.AuthRPS)         // auth endpoints
	transferRL := middleware.ThrottleByIP(deps.Cfg.RateLimit.TransferRPS) // ledger mutations
	callbackRL := middleware.ThrottleByIP(deps.Cfg.RateLimit.CallbackRPS) // provider webhook

	api := r.Group("/api")
	{
		// ── Auth (public, strict rate limit) ─────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", userH.Register)
			auth.POST("/login", userH.Login)
			auth.POST("/refresh", userH.Refresh)
		}

		// ── Offerings (public) ───────────────────────────────────────────────
		offerings := api.Group("/offerings")
		{
			offerings.GET("", ledgerH.ListOfferings)
			offerings.GET("/:asset_id", ledgerH.GetOffering)
		}

		// ── KYC provider webhook (public, rate limited) ──────────────────────
		api.POST("/verifications/callback", callbackRL, verificationH.Callback)

		// ── Authenticated routes ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Profile
			authed.GET("/me", userH.Me)

			// Token ledger
			ledger := authed.Group("/ledger")
			{
				ledger.POST("/transfers", transferRL, ledgerH.Transfer)
				ledger.GET("/holdings/:asset_id", ledgerH.GetHolding)
				ledger.GET("/entries", ledgerH.GetEntries)
				ledger.GET("/issuances", ledgerH.GetIssuances)
			}

			// KYC verification
			verifications := authed.Group("/verifications")
			{
				verifications.POST("", verificationH.Request)
				verifications.GET("", verificationH.History)
			}

			// Custodial positions
			authed.GET("/positions", settlementH.GetMyPositions)

			// Settlements — reads for everyone, lifecycle for operators
			settlements := authed.Group("/settlements")
			{
				settlements.GET("/my", settlementH.GetMySettlements)
				settlements.GET("/:id", settlementH.Get)

				ops := settlements.Group("")
				ops.Use(middleware.SettlementOperatorMiddleware())
				{
					ops.POST("", settlementH.Initiate)
					ops.POST("/:id/instruct", settlementH.GenerateInstructions)
					ops.POST("/:id/confirm", settlementH.Confirm)
					ops.POST("/:id/complete", settlementH.Complete)
					ops.POST("/:id/cancel", settlementH.Cancel)
					ops.POST("/:id/fail", settlementH.Fail)
				}
			}

			// Derivatives registry — reads for everyone, writes for agents
			derivatives := authed.Group("/derivatives")
			{
				derivatives.GET("/trades", derivativeH.ListTrades)
				derivatives.GET("/trades/:uti", derivativeH.GetTrade)
				derivatives.GET("/trades/:uti/history", derivativeH.GetHistory)
				derivatives.GET("/trades/:uti/errors", derivativeH.GetErrorReports)
				derivatives.GET("/positions/:ref", derivativeH.GetPosition)

				agents := derivatives.Group("")
				agents.Use(middleware.ReportingAgentMiddleware())
				{
					agents.POST("/trades", derivativeH.Report)
					agents.POST("/trades/batch", derivativeH.BatchReport)
					agents.PUT("/trades/:uti", derivativeH.Correct)
					agents.POST("/trades/:uti/error", derivativeH.ReportError)
					agents.POST("/trades/:uti/revalue", derivativeH.Revalue)
					agents.POST("/positions", derivativeH.ReportPosition)
				}
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
// In development all origins are allowed; in production only the portal.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := map[string]bool{
				"https://portal.dpo-global.com":     true,
				"https://www.portal.dpo-global.com": true,
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
