package backoffice

import (
	"net/http"
	"strings"

	"github.com/dpoglobal/issuance/internal/backoffice/handler"
	"github.com/dpoglobal/issuance/internal/config"
	"github.com/dpoglobal/issuance/internal/domain"
	"github.com/dpoglobal/issuance/internal/repository"
	"github.com/dpoglobal/issuance/internal/service"
	"github.com/dpoglobal/issuance/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc        *service.AuthService
	LedgerSvc      *service.LedgerService
	ValuationSvc   *service.ValuationService
	CSDSvc         *service.CSDService
	UserRepo       *repository.UserRepository
	InvestorRepo   *repository.InvestorRepository
	LedgerRepo     *repository.LedgerRepository
	OfferingRepo   *repository.OfferingRepository
	SettlementRepo *repository.SettlementRepository
	Hub            *ws.Hub
	Cfg            *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine on the backoffice port.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.SettlementRepo, deps.OfferingRepo, deps.LedgerRepo, deps.ValuationSvc, deps.Hub, deps.Cfg)
	complianceH := handler.NewComplianceHandler(deps.LedgerSvc, deps.InvestorRepo, deps.LedgerRepo, deps.Cfg)
	offeringH := handler.NewOfferingHandler(deps.LedgerSvc, deps.OfferingRepo, deps.Cfg)
	userH := handler.NewUserAdminHandler(deps.UserRepo, deps.InvestorRepo, deps.Cfg)
	reconH := handler.NewReconciliationHandler(deps.CSDSvc, deps.SettlementRepo, deps.Cfg)

	jwtMW := adminJWTMiddleware(deps.AuthSvc)

	admin := r.Group("/admin")
	admin.Use(jwtMW)
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Compliance — sanctions, QIB, locks, forced transfers
		comp := admin.Group("/compliance")
		{
			comp.GET("/investors", complianceH.ListInvestors)
			comp.GET("/investors/:id", complianceH.InvestorDetail)
			comp.GET("/forced-transfers", complianceH.ForcedTransferAudit)

			authority := comp.Group("")
			authority.Use(complianceAuthorityMiddleware())
			{
				authority.POST("/investors/:id/sanction", complianceH.SetSanction)
				authority.POST("/investors/:id/qib", complianceH.SetQIB)
				authority.POST("/investors/:id/lock", complianceH.SetLock)
				authority.POST("/force-transfer", complianceH.ForceTransfer)
			}
		}

		// Offerings & issuance
		off := admin.Group("/offerings")
		off.Use(opsMiddleware())
		{
			off.GET("", offeringH.List)
			off.POST("", offeringH.Create)
			off.POST("/:asset_id/finalize", offeringH.Finalize)
			off.PUT("/:asset_id/identifiers", offeringH.UpsertIdentifier)
			off.GET("/:asset_id/identifiers", offeringH.GetIdentifier)
		}
		admin.POST("/issuances", opsMiddleware(), offeringH.Issue)

		// Users
		u := admin.Group("/users")
		{
			u.GET("", userH.List)
			u.GET("/:id", userH.Detail)
			u.POST("/:id/suspend", userH.Suspend)
			u.POST("/:id/activate", userH.Activate)
			u.POST("/:id/role", userH.SetRole)
		}

		// CSD reconciliation
		recon := admin.Group("/reconciliation")
		recon.Use(opsMiddleware())
		{
			recon.POST("/settlements/:id", reconH.ReconcileOne)
			recon.POST("/batch", reconH.ReconcileBatch)
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

// adminJWTMiddleware validates a JWT and requires a backoffice-capable role.
// On success it stores the caller's UUID and role in the gin context.
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

		role := domain.UserRole(claims.Role)
		if !role.CanAccessBackoffice() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// complianceAuthorityMiddleware restricts a route to roles that may sanction,
// lock, and force-transfer. Must follow adminJWTMiddleware.
func complianceAuthorityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		roleStr, _ := role.(string)
		if !domain.UserRole(roleStr).IsComplianceAuthority() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "compliance authority required"})
			return
		}
		c.Next()
	}
}

// opsMiddleware restricts a route to the ops and admin roles.
func opsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("role")
		roleStr, _ := role.(string)
		if roleStr != string(domain.RoleOps) && roleStr != string(domain.RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "ops role required"})
			return
		}
		c.Next()
	}
}
