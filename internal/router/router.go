package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"tasset-backend/internal/config"
	"tasset-backend/internal/handlers"
	"tasset-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware.
// Priority: environment variable > YAML config > default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			allowedOrigins = allowedOrigins[:0]
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Handlers bundles everything SetupRouter wires into routes
type Handlers struct {
	Auth      *handlers.AuthHandler
	AdminAuth *handlers.AdminAuthHandler
	Mint      *handlers.MintHandler
	Redeem    *handlers.RedeemHandler
	Admin     *handlers.AdminHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupRouter builds the gin engine with all routes and middleware
func SetupRouter(h *Handlers, logger *logrus.Logger) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	if logger == nil {
		logger = logrus.New()
	}

	var allowedIPs []string
	if config.AppConfig != nil && len(config.AppConfig.Admin.AllowedIPs) > 0 {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
		logger.WithField("count", len(allowedIPs)).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}

	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	auth := middleware.NewAuthMiddleware(logger)
	adminAuth := middleware.NewAdminAuthMiddleware(logger)

	// ============ Health Check ============
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "tasset-backend",
		})
	})

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ API Routes ============
	v1 := r.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.GET("/nonce", h.Auth.GenerateNonceHandler)
			authGroup.POST("/token", h.Auth.AuthenticateHandler)
		}

		mint := v1.Group("/mint", auth.RequireAuth())
		{
			mint.POST("/requests", h.Mint.SubmitHandler)
			mint.GET("/requests", h.Mint.ListHandler)
			mint.GET("/requests/:txHash", h.Mint.GetByTxHashHandler)
		}

		redeem := v1.Group("/redeem", auth.RequireAuth())
		{
			redeem.POST("/requests", h.Redeem.SubmitHandler)
			redeem.GET("/requests", h.Redeem.ListHandler)
			redeem.GET("/native-address", h.Redeem.NativeAddressHandler)
		}

		v1.GET("/ws", h.WebSocket.HandleWebSocket)
	}

	// ============ Admin Routes (IP allowlist + operator JWT) ============
	admin := r.Group("/admin", localhostOnly.Restrict())
	{
		admin.POST("/auth/login", h.AdminAuth.AdminLoginHandler)
		admin.POST("/auth/totp/generate", h.AdminAuth.GenerateTOTPSecretHandler)

		protected := admin.Group("", adminAuth.RequireAdmin())
		{
			protected.GET("/mint/requests", h.Admin.ListMintRequestsHandler)
			protected.POST("/mint/requests/:id/whitelist", h.Admin.WhitelistHandler)
			protected.POST("/mint/requests/:id/reject", h.Admin.RejectHandler)
			protected.POST("/mint/requests/:id/execute", h.Admin.ExecuteMintHandler)
			protected.POST("/mint/requests/:id/reconcile", h.Admin.ReconcileMintHandler)

			protected.GET("/redeem/requests", h.Admin.ListRedeemRequestsHandler)
			protected.POST("/redeem/requests/:id/settlement", h.Admin.UpdateSettlementHandler)
		}
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api/v1 endpoints for available APIs",
		})
	})

	return r
}
