package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/makors/vender/internal/config"
	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Webhook *WebhookHandler
	Auth    *AuthHandler
	Scan    *ScanHandler
	Lookup  *LookupHandler
	Events  *EventsHandler
	Health  *HealthHandler
}

func SetupRouter(h *Handlers, auth middleware.TokenValidator, cfg config.ServerConfig, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.CORS())

	router.GET("/health", h.Health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Stripe retries on its own schedule; keep it out of the rate limiter.
	router.POST("/stripe/webhook", h.Webhook.HandleStripeWebhook)

	limited := router.Group("/", middleware.RateLimit(cfg, log))
	{
		limited.POST("/auth/login", h.Auth.Login)

		staff := limited.Group("/", middleware.RequireAuth(auth, log))
		{
			staff.POST("/auth/logout", h.Auth.Logout)
			staff.POST("/scan", h.Scan.Scan)
			staff.GET("/lookup", h.Lookup.Lookup)
			staff.GET("/events", h.Events.ListEvents)
		}
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
