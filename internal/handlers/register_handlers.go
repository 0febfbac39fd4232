package handlers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	portssvc "github.com/skalice/ledger-engine/internal/core/ports/services"
	"github.com/skalice/ledger-engine/internal/middleware"
	"github.com/ulule/limiter/v3"
)

// RegisterRoutes sets up all application routes, injecting dependencies
// using interfaces. relayService may be nil (direct mode).
func RegisterRoutes(
	r *gin.Engine,
	ledgerService portssvc.LedgerSvc,
	relayService portssvc.RelaySvc,
	rateLimiter *limiter.Limiter,
) {
	RegisterCustomValidators()

	r.Use(cors.Default())

	// Add health check route
	r.GET("/health", func(c *gin.Context) {
		c.String(200, "OK")
	})

	v1 := r.Group("/api/v1")
	if rateLimiter != nil {
		v1.Use(middleware.RateLimit(rateLimiter))
	}

	registerLedgerRoutes(v1, ledgerService, relayService)
}
