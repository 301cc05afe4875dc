package http

import (
	"net/http"

	"provision-saga/internal/common/health"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the payment API, the health check and, when given, the metrics endpoint.
func NewRouter(h *PaymentHandler, checker health.HealthChecker, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", HealthHandler(checker))
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	api := router.Group("/api/payment")
	{
		api.POST("/quote", h.Quote)
		api.POST("/initiate", h.Initiate)
		api.POST("/check-status", h.CheckStatus)
	}

	router.GET("/api/transactions/:id", h.GetTransaction)

	return router
}

// HealthHandler reports 200 when every dependency answers and 503 otherwise.
func HealthHandler(checker health.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if checker == nil {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
			return
		}
		status := checker.Check(c.Request.Context())
		code := http.StatusOK
		if !status.IsHealthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}
