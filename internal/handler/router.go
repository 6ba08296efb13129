package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/video-relay/youtube-reddit-relay/pkg/logger"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(websub *WebSubHandler, health *HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	callback := router.Group("/websub/callback/:subscription_id")
	{
		callback.GET("", websub.HandleVerification)
		callback.POST("", websub.HandleNotification)
	}

	router.GET("/healthz", health.LivenessProbe)
	router.GET("/readyz", health.ReadinessProbe)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// requestLogger logs each request with latency and status.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
