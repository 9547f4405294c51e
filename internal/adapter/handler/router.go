package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the HTTP API. An empty allowedOrigins allows any origin.
func NewRouter(h *HTTPHandler, log logrus.FieldLogger, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log))
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", userIDHeader, extractCodeHeader)
	corsConfig.AddExposeHeaders("Retry-After")
	r.Use(cors.New(corsConfig))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		orders := api.Group("/orders/:orderId")
		orders.POST("/share-links", h.CreateShareLink)
		orders.GET("/share-links", h.ListShareLinks)
		orders.GET("/availability", h.OrderAvailability)
		orders.GET("/supply-records", h.ListSupplyRecords)

		api.DELETE("/share-links/:code", h.RevokeShareLink)
		api.GET("/share-links/:code/visitors", h.ListVisitors)

		share := api.Group("/share/:code")
		share.POST("/verify", h.VerifyShareAccess)
		share.GET("/availability", h.ShareAvailability)
		share.POST("/supply-records", h.SubmitSupplyRecord)

		api.POST("/supply-records/:id/disable", h.DisableSupplyRecord)
	}
	return r
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	}
}
