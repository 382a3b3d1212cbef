package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// NewRouter wires the routes, request logging, recovery and CORS.
func NewRouter(logger *zap.Logger, h *Handler) *gin.Engine {
	r := gin.New()
	r.MaxMultipartMemory = h.maxUploadBytes

	r.Use(requestIDMiddleware(), zapLoggerMiddleware(logger), gin.Recovery(), corsMiddleware())

	r.GET("/health", h.Health)

	predict := r.Group("/predict")
	predict.POST("", h.Predict)
	predict.POST("/image", h.PredictFromImage)
	predict.POST("/features", h.PredictFromFeatures)
	predict.POST("/combined", h.PredictCombined)

	stats := r.Group("/stats")
	stats.GET("", h.Stats)
	stats.GET("/cities", h.Cities)
	stats.GET("/visualization", h.Visualization)
	stats.POST("/refresh", h.RefreshStats)

	return r
}

// requestIDMiddleware keeps the caller's X-Request-ID or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		h.Set("Access-Control-Expose-Headers", requestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
