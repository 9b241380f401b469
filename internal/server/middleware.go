package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
)

const (
	requestIDHeader     = "X-Request-ID"
	requestIDContextKey = "atlacatl.request_id"
)

// requestIDMiddleware echoes a well-formed incoming X-Request-ID or mints a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// requestLogger logs one structured entry per request, at a level chosen by status class.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", statusCode),
			zap.Int("response_size", c.Writer.Size()),
			zap.Duration("latency", time.Since(startTime)),
			zap.String("request_id", c.GetString(requestIDContextKey)),
		}
		if resolved, ok := identity.FromGin(c); ok {
			fields = append(fields, zap.String("client_ip", resolved.IPAddress))
		}

		switch {
		case statusCode >= 500:
			logger.Error("http request", fields...)
		case statusCode >= 400:
			logger.Warn("http request", fields...)
		default:
			logger.Info("http request", fields...)
		}
	}
}
