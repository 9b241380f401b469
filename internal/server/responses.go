package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/abuse"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/cards"
	"github.com/MarcoPoloResearchLab/atlacatl/backend/internal/identity"
)

const messageRateLimited = "Too many requests from this network, please try again later."

// limit runs the abuse guard for an endpoint class before any store access.
func (h *httpHandler) limit(class abuse.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved, _ := identity.FromGin(c)
		err := h.guard.Allow(c.Request.Context(), class, resolved.IPAddress)
		if err == nil {
			c.Next()
			return
		}

		var limited *abuse.RateLimitedError
		if errors.As(err, &limited) {
			retryAfter := limited.RetryAfterSeconds()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, rateLimitedResponse{
				Error:      "rate_limited",
				Message:    messageRateLimited,
				RetryAfter: retryAfter,
			})
			return
		}

		h.logger.Error("abuse guard unavailable", zap.String("class", string(class)), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "rate_limit_unavailable"})
	}
}

// writeServiceError maps a cards service error onto a status and a stable body. Store
// failures expose only the error code.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal_error"
	code := ""

	var serviceErr *cards.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	switch {
	case errors.Is(err, cards.ErrValidation):
		status = http.StatusBadRequest
		label = reasonOf(code, "invalid_request")
	case errors.Is(err, cards.ErrNotFound):
		status = http.StatusNotFound
		label = reasonOf(code, "card_not_found")
	}

	kind := cards.KindLabel(err)
	if h.metrics != nil {
		h.metrics.ServiceError(kind)
	}
	switch {
	case errors.Is(err, context.Canceled):
		h.logger.Info("request canceled by client", zap.String("code", code))
	case status >= http.StatusInternalServerError:
		h.logger.Error("request failed",
			zap.String("code", code),
			zap.String("kind", kind),
			zap.Bool("fatal", errors.Is(err, cards.ErrFatal)),
			zap.Error(err))
	}

	body := gin.H{"error": label}
	if code != "" {
		body["code"] = code
	}
	c.JSON(status, body)
}

func reasonOf(code, fallback string) string {
	if index := strings.LastIndex(code, "."); index >= 0 && index < len(code)-1 {
		return code[index+1:]
	}
	return fallback
}
