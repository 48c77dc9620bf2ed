package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/riskengine/internal/assets/model"
	"github.com/jmerrifield20/riskengine/internal/assets/repository"
)

// headerUserID carries the owning user of every asset request.
const headerUserID = "X-User-ID"

// RequestLogger returns a Gin middleware that logs each request with zap.
// Streaming responses are logged when the stream ends.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// userID returns the caller's owner identity from the X-User-ID header,
// falling back to the user_id query parameter.
func userID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerUserID)); id != "" {
		return id
	}
	return strings.TrimSpace(c.Query("user_id"))
}

// writeError maps service and repository errors to HTTP responses.
// Unexpected errors are logged and answered with a generic message.
func writeError(c *gin.Context, logger *zap.Logger, err error, what string) {
	var verr *model.ErrValidation
	var uerr *model.ErrUnauthorized
	switch {
	case errors.As(err, &uerr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": uerr.Msg})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	default:
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("resource", what),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
