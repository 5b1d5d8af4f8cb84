package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/register/service"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const (
	requestIDKey    = "request_id"
	operatorKey     = "operator"
	requestIDMaxLen = 64

	// OperatorHeader carries the id of the authenticated operator. The
	// authenticating proxy in front of this service sets it.
	OperatorHeader = "X-Operator-ID"
)

// requestID reuses a sane X-Request-ID or mints one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.New().String()
		}
		c.Set(requestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			logger.Error("request failed", fields...)
		case status >= 400:
			logger.Warn("request rejected", fields...)
		default:
			logger.Info("request done", fields...)
		}
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.Error("panic in handler", zap.Any("panic", rec), zap.String("request_id", c.GetString(requestIDKey)))
		abortError(c, http.StatusInternalServerError, "internal_error", "unexpected server error")
	})
}

// requireOperator resolves the acting operator from OperatorHeader.
// Scope is always derived from this operator and passed explicitly.
func requireOperator(reg *service.LocationRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(strings.TrimSpace(c.GetHeader(OperatorHeader)), 10, 64)
		if err != nil || id <= 0 {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "missing or invalid "+OperatorHeader)
			return
		}
		op, err := reg.Operator(c.Request.Context(), id)
		if err != nil {
			abortError(c, http.StatusUnauthorized, "unauthenticated", "unknown operator")
			return
		}
		c.Set(operatorKey, op)
		c.Next()
	}
}

func operatorFrom(c *gin.Context) types.Operator {
	op, _ := c.MustGet(operatorKey).(types.Operator)
	return op
}
