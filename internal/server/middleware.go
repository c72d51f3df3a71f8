package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/internal/common"
)

const (
	headerRequestID = "X-Request-ID"
	headerAPIKey    = "X-API-Key"

	ctxRequestID = "request_id"
	ctxClientID  = "client_id"
)

// RequestID middleware generates a unique request ID for each request
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(headerRequestID, requestID)
		c.Set(ctxRequestID, requestID)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), requestID))

		c.Next()
	}
}

// GetRequestID gets the request ID from gin context
func GetRequestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// GetClientID returns the authenticated client of the request.
func GetClientID(c *gin.Context) string {
	return c.GetString(ctxClientID)
}

// RequestLogger logs every request once it completes, at a level chosen by
// the response status.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", GetRequestID(c),
		}
		if client := GetClientID(c); client != "" {
			attrs = append(attrs, "client_id", client)
		}
		if query != "" {
			attrs = append(attrs, "query", redactQuery(c))
		}

		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	}
}

// redactQuery drops the api_key parameter from the logged query.
func redactQuery(c *gin.Context) string {
	q := c.Request.URL.Query()
	if q.Has("api_key") {
		q.Set("api_key", "REDACTED")
	}
	return q.Encode()
}

// Recovery middleware recovers from panics and logs the error
func Recovery(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(c)
				log.Error("panic recovered",
					"error", err,
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "Internal server error",
					"request_id": requestID,
				})
			}
		}()

		c.Next()
	}
}

// APIKeyAuth resolves the calling client from the X-API-Key header or the
// api_key query parameter. With an empty key ring every request runs as the
// anonymous client.
func APIKeyAuth(keys *KeyRing) gin.HandlerFunc {
	return func(c *gin.Context) {
		if keys.Empty() {
			c.Set(ctxClientID, AnonymousClient)
			c.Request = c.Request.WithContext(common.WithClientID(c.Request.Context(), AnonymousClient))
			c.Next()
			return
		}

		raw := c.GetHeader(headerAPIKey)
		if raw == "" {
			raw = c.Query("api_key")
		}
		if raw == "" {
			abortError(c, fmt.Errorf("%w: API key required", common.ErrUnauthorized))
			return
		}
		clientID, err := keys.Verify(raw)
		if err != nil {
			abortError(c, err)
			return
		}

		c.Set(ctxClientID, clientID)
		c.Request = c.Request.WithContext(common.WithClientID(c.Request.Context(), clientID))
		c.Next()
	}
}

// Limiter counts requests per key in a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int64, error)
}

// RateLimit rejects a client's requests beyond limit per window. When the
// limiter itself fails the request is let through.
func RateLimit(l Limiter, limit int, window time.Duration, log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	if window <= 0 {
		window = time.Minute
	}
	return func(c *gin.Context) {
		if l == nil || limit <= 0 {
			c.Next()
			return
		}
		client := GetClientID(c)
		if client == "" {
			client = c.ClientIP()
		}
		slot := time.Now().Unix() / int64(max(window/time.Second, 1))
		key := "ratelimit:" + client + ":" + strconv.FormatInt(slot, 10)

		ok, n, err := l.Allow(c.Request.Context(), key, limit, window)
		if err != nil {
			log.Warn("rate limiter unavailable", "client_id", client, "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(max(int64(limit)-n, 0), 10))
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}
		c.Next()
	}
}
