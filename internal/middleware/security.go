// Package middleware holds the gin middleware shared by the HTTP API.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/clinical-trial-matcher/internal/domain"
)

// Context keys and headers used by the API.
const (
	CorrelationIDKey    = "correlation_id"
	CorrelationIDHeader = "X-Correlation-ID"
)

// maxTrackedClients bounds the number of per-client limiters kept in memory.
const maxTrackedClients = 4096

// SecurityHeaders adds response headers suited to a JSON API handling patient data.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// CorrelationID propagates the caller's correlation id or assigns a new one.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Set(CorrelationIDKey, correlationID)
		c.Header(CorrelationIDHeader, correlationID)

		c.Next()
	}
}

// RequestLogger writes one structured entry per request. Request bodies are
// never logged since they carry patient records.
func RequestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"correlation_id": c.GetString(CorrelationIDKey),
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"latency_ms":     time.Since(start).Milliseconds(),
			"client_ip":      c.ClientIP(),
			"response_size":  c.Writer.Size(),
		})

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("Request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request completed")
		}
	}
}

// RateLimit applies a token bucket per client IP. A non-positive limit
// disables limiting.
func RateLimit(limit float64, burst int) gin.HandlerFunc {
	if limit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = 1
	}
	clients, err := lru.New[string, *rate.Limiter](maxTrackedClients)
	if err != nil {
		// Only a non-positive size fails, and maxTrackedClients is a constant.
		panic(fmt.Sprintf("rate limit client table: %v", err))
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		limiter, ok := clients.Get(key)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(limit), burst)
			clients.Add(key, limiter)
		}

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrCodeRateLimit,
				"Too many requests",
				"",
				c.GetString(CorrelationIDKey),
			))
			return
		}
		c.Next()
	}
}
