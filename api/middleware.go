package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"procure-agent/logging"
	"procure-agent/metrics"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"

	limiterIdleTTL   = 10 * time.Minute
	limiterSweepSize = 1024
)

// RequestID tags every request with an ID, reusing the caller's if given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// AccessLog writes one line per request and counts it.
func AccessLog(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()

		logger.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", endpoint).
			Int("status", status).
			Dur("elapsed", logging.Since(start)).
			Msg("[HTTP] 请求完成")
	}
}

type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per user.
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*userLimiter
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*userLimiter),
		now:      time.Now,
	}
}

func (r *RateLimiter) Allow(key string) bool {
	return r.get(key).Allow()
}

func (r *RateLimiter) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if l, ok := r.limiters[key]; ok {
		l.lastAccess = now
		return l.limiter
	}
	if len(r.limiters) >= limiterSweepSize {
		for k, l := range r.limiters {
			if now.Sub(l.lastAccess) > limiterIdleTTL {
				delete(r.limiters, k)
			}
		}
	}
	l := &userLimiter{limiter: rate.NewLimiter(r.limit, r.burst), lastAccess: now}
	r.limiters[key] = l
	return l.limiter
}

// RateLimit rejects requests over the per-user budget. Users are keyed by
// X-User-ID, then the user_id query parameter, then the JSON body user_id,
// then client IP. The body is cached so handlers can bind it again with
// ShouldBindBodyWith.
func RateLimit(r *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.limit <= 0 {
			c.Next()
			return
		}
		key := c.GetHeader(headerUserID)
		if key == "" {
			key = c.Query("user_id")
		}
		if key == "" && c.ContentType() == binding.MIMEJSON {
			var body struct {
				UserID string `json:"user_id"`
			}
			if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
				key = strings.TrimSpace(body.UserID)
			}
		}
		if key == "" {
			key = c.ClientIP()
		}
		if !r.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
