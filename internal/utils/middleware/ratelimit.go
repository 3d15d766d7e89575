package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	// Limit is the maximum number of requests per window.
	Limit int
	// Window is the time window.
	Window time.Duration
	// KeyFunc generates the rate limit key from request.
	// Default uses client IP.
	KeyFunc func(*gin.Context) string
}

// DefaultRateLimitConfig returns the default rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Limit:  100,
		Window: time.Minute,
	}
}

// RateLimit returns a middleware that limits requests using a fixed window
// counter in Redis. A nil client disables limiting.
func RateLimit(client redis.UniversalClient, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		if client == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		window := time.Now().Unix() / int64(cfg.Window.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", cfg.KeyFunc(c), window)

		count, err := client.Incr(ctx, key).Result()
		if err != nil {
			// Redis down must not take checkout down with it.
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(ctx, key, cfg.Window)
		}

		remaining := cfg.Limit - int(count)
		if remaining < 0 {
			remaining = 0
		}
		c.Header(RateLimitLimit, strconv.Itoa(cfg.Limit))
		c.Header(RateLimitRemaining, strconv.Itoa(remaining))

		if int(count) > cfg.Limit {
			c.Header(RetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}

		c.Next()
	}
}
