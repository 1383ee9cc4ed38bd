package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/metrics"
)

// Counter is the part of the redis client the rate limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// rateLimit is a fixed-window limiter keyed by caller (or client IP when
// unauthenticated) using INCR/EXPIRE. Without a counter, or on redis
// errors, requests are allowed.
func rateLimit(counter Counter, name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		ident := string(callerOf(c))
		if ident == "" {
			ident = c.ClientIP()
		}
		key := "rl:" + name + ":" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + ident
		ctx := c.Request.Context()

		val, err := counter.Incr(ctx, key).Result()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Rate limiter unavailable")
			c.Header("X-RateLimit-Error", "redis-error")
			c.Next()
			return
		}
		if val == 1 {
			counter.Expire(ctx, key, window)
		}

		if val > int64(maxRequests) {
			metrics.RateLimited.WithLabelValues(name).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "RateLimited", "message": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
