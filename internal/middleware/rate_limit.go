package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Abrham-amplitude/solana-ticket/utils"
)

// RateLimiter is a fixed-window counter in redis: INCR, and EXPIRE on the
// first hit of a window.
type RateLimiter struct {
	redis  redis.Cmdable
	prefix string
	limit  int64
	window time.Duration
	log    *utils.Logger
}

func NewRateLimiter(rdb redis.Cmdable, prefix string, limit int64, window time.Duration, log *utils.Logger) *RateLimiter {
	if log == nil {
		log = utils.DefaultLogger
	}
	return &RateLimiter{redis: rdb, prefix: prefix, limit: limit, window: window, log: log.With("ratelimit")}
}

func (r *RateLimiter) key(id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", r.prefix, id)
}

// Allow counts one hit for id and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := r.key(id)
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return false, err
		}
	}
	return count <= r.limit, nil
}

// Middleware limits by client IP. Redis failures let the request through.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := r.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			r.log.Warn("redis unavailable, not limiting %s: %v", c.ClientIP(), err)
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(r.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("rate limit exceeded: %d requests per %s", r.limit, r.window),
				"kind":  "rate_limited",
			})
			return
		}
		c.Next()
	}
}
