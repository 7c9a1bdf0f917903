package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/linchuyao6/talk-essence/pkg/response"
)

// RateLimiter is a fixed-window limiter keyed by client IP. There is no user
// account model here; the caller brings their own API key, so the IP is the
// only stable identity.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())
		ctx := context.Background()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// if Redis fails, allow the request
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// EpisodeLimit returns a rate limiter for job submissions (per hour)
func (rl *RateLimiter) EpisodeLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("episode", maxPerHour, time.Hour)
}

// AudioLimit returns a rate limiter for the audio relay endpoints (per minute)
func (rl *RateLimiter) AudioLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("audio", maxPerMin, time.Minute)
}
