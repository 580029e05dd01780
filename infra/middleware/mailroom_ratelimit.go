package middleware

import (
	"fmt"
	"time"

	"mailroom_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimit throttles authenticated calls per tenant using the Redis
// sliding window limiter. Unauthenticated requests fall back to the
// client IP as the key.
func RateLimit(redisClient *redis.Client, ratePerWindow, burst int, window time.Duration) fiber.Handler {
	limiter := ratelimit.NewSlidingWindowLimiter(redisClient, ratePerWindow, burst, window)

	return func(c *fiber.Ctx) error {
		key := c.IP()
		if tid, ok := c.Locals("tenant_id").(uuid.UUID); ok {
			key = tid.String()
		}

		allowed, wait := limiter.Allow(c.Context(), key)
		if !allowed {
			c.Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}
