package middleware

import (
	"fmt"
	"strings"

	"mailroom_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ServiceAuth validates service-to-service JWTs (HS256). The caller is
// the main procurement platform; the tenant is carried in the
// "tenant_id" claim, falling back to "sub".
func ServiceAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == "OPTIONS" {
			return c.Next()
		}

		var tokenString string
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization"})
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil {
			logger.WithError(err).Warn("JWT validation failed")
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}
		if !token.Valid {
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return c.Status(401).JSON(fiber.Map{"error": "invalid claims"})
		}

		tenantStr, _ := claims["tenant_id"].(string)
		if tenantStr == "" {
			tenantStr, _ = claims["sub"].(string)
		}
		if tenantStr == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing tenant id in token"})
		}

		tenantID, err := uuid.Parse(tenantStr)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "invalid tenant id format"})
		}

		if svc, ok := claims["service"].(string); ok {
			c.Locals("caller_service", svc)
		}
		c.Locals("tenant_id", tenantID)
		c.Locals("claims", claims)

		return c.Next()
	}
}
