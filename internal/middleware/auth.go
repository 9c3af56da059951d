// Package middleware provides authentication and authorization middleware for the application.
package middleware

import (
	"context"
	"strings"

	"opsdesk/internal/config"
	"opsdesk/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// AuthRequired is a middleware that enforces authentication for protected
// routes. The engine treats the token as an opaque credential issued by the
// identity collaborator: it extracts the principal ID from the "sub" claim and
// the role set from the "roles" claim, performing no user lookups of its own.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Authorization header required"))
	}

	// Extract token from "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid authorization header format"))
	}

	tokenString := parts[1]

	// Parse and validate token
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})

	if err != nil || !token.Valid {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid or expired token"))
	}

	// Extract claims
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid token claims"))
	}

	// Principal ID from "sub" claim (subject claim per RFC 7519)
	subClaim, ok := claims["sub"]
	if !ok {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid token structure - missing subject"))
	}
	sub, ok := subClaim.(string)
	if !ok || sub == "" {
		return models.RespondWithError(c, fiber.StatusUnauthorized,
			models.NewUnauthorizedError("Invalid token subject"))
	}

	// Role set from "roles" claim; optional, defaults to no roles.
	roles := rolesFromClaims(claims)

	// Store actor identity in context
	c.Locals("actorID", sub)
	c.Locals("actorRoles", roles)
	// Sync to UserContext for logging and downstream services
	ctx := context.WithValue(c.UserContext(), ActorIDKey, sub)
	c.SetUserContext(ctx)

	return c.Next()
}

// RoleRequired returns middleware that rejects actors lacking the role with 403.
// Must be placed after AuthRequired so that the role set is available in locals.
func RoleRequired(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := ActorFromLocals(c)
		for _, r := range actor.Roles {
			if r == role {
				return c.Next()
			}
		}
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError(role+" role required"))
	}
}

// ActorFromLocals builds the acting principal from Fiber locals set by AuthRequired.
func ActorFromLocals(c *fiber.Ctx) models.Actor {
	actor := models.Actor{}
	if id, ok := c.Locals("actorID").(string); ok {
		actor.ID = id
	}
	if roles, ok := c.Locals("actorRoles").([]string); ok {
		actor.Roles = roles
	}
	return actor
}

func rolesFromClaims(claims jwt.MapClaims) []string {
	raw, ok := claims["roles"]
	if !ok {
		return nil
	}
	switch t := raw.(type) {
	case []string:
		return t
	case []interface{}:
		roles := make([]string, 0, len(t))
		for _, r := range t {
			if s, ok := r.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, ",")
	default:
		return nil
	}
}
