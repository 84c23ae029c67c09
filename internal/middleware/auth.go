// Package middleware provides the request pipeline: identity, logging
// context, rate limiting, metrics and tracing.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"murmur/internal/models"
)

const (
	localUsername = "username"
	localAvatar   = "avatar"
)

// Auth resolves the caller's identity from an HS256 bearer token issued by
// the sign-in layer. The token subject is the username; an optional
// "avatar" claim carries the profile image.
type Auth struct {
	secret []byte
}

// NewAuth returns an Auth verifying tokens with secret.
func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Identity attaches the caller's identity when a bearer token is present.
// Requests without an Authorization header continue anonymously; a header
// that does not carry a valid token is rejected.
func (a *Auth) Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Next()
		}

		// Extract token from "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}

		username, avatar, err := a.parse(parts[1])
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		c.Locals(localUsername, username)
		if avatar != "" {
			c.Locals(localAvatar, avatar)
		}
		return c.Next()
	}
}

// RequireIdentity rejects requests that Identity left anonymous.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if Username(c) == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}
		return c.Next()
	}
}

func (a *Auth) parse(tokenString string) (username, avatar string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", "", models.NewUnauthorizedError("Invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", models.NewUnauthorizedError("Invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || strings.TrimSpace(sub) == "" {
		return "", "", models.NewUnauthorizedError("Invalid token structure - missing subject")
	}
	avatar, _ = claims["avatar"].(string)
	return sub, avatar, nil
}

// Username returns the authenticated username, or "" for anonymous callers.
func Username(c *fiber.Ctx) string {
	u, _ := c.Locals(localUsername).(string)
	return u
}

// Avatar returns the authenticated caller's avatar claim, if any.
func Avatar(c *fiber.Ctx) string {
	a, _ := c.Locals(localAvatar).(string)
	return a
}
