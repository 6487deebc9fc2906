package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/erms-api/internal/auth"
	"github.com/noah-isme/erms-api/internal/utils"
)

// AccessTokenParser validates bearer access tokens.
type AccessTokenParser interface {
	ParseAccess(token string) (auth.Claims, error)
}

// JWTProtected returns a middleware that validates JWT bearer tokens and stores
// the caller's id and role in the request locals.
func JWTProtected(parser AccessTokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		claims, err := parser.ParseAccess(tokenString)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		userID, err := claims.UserID()
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token claims")
		}

		c.Locals("user_id", userID)
		c.Locals("user_role", strings.ToLower(strings.TrimSpace(claims.Role)))

		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, error) {
	authorization := c.Get(fiber.HeaderAuthorization)
	if authorization == "" {
		// Browsers cannot set headers on websocket handshakes.
		if strings.EqualFold(c.Get(fiber.HeaderUpgrade), "websocket") {
			if token := strings.TrimSpace(c.Query("access_token")); token != "" {
				return token, nil
			}
		}
		return "", fiber.NewError(fiber.StatusUnauthorized, "authorization header missing")
	}

	const bearer = "bearer "
	if len(authorization) < len(bearer) || !strings.EqualFold(authorization[:len(bearer)], bearer) {
		return "", fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	token := strings.TrimSpace(authorization[len(bearer):])
	if token == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	return token, nil
}
