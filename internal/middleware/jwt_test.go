package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/erms-api/internal/auth"
)

func protectedApp(t *testing.T) (*fiber.App, auth.TokenPair) {
	t.Helper()

	issuer := auth.NewIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	pair, err := issuer.Issue(42, "Teacher")
	require.NoError(t, err)

	app := fiber.New()
	app.Use(JWTProtected(issuer))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(fmt.Sprintf("%v:%v", c.Locals("user_id"), c.Locals("user_role")))
	})
	return app, pair
}

func TestJWTProtectedStoresIdentity(t *testing.T) {
	app, pair := protectedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := make([]byte, 64)
	n, _ := resp.Body.Read(body)
	require.Equal(t, "42:teacher", string(body[:n]))
}

func TestJWTProtectedRejectsMissingAndRefreshTokens(t *testing.T) {
	app, pair := protectedApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/whoami", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token "+pair.AccessToken)
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestJWTProtectedAcceptsQueryTokenOnlyForUpgrades(t *testing.T) {
	app, pair := protectedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/whoami?access_token="+pair.AccessToken, nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/whoami?access_token="+pair.AccessToken, nil)
	req.Header.Set("Upgrade", "websocket")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
