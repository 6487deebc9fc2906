package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/erms-api/internal/handler"
	"github.com/noah-isme/erms-api/internal/router"
)

func TestHealthReportsDependencies(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	cases := []struct {
		name   string
		probes map[string]handler.HealthProbe
		status int
		state  string
	}{
		{name: "no probes", status: fiber.StatusOK, state: "ok"},
		{name: "all healthy", probes: map[string]handler.HealthProbe{"database": healthy, "redis": healthy}, status: fiber.StatusOK, state: "ok"},
		{name: "redis down", probes: map[string]handler.HealthProbe{"database": healthy, "redis": broken}, status: fiber.StatusServiceUnavailable, state: "degraded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			router.Register(app, testConfig, router.Dependencies{HealthProbes: tc.probes})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/health", nil), -1)
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, testConfig.AppName, resp.Header.Get("X-Application"))

			body := decodeResponse[handler.HealthResponse](t, resp)
			require.Equal(t, tc.state, body.Data.Status)
			require.Equal(t, "test", body.Data.Environment)
			if tc.state == "degraded" {
				require.Equal(t, "unavailable", body.Data.Dependencies["redis"])
				require.Equal(t, "ok", body.Data.Dependencies["database"])
			}
		})
	}
}

func TestMetricsEndpointIsExposed(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodGet, "/api/v1/health", "", nil)
	requireStatus(t, resp, fiber.StatusOK)

	resp = api.do(t, http.MethodGet, "/metrics", "", nil)
	requireStatus(t, resp, fiber.StatusOK)
}
