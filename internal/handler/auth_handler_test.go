package handler_test

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/erms-api/internal/dto"
)

func TestAuthRegisterLoginAndMe(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Name:     "Maria Santos",
		Email:    "Maria@School.test",
		Password: "long-enough",
		Role:     "student",
		Profile:  dto.ProfileInput{StudentNumber: "2025-0001", YearLevel: 2},
	})
	requireStatus(t, resp, fiber.StatusCreated)
	registered := decodeResponse[dto.AuthResponse](t, resp)
	require.True(t, registered.Success)
	require.Equal(t, "maria@school.test", registered.Data.User.Email)
	require.NotNil(t, registered.Data.User.StudentProfile)
	require.Equal(t, "2025-0001", registered.Data.User.StudentProfile.StudentNumber)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: "maria@school.test", Password: "long-enough"})
	requireStatus(t, resp, fiber.StatusOK)
	login := decodeResponse[dto.AuthResponse](t, resp)
	require.Equal(t, "Bearer", login.Data.TokenType)
	require.NotEmpty(t, login.Data.RefreshToken)

	resp = api.do(t, http.MethodGet, "/api/v1/auth/me", login.Data.AccessToken, nil)
	requireStatus(t, resp, fiber.StatusOK)
	me := decodeResponse[dto.UserResponse](t, resp)
	require.Equal(t, "Maria Santos", me.Data.Name)
	require.NotNil(t, me.Data.LastLoginAt)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", dto.RefreshRequest{RefreshToken: login.Data.RefreshToken})
	requireStatus(t, resp, fiber.StatusOK)

	// An access token is not accepted where a refresh token is expected.
	resp = api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", dto.RefreshRequest{RefreshToken: login.Data.AccessToken})
	requireStatus(t, resp, fiber.StatusUnauthorized)
}

func TestAuthRejections(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Name:     "X",
		Email:    "not-an-email",
		Password: "short",
		Role:     "admin",
	})
	requireStatus(t, resp, fiber.StatusBadRequest)
	invalid := decodeResponse[any](t, resp)
	require.False(t, invalid.Success)
	require.Equal(t, "validation failed", invalid.Message)
	require.Equal(t, "email", invalid.Details["Email"])
	require.Equal(t, "oneof", invalid.Details["Role"])

	teacher := api.createUser(t, "Mr. Cruz", "teacher")
	resp = api.do(t, http.MethodPost, "/api/v1/auth/register", "", dto.RegisterRequest{
		Name:     "Copy Cat",
		Email:    teacher.Email,
		Password: "long-enough",
		Role:     "teacher",
	})
	requireStatus(t, resp, fiber.StatusConflict)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: teacher.Email, Password: "wrong-password"})
	requireStatus(t, resp, fiber.StatusUnauthorized)

	resp = api.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	requireStatus(t, resp, fiber.StatusUnauthorized)

	resp = api.do(t, http.MethodGet, "/api/v1/auth/me", "not-a-token", nil)
	requireStatus(t, resp, fiber.StatusUnauthorized)
}

func TestAuthChangePassword(t *testing.T) {
	api := newTestAPI(t)
	teacher := api.createUser(t, "Ms. Reyes", "teacher")
	token := api.token(t, teacher)

	resp := api.do(t, http.MethodPost, "/api/v1/auth/password", token, dto.ChangePasswordRequest{
		CurrentPassword: "not-my-password",
		NewPassword:     "brand-new-secret",
	})
	requireStatus(t, resp, fiber.StatusUnauthorized)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/password", token, dto.ChangePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "brand-new-secret",
	})
	requireStatus(t, resp, fiber.StatusOK)

	resp = api.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{Email: teacher.Email, Password: "brand-new-secret"})
	requireStatus(t, resp, fiber.StatusOK)
}
