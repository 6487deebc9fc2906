package dto

import "github.com/noah-isme/erms-api/internal/auth"

// RegisterRequest is the self-registration payload for students and teachers.
type RegisterRequest struct {
	Name     string       `json:"name" validate:"required,min=2,max=255"`
	Email    string       `json:"email" validate:"required,email"`
	Password string       `json:"password" validate:"required,min=8,max=72"`
	Role     string       `json:"role" validate:"required,oneof=student teacher"`
	Profile  ProfileInput `json:"profile"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// ChangePasswordRequest updates the caller's own password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72,nefield=CurrentPassword"`
}

// AuthResponse is returned by login, registration and refresh.
type AuthResponse struct {
	auth.TokenPair
	User UserResponse `json:"user"`
}
