package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "typ" claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrInvalidToken is returned for any token that fails signature, expiry or type checks.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued by ERMS.
type Claims struct {
	Role string `json:"role"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the token.
func (c Claims) UserID() (uint, error) {
	parsed, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || parsed == 0 {
		return 0, ErrInvalidToken
	}
	return uint(parsed), nil
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Issuer signs and verifies access and refresh tokens.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewIssuer builds an HS256 token issuer.
func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// Issue creates a new access/refresh token pair for the user.
func (i *Issuer) Issue(userID uint, role string) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.accessTTL)

	access, err := i.sign(userID, role, TokenTypeAccess, now, accessExp, i.accessSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := i.sign(userID, role, TokenTypeRefresh, now, now.Add(i.refreshTTL), i.refreshSecret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(i.accessTTL.Seconds()),
		ExpiresAt:    accessExp.UTC(),
	}, nil
}

// ParseAccess validates an access token.
func (i *Issuer) ParseAccess(token string) (Claims, error) {
	return parse(token, i.accessSecret, TokenTypeAccess)
}

// ParseRefresh validates a refresh token.
func (i *Issuer) ParseRefresh(token string) (Claims, error) {
	return parse(token, i.refreshSecret, TokenTypeRefresh)
}

func (i *Issuer) sign(userID uint, role, typ string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	claims := Claims{
		Role: role,
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parse(token string, secret []byte, expectedType string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	if claims.Type != expectedType {
		return Claims{}, ErrInvalidToken
	}

	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
