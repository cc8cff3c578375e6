package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kidega/apartments/pkg/model"
)

var (
	// ErrInvalidToken indicates a malformed, mis-signed or wrong-type token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = errors.New("token has expired")
)

// TokenType distinguishes short-lived access tokens from the refresh
// token carried in the HTTP-only cookie.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the JWT payload for both token types.
type Claims struct {
	UserID string    `json:"userId"`
	Role   model.Role  `json:"role"`
	Type   TokenType `json:"type"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HMAC-signed JWTs.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a token manager. Zero TTLs fall back to
// 30 minutes for access tokens and 7 days for refresh tokens.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if accessTTL == 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// RefreshTTL returns the refresh token lifetime, used for the cookie
// max-age.
func (m *TokenManager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

// GenerateAccessToken issues a short-lived access token carrying the
// user id and role.
func (m *TokenManager) GenerateAccessToken(userID string, role model.Role) (string, error) {
	return m.generate(userID, role, TokenTypeAccess, m.accessTTL)
}

// GenerateRefreshToken issues the long-lived refresh token.
func (m *TokenManager) GenerateRefreshToken(userID string, role model.Role) (string, error) {
	return m.generate(userID, role, TokenTypeRefresh, m.refreshTTL)
}

func (m *TokenManager) generate(userID string, role model.Role, tokenType TokenType, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "apartments",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token and checks its signature, expiry and
// type.
func (m *TokenManager) ValidateToken(tokenString string, expectedType TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != expectedType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
