package auth

import (
	"errors"
	"fmt"
	"time"

	"tunnel-panel/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrNoSecret       = errors.New("auth.secret is not configured")
)

const issuer = "tunnel-panel"

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

/**
 * Verify login credentials against the configured admin account
 * @param {config.AuthConfig} cfg - auth section
 * @param {string} username - Submitted user name
 * @param {string} password - Submitted password
 * @returns {error} ErrBadCredentials on any mismatch
 */
func CheckLogin(cfg config.AuthConfig, username, password string) error {
	if username != cfg.Username || cfg.PasswordHash == "" {
		return ErrBadCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(password)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// IssueToken signs an HS256 token for the user, valid for cfg.TokenTTL
func IssueToken(cfg config.AuthConfig, username string) (string, time.Time, error) {
	if cfg.Secret == "" {
		return "", time.Time{}, ErrNoSecret
	}
	now := time.Now()
	expires := now.Add(cfg.TokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken returns the user name carried by a valid token
func ParseToken(cfg config.AuthConfig, tokenString string) (string, error) {
	if cfg.Secret == "" {
		return "", ErrNoSecret
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.Subject, nil
}
