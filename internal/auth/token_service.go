// Package auth issues and validates wallet session tokens and keeps the
// refresh sessions that let a wallet renew them.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingKey   = errors.New("token signing secret not configured")
)

// TokenType distinguishes access from refresh tokens
type TokenType string

const (
	AccessTokenType  TokenType = "access"
	RefreshTokenType TokenType = "refresh"
)

// Claims represents the JWT claims of a wallet session
type Claims struct {
	Subdomain string    `json:"subdomain,omitempty"`
	Type      TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Wallet returns the wallet address from the Subject claim
func (c *Claims) Wallet() string {
	return c.Subject
}

// TokenService handles JWT token generation and validation
type TokenService struct {
	secret        []byte
	refreshSecret []byte
	expiry        time.Duration
	refreshExpiry time.Duration
	issuer        string
}

// TokenServiceConfig holds configuration for TokenService
type TokenServiceConfig struct {
	Secret        string
	RefreshSecret string        // default: Secret
	Expiry        time.Duration // default: 24 hours
	RefreshExpiry time.Duration // default: 30 days
	Issuer        string
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	if cfg.Expiry == 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.RefreshExpiry == 0 {
		cfg.RefreshExpiry = 30 * 24 * time.Hour
	}
	if cfg.RefreshSecret == "" {
		cfg.RefreshSecret = cfg.Secret
	}
	return &TokenService{
		secret:        []byte(cfg.Secret),
		refreshSecret: []byte(cfg.RefreshSecret),
		expiry:        cfg.Expiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
	}
}

// SessionToken is a signed access token plus its lifetime
type SessionToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}

// TokenPair is an access token with the refresh token that renews it
type TokenPair struct {
	SessionToken
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Issue generates an access token for a wallet and its registered subdomain
func (s *TokenService) Issue(wallet, subdomain string) (*SessionToken, error) {
	token, expiresAt, err := s.sign(wallet, subdomain, AccessTokenType, s.secret, s.expiry)
	if err != nil {
		return nil, err
	}
	return &SessionToken{
		Token:     token,
		ExpiresAt: expiresAt,
		ExpiresIn: int64(s.expiry.Seconds()),
	}, nil
}

// IssuePair generates an access token and a refresh token
func (s *TokenService) IssuePair(wallet, subdomain string) (*TokenPair, error) {
	access, err := s.Issue(wallet, subdomain)
	if err != nil {
		return nil, err
	}
	refresh, refreshExpiresAt, err := s.sign(wallet, subdomain, RefreshTokenType, s.refreshSecret, s.refreshExpiry)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		SessionToken:     *access,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

func (s *TokenService) sign(wallet, subdomain string, typ TokenType, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, ErrMissingKey
	}

	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := Claims{
		Subdomain: subdomain,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strings.ToLower(wallet),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt.UTC(), nil
}

// Validate parses and verifies an access token
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.secret, AccessTokenType)
}

// ValidateRefresh parses and verifies a refresh token
func (s *TokenService) ValidateRefresh(tokenString string) (*Claims, error) {
	return s.validate(tokenString, s.refreshSecret, RefreshTokenType)
}

func (s *TokenService) validate(tokenString string, secret []byte, expected TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || claims.Type != expected {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashRefreshToken returns the SHA-256 hex digest stored in place of the token
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Expiry returns the configured access token lifetime
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// RefreshExpiry returns the configured refresh token lifetime
func (s *TokenService) RefreshExpiry() time.Duration {
	return s.refreshExpiry
}
