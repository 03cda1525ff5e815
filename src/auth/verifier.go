// Package auth issues and verifies the HS256 tokens clients present in the
// WebSocket handshake.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/chatsync/src/types"
)

var (
	ErrMissingSigningSecret = errors.New("auth: signing secret required")
	ErrMissingIssuer        = errors.New("auth: issuer required")
	ErrMissingToken         = fmt.Errorf("%w: token required", types.ErrValidation)
	ErrInvalidToken         = fmt.Errorf("%w: invalid token", types.ErrValidation)
	ErrExpiredToken         = fmt.Errorf("%w: token expired", types.ErrValidation)
	ErrMissingSubject       = fmt.Errorf("%w: token subject required", types.ErrValidation)
)

// Claims is the JWT payload carried by a handshake token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Config describes the shared secret and issuer of handshake tokens.
type Config struct {
	SigningSecret []byte
	Issuer        string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

func (cfg Config) normalize() (Config, error) {
	if len(cfg.SigningSecret) == 0 {
		return Config{}, ErrMissingSigningSecret
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	if cfg.Issuer == "" {
		return Config{}, ErrMissingIssuer
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.SigningSecret = append([]byte(nil), cfg.SigningSecret...)
	return cfg, nil
}

// Verifier validates handshake tokens and resolves them to a user id.
type Verifier struct {
	cfg Config
}

// NewVerifier constructs a Verifier for the given configuration.
func NewVerifier(cfg Config) (*Verifier, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &Verifier{cfg: normalized}, nil
}

// VerifyToken validates tokenString and returns the user id it names. The
// user_id claim wins over the subject when both are set.
func (v *Verifier) VerifyToken(tokenString string) (string, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return "", ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (interface{}, error) {
			return v.cfg.SigningSecret, nil
		},
		jwt.WithTimeFunc(v.cfg.Clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return "", ErrMissingSubject
	}
	return userID, nil
}
