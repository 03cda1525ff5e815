package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/chatsync/src/types"
)

const defaultTokenTTL = 24 * time.Hour

// TokenIssuer signs handshake tokens for a user.
type TokenIssuer struct {
	cfg Config
}

// NewTokenIssuer constructs a TokenIssuer with the same configuration the
// Verifier uses.
func NewTokenIssuer(cfg Config) (*TokenIssuer, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	return &TokenIssuer{cfg: normalized}, nil
}

// Issue produces a signed token for userID and its expiry.
func (i *TokenIssuer) Issue(userID string) (string, time.Time, error) {
	if err := types.Required("userId", userID); err != nil {
		return "", time.Time{}, err
	}

	now := i.cfg.Clock().UTC()
	expiresAt := now.Add(i.cfg.TokenTTL)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.SigningSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
