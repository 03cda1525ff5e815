package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/orchestra-mcp/chatsync/src/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(clock func() time.Time) Config {
	return Config{
		SigningSecret: []byte("super-secret"),
		Issuer:        "chatsync",
		TokenTTL:      time.Hour,
		Clock:         clock,
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer(testConfig(nil))
	require.NoError(t, err)
	verifier, err := NewVerifier(testConfig(nil))
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue("user-123")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	userID, err := verifier.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-123", userID)
}

func TestConfigValidation(t *testing.T) {
	_, err := NewVerifier(Config{Issuer: "chatsync"})
	assert.ErrorIs(t, err, ErrMissingSigningSecret)

	_, err = NewTokenIssuer(Config{SigningSecret: []byte("s"), Issuer: "  "})
	assert.ErrorIs(t, err, ErrMissingIssuer)
}

func TestIssueRequiresUser(t *testing.T) {
	issuer, err := NewTokenIssuer(testConfig(nil))
	require.NoError(t, err)
	_, _, err = issuer.Issue("")
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestVerifyRejects(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer(testConfig(func() time.Time { return base }))
	require.NoError(t, err)
	valid, _, err := issuer.Issue("user-1")
	require.NoError(t, err)

	otherIssuer, err := NewTokenIssuer(Config{SigningSecret: []byte("super-secret"), Issuer: "someone-else", Clock: func() time.Time { return base }})
	require.NoError(t, err)
	foreign, _, err := otherIssuer.Issue("user-1")
	require.NoError(t, err)

	wrongKey, _, err := mustIssuer(t, Config{SigningSecret: []byte("other"), Issuer: "chatsync", Clock: func() time.Time { return base }}).Issue("user-1")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{Issuer: "chatsync"}}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		clock time.Time
		want  error
	}{
		{"empty", "", base, ErrMissingToken},
		{"garbage", "not-a-jwt", base, ErrInvalidToken},
		{"wrong issuer", foreign, base, ErrInvalidToken},
		{"wrong key", wrongKey, base, ErrInvalidToken},
		{"alg none", noneToken, base, ErrInvalidToken},
		{"expired", valid, base.Add(2 * time.Hour), ErrExpiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := tt.clock
			verifier, err := NewVerifier(testConfig(func() time.Time { return at }))
			require.NoError(t, err)
			_, err = verifier.VerifyToken(tt.token)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "subject-user",
		Issuer:    "chatsync",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	verifier, err := NewVerifier(testConfig(nil))
	require.NoError(t, err)
	userID, err := verifier.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-user", userID)
}

func TestVerifyRequiresSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "chatsync",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	verifier, err := NewVerifier(testConfig(nil))
	require.NoError(t, err)
	_, err = verifier.VerifyToken(token)
	assert.ErrorIs(t, err, ErrMissingSubject)
}

func mustIssuer(t *testing.T, cfg Config) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(cfg)
	require.NoError(t, err)
	return issuer
}
