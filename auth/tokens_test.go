package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-with-enough-entropy"

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()
	m, err := NewTokenManager(testSecret, "HS256", time.Hour)
	require.NoError(t, err)
	return m
}

func TestNewTokenManager(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		algorithm string
		ttl       time.Duration
		wantErr   bool
	}{
		{"hs256", testSecret, "HS256", time.Hour, false},
		{"hs384", testSecret, "HS384", time.Hour, false},
		{"hs512", testSecret, "HS512", time.Hour, false},
		{"empty secret", "", "HS256", time.Hour, true},
		{"asymmetric algorithm", testSecret, "RS256", time.Hour, true},
		{"zero ttl", testSecret, "HS256", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewTokenManager(tt.secret, tt.algorithm, tt.ttl)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ttl, m.TTL())
		})
	}
}

func TestIssueAndValidate(t *testing.T) {
	m := newTestManager(t)

	token, expiresAt, err := m.Issue("alice")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.InDelta(t, time.Hour.Seconds(), claims.ExpiresIn(time.Now()).Seconds(), 5)
}

func TestValidateToken_Expired(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	token, _, err := m.Issue("alice")
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Invalid(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	sign := func(method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{
		Subject:   "alice",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("other-secret"), valid)},
		{"different hmac algorithm", sign(jwt.SigningMethodHS512, []byte(testSecret), valid)},
		{"unsigned", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid)},
		{"missing expiry", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "alice"})},
		{"missing subject", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		})},
		{"issued in the future", sign(jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject:   "alice",
			IssuedAt:  jwt.NewNumericDate(now.Add(time.Hour)),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Hour)),
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := m.ValidateToken(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Nil(t, claims)
		})
	}
}

func TestClaimsExpiresIn(t *testing.T) {
	now := time.Now()

	assert.Zero(t, (&Claims{}).ExpiresIn(now))

	past := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}}
	assert.Zero(t, past.ExpiresIn(now))
}
