package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/medins-agent/auth"
	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/utils"
)

type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Claims), args.Error(1)
}

type MockIdentityResolver struct {
	mock.Mock
}

func (m *MockIdentityResolver) ResolveIdentity(ctx context.Context, username string) (*authz.Identity, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*authz.Identity), args.Error(1)
}

func sampleClaims(now time.Time) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "alice",
		ExpiresAt: jwt.NewNumericDate(now.Add(8 * time.Hour)),
	}}
}

// captureIdentity records the identity it sees and responds 200
func captureIdentity(seen **authz.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = authz.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	alice := &authz.Identity{Subject: "id-1", Username: "alice", Role: "engineer", Authenticated: true}

	newMiddleware := func() (*AuthMiddleware, *MockTokenValidator, *MockIdentityResolver) {
		validator := &MockTokenValidator{}
		resolver := &MockIdentityResolver{}
		m := NewAuthMiddleware(validator, resolver, zap.NewNop())
		m.now = func() time.Time { return now }
		return m, validator, resolver
	}

	t.Run("bearer token resolves identity", func(t *testing.T) {
		m, validator, resolver := newMiddleware()
		validator.On("ValidateToken", mock.Anything, "good").Return(sampleClaims(now), nil)
		resolver.On("ResolveIdentity", mock.Anything, "alice").Return(alice, nil)

		var seen *authz.Identity
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		m.Authenticate(captureIdentity(&seen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, alice, seen)
		assert.Equal(t, "alice", w.Header().Get(HeaderUserName))
		assert.Equal(t, "8.00", w.Header().Get(HeaderTokenExpiresIn))
		validator.AssertExpectations(t)
		resolver.AssertExpectations(t)
	})

	t.Run("cookie token is accepted", func(t *testing.T) {
		m, validator, resolver := newMiddleware()
		validator.On("ValidateToken", mock.Anything, "from-cookie").Return(sampleClaims(now), nil)
		resolver.On("ResolveIdentity", mock.Anything, "alice").Return(alice, nil)

		var seen *authz.Identity
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: "from-cookie"})
		w := httptest.NewRecorder()
		m.Authenticate(captureIdentity(&seen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, seen.IsAuthenticated())
	})

	t.Run("header takes precedence over cookie", func(t *testing.T) {
		m, validator, resolver := newMiddleware()
		validator.On("ValidateToken", mock.Anything, "from-header").Return(sampleClaims(now), nil)
		resolver.On("ResolveIdentity", mock.Anything, "alice").Return(alice, nil)

		var seen *authz.Identity
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "bearer from-header")
		req.AddCookie(&http.Cookie{Name: "session", Value: "from-cookie"})
		w := httptest.NewRecorder()
		m.Authenticate(captureIdentity(&seen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		validator.AssertNotCalled(t, "ValidateToken", mock.Anything, "from-cookie")
	})

	t.Run("no token continues anonymously", func(t *testing.T) {
		m, validator, _ := newMiddleware()

		seen := alice
		w := httptest.NewRecorder()
		m.Authenticate(captureIdentity(&seen)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Nil(t, seen)
		assert.Empty(t, w.Header().Get(HeaderUserName))
		validator.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	})

	t.Run("non-bearer scheme is ignored", func(t *testing.T) {
		m, validator, _ := newMiddleware()

		var seen *authz.Identity
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		m.Authenticate(captureIdentity(&seen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		validator.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	})

	tests := []struct {
		name        string
		validateErr error
		resolveErr  error
		wantCode    string
	}{
		{"expired token", auth.ErrTokenExpired, nil, utils.CodeTokenExpired},
		{"invalid token", fmt.Errorf("%w: signature is invalid", auth.ErrInvalidToken), nil, utils.CodeInvalidToken},
		{"unknown user", nil, errors.New("unauthorized: unauthorized"), utils.CodeInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, validator, resolver := newMiddleware()
			if tt.validateErr != nil {
				validator.On("ValidateToken", mock.Anything, "tok").Return(nil, tt.validateErr)
			} else {
				validator.On("ValidateToken", mock.Anything, "tok").Return(sampleClaims(now), nil)
				resolver.On("ResolveIdentity", mock.Anything, "alice").Return(nil, tt.resolveErr)
			}

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
			req.Header.Set("Authorization", "Bearer tok")
			w := httptest.NewRecorder()
			m.Authenticate(next).ServeHTTP(w, req)

			assert.False(t, called)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			assert.Contains(t, w.Body.String(), tt.wantCode)
		})
	}
}

func TestOptional(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	alice := &authz.Identity{Subject: "id-1", Username: "alice", Role: "engineer", Authenticated: true}

	newMiddleware := func() (*AuthMiddleware, *MockTokenValidator, *MockIdentityResolver) {
		validator := &MockTokenValidator{}
		resolver := &MockIdentityResolver{}
		m := NewAuthMiddleware(validator, resolver, zap.NewNop())
		m.now = func() time.Time { return now }
		return m, validator, resolver
	}

	t.Run("usable token resolves identity", func(t *testing.T) {
		m, validator, resolver := newMiddleware()
		validator.On("ValidateToken", mock.Anything, "good").Return(sampleClaims(now), nil)
		resolver.On("ResolveIdentity", mock.Anything, "alice").Return(alice, nil)

		var seen *authz.Identity
		req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		m.Optional(captureIdentity(&seen)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, alice, seen)
		assert.Equal(t, "alice", w.Header().Get(HeaderUserName))
	})

	tests := []struct {
		name        string
		validateErr error
		resolveErr  error
	}{
		{"expired token", auth.ErrTokenExpired, nil},
		{"invalid token", fmt.Errorf("%w: signature is invalid", auth.ErrInvalidToken), nil},
		{"unknown user", nil, errors.New("unauthorized: unauthorized")},
	}

	for _, tt := range tests {
		t.Run(tt.name+" continues anonymously", func(t *testing.T) {
			m, validator, resolver := newMiddleware()
			if tt.validateErr != nil {
				validator.On("ValidateToken", mock.Anything, "stale").Return(nil, tt.validateErr)
			} else {
				validator.On("ValidateToken", mock.Anything, "stale").Return(sampleClaims(now), nil)
				resolver.On("ResolveIdentity", mock.Anything, "alice").Return(nil, tt.resolveErr)
			}

			seen := alice
			req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
			req.AddCookie(&http.Cookie{Name: "auth_token", Value: "stale"})
			w := httptest.NewRecorder()
			m.Optional(captureIdentity(&seen)).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Nil(t, seen)
			assert.Empty(t, w.Header().Get(HeaderUserName))
			assert.Empty(t, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}
