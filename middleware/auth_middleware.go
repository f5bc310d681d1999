package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/medins-agent/auth"
	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/utils"
)

const (
	// HeaderUserName carries the authenticated username on responses
	HeaderUserName = "X-User-Name"

	// HeaderTokenExpiresIn carries the remaining token validity in hours
	HeaderTokenExpiresIn = "X-Token-Expires-In"

	authTokenCookieName = "auth_token"
	sessionCookieName   = "session"
)

// TokenValidator validates access tokens
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Claims, error)
}

// IdentityResolver loads the current identity for a token subject
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, username string) (*authz.Identity, error)
}

// AuthMiddleware resolves the request identity from the access token
type AuthMiddleware struct {
	validator TokenValidator
	resolver  IdentityResolver
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(validator TokenValidator, resolver IdentityResolver, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
	}
}

// Authenticate stores the caller identity in the request context. Requests
// without a token continue anonymously; a token that is present but expired,
// invalid or bound to an unknown or inactive user is rejected with 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return m.handler(next, true)
}

// Optional stores the caller identity when the token is usable and otherwise
// continues anonymously. Public routes use it.
func (m *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return m.handler(next, false)
}

func (m *AuthMiddleware) handler(next http.Handler, strict bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		token := extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, id, code, err := m.resolve(ctx, token)
		if err != nil {
			if !strict {
				m.logger.Debug("ignoring unusable token",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("code", code),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			m.logger.Warn("authentication failed",
				zap.String("request_id", requestID),
				zap.String("path", r.URL.Path),
				zap.String("code", code),
				zap.Error(err))
			message := "Invalid token"
			if code == utils.CodeTokenExpired {
				message = "Token has expired"
			}
			_ = utils.WriteUnauthorized(w, code, message)
			return
		}

		ctx = authz.WithIdentity(ctx, id)
		if claims.ExpiresAt != nil {
			ctx = WithTokenExpiry(ctx, claims.ExpiresAt.Time)
		}

		w.Header().Set(HeaderUserName, id.Username)
		hours := claims.ExpiresIn(m.now()).Hours()
		w.Header().Set(HeaderTokenExpiresIn, strconv.FormatFloat(hours, 'f', 2, 64))

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("username", id.Username),
			zap.String("role", string(id.Role)))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolve validates token and loads its identity. On failure it returns the
// error code the client would receive.
func (m *AuthMiddleware) resolve(ctx context.Context, token string) (*auth.Claims, *authz.Identity, string, error) {
	claims, err := m.validator.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, nil, utils.CodeTokenExpired, err
		}
		return nil, nil, utils.CodeInvalidToken, err
	}

	id, err := m.resolver.ResolveIdentity(ctx, claims.Subject)
	if err != nil {
		return nil, nil, utils.CodeInvalidToken, fmt.Errorf("resolve %q: %w", claims.Subject, err)
	}
	return claims, id, "", nil
}

// extractToken reads the bearer token from the Authorization header, then
// from the auth_token or session cookie.
func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	for _, name := range []string{authTokenCookieName, sessionCookieName} {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}
	return ""
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
