package middleware

import (
	"context"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey string

const (
	// TokenExpiryKey is the context key for the access token expiry
	TokenExpiryKey contextKey = "token_expiry"
)

// GetRequestIDFromContext returns the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetTokenExpiryFromContext retrieves the access token expiry from context
func GetTokenExpiryFromContext(ctx context.Context) (time.Time, bool) {
	expiry, ok := ctx.Value(TokenExpiryKey).(time.Time)
	return expiry, ok
}

// WithTokenExpiry adds the access token expiry to the context
func WithTokenExpiry(ctx context.Context, expiry time.Time) context.Context {
	return context.WithValue(ctx, TokenExpiryKey, expiry)
}
