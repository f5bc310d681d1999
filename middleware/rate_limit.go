package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/upb/medins-agent/utils"
)

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter throttles requests per client IP. Each client may make limit
// requests per window, refilled continuously.
type RateLimiter struct {
	limit     int
	window    time.Duration
	limiters  map[string]*limiterEntry
	lastSweep time.Time
	mu        sync.Mutex
	logger    *zap.Logger
	now       func() time.Time
}

// NewRateLimiter creates a per-IP limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		window:   window,
		limiters: make(map[string]*limiterEntry),
		logger:   logger,
		now:      time.Now,
	}
}

// Allow reports whether the client key may proceed
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	entry, ok := l.limiters[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.limit))
		entry = &limiterEntry{limiter: rate.NewLimiter(every, l.limit)}
		l.limiters[key] = entry
	}
	entry.lastAccess = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than a full window; they would be full again
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.window {
		return
	}
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > l.window {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// Middleware rejects requests over the limit with 429
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			l.logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", ip),
				zap.String("path", r.URL.Path))

			retryAfter := int(math.Ceil((l.window / time.Duration(l.limit)).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many login attempts", map[string]interface{}{
				"limit":  l.limit,
				"window": l.window.String(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. chi's RealIP middleware
// rewrites RemoteAddr from X-Forwarded-For or X-Real-IP upstream.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
