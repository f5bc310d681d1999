package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/utils"
)

// DecisionRecorder observes guard decisions
type DecisionRecorder interface {
	RecordDecision(policy authz.Policy, d authz.Decision)
}

// GuardMiddleware enforces an access policy on each protected operation
type GuardMiddleware struct {
	guard    *authz.Guard
	recorder DecisionRecorder
	logger   *zap.Logger
}

// NewGuardMiddleware creates a GuardMiddleware. recorder may be nil.
func NewGuardMiddleware(guard *authz.Guard, recorder DecisionRecorder, logger *zap.Logger) *GuardMiddleware {
	return &GuardMiddleware{
		guard:    guard,
		recorder: recorder,
		logger:   logger,
	}
}

// Require evaluates policy against the identity in the request context and
// only calls next when the decision allows it.
func (m *GuardMiddleware) Require(policy authz.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id := authz.IdentityFromContext(ctx)
			decision := m.guard.Evaluate(id, policy)

			if m.recorder != nil {
				m.recorder.RecordDecision(policy, decision)
			}

			if decision.Allowed() {
				next.ServeHTTP(w, r)
				return
			}

			fields := []zap.Field{
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("policy", policy.String()),
				zap.String("kind", decision.Kind().String()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			}
			if id != nil {
				fields = append(fields,
					zap.String("username", id.Username),
					zap.String("role", string(id.Role)))
			}

			if decision.Kind() == authz.DenyMisconfiguredPolicy {
				m.logger.Error("access policy misconfigured", fields...)
			} else {
				m.logger.Warn("access denied", fields...)
			}

			_ = utils.WriteDenial(w, decision.Err())
		})
	}
}

// RequireAdmin admits only admin-tier identities
func (m *GuardMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.Require(authz.PolicyAdmin)(next)
}

// RequireAnyRole admits any identity holding a recognized role
func (m *GuardMiddleware) RequireAnyRole(next http.Handler) http.Handler {
	return m.Require(authz.PolicyAnyRole)(next)
}
