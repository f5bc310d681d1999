package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/utils"
)

type recordedDecision struct {
	policy   authz.Policy
	decision authz.Decision
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (f *fakeRecorder) RecordDecision(policy authz.Policy, d authz.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, recordedDecision{policy, d})
}

func newGuardMiddleware(t *testing.T) (*GuardMiddleware, *fakeRecorder, *observer.ObservedLogs) {
	t.Helper()
	roles, err := authz.NewRoleSet([]string{"superadmin", "engineer"}, []string{"normal_user"})
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	recorder := &fakeRecorder{}
	return NewGuardMiddleware(authz.NewGuard(roles), recorder, zap.New(core)), recorder, logs
}

func TestGuardRequire(t *testing.T) {
	admin := &authz.Identity{Username: "root", Role: "superadmin", Authenticated: true}
	user := &authz.Identity{Username: "bob", Role: "normal_user", Authenticated: true}
	stranger := &authz.Identity{Username: "eve", Role: "intern", Authenticated: true}

	tests := []struct {
		name       string
		policy     authz.Policy
		identity   *authz.Identity
		wantStatus int
		wantCode   string
	}{
		{"public anonymous", authz.PolicyPublic, nil, http.StatusOK, ""},
		{"any role user", authz.PolicyAnyRole, user, http.StatusOK, ""},
		{"any role admin", authz.PolicyAnyRole, admin, http.StatusOK, ""},
		{"any role anonymous", authz.PolicyAnyRole, nil, http.StatusUnauthorized, utils.CodeUnauthorized},
		{"any role unknown role", authz.PolicyAnyRole, stranger, http.StatusForbidden, utils.CodeForbidden},
		{"admin admin", authz.PolicyAdmin, admin, http.StatusOK, ""},
		{"admin user", authz.PolicyAdmin, user, http.StatusForbidden, utils.CodeForbidden},
		{"admin anonymous", authz.PolicyAdmin, nil, http.StatusUnauthorized, utils.CodeUnauthorized},
		{"unset policy", authz.Policy(0), admin, http.StatusInternalServerError, utils.CodeMisconfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, recorder, _ := newGuardMiddleware(t)

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/op", nil)
			if tt.identity != nil {
				req = req.WithContext(authz.WithIdentity(req.Context(), tt.identity))
			}
			w := httptest.NewRecorder()
			m.Require(tt.policy)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantCode != "" {
				assert.Contains(t, w.Body.String(), tt.wantCode)
			}

			require.Len(t, recorder.decisions, 1)
			assert.Equal(t, tt.policy, recorder.decisions[0].policy)
			assert.Equal(t, called, recorder.decisions[0].decision.Allowed())
		})
	}
}

func TestGuardLogging(t *testing.T) {
	t.Run("denial is a warning", func(t *testing.T) {
		m, _, logs := newGuardMiddleware(t)
		viewer := &authz.Identity{Username: "bob", Role: "normal_user", Authenticated: true}

		req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)
		req = req.WithContext(authz.WithIdentity(req.Context(), viewer))
		m.RequireAdmin(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), req)

		entries := logs.FilterMessage("access denied").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		fields := entries[0].ContextMap()
		assert.Equal(t, "admin", fields["policy"])
		assert.Equal(t, "insufficient_privilege", fields["kind"])
		assert.Equal(t, "bob", fields["username"])
	})

	t.Run("misconfiguration is an error", func(t *testing.T) {
		m, _, logs := newGuardMiddleware(t)

		m.Require(authz.Policy(42))(http.NotFoundHandler()).
			ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/op", nil))

		entries := logs.FilterMessage("access policy misconfigured").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	})
}

func TestGuardShortcuts(t *testing.T) {
	m, _, _ := newGuardMiddleware(t)
	user := &authz.Identity{Username: "bob", Role: "normal_user", Authenticated: true}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	req = req.WithContext(authz.WithIdentity(req.Context(), user))

	w := httptest.NewRecorder()
	m.RequireAnyRole(ok).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	m.RequireAdmin(ok).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGuardWithoutRecorder(t *testing.T) {
	roles := authz.DefaultRoleSet()
	m := NewGuardMiddleware(authz.NewGuard(roles), nil, zap.NewNop())

	w := httptest.NewRecorder()
	m.RequireAdmin(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
