package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/medins-agent/app"
	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/internal/observability"
	"github.com/upb/medins-agent/middleware"
	"github.com/upb/medins-agent/utils"
)

// Operation is one routed endpoint and the access policy that guards it
type Operation struct {
	Method  string
	Pattern string
	Policy  authz.Policy
	Handler http.HandlerFunc
	// Middlewares run before the guard, e.g. rate limiting
	Middlewares []func(http.Handler) http.Handler
}

// Operations returns every endpoint served by the API. Each entry names
// exactly one policy; routes are never mounted without one.
func Operations(deps *app.Dependencies) []Operation {
	base := deps.Config.Server.BasePath
	limited := []func(http.Handler) http.Handler{deps.LoginLimiter.Middleware}

	ops := []Operation{
		{Method: http.MethodGet, Pattern: "/healthz", Policy: authz.PolicyPublic, Handler: deps.HealthHandler.HandleHealth},
		{Method: http.MethodGet, Pattern: "/readyz", Policy: authz.PolicyPublic, Handler: deps.HealthHandler.HandleReadiness},

		{Method: http.MethodPost, Pattern: base + "/auth/register", Policy: authz.PolicyPublic, Handler: deps.AuthHandler.HandleRegister},
		{Method: http.MethodPost, Pattern: base + "/auth/token", Policy: authz.PolicyPublic, Handler: deps.AuthHandler.HandleToken, Middlewares: limited},
		{Method: http.MethodPost, Pattern: base + "/auth/front_token", Policy: authz.PolicyPublic, Handler: deps.AuthHandler.HandleFrontToken, Middlewares: limited},
		{Method: http.MethodGet, Pattern: base + "/auth/me", Policy: authz.PolicyAnyRole, Handler: deps.AuthHandler.HandleMe},
		{Method: http.MethodGet, Pattern: base + "/roles", Policy: authz.PolicyAnyRole, Handler: deps.UserHandler.GetRoles},

		{Method: http.MethodGet, Pattern: base + "/admin/users", Policy: authz.PolicyAdmin, Handler: deps.UserHandler.ListUsers},
		{Method: http.MethodPut, Pattern: base + "/admin/users/{id}/role", Policy: authz.PolicyAdmin, Handler: deps.UserHandler.UpdateUserRole},
	}

	if deps.Metrics != nil {
		ops = append(ops, Operation{
			Method:  http.MethodGet,
			Pattern: "/metrics",
			Policy:  authz.PolicyPublic,
			Handler: deps.Metrics.Handler().ServeHTTP,
		})
	}

	return ops
}

// authenticator picks identity resolution for a route. Public routes treat an
// unusable token as anonymous; every other route rejects it with 401.
func authenticator(deps *app.Dependencies, policy authz.Policy) func(http.Handler) http.Handler {
	if policy == authz.PolicyPublic {
		return deps.AuthMiddleware.Optional
	}
	return deps.AuthMiddleware.Authenticate
}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if deps.Metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(deps.Metrics))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID", middleware.HeaderUserName, middleware.HeaderTokenExpiresIn},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	for _, op := range Operations(deps) {
		mws := []func(http.Handler) http.Handler{authenticator(deps, op.Policy)}
		mws = append(mws, op.Middlewares...)
		mws = append(mws, deps.GuardMiddleware.Require(op.Policy))
		r.With(mws...).Method(op.Method, op.Pattern, op.Handler)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
