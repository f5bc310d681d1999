package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/upb/medins-agent/auth"
	"github.com/upb/medins-agent/config"
	"github.com/upb/medins-agent/handlers"
	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/internal/observability"
	"github.com/upb/medins-agent/middleware"
	"github.com/upb/medins-agent/repositories"
	"github.com/upb/medins-agent/repositories/postgres"
	"github.com/upb/medins-agent/services"
)

// Dependencies holds all application dependencies. This is the central
// wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users     repositories.UserRepository
	TxManager repositories.TransactionManager

	// Access control
	Roles  *authz.RoleSet
	Guard  *authz.Guard
	Tokens *auth.TokenManager

	// Services
	UserService *services.UserService

	// Observability
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	// Middleware
	AuthMiddleware  *middleware.AuthMiddleware
	GuardMiddleware *middleware.GuardMiddleware
	LoginLimiter    *middleware.RateLimiter

	// Handlers
	AuthHandler   *handlers.AuthHandler
	UserHandler   *handlers.UserHandler
	HealthHandler *handlers.HealthHandler
}

// NewDependencies connects to PostgreSQL, ensures the schema exists and wires
// every component on top of it.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.InitSchema(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))

	repos := factory.NewRepositories()
	deps, err := NewDependenciesWithRepositories(cfg, logger, repos.Users, factory.GetTransactionManager(), factory.GetDB())
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	deps.RepoFactory = factory
	deps.DB = factory.GetDB()

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesWithRepositories wires the application over the given
// repositories. health may be nil when no database backs them.
func NewDependenciesWithRepositories(
	cfg *config.Config,
	logger *zap.Logger,
	users repositories.UserRepository,
	txManager repositories.TransactionManager,
	health handlers.HealthChecker,
) (*Dependencies, error) {
	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Users:     users,
		TxManager: txManager,
	}

	if err := d.initAccessControl(cfg); err != nil {
		return nil, err
	}
	if err := d.initAuth(cfg); err != nil {
		return nil, err
	}
	d.initObservability(cfg)

	d.UserService = services.NewUserService(users, txManager, d.Roles, authz.Role(cfg.RBAC.DefaultRole), logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, d.UserService, logger)
	d.GuardMiddleware = middleware.NewGuardMiddleware(d.Guard, d.Metrics, logger)
	d.LoginLimiter = middleware.NewRateLimiter(cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow, logger)

	d.AuthHandler = handlers.NewAuthHandler(d.UserService, d.Tokens, cfg.IsProduction(), logger)
	d.UserHandler = handlers.NewUserHandler(d.UserService, d.Roles, logger)
	d.HealthHandler = handlers.NewHealthHandler(health, logger)

	return d, nil
}

func (d *Dependencies) initAccessControl(cfg *config.Config) error {
	roles, err := cfg.RBAC.RoleSet()
	if err != nil {
		return fmt.Errorf("failed to build role set: %w", err)
	}
	d.Roles = roles
	d.Guard = authz.NewGuard(roles)

	d.Logger.Info("access control initialized",
		zap.Any("admin_roles", roles.AdminRoles()),
		zap.Any("read_only_roles", roles.ReadOnlyRoles()),
		zap.String("default_role", cfg.RBAC.DefaultRole))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) error {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if cfg.IsProduction() {
			return errors.New("jwt secret is required in production")
		}
		generated, err := randomSecret()
		if err != nil {
			return fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		secret = generated
		d.Logger.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
	}

	tokens, err := auth.NewTokenManager(secret, cfg.Auth.JWTAlgorithm, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}
	d.Tokens = tokens
	return nil
}

func (d *Dependencies) initObservability(cfg *config.Config) {
	d.Registry = prometheus.NewRegistry()
	if cfg.Observability.MetricsEnabled {
		d.Metrics = observability.NewMetrics(d.Registry)
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return errors.Join(errs...)
}
