package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/models"
	"github.com/upb/medins-agent/repositories"
	"github.com/upb/medins-agent/utils"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100

	// maxPasswordBytes is the longest input bcrypt accepts
	maxPasswordBytes = 72
)

// RegisterRequest is the payload accepted by Register
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name,omitempty" validate:"max=255"`
}

// UserService manages accounts and resolves request identities
type UserService struct {
	users       repositories.UserRepository
	txManager   repositories.TransactionManager
	roles       *authz.RoleSet
	defaultRole authz.Role
	bcryptCost  int
	logger      *zap.Logger
}

// UserServiceOption customizes a UserService
type UserServiceOption func(*UserService)

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) UserServiceOption {
	return func(s *UserService) { s.bcryptCost = cost }
}

// NewUserService creates a user service. New accounts receive defaultRole.
func NewUserService(
	users repositories.UserRepository,
	txManager repositories.TransactionManager,
	roles *authz.RoleSet,
	defaultRole authz.Role,
	logger *zap.Logger,
	opts ...UserServiceOption,
) *UserService {
	s := &UserService{
		users:       users,
		txManager:   txManager,
		roles:       roles,
		defaultRole: defaultRole,
		bcryptCost:  bcrypt.DefaultCost,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with the default role
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)

	if err := utils.ValidateStruct(req); err != nil {
		domainErr := NewDomainError(ErrorTypeValidation, "invalid registration", err)
		for field, msg := range utils.GetValidationFields(err) {
			domainErr.WithDetail(field, msg)
		}
		return nil, domainErr
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, NewDomainError(ErrorTypeValidation, "invalid registration", nil).
			WithDetail("password", "must be at most 72 bytes")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}

	user, err := WithTransactionResult(ctx, s.txManager, func(ctx context.Context) (*models.User, error) {
		if err := s.ensureAvailable(ctx, req.Username, req.Email); err != nil {
			return nil, err
		}

		user := models.NewUser(req.Username, req.Email, string(hashed), req.FullName, s.defaultRole)
		if err := s.users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return nil, NewDomainError(ErrorTypeConflict, "username or email already registered", err)
			}
			return nil, WrapInternal("failed to create user", err)
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
		zap.String("role", string(user.Role)))
	return user, nil
}

func (s *UserService) ensureAvailable(ctx context.Context, username, email string) error {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return ErrDuplicateUsername
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return WrapInternal("failed to check username", err)
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return WrapInternal("failed to check email", err)
	}
	return nil
}

// Authenticate verifies an email and password pair
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, WrapInternal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// ResolveIdentity loads the account named by a token subject and returns the
// identity the guard evaluates. Unknown or inactive accounts are unauthorized.
func (s *UserService) ResolveIdentity(ctx context.Context, username string) (*authz.Identity, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, WrapInternal("failed to resolve identity", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user.Identity(), nil
}

// GetByUsername returns a single account
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to load user", err)
	}
	return user, nil
}

// ListUsers returns a page of accounts. Limit is clamped to [1, 100].
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, WrapInternal("failed to list users", err)
	}
	return users, nil
}

// UpdateRole assigns role to the account. The role must be recognized.
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error) {
	newRole := authz.Role(strings.TrimSpace(role))
	if !s.roles.IsRecognized(newRole) {
		return nil, NewDomainError(ErrorTypeValidation, "role is not recognized", nil).
			WithDetail("role", role).
			WithDetail("admin_roles", s.roles.AdminRoles()).
			WithDetail("read_only_roles", s.roles.ReadOnlyRoles())
	}

	user, err := s.users.UpdateRole(ctx, id, newRole)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, WrapInternal("failed to update role", err)
	}

	s.logger.Info("user role updated",
		zap.String("user_id", id.String()),
		zap.String("role", string(newRole)))
	return user, nil
}
