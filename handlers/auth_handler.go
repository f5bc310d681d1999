package handlers

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/medins-agent/internal/authz"
	"github.com/upb/medins-agent/models"
	"github.com/upb/medins-agent/services"
	"github.com/upb/medins-agent/utils"
)

const (
	// AuthCookieName is the cookie carrying the access token for browser clients
	AuthCookieName = "auth_token"

	maxBodyBytes = 1 << 20
)

// UserStore is the subset of the user service used by account endpoints
type UserStore interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	Issue(subject string) (string, time.Time, error)
	TTL() time.Duration
}

// TokenResponse is the OAuth2 password-grant style token payload
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type credentials struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthHandler serves registration, login and the current-user endpoint
type AuthHandler struct {
	users        UserStore
	tokens       TokenIssuer
	secureCookie bool
	logger       *zap.Logger
}

// NewAuthHandler creates an AuthHandler. secureCookie marks the token cookie Secure.
func NewAuthHandler(users UserStore, tokens TokenIssuer, secureCookie bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		tokens:       tokens,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleRegister handles POST /auth/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		HandleServiceError(w, errInvalidBody, h.logger)
		return
	}

	user, err := h.users.Register(r.Context(), req)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteCreated(w, user); err != nil {
		h.logger.Error("failed to write register response", zap.Error(err))
	}
}

// HandleToken handles POST /auth/token. The token is returned unwrapped.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.login(w, r)
	if !ok {
		return
	}
	if err := utils.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("failed to write token response", zap.Error(err))
	}
}

// HandleFrontToken handles POST /auth/front_token. The token is returned in the data envelope.
func (h *AuthHandler) HandleFrontToken(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.login(w, r)
	if !ok {
		return
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write token response", zap.Error(err))
	}
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) (*TokenResponse, bool) {
	creds, err := readCredentials(w, r)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return nil, false
	}

	user, err := h.users.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("email", creds.Email), zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return nil, false
	}

	token, expiresAt, err := h.tokens.Issue(user.Username)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to issue token", err), h.logger)
		return nil, false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("user logged in", zap.String("username", user.Username))

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokens.TTL().Seconds()),
	}, true
}

// HandleMe handles GET /auth/me
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := authz.IdentityFromContext(r.Context())
	if !id.IsAuthenticated() {
		_ = utils.WriteUnauthorized(w, utils.CodeUnauthorized, "")
		return
	}

	user, err := h.users.GetByUsername(r.Context(), id.Username)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, user); err != nil {
		h.logger.Error("failed to write user response", zap.Error(err))
	}
}

var errInvalidBody = services.NewDomainError(services.ErrorTypeValidation, "invalid request body", nil)

// readCredentials accepts an OAuth2 password form (username carries the email)
// or a JSON body with email or username.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	var creds credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		parse := r.ParseForm
		if mediaType == "multipart/form-data" {
			parse = func() error { return r.ParseMultipartForm(maxBodyBytes) }
		}
		if err := parse(); err != nil {
			return creds, errInvalidBody
		}
		creds.Email = r.PostForm.Get("username")
		creds.Password = r.PostForm.Get("password")
	default:
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			return creds, errInvalidBody
		}
		if creds.Email == "" {
			creds.Email = creds.Username
		}
	}

	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))
	if creds.Email == "" || creds.Password == "" {
		return creds, services.NewDomainError(services.ErrorTypeValidation, "email and password are required", nil)
	}
	return creds, nil
}
