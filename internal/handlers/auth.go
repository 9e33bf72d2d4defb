package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookleaf/api/internal/platform/httpx"
	"github.com/bookleaf/api/internal/services"
)

const (
	maxAuthBodySize = 16 * 1024

	loginRateLimit  = 10
	loginRateWindow = time.Minute
)

// AuthHandlers exposes the registration, login, and token rotation endpoints.
type AuthHandlers struct {
	users   services.UserService
	limiter rateLimiter
}

// AuthHandlerOption customises handler construction.
type AuthHandlerOption func(*AuthHandlers)

// WithLoginRateLimiter overrides the limiter applied to credential endpoints.
func WithLoginRateLimiter(limiter rateLimiter) AuthHandlerOption {
	return func(h *AuthHandlers) {
		h.limiter = limiter
	}
}

// NewAuthHandlers constructs a new AuthHandlers instance.
func NewAuthHandlers(users services.UserService, opts ...AuthHandlerOption) *AuthHandlers {
	h := &AuthHandlers{
		users:   users,
		limiter: newSimpleRateLimiter(loginRateLimit, loginRateWindow, nil),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the /auth endpoints.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionPayload struct {
	User             userPayload `json:"user"`
	AccessToken      string      `json:"accessToken"`
	RefreshToken     string      `json:"refreshToken"`
	AccessExpiresAt  time.Time   `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time   `json:"refreshExpiresAt"`
}

type userPayload struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many attempts, retry later", http.StatusTooManyRequests))
		return
	}

	var req registerRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	session, err := h.users.Register(ctx, services.RegisterCommand{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, "account created", buildSessionPayload(session))
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.allow(r) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many attempts, retry later", http.StatusTooManyRequests))
		return
	}

	var req loginRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	session, err := h.users.Login(ctx, services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "login successful", buildSessionPayload(session))
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req refreshRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	session, err := h.users.Refresh(ctx, services.RefreshCommand{RefreshToken: req.RefreshToken})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "token refreshed", buildSessionPayload(session))
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req refreshRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	if err := h.users.Logout(ctx, services.LogoutCommand{RefreshToken: req.RefreshToken}); err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandlers) allow(r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(r.RemoteAddr)
}

func decodeAuthBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodySize))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func buildSessionPayload(session services.AuthSession) sessionPayload {
	return sessionPayload{
		User:             buildUserPayload(session.User),
		AccessToken:      session.AccessToken,
		RefreshToken:     session.RefreshToken,
		AccessExpiresAt:  session.AccessExpiresAt,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}
}

func buildUserPayload(user services.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "email address already registered", http.StatusConflict))
	case errors.Is(err, services.ErrUserInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "email or password incorrect", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserTokenInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_token", "refresh token invalid or expired", http.StatusUnauthorized))
	case errors.Is(err, services.ErrUserBlocked):
		httpx.WriteError(ctx, w, httpx.NewError("account_blocked", "account is blocked", http.StatusForbidden))
	case errors.Is(err, services.ErrUserAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions", http.StatusForbidden))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
