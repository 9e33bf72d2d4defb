package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/bookleaf/api/internal/domain"
	"github.com/bookleaf/api/internal/platform/auth"
	"github.com/bookleaf/api/internal/platform/httpx"
	"github.com/bookleaf/api/internal/platform/pagination"
	"github.com/bookleaf/api/internal/services"
)

// UserHandlers serves the authenticated profile endpoint and the admin-only
// account administration endpoints.
type UserHandlers struct {
	users services.UserService
	authn *auth.Authenticator
}

// NewUserHandlers constructs a new UserHandlers instance.
func NewUserHandlers(users services.UserService, authn *auth.Authenticator) *UserHandlers {
	return &UserHandlers{users: users, authn: authn}
}

// Routes registers the /users endpoints.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		g.Use(h.authn.RequireAuth(auth.RoleAdmin, auth.RoleUser))
		g.Get("/me", h.me)
	})

	r.Group(func(g chi.Router) {
		g.Use(h.authn.RequireAuth(auth.RoleAdmin))
		g.Get("/", h.list)
		g.Get("/{userID}", h.get)
		g.Patch("/{userID}/role", h.changeRole)
	})
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *UserHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	user, err := h.users.GetUser(ctx, actor.ID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildUserPayload(user))
}

func (h *UserHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.Parse(r.URL.Query(), pagination.Options{
		DefaultPageSize: 20,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.users.ListUsers(ctx, services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}

	items := make([]userPayload, 0, len(page.Items))
	for _, user := range page.Items {
		items = append(items, buildUserPayload(user))
	}
	httpx.WriteJSON(w, http.StatusOK, "", map[string]any{
		"items":         items,
		"nextPageToken": page.NextPageToken,
	})
}

func (h *UserHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return
	}

	user, err := h.users.GetUser(ctx, chi.URLParam(r, "userID"))
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "", buildUserPayload(user))
}

func (h *UserHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.requireActor(ctx, w)
	if !ok {
		return
	}

	var req changeRoleRequest
	if !decodeAuthBody(ctx, w, r, &req) {
		return
	}

	user, err := h.users.ChangeRole(ctx, services.ChangeRoleCommand{
		Actor:  actor,
		UserID: chi.URLParam(r, "userID"),
		Role:   req.Role,
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, "role updated", buildUserPayload(user))
}

func (h *UserHandlers) requireActor(ctx context.Context, w http.ResponseWriter) (services.Actor, bool) {
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
		return services.Actor{}, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{
		ID:   identity.UID,
		Role: domain.Role(strings.ToLower(identity.Role)),
	}, true
}
