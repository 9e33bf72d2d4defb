package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bookleaf/api/internal/platform/auth"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v - body %s", err, rec.Body.String())
	}
	return env
}

type stubVerifier struct {
	identities map[string]*auth.Identity
}

func (s *stubVerifier) VerifyAccessToken(_ context.Context, token string) (*auth.Identity, error) {
	if identity, ok := s.identities[token]; ok {
		return identity, nil
	}
	return nil, auth.ErrTokenInvalid
}

func newTestAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(&stubVerifier{identities: map[string]*auth.Identity{
		"admin-token":   {UID: "user-admin", Email: "admin@example.com", Role: auth.RoleAdmin},
		"user-token":    {UID: "user-1", Email: "reader@example.com", Role: auth.RoleUser},
		"other-token":   {UID: "user-2", Email: "other@example.com", Role: auth.RoleUser},
		"blocked-token": {UID: "user-blocked", Email: "blocked@example.com", Role: auth.RoleBlocked},
	}})
}

func authRequest(method, target, token string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestRouterServesHealthz(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "route_not_found" {
		t.Fatalf("expected route_not_found, got %q", env.Error)
	}
}

func TestRouterUnconfiguredGroupReturnsNotImplemented(t *testing.T) {
	router := NewRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books", nil))

	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "not_implemented" {
		t.Fatalf("expected not_implemented, got %q", env.Error)
	}
}

func TestRouterMountsRegistrars(t *testing.T) {
	router := NewRouter(
		WithBookRoutes(func(r chi.Router) {
			r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/books/ping", nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}
