package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/bookleaf/api/internal/domain"
)

type stubSystemService struct {
	reportFn func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.reportFn(ctx)
}

func TestHealthzAlwaysOK(t *testing.T) {
	h := NewHealthHandlers(nil)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope, got %s", rec.Body.String())
	}
}

func TestReadyzReportsChecks(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
				},
				GeneratedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	h := NewHealthHandlers(system)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReadyzUnavailableOnErrorStatus(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				},
			}, nil
		},
	}
	h := NewHealthHandlers(system)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "not_ready" {
		t.Fatalf("expected not_ready, got %q", env.Error)
	}
}

func TestReadyzFailsClosedOnReportError(t *testing.T) {
	system := &stubSystemService{
		reportFn: func(context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("probe panic")
		},
	}
	h := NewHealthHandlers(system)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Error != "health_check_failed" {
		t.Fatalf("expected health_check_failed, got %q", env.Error)
	}
}

func TestReadyzWithoutSystemFallsBackToLiveness(t *testing.T) {
	h := NewHealthHandlers(nil)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
