package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"caneharvest/internal/config"
)

// mockMetricsCollector implements MetricsCollector for testing.
type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall
}

type metricsCall struct {
	method, endpoint, status string
	duration                 time.Duration
}

func (m *mockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method, endpoint, status, duration})
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(&config.Config{Environment: "local"}, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func TestNewServer_Success(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	logger := slog.Default()

	srv, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	if srv.Config != cfg {
		t.Error("Config field not set correctly")
	}
	if srv.Logger != logger {
		t.Error("Logger field not set correctly")
	}
	if srv.Validator == nil {
		t.Error("Validator should be initialized")
	}
	if srv.Router() == nil || srv.Handler() == nil {
		t.Error("router should be initialized")
	}
}

func TestNewServer_NilDependencies(t *testing.T) {
	if _, err := NewServer(nil, slog.Default()); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewServer(&config.Config{}, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}

func TestNewServer_ValidatorUsesDatabaseLocation(t *testing.T) {
	srv := newTestServer(t)
	// An unloaded config resolves to UTC.
	if srv.Validator.loc != time.UTC {
		t.Errorf("validator location = %v, want UTC", srv.Validator.loc)
	}
}

func TestShutdown_RunsHooksInOrder(t *testing.T) {
	srv := newTestServer(t)

	var order []string
	srv.ShutdownHooks = []func(context.Context) error{
		func(context.Context) error { order = append(order, "pool"); return nil },
		func(context.Context) error { order = append(order, "metrics"); return errors.New("flush failed") },
		func(context.Context) error { order = append(order, "last"); return nil },
	}

	err := srv.Shutdown(context.Background())
	if err == nil {
		t.Fatal("expected joined error from failing hook")
	}
	if len(order) != 3 || order[0] != "pool" || order[2] != "last" {
		t.Errorf("hooks ran as %v, want all three in order", order)
	}
}

func TestShutdown_NoHooks(t *testing.T) {
	if err := newTestServer(t).Shutdown(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMountRoutes_RegistrarsAndHealth(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: "pong"})
		})
	})
	srv.MountRoutes()

	for _, path := range []string{"/ping", "/health"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s: status %d, want 200", path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/ping", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /v1/ping: status %d, want 404", rec.Code)
	}
}
