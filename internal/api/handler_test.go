package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/optimis/resque-pool/internal/environment"
	"github.com/optimis/resque-pool/internal/pool"
	"github.com/optimis/resque-pool/internal/storage"
)

var fixedNow = time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	t.Setenv(environment.RackEnvVar, "")
	t.Setenv(environment.PoolEnvVar, "")

	return pool.New(
		pool.WithLogger(zaptest.NewLogger(t)),
		pool.WithClock(func() time.Time { return fixedNow }),
	)
}

func setupTestRouter(t *testing.T, p PoolAccessor) http.Handler {
	t.Helper()

	handler := NewHandler(p, WithClock(func() time.Time { return fixedNow }))
	logger := zaptest.NewLogger(t)
	return NewRouter(handler, logger, WithLogging(false))
}

func writePoolFile(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resque-pool.yml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write pool file: %v", err)
	}
	return path
}

type stubPool struct {
	snapshot  storage.Snapshot
	reloadErr error
	hooks     int
}

func (s *stubPool) Snapshot() storage.Snapshot { return s.snapshot }
func (s *stubPool) Reload() error              { return s.reloadErr }
func (s *stubPool) HookCount() int             { return s.hooks }

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, errors.New("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := setupTestRouter(t, newTestPool(t))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || !resp.Timestamp.Equal(fixedNow) {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestGetConfigReturnsSnapshot(t *testing.T) {
	p := newTestPool(t)
	p.EnvironmentFlag().Set("test")
	if err := p.InitConfig(map[string]any{
		"foo":  8,
		"test": map[string]any{"bar": 10, "foo,bar": 12},
	}); err != nil {
		t.Fatalf("InitConfig returned error: %v", err)
	}
	router := setupTestRouter(t, p)

	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp configResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Environment != "test" || resp.Source != "memory" || resp.Generation != 1 {
		t.Fatalf("unexpected metadata %+v", resp)
	}
	want := map[string]int{"foo": 8, "bar": 10, "foo,bar": 12}
	if len(resp.Config) != len(want) {
		t.Fatalf("expected %v, got %v", want, resp.Config)
	}
	for k, v := range want {
		if resp.Config[k] != v {
			t.Fatalf("expected %s=%d, got %v", k, v, resp.Config)
		}
	}
	if !resp.LoadedAt.Equal(fixedNow) {
		t.Fatalf("unexpected loadedAt %s", resp.LoadedAt)
	}
}

func TestGetWorkerKey(t *testing.T) {
	p := newTestPool(t)
	if err := p.InitConfig(map[string]any{"foo,bar": 3, "baz": 1}); err != nil {
		t.Fatalf("InitConfig returned error: %v", err)
	}
	router := setupTestRouter(t, p)

	t.Run("grouped key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/config/foo,bar", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var resp workerKeyResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Count != 3 || len(resp.WorkerTypes) != 2 || resp.WorkerTypes[0] != "foo" || resp.WorkerTypes[1] != "bar" {
			t.Fatalf("unexpected response %+v", resp)
		}
	})

	t.Run("differently ordered group is distinct", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/config/bar,foo", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rec.Code)
		}
	})
}

func TestReloadEndpoint(t *testing.T) {
	p := newTestPool(t)
	path := writePoolFile(t, "foo: 1\n")
	if err := p.InitConfig(path); err != nil {
		t.Fatalf("InitConfig returned error: %v", err)
	}
	router := setupTestRouter(t, p)

	if err := os.WriteFile(path, []byte("foo: 4\nbar: 2\n"), 0o600); err != nil {
		t.Fatalf("rewrite pool file: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp configResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Config["foo"] != 4 || resp.Config["bar"] != 2 || resp.Generation != 2 {
		t.Fatalf("unexpected reload response %+v", resp)
	}
	if resp.Message == "" {
		t.Fatalf("expected confirmation message")
	}
}

func TestReloadEndpointRejectsInvalidFile(t *testing.T) {
	p := newTestPool(t)
	path := writePoolFile(t, "foo: 1\n")
	if err := p.InitConfig(path); err != nil {
		t.Fatalf("InitConfig returned error: %v", err)
	}
	router := setupTestRouter(t, p)

	if err := os.WriteFile(path, []byte("foo: [\n"), 0o600); err != nil {
		t.Fatalf("rewrite pool file: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
	if got := p.Config()["foo"]; got != 1 {
		t.Fatalf("expected previous config to stay active, got foo=%d", got)
	}
}

func TestReloadEndpointWithoutFileSource(t *testing.T) {
	router := setupTestRouter(t, newTestPool(t))

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
}

func TestReloadEndpointUnexpectedError(t *testing.T) {
	router := setupTestRouter(t, &stubPool{reloadErr: errors.New("disk on fire")})

	req := httptest.NewRequest(http.MethodPost, "/api/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}

func TestHooksEndpoint(t *testing.T) {
	router := setupTestRouter(t, &stubPool{hooks: 3})

	req := httptest.NewRequest(http.MethodGet, "/api/hooks", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp hooksResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Registered != 3 {
		t.Fatalf("expected 3 hooks, got %d", resp.Registered)
	}
}

func TestUnknownOperationsAreNotExposed(t *testing.T) {
	router := setupTestRouter(t, newTestPool(t))

	for _, tc := range []struct{ method, path string }{
		{http.MethodDelete, "/api/config"},
		{http.MethodPost, "/api/hooks"},
		{http.MethodGet, "/api/eval"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: expected 404 or 405, got %d", tc.method, tc.path, rec.Code)
		}
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router := setupTestRouter(t, newTestPool(t))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}
}
