package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/optimis/resque-pool/internal/pool"
	"github.com/optimis/resque-pool/internal/poolconfig"
	"github.com/optimis/resque-pool/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// PoolAccessor is the subset of the pool exposed remotely.
type PoolAccessor interface {
	Snapshot() storage.Snapshot
	Reload() error
	HookCount() int
}

// Handler exposes a fixed set of pool operations over HTTP.
type Handler struct {
	pool PoolAccessor

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler for p.
func NewHandler(p PoolAccessor, opts ...HandlerOption) *Handler {
	h := &Handler{
		pool: p,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, newConfigResponse(h.pool.Snapshot(), ""))
}

func (h *Handler) handleGetWorkerKey(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	snapshot := h.pool.Snapshot()

	count, ok := snapshot.Config[key]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown worker key", "no worker count configured for "+key)
		return
	}

	resp := workerKeyResponse{
		Key:         key,
		WorkerTypes: poolconfig.SplitWorkerKey(key),
		Count:       count,
		Environment: snapshot.Environment,
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleReload(w http.ResponseWriter, r *http.Request) {
	_ = r
	if err := h.pool.Reload(); err != nil {
		switch {
		case errors.Is(err, pool.ErrNoReloadSource):
			writeError(w, http.StatusConflict, "Reload unavailable", err.Error())
		case errors.Is(err, poolconfig.ErrConfigLoad):
			writeError(w, http.StatusUnprocessableEntity, "Invalid pool config", err.Error(), "the previous configuration is still active")
		default:
			writeInternalError(w, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, newConfigResponse(h.pool.Snapshot(), "Pool config reloaded successfully"))
}

func (h *Handler) handleHooks(w http.ResponseWriter, r *http.Request) {
	_ = r
	writeJSON(w, http.StatusOK, hooksResponse{Registered: h.pool.HookCount()})
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func newConfigResponse(s storage.Snapshot, message string) configResponse {
	return configResponse{
		Config:      s.Config,
		Environment: s.Environment,
		Source:      s.Source,
		LoadedAt:    s.LoadedAt,
		Generation:  s.Generation,
		Message:     message,
	}
}

type configResponse struct {
	Config      map[string]int `json:"config"`
	Environment string         `json:"environment,omitempty"`
	Source      string         `json:"source,omitempty"`
	LoadedAt    time.Time      `json:"loadedAt"`
	Generation  uint64         `json:"generation"`
	Message     string         `json:"message,omitempty"`
}

type workerKeyResponse struct {
	Key         string   `json:"key"`
	WorkerTypes []string `json:"workerTypes"`
	Count       int      `json:"count"`
	Environment string   `json:"environment,omitempty"`
}

type hooksResponse struct {
	Registered int `json:"registered"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
