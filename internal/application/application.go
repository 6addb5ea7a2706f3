package application

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/optimis/resque-pool/internal/api"
	"github.com/optimis/resque-pool/internal/config"
	"github.com/optimis/resque-pool/internal/metrics"
	"github.com/optimis/resque-pool/internal/pool"
	"github.com/optimis/resque-pool/internal/watcher"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	cfg     config.Config
	pool    *pool.Pool
	metrics *metrics.Metrics
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
	watcher *watcher.Watcher

	cancelWatch context.CancelFunc
	watchDone   chan struct{}
	stopOnce    sync.Once
}

// New configures p from cfg, performs the initial pool config load, and
// builds the HTTP surface. The initial load must succeed.
func New(cfg config.Config, p *pool.Pool, logger *zap.Logger) (*App, error) {
	m := metrics.New()
	p.Configure(pool.WithLogger(logger), pool.WithMetrics(m))
	m.SetHooksRegistered(p.HookCount())
	if cfg.Environment != "" {
		p.EnvironmentFlag().Set(cfg.Environment)
	}

	if err := p.InitConfig(cfg.PoolConfigFile); err != nil {
		return nil, fmt.Errorf("failed to load pool config: %w", err)
	}

	handler := api.NewHandler(p)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	app := &App{
		cfg:     cfg,
		pool:    p,
		metrics: m,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(cfg, BuildRootHandler(apiRouter, m.Handler())),
	}

	if cfg.WatchConfig {
		w, err := watcher.New(cfg.PoolConfigFile, p.Reload, watcher.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to watch pool config: %w", err)
		}
		app.watcher = w
	}

	return app, nil
}

// BuildRootHandler mounts the API and the metrics endpoint.
func BuildRootHandler(apiHandler, metricsHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start binds the listen address, then serves HTTP and runs the watcher in
// goroutines. Binding synchronously surfaces address conflicts to the caller.
func (a *App) Start() error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	go func() {
		a.logger.Info("server listening", zap.String("addr", ln.Addr().String()))
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()

	if a.watcher != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancelWatch = cancel
		a.watchDone = make(chan struct{})
		go func() {
			defer close(a.watchDone)
			_ = a.watcher.Run(ctx)
		}()
	}
	return nil
}

// Reload re-reads the pool config file, keeping the current configuration
// when the file is invalid.
func (a *App) Reload() error {
	return a.pool.Reload()
}

// StopWatching stops the config watcher, if any, and waits for it to exit.
func (a *App) StopWatching() {
	a.stopOnce.Do(func() {
		if a.cancelWatch == nil {
			return
		}
		a.cancelWatch()
		<-a.watchDone
	})
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Pool returns the pool the application serves.
func (a *App) Pool() *pool.Pool {
	return a.pool
}
