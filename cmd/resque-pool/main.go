package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/optimis/resque-pool/internal/application"
	"github.com/optimis/resque-pool/internal/config"
	"github.com/optimis/resque-pool/internal/logging"
	"github.com/optimis/resque-pool/internal/pool"
)

var signalNotify = signal.Notify

func main() {
	kingpinApp := kingpin.New("resque-pool", "Resque pool config daemon - resolves worker counts per environment and serves them to the pool supervisor")
	settingsFile := kingpinApp.Flag("settings", "Path to YAML daemon settings file").String()
	poolConfig := kingpinApp.Flag("config", "Path to the pool config file (overrides RESQUE_POOL_CONFIG)").Short('c').String()
	environment := kingpinApp.Flag("environment", "Pool environment; takes precedence over RACK_ENV and RESQUE_ENV").Short('E').String()
	listen := kingpinApp.Flag("listen", "host:port of the remote accessor endpoint").String()
	watch := kingpinApp.Flag("watch", "Reload the pool config when the file changes").Bool()
	logLevel := kingpinApp.Flag("log-level", "Log level (debug, info, warn, error)").Enum("debug", "info", "warn", "error")
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed per client (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity per client (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		SettingsFile:   *settingsFile,
		Listen:         listen,
		PoolConfigFile: poolConfig,
		Environment:    environment,
		LogLevel:       logLevel,
	}

	if *watch {
		overrides.WatchConfig = watch
	}

	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}

	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(cfg, pool.Instance(), logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := app.Start(); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	serve(app.Server(), app.Reload, cfg.ShutdownGracePeriod, logger)
	app.StopWatching()
}

// serve blocks handling signals: SIGHUP reloads the pool config, SIGINT and
// SIGTERM shut the server down.
func serve(server *http.Server, reload func() error, timeout time.Duration, logger *zap.Logger) {
	sigs := make(chan os.Signal, 1)
	signalNotify(sigs, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigs {
		if sig == syscall.SIGHUP {
			logger.Info("reloading pool config", zap.String("signal", sig.String()))
			if err := reload(); err != nil {
				logger.Error("pool config reload failed; keeping current config", zap.Error(err))
			}
			continue
		}
		break
	}

	logger.Info("shutting down server")
	shutdown(server, timeout, logger)
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
