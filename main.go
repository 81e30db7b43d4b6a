package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/permitio/pdp-sidecar/cache"
	"github.com/permitio/pdp-sidecar/config"
	"github.com/permitio/pdp-sidecar/horizonproxy"
	"github.com/permitio/pdp-sidecar/logger"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/opaclient"
	"github.com/permitio/pdp-sidecar/redisclient"
	"github.com/permitio/pdp-sidecar/router"
	"github.com/permitio/pdp-sidecar/supervisor"
	"github.com/permitio/pdp-sidecar/trino"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Int("port", cfg.Port).Msg("pdp sidecar starting")

	if cfg.Cache.Store == config.CacheStoreRedis {
		// Fail fast: a misconfigured Redis URL should surface at startup,
		// not on the first request that needs the cache.
		probe, err := redisclient.New(cfg.Cache.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		if err := probe.Ping(); err != nil {
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		_ = probe.Close()
		log.Info().Msg("redis connected")
	}

	cacheBackend, err := cache.New(cfg.Cache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct cache backend")
	}

	metrics := observability.NewMetrics(log)

	trinoConfig := trino.LoadConfig(cfg.TrinoAuthzConfigPath, log)

	rawOPA := opaclient.New(cfg.OPA.URL, cfg.OPA.ClientQueryTimeout, log)
	cachedOPA := opaclient.NewCachedClient(rawOPA, cacheBackend, metrics, log, cfg.UseNewAuthorizedUsers)

	proxy := horizonproxy.New(cfg.Horizon.BaseURL(), cfg.Horizon.ClientTimeout, log)

	horizonSpec := supervisor.Spec{
		Program: cfg.Horizon.PythonPath,
		Args: []string{
			"-m", "uvicorn", "horizon.main:app",
			"--host", cfg.Horizon.Host,
			"--port", fmt.Sprintf("%d", cfg.Horizon.Port),
		},
		Env: os.Environ(),
	}

	sup, err := supervisor.Start(horizonSpec, log, cfg.Horizon.RestartInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start horizon")
	}

	horizonHTTP := &http.Client{Timeout: cfg.HealthCheckTimeout}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), cfg.Horizon.StartupDelay+cfg.Horizon.HealthCheckFailureTimeout)
	if err := supervisor.WaitForHealthy(startupCtx, horizonHTTP, cfg.Horizon.BaseURL(), cfg.Horizon.HealthCheckFailureTimeout); err != nil {
		log.Warn().Err(err).Msg("horizon did not become healthy within the startup window, continuing anyway")
	} else {
		log.Info().Msg("horizon is healthy")
	}
	cancelStartup()

	monitorCtx, cancelMonitor := context.WithCancel(sup.ShutdownToken())
	monitor := supervisor.NewHealthMonitor(sup, cfg.Horizon.BaseURL(), horizonHTTP, log, cfg.Horizon.HealthCheckInterval, cfg.Horizon.HealthCheckFailureTimeout)
	go monitor.Run(monitorCtx)

	handlerChain := router.NewRouter(router.Deps{
		Config:      cfg,
		Logger:      log,
		OPA:         cachedOPA,
		Cache:       cacheBackend,
		TrinoConfig: trinoConfig,
		Proxy:       proxy,
		Metrics:     metrics,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handlerChain,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("pdp sidecar listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	shutdownToken := sup.ShutdownToken()
	select {
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server exited unexpectedly")
		}
	case <-shutdownToken.Done():
		log.Info().Msg("shutdown signal received, draining connections")
	}

	cancelMonitor()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful http shutdown failed, forcing close")
		_ = srv.Close()
	} else {
		log.Info().Msg("http server stopped gracefully")
	}

	if err := sup.Stop(cfg.Horizon.TerminationTimeout); err != nil {
		log.Warn().Err(err).Msg("failed to stop horizon cleanly")
	}

	log.Info().Msg("pdp sidecar shut down")
}
