package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/cache"
	"github.com/permitio/pdp-sidecar/config"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/supervisor"
)

// componentStatus is one entry of a readiness response.
type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// readinessResponse enumerates every component the readiness probe
// checked.
type readinessResponse struct {
	Status     string           `json:"status"`
	Components componentsStatus `json:"components"`
}

type componentsStatus struct {
	Horizon componentStatus  `json:"horizon"`
	OPA     componentStatus  `json:"opa"`
	Cache   *componentStatus `json:"cache,omitempty"`
}

// HealthHandler serves /health, /ready, /healthy, and /startup. All four
// currently share the same aggregation logic; they are kept as distinct
// routes because Horizon-fronting deployments probe them independently
// (startup probes vs liveness vs readiness have different retry policies
// upstream even though this sidecar answers them identically).
type HealthHandler struct {
	cfg      *config.Config
	horizonHTTP *http.Client
	opaHTTP     *http.Client
	cacheBackend cache.Backend
	metrics     *observability.Metrics
	logger      zerolog.Logger
	horizonBaseURL string
	opaBaseURL     string
	checkTimeout   time.Duration
}

func NewHealthHandler(cfg *config.Config, cacheBackend cache.Backend, metrics *observability.Metrics, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:            cfg,
		horizonHTTP:    &http.Client{Timeout: cfg.HealthCheckTimeout},
		opaHTTP:        &http.Client{Timeout: cfg.HealthCheckTimeout},
		cacheBackend:   cacheBackend,
		metrics:        metrics,
		logger:         logger.With().Str("component", "health_handler").Logger(),
		horizonBaseURL: cfg.Horizon.BaseURL(),
		opaBaseURL:     cfg.OPA.URL,
		checkTimeout:   cfg.HealthCheckTimeout,
	}
}

// Check serves every health-family route: it runs the component probes in
// parallel, bounded by the per-check timeout, and answers 200 iff every
// selected component is healthy, else 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checkCache := parseCheckCache(r)

	var wg sync.WaitGroup
	var horizon, opa componentStatus
	var cacheStatus componentStatus

	wg.Add(2)
	go func() {
		defer wg.Done()
		horizon = h.checkHorizon(r.Context())
	}()
	go func() {
		defer wg.Done()
		opa = h.checkOPA(r.Context())
	}()
	if checkCache {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cacheStatus = h.checkCache(r.Context())
		}()
	}
	wg.Wait()

	if h.metrics != nil {
		h.metrics.TrackComponentHealth("horizon", horizon.Status == "ok")
		h.metrics.TrackComponentHealth("opa", opa.Status == "ok")
		if checkCache {
			h.metrics.TrackComponentHealth("cache", cacheStatus.Status == "ok")
		}
	}

	allHealthy := horizon.Status == "ok" && opa.Status == "ok"
	resp := readinessResponse{
		Components: componentsStatus{Horizon: horizon, OPA: opa},
	}
	if checkCache {
		allHealthy = allHealthy && cacheStatus.Status == "ok"
		resp.Components.Cache = &cacheStatus
	}

	status := http.StatusOK
	resp.Status = "ok"
	if !allHealthy {
		status = http.StatusServiceUnavailable
		resp.Status = "error"
	}
	writeJSON(w, status, resp)
}

func (h *HealthHandler) checkHorizon(ctx context.Context) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	if supervisor.IsHealthy(ctx, h.horizonHTTP, h.horizonBaseURL) {
		return componentStatus{Status: "ok"}
	}
	return componentStatus{Status: "error", Error: "horizon is not healthy"}
}

func (h *HealthHandler) checkOPA(ctx context.Context) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opaBaseURL+"/health", nil)
	if err != nil {
		return componentStatus{Status: "error", Error: err.Error()}
	}
	resp, err := h.opaHTTP.Do(req)
	if err != nil {
		return componentStatus{Status: "error", Error: "failed to connect to opa: " + err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return componentStatus{Status: "error", Error: "opa returned non-2xx status"}
	}
	return componentStatus{Status: "ok"}
}

func (h *HealthHandler) checkCache(ctx context.Context) componentStatus {
	ctx, cancel := context.WithTimeout(ctx, h.checkTimeout)
	defer cancel()
	if err := h.cacheBackend.HealthCheck(ctx); err != nil {
		return componentStatus{Status: "error", Error: "cache health check failed: " + err.Error()}
	}
	return componentStatus{Status: "ok"}
}
