// Package router wires the sidecar's public HTTP surface: the decision,
// AuthZen, and Trino endpoint families (backed by opaclient/translate/
// trino), the health/readiness routes, and the catch-all Horizon fallback
// proxy — behind one shared middleware chain.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/cache"
	"github.com/permitio/pdp-sidecar/config"
	"github.com/permitio/pdp-sidecar/handler"
	"github.com/permitio/pdp-sidecar/horizonproxy"
	gwmw "github.com/permitio/pdp-sidecar/middleware"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/opaclient"
	"github.com/permitio/pdp-sidecar/trino"
)

// Deps bundles every dependency the router needs to construct handlers.
// Metrics may be nil (metrics disabled); TrinoConfig may be nil (no Trino
// integration configured).
type Deps struct {
	Config      *config.Config
	Logger      zerolog.Logger
	OPA         *opaclient.CachedClient
	Cache       cache.Backend
	TrinoConfig *trino.AuthzConfig
	Proxy       *horizonproxy.Proxy
	Metrics     *observability.Metrics
}

// NewRouter returns the fully wired chi.Router: the common middleware
// chain, unauthenticated health routes, and the bearer-token-protected
// decision/AuthZen/Trino routes plus the catch-all Horizon fallback.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware chain (order matters) ---
	r.Use(gwmw.CORSMiddleware([]string{"*"}))
	r.Use(gwmw.SecurityHeadersMiddleware)
	r.Use(gwmw.RequestIDMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(gwmw.RequestTimeout(d.Config.RequestTimeout, d.Logger))
	r.Use(requestLogger(d.Logger, d.Metrics))

	// --- Health routes: unauthenticated ---
	healthHandler := handler.NewHealthHandler(d.Config, d.Cache, d.Metrics, d.Logger)
	r.Get("/health", healthHandler.Check)
	r.Get("/ready", healthHandler.Check)
	r.Get("/healthy", healthHandler.Check)
	r.Get("/startup", healthHandler.Check)

	if d.Metrics != nil {
		r.Get("/metrics", d.Metrics.Handler())
	}

	// --- Everything else: bearer-token protected ---
	decisionHandler := handler.NewDecisionHandler(d.OPA, d.Metrics, d.Logger)
	authzenHandler := handler.NewAuthZenHandler(d.OPA, d.Metrics, d.Logger)
	trinoHandler := handler.NewTrinoHandler(d.OPA, d.TrinoConfig, d.Metrics, d.Logger)

	rateLimiter := gwmw.NewRateLimiter(d.Logger, d.Config.RateLimitEnabled, d.Config.RateLimitRPM, d.Config.RateLimitBurst)

	r.Group(func(r chi.Router) {
		r.Use(gwmw.RequireBearerToken(d.Config.APIKey))
		r.Use(rateLimiter.Handler)

		r.Post("/allowed", decisionHandler.Allowed)
		r.Post("/allowed/bulk", decisionHandler.AllowedBulk)
		r.Post("/user-permissions", decisionHandler.UserPermissions)
		r.Post("/authorized_users", decisionHandler.AuthorizedUsers)

		r.Post("/access/v1/evaluation", authzenHandler.Evaluation)
		r.Post("/access/v1/evaluations", authzenHandler.Evaluations)
		r.Post("/access/v1/search/action", authzenHandler.SearchAction)
		r.Post("/access/v1/search/resource", authzenHandler.SearchResource)
		r.Post("/access/v1/search/subject", authzenHandler.SearchSubject)

		r.Post("/trino/allowed", trinoHandler.Allowed)
		r.Post("/trino/row-filter", trinoHandler.RowFilter)
		r.Post("/trino/batch-column-masking", trinoHandler.BatchColumnMasking)

		// Catch-all: anything this sidecar does not recognize falls
		// through to Horizon verbatim. Horizon's own method allow-list
		// is enforced inside horizonproxy.Proxy, not here.
		if d.Proxy != nil {
			r.HandleFunc("/*", d.Proxy.ServeHTTP)
		}
	})

	return r
}

// requestLogger logs one structured line per completed request and, when
// metrics are enabled, records it under pdp_requests_total /
// pdp_request_duration_ms.
func requestLogger(logger zerolog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			dur := time.Since(start)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", chimw.GetReqID(r.Context())).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")

			if metrics != nil {
				metrics.TrackRequest(r.URL.Path, rw.Status(), float64(dur.Milliseconds()))
			}
		})
	}
}
