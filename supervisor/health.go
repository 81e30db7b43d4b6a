package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/errs"
)

// IsHealthy performs a single GET against baseURL + "/healthy" and reports
// whether the response was 2xx.
func IsHealthy(ctx context.Context, client *http.Client, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthy", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// WaitForHealthy polls every 500ms until the child reports healthy, the
// timeout elapses, or cancel fires.
func WaitForHealthy(ctx context.Context, client *http.Client, baseURL string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	if IsHealthy(ctx, client, baseURL) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return errs.New(errs.KindShutdownTriggered, "shutdown triggered while waiting for healthy")
		case <-deadline.C:
			return errs.New(errs.KindHealthCheckTimeout, fmt.Sprintf("health check timeout after %s", timeout))
		case <-ticker.C:
			if IsHealthy(ctx, client, baseURL) {
				return nil
			}
		}
	}
}

// HealthMonitor drives a child's restart lifecycle from its HTTP health
// endpoint: probe on an interval, and on sustained unhealthiness first give
// the child time to self-recover before requesting a supervisor restart.
type HealthMonitor struct {
	client *http.Client
	logger zerolog.Logger

	baseURL        string
	checkInterval  time.Duration
	recoveryTimeout time.Duration

	sup *Supervisor
}

func NewHealthMonitor(sup *Supervisor, baseURL string, client *http.Client, logger zerolog.Logger, checkInterval, recoveryTimeout time.Duration) *HealthMonitor {
	return &HealthMonitor{
		client:          client,
		logger:          logger.With().Str("component", "health_monitor").Logger(),
		baseURL:         baseURL,
		checkInterval:   checkInterval,
		recoveryTimeout: recoveryTimeout,
		sup:             sup,
	}
}

// Run executes the recovery loop described in the supervisor design until
// ctx is cancelled. A checkInterval of zero disables the monitor: Run
// returns immediately.
func (m *HealthMonitor) Run(ctx context.Context) {
	if m.checkInterval <= 0 {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if IsHealthy(ctx, m.client, m.baseURL) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.checkInterval):
				continue
			}
		}

		m.logger.Warn().Msg("child unhealthy, waiting for self-recovery")
		if err := WaitForHealthy(ctx, m.client, m.baseURL, m.recoveryTimeout); err == nil {
			continue
		}

		m.logger.Warn().Msg("self-recovery timed out, restarting child")
		if err := m.sup.Restart(); err != nil {
			m.logger.Error().Err(err).Msg("restart request failed")
			continue
		}

		if err := WaitForHealthy(ctx, m.client, m.baseURL, m.recoveryTimeout); err != nil {
			m.logger.Error().Err(err).Msg("child still unhealthy after restart")
		}
	}
}
