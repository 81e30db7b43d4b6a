// Package horizonproxy forwards any request the router doesn't recognize
// on to the Horizon child process, preserving method, headers, query
// string, and body. It is the catch-all behind every typed PDP endpoint:
// anything Horizon's own Python API surface exposes but this sidecar
// hasn't (yet) reimplemented still works by falling through here.
package horizonproxy

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var forwardableMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodPatch:   true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Proxy forwards unmatched requests to Horizon's base URL.
type Proxy struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Proxy {
	return &Proxy{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "horizon_proxy").Logger(),
	}
}

// ServeHTTP forwards r to Horizon and copies the response back verbatim.
// An unsupported HTTP method (e.g. CONNECT) is rejected with 405 without
// ever contacting Horizon.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !forwardableMethods[r.Method] {
		p.logger.Error().Str("method", r.Method).Msg("unsupported http method, refusing to forward")
		http.Error(w, "Unsupported HTTP method: "+r.Method, http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadGateway)
		return
	}

	url := p.baseURL + r.URL.RequestURI()
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, url, bodyReader)
	if err != nil {
		http.Error(w, "Failed to build forwarded request", http.StatusBadGateway)
		return
	}
	for key, values := range r.Header {
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}

	p.logger.Debug().Str("method", r.Method).Str("url", url).Msg("forwarding request to horizon")

	resp, err := p.http.Do(outReq)
	if err != nil {
		message := "Failed to send request: " + err.Error()
		if isTimeout(err) {
			message = "Failed to send request: timed out: " + err.Error()
		}
		p.logger.Error().Err(err).Str("url", url).Msg("horizon fallback request failed")
		http.Error(w, message, http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		http.Error(w, "Failed to read response body", http.StatusBadGateway)
		return
	}

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded")
}
