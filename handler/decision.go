// Package handler implements the public HTTP surface: JSON decoding and
// response shaping around the opaclient/translate/trino packages, wired
// together by router.NewRouter. Handlers never talk to OPA or the cache
// directly — they call opaclient.CachedClient and the translate/trino
// helpers and only own the HTTP plumbing (status codes, Cache-Control
// parsing, error bodies).
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/errs"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/opaclient"
	"github.com/permitio/pdp-sidecar/translate"
)

// DecisionHandler serves the point/bulk/user-permissions/authorized-users
// family: the endpoints whose input is already OPA-shaped or close to it.
type DecisionHandler struct {
	client  *opaclient.CachedClient
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewDecisionHandler(client *opaclient.CachedClient, metrics *observability.Metrics, logger zerolog.Logger) *DecisionHandler {
	return &DecisionHandler{client: client, metrics: metrics, logger: logger.With().Str("component", "decision_handler").Logger()}
}

// parseCacheControl reads the client's Cache-Control header into the
// no_cache/no_store directives this sidecar honors. max-age is accepted
// but deliberately not applied here — it is advisory only, per spec.
func parseCacheControl(r *http.Request) opaclient.CacheControl {
	var cc opaclient.CacheControl
	header := r.Header.Get("Cache-Control")
	if header == "" {
		return cc
	}
	for _, directive := range strings.Split(header, ",") {
		switch strings.TrimSpace(strings.ToLower(directive)) {
		case "no-cache":
			cc.NoCache = true
		case "no-store":
			cc.NoStore = true
		}
	}
	return cc
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeAuthZenErr(w http.ResponseWriter, err error) {
	status := errs.AuthZenHTTPStatus(err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errs.Validation("malformed request body: " + err.Error())
	}
	return nil
}

// Allowed serves POST /allowed: a single point check, structurally
// identical to OPA's own input envelope.
func (h *DecisionHandler) Allowed(w http.ResponseWriter, r *http.Request) {
	var q opaclient.AllowedQuery
	if err := decodeBody(r, &q); err != nil {
		writeErr(w, err)
		return
	}
	if q.Resource.Type == "" {
		writeErr(w, errs.Validation("resource.type is required"))
		return
	}

	result, err := h.client.QueryAllowedCached(r.Context(), q, parseCacheControl(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// bulkRequest wraps the public /allowed/bulk shape: a list of checks under
// "checks". OPA's own bulk input is the raw list — the mapping is
// structural, done here rather than in the translate package, since there
// is no transformation beyond unwrapping the envelope.
type bulkRequest struct {
	Checks []opaclient.AllowedQuery `json:"checks"`
}

// AllowedBulk serves POST /allowed/bulk.
func (h *DecisionHandler) AllowedBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	result, err := h.client.QueryAllowedBulkCached(r.Context(), req.Checks, parseCacheControl(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UserPermissions serves POST /user-permissions. The open question in the
// spec about a cache-hit path discarding the cached body is resolved here
// by always returning the cached body (see DESIGN.md).
func (h *DecisionHandler) UserPermissions(w http.ResponseWriter, r *http.Request) {
	var q opaclient.UserPermissionsQuery
	if err := decodeBody(r, &q); err != nil {
		writeErr(w, err)
		return
	}
	if q.User.Key == "" {
		writeErr(w, errs.Validation("user.key is required"))
		return
	}

	raw, err := h.client.QueryUserPermissionsCached(r.Context(), q, parseCacheControl(r))
	if err != nil {
		writeErr(w, err)
		return
	}

	permissions := translate.ExtractPermissions(raw)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(permissions)
}

// AuthorizedUsers serves POST /authorized_users.
func (h *DecisionHandler) AuthorizedUsers(w http.ResponseWriter, r *http.Request) {
	var q opaclient.AuthorizedUsersQuery
	if err := decodeBody(r, &q); err != nil {
		writeErr(w, err)
		return
	}
	if q.Resource.Type == "" {
		writeErr(w, errs.Validation("resource.type is required"))
		return
	}

	result, err := h.client.QueryAuthorizedUsersCached(r.Context(), q, parseCacheControl(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseCheckCache reads the ?check_cache=true query flag the readiness
// handler uses to decide whether to include the cache backend in its probe
// set.
func parseCheckCache(r *http.Request) bool {
	v := r.URL.Query().Get("check_cache")
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
