package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitio/pdp-sidecar/cache"
	"github.com/permitio/pdp-sidecar/opaclient"
)

func newTestDecisionHandler(t *testing.T, opaHandler http.HandlerFunc) *DecisionHandler {
	t.Helper()
	opa := httptest.NewServer(opaHandler)
	t.Cleanup(opa.Close)

	raw := opaclient.New(opa.URL, 2*time.Second, zerolog.Nop())
	backend := cache.NewMemoryBackend(1000, time.Minute)
	cached := opaclient.NewCachedClient(raw, backend, nil, zerolog.Nop(), false)
	return NewDecisionHandler(cached, nil, zerolog.Nop())
}

func TestAllowedHandlerReturnsDecision(t *testing.T) {
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":true}}`))
	})

	body := `{"user":{"key":"u1"},"action":"read","resource":{"type":"document","key":"doc1"}}`
	req := httptest.NewRequest(http.MethodPost, "/allowed", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Allowed(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var result opaclient.AllowedResult
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &result))
	assert.True(t, result.Allow)
}

func TestAllowedHandlerRejectsMissingResourceType(t *testing.T) {
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("opa should not be called for an invalid request")
	})

	body := `{"user":{"key":"u1"},"action":"read","resource":{"key":"doc1"}}`
	req := httptest.NewRequest(http.MethodPost, "/allowed", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Allowed(rw, req)

	require.Equal(t, http.StatusUnprocessableEntity, rw.Code)
}

func TestAllowedBulkHandlerReusesCacheAcrossCalls(t *testing.T) {
	var calls int
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":[{"allow":true},{"allow":false}]}}`))
	})

	body := `{"checks":[
		{"user":{"key":"u1"},"action":"read","resource":{"type":"doc","key":"1"}},
		{"user":{"key":"u1"},"action":"write","resource":{"type":"doc","key":"1"}}
	]}`

	req1 := httptest.NewRequest(http.MethodPost, "/allowed/bulk", strings.NewReader(body))
	rw1 := httptest.NewRecorder()
	h.AllowedBulk(rw1, req1)
	require.Equal(t, http.StatusOK, rw1.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/allowed/bulk", strings.NewReader(body))
	rw2 := httptest.NewRecorder()
	h.AllowedBulk(rw2, req2)
	require.Equal(t, http.StatusOK, rw2.Code)

	assert.Equal(t, 1, calls, "second bulk call should be served entirely from cache")
}

func TestUserPermissionsHandlerReturnsPermissionsField(t *testing.T) {
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"permissions":{"doc:1":{"read":true}}}}`))
	})

	body := `{"user":{"key":"u1"}}`
	req := httptest.NewRequest(http.MethodPost, "/user-permissions", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.UserPermissions(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"doc:1":{"read":true}}`, rw.Body.String())
}

func TestUserPermissionsHandlerRejectsMissingUserKey(t *testing.T) {
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("opa should not be called for an invalid request")
	})

	req := httptest.NewRequest(http.MethodPost, "/user-permissions", strings.NewReader(`{}`))
	rw := httptest.NewRecorder()
	h.UserPermissions(rw, req)

	require.Equal(t, http.StatusUnprocessableEntity, rw.Code)
}

func TestAuthorizedUsersHandlerReturnsResult(t *testing.T) {
	h := newTestDecisionHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"result":{"resource":"doc:1","tenant":"default","users":{"read":[{"user":"u1"}]}}}}`))
	})

	body := `{"resource":{"type":"doc","key":"1"},"action":"read"}`
	req := httptest.NewRequest(http.MethodPost, "/authorized_users", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.AuthorizedUsers(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var result opaclient.AuthorizedUsersResult
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &result))
	assert.Equal(t, "doc:1", result.Resource)
}

func TestParseCheckCache(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health?check_cache=true", nil)
	assert.True(t, parseCheckCache(req))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	assert.False(t, parseCheckCache(req))
}
