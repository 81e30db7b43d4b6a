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
	"github.com/permitio/pdp-sidecar/translate"
)

func newTestAuthZenHandler(t *testing.T, opaHandler http.HandlerFunc) *AuthZenHandler {
	t.Helper()
	opa := httptest.NewServer(opaHandler)
	t.Cleanup(opa.Close)

	raw := opaclient.New(opa.URL, 2*time.Second, zerolog.Nop())
	backend := cache.NewMemoryBackend(1000, time.Minute)
	cached := opaclient.NewCachedClient(raw, backend, nil, zerolog.Nop(), false)
	return NewAuthZenHandler(cached, nil, zerolog.Nop())
}

func TestEvaluationHandlerReturnsDecision(t *testing.T) {
	h := newTestAuthZenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":true}}`))
	})

	body := `{"subject":{"type":"user","id":"u1"},"resource":{"type":"document","id":"doc1"},"action":{"name":"read"}}`
	req := httptest.NewRequest(http.MethodPost, "/access/v1/evaluation", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Evaluation(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp translate.AccessEvaluationResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	assert.True(t, resp.Decision)
}

func TestEvaluationHandlerRejectsMissingSubject(t *testing.T) {
	h := newTestAuthZenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("opa should not be called for an invalid request")
	})

	body := `{"resource":{"type":"document","id":"doc1"},"action":{"name":"read"}}`
	req := httptest.NewRequest(http.MethodPost, "/access/v1/evaluation", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Evaluation(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Code, "authzen validation errors map to 400, not 422")
}

func TestEvaluationsHandlerMergesBatchDefaults(t *testing.T) {
	h := newTestAuthZenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":[{"allow":true},{"allow":false}]}}`))
	})

	body := `{
		"subject":{"type":"user","id":"u1"},
		"action":{"name":"read"},
		"evaluations":[
			{"resource":{"type":"document","id":"doc1"}},
			{"resource":{"type":"document","id":"doc2"}}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/access/v1/evaluations", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Evaluations(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp translate.AccessEvaluationsResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Len(t, resp.Evaluations, 2)
	assert.True(t, resp.Evaluations[0].Decision)
	assert.False(t, resp.Evaluations[1].Decision)
}

func TestSearchActionHandlerRejectsMissingSubjectID(t *testing.T) {
	h := newTestAuthZenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("opa should not be called for an invalid request")
	})

	body := `{"subject":{"type":"user"},"resource":{"type":"document","id":"doc1"}}`
	req := httptest.NewRequest(http.MethodPost, "/access/v1/search/action", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.SearchAction(rw, req)

	require.Equal(t, http.StatusBadRequest, rw.Code)
}

func TestSearchSubjectHandlerReturnsResults(t *testing.T) {
	h := newTestAuthZenHandler(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"result":{"resource":"document:doc1","tenant":"default","users":{"u1":[{"user":"u1","tenant":"default","role":"viewer"}]}}}}`))
	})

	body := `{"resource":{"type":"document","id":"doc1"},"action":{"name":"read"}}`
	req := httptest.NewRequest(http.MethodPost, "/access/v1/search/subject", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.SearchSubject(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp translate.SubjectSearchResponse
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "u1", resp.Results[0].ID)
}
