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
	"github.com/permitio/pdp-sidecar/trino"
)

// newTestTrinoHandler builds a TrinoHandler backed by an OPA mock that
// allows everything except the table/column tags listed in denied.
func newTestTrinoHandler(t *testing.T, config *trino.AuthzConfig, denied map[string]bool) *TrinoHandler {
	t.Helper()
	opa := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		respond := func(allow bool) opaclient.AllowedResult {
			return opaclient.AllowedResult{Allow: allow}
		}

		if r.URL.Path == "/v1/data/permit/root" {
			var q opaclient.AllowedQuery
			require.NoError(t, json.Unmarshal(body.Input, &q))
			encoded, _ := json.Marshal(respond(!denied[q.Resource.Type]))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"result":` + string(encoded) + `}`))
			return
		}

		var bulk opaclient.BulkAuthorizationQuery
		require.NoError(t, json.Unmarshal(body.Input, &bulk))
		results := make([]opaclient.AllowedResult, len(bulk.Checks))
		for i, c := range bulk.Checks {
			results[i] = respond(!denied[c.Resource.Type])
		}
		encoded, _ := json.Marshal(opaclient.BulkAuthorizationResult{Allow: results})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":` + string(encoded) + `}`))
	}))
	t.Cleanup(opa.Close)

	raw := opaclient.New(opa.URL, 2*time.Second, zerolog.Nop())
	backend := cache.NewMemoryBackend(1000, time.Minute)
	cached := opaclient.NewCachedClient(raw, backend, nil, zerolog.Nop(), false)
	return NewTrinoHandler(cached, config, nil, zerolog.Nop())
}

func trinoContextJSON() string {
	return `"context":{"identity":{"user":"alice","groups":["analysts"]},"softwareStack":{"trinoVersion":"435"}}`
}

func TestTrinoAllowedHandlerAllowsTable(t *testing.T) {
	h := newTestTrinoHandler(t, &trino.AuthzConfig{}, map[string]bool{})

	body := `{"input":{` + trinoContextJSON() + `,"action":{"operation":"SelectFromColumns","resource":{"table":{"catalogName":"c","schemaName":"s","tableName":"t"}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/trino/allowed", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Allowed(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp trino.Response[bool]
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	assert.True(t, resp.Result)
}

func TestTrinoAllowedHandlerDeniesColumnWhenTableAndColumnBothDenied(t *testing.T) {
	tableTag := "trino_table_c_s_t"
	columnTag := "trino_column_c_s_t_secret"
	h := newTestTrinoHandler(t, &trino.AuthzConfig{}, map[string]bool{tableTag: true, columnTag: true})

	body := `{"input":{` + trinoContextJSON() + `,"action":{"operation":"SelectFromColumns","resource":{"table":{"catalogName":"c","schemaName":"s","tableName":"t","columns":["secret"]}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/trino/allowed", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Allowed(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp trino.Response[bool]
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	assert.False(t, resp.Result)
}

func TestTrinoAllowedHandlerRejectsMissingOperation(t *testing.T) {
	h := newTestTrinoHandler(t, &trino.AuthzConfig{}, map[string]bool{})

	body := `{"input":{` + trinoContextJSON() + `,"action":{"resource":{"table":{"catalogName":"c","schemaName":"s","tableName":"t"}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/trino/allowed", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.Allowed(rw, req)

	require.Equal(t, http.StatusUnprocessableEntity, rw.Code)
}

func TestTrinoRowFilterHandlerEmitsConfiguredExpression(t *testing.T) {
	tableTag := "trino_table_c_s_t"
	config := &trino.AuthzConfig{
		RowFilters: map[string][]trino.RowFilterRule{
			tableTag: {{Action: "region_filter", Expression: "region = 'us'"}},
		},
	}
	h := newTestTrinoHandler(t, config, map[string]bool{})

	body := `{"input":{` + trinoContextJSON() + `,"action":{"operation":"SelectFromColumns","resource":{"table":{"catalogName":"c","schemaName":"s","tableName":"t"}}}}}`
	req := httptest.NewRequest(http.MethodPost, "/trino/row-filter", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.RowFilter(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp trino.Response[[]trino.RowFilterResult]
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	require.Len(t, resp.Result, 1)
	assert.Equal(t, "region = 'us'", resp.Result[0].Expression)
}

func TestTrinoBatchColumnMaskingHandlerReturnsEmptyWhenUnconfigured(t *testing.T) {
	h := newTestTrinoHandler(t, &trino.AuthzConfig{}, map[string]bool{})

	body := `{"input":{` + trinoContextJSON() + `,"action":{"operation":"SelectFromColumns","filterResources":[{"column":{"catalogName":"c","schemaName":"s","tableName":"t","columnName":"secret","columnType":"varchar"}}]}}}`
	req := httptest.NewRequest(http.MethodPost, "/trino/batch-column-masking", strings.NewReader(body))
	rw := httptest.NewRecorder()
	h.BatchColumnMasking(rw, req)

	require.Equal(t, http.StatusOK, rw.Code)
	var resp trino.Response[[]trino.ColumnMaskResult]
	require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &resp))
	assert.Empty(t, resp.Result)
}
