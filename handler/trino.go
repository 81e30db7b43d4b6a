package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/errs"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/opaclient"
	"github.com/permitio/pdp-sidecar/trino"
)

// TrinoHandler serves Trino's OPA-access-control-plugin endpoints:
// boolean allow, row-filter expressions, and batch column masking. It
// holds the parsed Trino authz config alongside the cached OPA client.
type TrinoHandler struct {
	client  *opaclient.CachedClient
	config  *trino.AuthzConfig
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewTrinoHandler(client *opaclient.CachedClient, config *trino.AuthzConfig, metrics *observability.Metrics, logger zerolog.Logger) *TrinoHandler {
	return &TrinoHandler{client: client, config: config, metrics: metrics, logger: logger.With().Str("component", "trino_handler").Logger()}
}

// Allowed serves POST /trino/allowed.
func (h *TrinoHandler) Allowed(w http.ResponseWriter, r *http.Request) {
	var req trino.Request[trino.AuthzQuery]
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Input.Action.Operation == "" {
		writeErr(w, errs.Validation("action.operation is required"))
		return
	}

	allowed, err := trino.CheckAllowed(r.Context(), h.client, req.Input, parseCacheControl(r), h.logger)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trino.Response[bool]{Result: allowed})
}

// RowFilter serves POST /trino/row-filter.
func (h *TrinoHandler) RowFilter(w http.ResponseWriter, r *http.Request) {
	var req trino.Request[trino.RowFilterQuery]
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	filters, err := trino.RowFilterExpressions(r.Context(), h.client, h.config, req.Input, parseCacheControl(r), h.logger)
	if err != nil {
		writeErr(w, err)
		return
	}
	if filters == nil {
		filters = []trino.RowFilterResult{}
	}
	writeJSON(w, http.StatusOK, trino.Response[[]trino.RowFilterResult]{Result: filters})
}

// BatchColumnMasking serves POST /trino/batch-column-masking.
func (h *TrinoHandler) BatchColumnMasking(w http.ResponseWriter, r *http.Request) {
	var req trino.Request[trino.ColumnMaskQuery]
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, err)
		return
	}

	masks, err := trino.ColumnMasks(r.Context(), h.client, h.config, req.Input, parseCacheControl(r), h.logger)
	if err != nil {
		writeErr(w, err)
		return
	}
	if masks == nil {
		masks = []trino.ColumnMaskResult{}
	}
	writeJSON(w, http.StatusOK, trino.Response[[]trino.ColumnMaskResult]{Result: masks})
}
