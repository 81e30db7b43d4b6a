package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/errs"
	"github.com/permitio/pdp-sidecar/observability"
	"github.com/permitio/pdp-sidecar/opaclient"
	"github.com/permitio/pdp-sidecar/translate"
)

// AuthZenHandler serves the three AuthZen endpoint families: single and
// batch evaluation, and the action/resource/subject search variants. Every
// handler here is a thin shell around translate's pure mapping functions
// plus one call into the cached OPA client.
type AuthZenHandler struct {
	client  *opaclient.CachedClient
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAuthZenHandler(client *opaclient.CachedClient, metrics *observability.Metrics, logger zerolog.Logger) *AuthZenHandler {
	return &AuthZenHandler{client: client, metrics: metrics, logger: logger.With().Str("component", "authzen_handler").Logger()}
}

// Evaluation serves POST /access/v1/evaluation.
func (h *AuthZenHandler) Evaluation(w http.ResponseWriter, r *http.Request) {
	var req translate.AccessEvaluationRequest
	if err := decodeBody(r, &req); err != nil {
		writeAuthZenErr(w, err)
		return
	}
	if err := translate.ValidateEvaluationRequest(req); err != nil {
		writeAuthZenErr(w, err)
		return
	}

	query := translate.ToAllowedQuery(req)
	result, err := h.client.QueryAllowedCached(r.Context(), query, parseCacheControl(r))
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translate.FromAllowedResult(result))
}

// Evaluations serves POST /access/v1/evaluations — the batch form.
func (h *AuthZenHandler) Evaluations(w http.ResponseWriter, r *http.Request) {
	var req translate.AccessEvaluationsRequest
	if err := decodeBody(r, &req); err != nil {
		writeAuthZenErr(w, err)
		return
	}

	queries, err := translate.ToBulkAllowedQueries(req)
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	result, err := h.client.QueryAllowedBulkCached(r.Context(), queries, parseCacheControl(r))
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translate.FromBulkAllowedResult(result))
}

// SearchAction serves POST /access/v1/search/action.
func (h *AuthZenHandler) SearchAction(w http.ResponseWriter, r *http.Request) {
	var req translate.ActionSearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeAuthZenErr(w, err)
		return
	}
	if req.Subject.ID == "" {
		writeAuthZenErr(w, errs.Validation("subject.id is required"))
		return
	}

	query := translate.ToUserPermissionsQueryForActionSearch(req)
	raw, err := h.client.QueryUserPermissionsCached(r.Context(), query, parseCacheControl(r))
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translate.ParseActionSearchResult(raw))
}

// SearchResource serves POST /access/v1/search/resource.
func (h *AuthZenHandler) SearchResource(w http.ResponseWriter, r *http.Request) {
	var req translate.ResourceSearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeAuthZenErr(w, err)
		return
	}
	if req.Subject.ID == "" {
		writeAuthZenErr(w, errs.Validation("subject.id is required"))
		return
	}

	query := translate.ToUserPermissionsQueryForResourceSearch(req)
	raw, err := h.client.QueryUserPermissionsCached(r.Context(), query, parseCacheControl(r))
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translate.ParseResourceSearchResult(raw))
}

// SearchSubject serves POST /access/v1/search/subject.
func (h *AuthZenHandler) SearchSubject(w http.ResponseWriter, r *http.Request) {
	var req translate.SubjectSearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeAuthZenErr(w, err)
		return
	}
	if req.Resource.Type == "" || req.Action.Name == "" {
		writeAuthZenErr(w, errs.Validation("resource.type and action.name are required"))
		return
	}

	query := translate.ToAuthorizedUsersQueryForSubjectSearch(req)
	result, err := h.client.QueryAuthorizedUsersCached(r.Context(), query, parseCacheControl(r))
	if err != nil {
		writeAuthZenErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translate.FromAuthorizedUsersResult(result))
}
