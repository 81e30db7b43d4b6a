package translate

import (
	"encoding/json"

	"github.com/permitio/pdp-sidecar/errs"
	"github.com/permitio/pdp-sidecar/opaclient"
)

// ToAllowedQuery maps a single AuthZen evaluation request onto the internal
// AllowedQuery shape OPA expects.
func ToAllowedQuery(req AccessEvaluationRequest) opaclient.AllowedQuery {
	return opaclient.AllowedQuery{
		User: opaclient.User{
			Key:        req.Subject.ID,
			Attributes: req.Subject.Properties,
		},
		Action: req.Action.Name,
		Resource: opaclient.Resource{
			Type:       req.Resource.Type,
			Key:        req.Resource.ID,
			Tenant:     tenantFromProperties(req.Resource.Properties),
			Attributes: req.Resource.Properties,
		},
		Context: req.Context,
		SDK:     "authzen",
	}
}

// tenantFromProperties extracts resource.properties.tenant and coerces it
// to a string the same way the reference implementation does: by taking
// the compact JSON encoding of whatever value is present, not just string
// values. A bare JSON string therefore arrives quoted — this mirrors
// serde_json::Value::to_string() exactly, not a "clean" string extraction.
func tenantFromProperties(properties map[string]interface{}) string {
	if properties == nil {
		return ""
	}
	v, ok := properties["tenant"]
	if !ok {
		return ""
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// FromAllowedResult maps an OPA AllowedResult onto the AuthZen evaluation
// response. debug is preferred over query when both are present.
func FromAllowedResult(result opaclient.AllowedResult) AccessEvaluationResponse {
	resp := AccessEvaluationResponse{Decision: result.Allow}
	if result.Debug != nil {
		resp.Context = result.Debug
	} else if result.Query != nil {
		resp.Context = result.Query
	}
	return resp
}

// ValidateEvaluationRequest reproduces the required-field checks Axum's
// typed JSON extractor performs automatically in the reference
// implementation. Go's encoding/json has no equivalent, so these are
// explicit here.
func ValidateEvaluationRequest(req AccessEvaluationRequest) error {
	if req.Subject.Type == "" || req.Subject.ID == "" {
		return errs.Validation("subject.type and subject.id are required")
	}
	if req.Resource.Type == "" {
		return errs.Validation("resource.type is required")
	}
	if req.Action.Name == "" {
		return errs.Validation("action.name is required")
	}
	return nil
}

// mergeEvaluation applies a batch's defaults to one IndividualEvaluation,
// returning the fully-populated AccessEvaluationRequest and false if any
// required field remains unset after the merge.
func mergeEvaluation(eval IndividualEvaluation, defaults AccessEvaluationsRequest) (AccessEvaluationRequest, bool) {
	var merged AccessEvaluationRequest

	switch {
	case eval.Subject != nil:
		merged.Subject = *eval.Subject
	case defaults.Subject != nil:
		merged.Subject = *defaults.Subject
	default:
		return merged, false
	}

	switch {
	case eval.Resource != nil:
		merged.Resource = *eval.Resource
	case defaults.Resource != nil:
		merged.Resource = *defaults.Resource
	default:
		return merged, false
	}

	switch {
	case eval.Action != nil:
		merged.Action = *eval.Action
	case defaults.Action != nil:
		merged.Action = *defaults.Action
	default:
		return merged, false
	}

	context := make(map[string]interface{}, len(defaults.Context)+len(eval.Context))
	for k, v := range defaults.Context {
		context[k] = v
	}
	for k, v := range eval.Context {
		context[k] = v
	}
	if len(context) > 0 {
		merged.Context = context
	}

	return merged, true
}

// ToBulkAllowedQueries merges every IndividualEvaluation against the
// batch's defaults and converts the result to AllowedQuery, preserving
// input order. It returns a Validation error — mapped to AuthZen's 400
// rather than the general family's 422 — if any evaluation is missing a
// required field after the merge, and a Validation error if the batch
// carries zero evaluations at all.
func ToBulkAllowedQueries(req AccessEvaluationsRequest) ([]opaclient.AllowedQuery, error) {
	if len(req.Evaluations) == 0 {
		return nil, errs.Validation("no evaluations provided")
	}

	queries := make([]opaclient.AllowedQuery, len(req.Evaluations))
	for i, eval := range req.Evaluations {
		merged, ok := mergeEvaluation(eval, req)
		if !ok {
			return nil, errs.Validation("one or more evaluations is missing required fields")
		}
		queries[i] = ToAllowedQuery(merged)
	}
	return queries, nil
}

// FromBulkAllowedResult maps a BulkAuthorizationResult back onto the batch
// AuthZen response, preserving order.
func FromBulkAllowedResult(result opaclient.BulkAuthorizationResult) AccessEvaluationsResponse {
	evaluations := make([]EvaluationResult, len(result.Allow))
	for i, r := range result.Allow {
		single := FromAllowedResult(r)
		evaluations[i] = EvaluationResult{Decision: single.Decision, Context: single.Context}
	}
	return AccessEvaluationsResponse{Evaluations: evaluations}
}
