// Package translate holds the stateless request/response shaping for every
// public decision endpoint: the AuthZen family's mapping to and from OPA's
// allowed/bulk/user_permissions/authorized_users shapes, and the raw
// user-permissions passthrough. None of these functions talk to OPA
// or the cache directly — callers supply an opaclient.CachedClient and these
// functions do the shaping around it.
package translate

import "github.com/permitio/pdp-sidecar/opaclient"

// AuthZenSubject identifies who is making the request.
type AuthZenSubject struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// AuthZenResource identifies what is being accessed.
type AuthZenResource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// AuthZenAction identifies what is being done.
type AuthZenAction struct {
	Name       string                 `json:"name"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// AccessEvaluationRequest is the single-decision AuthZen request body.
type AccessEvaluationRequest struct {
	Subject  AuthZenSubject         `json:"subject"`
	Resource AuthZenResource        `json:"resource"`
	Action   AuthZenAction          `json:"action"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// AccessEvaluationResponse is the single-decision AuthZen response body.
type AccessEvaluationResponse struct {
	Decision bool                   `json:"decision"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// IndividualEvaluation is one entry of a batch AuthZen request; any field
// left nil falls back to the batch-level default on AccessEvaluationsRequest.
type IndividualEvaluation struct {
	Subject  *AuthZenSubject         `json:"subject,omitempty"`
	Resource *AuthZenResource        `json:"resource,omitempty"`
	Action   *AuthZenAction          `json:"action,omitempty"`
	Context  map[string]interface{}  `json:"context,omitempty"`
}

// AccessEvaluationsRequest is the batch AuthZen request body.
type AccessEvaluationsRequest struct {
	Subject     *AuthZenSubject        `json:"subject,omitempty"`
	Resource    *AuthZenResource       `json:"resource,omitempty"`
	Action      *AuthZenAction         `json:"action,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Evaluations []IndividualEvaluation `json:"evaluations"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

// EvaluationResult is one entry of a batch AuthZen response.
type EvaluationResult struct {
	Decision bool                   `json:"decision"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// AccessEvaluationsResponse is the batch AuthZen response body.
type AccessEvaluationsResponse struct {
	Evaluations []EvaluationResult `json:"evaluations"`
}

// PageRequest/PageResponse carry the AuthZen search pagination envelope.
// Pagination itself is not implemented — every search response reports no
// further pages, matching the reference server's current behavior.
type PageRequest struct {
	NextToken string `json:"next_token,omitempty"`
	Size      int    `json:"size,omitempty"`
}

type PageResponse struct {
	NextToken string `json:"next_token,omitempty"`
}

// ActionSearchRequest asks which actions a subject can perform on a resource.
type ActionSearchRequest struct {
	Subject  AuthZenSubject         `json:"subject"`
	Resource AuthZenResource        `json:"resource"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Page     *PageRequest           `json:"page,omitempty"`
}

type ActionSearchResponse struct {
	Results []AuthZenAction        `json:"results"`
	Page    *PageResponse          `json:"page,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// ResourceSearchRequest asks which resources a subject can access, given an
// action and resource type filter.
type ResourceSearchRequest struct {
	Subject      AuthZenSubject         `json:"subject"`
	Action       *AuthZenAction         `json:"action,omitempty"`
	ResourceType string                 `json:"resource_type,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
	Page         *PageRequest           `json:"page,omitempty"`
}

type ResourceSearchResponse struct {
	Results []AuthZenResource       `json:"results"`
	Page    *PageResponse           `json:"page,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// SubjectSearchRequest asks which subjects can perform an action on a
// resource — the inverse of ResourceSearchRequest, answered through the
// authorized_users OPA rule rather than user_permissions.
type SubjectSearchRequest struct {
	Resource AuthZenResource        `json:"resource"`
	Action   AuthZenAction          `json:"action"`
	Context  map[string]interface{} `json:"context,omitempty"`
	Page     *PageRequest           `json:"page,omitempty"`
}

type SubjectSearchResponse struct {
	Results []AuthZenSubject        `json:"results"`
	Page    *PageResponse           `json:"page,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// UserPermissionsRequest is the raw (non-AuthZen) user-permissions query
// forwarded to OPA essentially as-is.
type UserPermissionsRequest struct {
	User          opaclient.User         `json:"user"`
	Tenants       []string               `json:"tenants,omitempty"`
	Resources     []string               `json:"resources,omitempty"`
	ResourceTypes []string               `json:"resource_types,omitempty"`
	Context       map[string]interface{} `json:"context,omitempty"`
	SDK           string                 `json:"sdk,omitempty"`
}
