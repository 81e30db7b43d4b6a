package translate

import (
	"encoding/json"

	"github.com/permitio/pdp-sidecar/opaclient"
)

// ParseActionSearchResult decodes a raw OPA user_permissions body into the
// action-search shape, tolerating a missing or malformed "permissions"
// field by returning an empty result rather than an error.
func ParseActionSearchResult(raw json.RawMessage) ActionSearchResponse {
	var parsed opaActionSearchResult
	_ = json.Unmarshal(raw, &parsed)
	return FromActionSearchResult(parsed)
}

// ParseResourceSearchResult decodes the "permissions" map of a raw OPA
// user_permissions body (keyed by resource key, each entry carrying a
// resource) into the resource-search shape.
func ParseResourceSearchResult(raw json.RawMessage) ResourceSearchResponse {
	var parsed map[string]opaResourceSearchEntry
	_ = json.Unmarshal(ExtractPermissions(raw), &parsed)
	return FromResourceSearchResult(parsed)
}

// ToOPAUserPermissionsQuery builds the raw (non-AuthZen) user-permissions
// query forwarded to OPA close to as-is.
func ToOPAUserPermissionsQuery(req UserPermissionsRequest) opaclient.UserPermissionsQuery {
	return opaclient.UserPermissionsQuery{
		User:          req.User,
		Tenants:       req.Tenants,
		Resources:     req.Resources,
		ResourceTypes: req.ResourceTypes,
		Context:       req.Context,
		SDK:           req.SDK,
	}
}

// ExtractPermissions pulls the "permissions" field out of a raw OPA
// user_permissions body, defaulting to an empty object when the field is
// absent — the field is sometimes omitted by OPA when a user has no
// permissions at all, and callers should see `{}` rather than an error.
func ExtractPermissions(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return json.RawMessage(`{}`)
	}
	if permissions, ok := obj["permissions"]; ok {
		return permissions
	}
	return json.RawMessage(`{}`)
}
