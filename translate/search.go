package translate

import "github.com/permitio/pdp-sidecar/opaclient"

// opaActionSearchResult is the raw shape OPA's user_permissions rule
// returns when queried for an action search: a flat permission/role list
// rather than the resource-keyed map the plain user-permissions endpoint
// returns.
type opaActionSearchResult struct {
	Permissions []string `json:"permissions"`
	Roles       []string `json:"roles,omitempty"`
}

// ToUserPermissionsQueryForActionSearch builds the OPA query for an
// AuthZen action search: "what can this subject do on this resource".
func ToUserPermissionsQueryForActionSearch(req ActionSearchRequest) opaclient.UserPermissionsQuery {
	return opaclient.UserPermissionsQuery{
		User: opaclient.User{
			Key:        req.Subject.ID,
			Attributes: req.Subject.Properties,
		},
		Resource: &opaclient.Resource{
			Type:       req.Resource.Type,
			Key:        req.Resource.ID,
			Attributes: req.Resource.Properties,
		},
		Context: req.Context,
		SDK:     "authzen",
	}
}

// FromActionSearchResult converts the raw OPA user_permissions body into
// the AuthZen action-search response shape. Missing or malformed fields
// are treated as "no results" rather than errors.
func FromActionSearchResult(raw opaActionSearchResult) ActionSearchResponse {
	results := make([]AuthZenAction, len(raw.Permissions))
	for i, name := range raw.Permissions {
		results[i] = AuthZenAction{Name: name}
	}
	return ActionSearchResponse{
		Results: results,
		Page:    &PageResponse{},
	}
}

// opaResourceSearchEntry is one value in the permissions map OPA's
// user_permissions rule returns when resource_type is used to filter a
// resource search.
type opaResourceSearchEntry struct {
	Resource struct {
		Key        string                 `json:"key"`
		Type       string                 `json:"type"`
		Attributes map[string]interface{} `json:"attributes"`
	} `json:"resource"`
}

// ToUserPermissionsQueryForResourceSearch builds the OPA query for an
// AuthZen resource search: "what resources can this subject access".
func ToUserPermissionsQueryForResourceSearch(req ResourceSearchRequest) opaclient.UserPermissionsQuery {
	q := opaclient.UserPermissionsQuery{
		User: opaclient.User{
			Key:        req.Subject.ID,
			Attributes: req.Subject.Properties,
		},
		Context: req.Context,
		SDK:     "authzen",
	}
	if req.ResourceType != "" {
		q.ResourceTypes = []string{req.ResourceType}
	}
	return q
}

// FromResourceSearchResult deduplicates the resource entries of a raw OPA
// user_permissions map into a unique-by-id resource list. The map key is
// discarded; each entry's resource.key is the id.
func FromResourceSearchResult(entries map[string]opaResourceSearchEntry) ResourceSearchResponse {
	seen := make(map[string]AuthZenResource)
	for _, entry := range entries {
		res := AuthZenResource{
			Type: entry.Resource.Type,
			ID:   entry.Resource.Key,
		}
		if len(entry.Resource.Attributes) > 0 {
			res.Properties = entry.Resource.Attributes
		}
		seen[res.ID] = res
	}
	results := make([]AuthZenResource, 0, len(seen))
	for _, r := range seen {
		results = append(results, r)
	}
	return ResourceSearchResponse{Results: results, Page: &PageResponse{}}
}

// ToAuthorizedUsersQueryForSubjectSearch builds the OPA query for an
// AuthZen subject search: "who can perform this action on this resource".
func ToAuthorizedUsersQueryForSubjectSearch(req SubjectSearchRequest) opaclient.AuthorizedUsersQuery {
	return opaclient.AuthorizedUsersQuery{
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

// FromAuthorizedUsersResult converts the set of authorized users into the
// AuthZen subject-search response shape, one subject per map entry. The
// subject id is the user named in the entry's first assignment; the map key
// is used only when no assignment names a user.
func FromAuthorizedUsersResult(result opaclient.AuthorizedUsersResult) SubjectSearchResponse {
	results := make([]AuthZenSubject, 0, len(result.Users))
	for userKey, assignments := range result.Users {
		id := userKey
		if len(assignments) > 0 && assignments[0].User != "" {
			id = assignments[0].User
		}
		results = append(results, AuthZenSubject{Type: "user", ID: id})
	}
	return SubjectSearchResponse{Results: results, Page: &PageResponse{}}
}
