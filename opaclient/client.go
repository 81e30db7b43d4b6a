package opaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/errs"
)

const (
	pathAllowed          = "/v1/data/permit/root"
	pathBulk             = "/v1/data/permit/bulk"
	pathUserPermissions  = "/v1/data/permit/user_permissions"
	pathAuthorizedUsers  = "/v1/data/permit/authorized_users/authorized_users"
	pathAuthorizedUsersNew = "/v1/data/permit/authorized_users_new/authorized_users"
)

// envelope is the {"input": ...} wrapper every OPA data query is posted
// with, and {"result": ...} is the shape every response arrives in.
type envelope struct {
	Input interface{} `json:"input"`
}

type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// Client is the raw HTTP client for OPA's Data API. It knows the five
// query shapes this sidecar needs and nothing about caching — that lives
// one layer up, in CachedClient.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func New(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "opa_client").Logger(),
	}
}

func (c *Client) post(ctx context.Context, path string, input interface{}, out interface{}) error {
	body, err := json.Marshal(envelope{Input: input})
	if err != nil {
		return errs.Deserialization("marshal opa request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.Transport("build opa request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Transport(fmt.Sprintf("opa request to %s", path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Transport("read opa response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.InvalidStatus(resp.StatusCode, fmt.Sprintf("opa returned %d for %s", resp.StatusCode, path))
	}

	var env resultEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return errs.Deserialization("decode opa envelope", err)
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return errs.Deserialization("decode opa result", err)
	}
	return nil
}

// QueryAllowed performs a single authorization check against OPA.
func (c *Client) QueryAllowed(ctx context.Context, q AllowedQuery) (AllowedResult, error) {
	var result AllowedResult
	if err := c.post(ctx, pathAllowed, q, &result); err != nil {
		return AllowedResult{}, err
	}
	return result, nil
}

// QueryAllowedBulk decomposes into a single OPA bulk call. Callers pass
// however many checks they have, including zero — zero still issues the
// request, since an empty bulk call is itself a round trip OPA expects to
// see (matching the reference implementation's behavior).
func (c *Client) QueryAllowedBulk(ctx context.Context, checks []AllowedQuery) (BulkAuthorizationResult, error) {
	var result BulkAuthorizationResult
	query := BulkAuthorizationQuery{Checks: checks}
	if checks == nil {
		query.Checks = []AllowedQuery{}
	}
	if err := c.post(ctx, pathBulk, query, &result); err != nil {
		return BulkAuthorizationResult{}, err
	}
	return result, nil
}

// QueryUserPermissions asks OPA for a user's full permission set. The raw
// result is returned undecoded: callers project whatever subset of fields
// (permissions, roles, tenant, resource) they need and are responsible for
// treating a missing "permissions" key as an empty object, not an error.
func (c *Client) QueryUserPermissions(ctx context.Context, q UserPermissionsQuery) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.rawPost(ctx, pathUserPermissions, q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// QueryAuthorizedUsers asks OPA which users can perform an action on a
// resource. useNew selects between the legacy and new Rego rule paths —
// a pure routing decision with no semantic difference to this client.
//
// OPA's response here carries the payload under a second, inner "result"
// key — the outer envelope is the usual {"result": T}, but T itself is
// {"result": {resource, tenant, users}}. A T with no inner "result" key
// (or no payload at all) means OPA found nothing to authorize.
func (c *Client) QueryAuthorizedUsers(ctx context.Context, q AuthorizedUsersQuery, useNew bool) (AuthorizedUsersResult, error) {
	path := pathAuthorizedUsers
	if useNew {
		path = pathAuthorizedUsersNew
	}
	var raw json.RawMessage
	if err := c.rawPost(ctx, path, q, &raw); err != nil {
		return AuthorizedUsersResult{}, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return emptyAuthorizedUsersResult(q), nil
	}

	var outer struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil || len(outer.Result) == 0 || string(outer.Result) == "null" {
		// No inner "result" key (or not an object at all) — OPA found
		// nothing to authorize rather than erroring.
		return emptyAuthorizedUsersResult(q), nil
	}

	var result AuthorizedUsersResult
	if err := json.Unmarshal(outer.Result, &result); err != nil {
		c.logger.Warn().Err(err).Msg("authorized_users result did not match expected shape, returning empty")
		return emptyAuthorizedUsersResult(q), nil
	}
	return result, nil
}

// emptyAuthorizedUsersResult synthesizes the "nothing found" result,
// matching the reference client's resource-key formatting of
// "{type}:{key or *}" with tenant defaulting to "default".
func emptyAuthorizedUsersResult(q AuthorizedUsersQuery) AuthorizedUsersResult {
	key := q.Resource.Key
	if key == "" {
		key = "*"
	}
	tenant := q.Resource.Tenant
	if tenant == "" {
		tenant = "default"
	}
	return AuthorizedUsersResult{
		Resource: fmt.Sprintf("%s:%s", q.Resource.Type, key),
		Tenant:   tenant,
		Users:    map[string][]AuthorizedUserAssignment{},
	}
}

// rawPost posts to path and captures the decoded "result" field as raw
// JSON instead of unmarshaling into a fixed struct — used where the
// caller needs the undecoded shape (user permissions) or where a failed
// decode should be handled as "nothing found" rather than an error.
func (c *Client) rawPost(ctx context.Context, path string, input interface{}, out *json.RawMessage) error {
	body, err := json.Marshal(envelope{Input: input})
	if err != nil {
		return errs.Deserialization("marshal opa request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.Transport("build opa request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Transport(fmt.Sprintf("opa request to %s", path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Transport("read opa response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errs.InvalidStatus(resp.StatusCode, fmt.Sprintf("opa returned %d for %s", resp.StatusCode, path))
	}

	var env resultEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return errs.Deserialization("decode opa envelope", err)
	}
	*out = env.Result
	return nil
}
