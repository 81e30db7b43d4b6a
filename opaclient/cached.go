package opaclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/permitio/pdp-sidecar/cache"
	"github.com/permitio/pdp-sidecar/observability"
)

// CacheControl mirrors the Cache-Control directives a caller may attach to
// a decision request. no_cache skips reads but not writes; no_store skips
// writes but not reads; the two are independent.
type CacheControl struct {
	NoCache bool
	NoStore bool
}

const (
	familyAllowed          = "opa:allowed:"
	familyUserPermissions  = "opa:user_permissions:"
	familyAuthorizedUsers  = "opa:authorized_users:"
)

// fingerprint hashes the canonical JSON encoding of v and returns the
// family-prefixed cache key. Truncating SHA-256 to 16 hex characters keeps
// keys short while leaving collision probability negligible at any cache
// size this sidecar will hold.
func fingerprint(family string, v interface{}) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return family + hex.EncodeToString(sum[:])[:16], nil
}

// CachedClient wraps a raw Client with the decision cache. It is the only
// thing callers outside this package should hold a reference to.
type CachedClient struct {
	raw                   *Client
	cache                 cache.Backend
	metrics               *observability.Metrics
	logger                zerolog.Logger
	useNewAuthorizedUsers bool
}

func NewCachedClient(raw *Client, backend cache.Backend, metrics *observability.Metrics, logger zerolog.Logger, useNewAuthorizedUsers bool) *CachedClient {
	return &CachedClient{
		raw:                   raw,
		cache:                 backend,
		metrics:               metrics,
		logger:                logger.With().Str("component", "opa_cached").Logger(),
		useNewAuthorizedUsers: useNewAuthorizedUsers,
	}
}

func (c *CachedClient) get(ctx context.Context, key string, cc CacheControl, family string) ([]byte, bool) {
	if cc.NoCache {
		return nil, false
	}
	val, hit, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed, treating as miss")
		hit = false
	}
	if c.metrics != nil {
		c.metrics.TrackCache(family, hit)
	}
	return val, hit
}

func (c *CachedClient) set(ctx context.Context, key string, cc CacheControl, value []byte) {
	if cc.NoStore {
		return
	}
	if err := c.cache.Set(ctx, key, value); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
}

func (c *CachedClient) track(path string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.TrackOPACall(path, float64(time.Since(start).Milliseconds()), err == nil)
}

// QueryAllowedCached performs a single cached authorization check.
func (c *CachedClient) QueryAllowedCached(ctx context.Context, q AllowedQuery, cc CacheControl) (AllowedResult, error) {
	key, err := fingerprint(familyAllowed, q)
	if err != nil {
		return AllowedResult{}, err
	}

	if cached, hit := c.get(ctx, key, cc, familyAllowed); hit {
		var result AllowedResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return result, nil
		}
		c.logger.Warn().Str("key", key).Msg("cached allowed value was corrupt, falling through to opa")
	}

	start := time.Now()
	result, err := c.raw.QueryAllowed(ctx, q)
	c.track(pathAllowed, start, err)
	if err != nil {
		return AllowedResult{}, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		c.set(ctx, key, cc, encoded)
	}
	return result, nil
}

// QueryAllowedBulkCached decomposes a bulk request into cache hits plus a
// single residual OPA bulk call for the misses, preserving the original
// ordering of checks in the returned result — including when checks is
// empty, in which case the residual call is still made.
func (c *CachedClient) QueryAllowedBulkCached(ctx context.Context, checks []AllowedQuery, cc CacheControl) (BulkAuthorizationResult, error) {
	results := make([]AllowedResult, len(checks))
	found := make([]bool, len(checks))
	keys := make([]string, len(checks))

	missIndexes := make([]int, 0, len(checks))
	missQueries := make([]AllowedQuery, 0, len(checks))

	for i, q := range checks {
		key, err := fingerprint(familyAllowed, q)
		if err != nil {
			return BulkAuthorizationResult{}, err
		}
		keys[i] = key

		if cached, hit := c.get(ctx, key, cc, familyAllowed); hit {
			var result AllowedResult
			if err := json.Unmarshal(cached, &result); err == nil {
				results[i] = result
				found[i] = true
				continue
			}
		}
		missIndexes = append(missIndexes, i)
		missQueries = append(missQueries, q)
	}

	if len(checks) == 0 {
		// Bulk decomposition discipline still calls OPA for the empty
		// input — matching the reference server's always-one-round-trip
		// contract even when there is nothing cached to miss on.
		start := time.Now()
		_, err := c.raw.QueryAllowedBulk(ctx, checks)
		c.track(pathBulk, start, err)
		if err != nil {
			return BulkAuthorizationResult{}, err
		}
		return BulkAuthorizationResult{Allow: results}, nil
	}

	if len(missQueries) > 0 {
		start := time.Now()
		residual, err := c.raw.QueryAllowedBulk(ctx, missQueries)
		c.track(pathBulk, start, err)
		if err != nil {
			return BulkAuthorizationResult{}, err
		}
		for j, idx := range missIndexes {
			if j >= len(residual.Allow) {
				break
			}
			results[idx] = residual.Allow[j]
			found[idx] = true
			if encoded, err := json.Marshal(residual.Allow[j]); err == nil {
				c.set(ctx, keys[idx], cc, encoded)
			}
		}
	}

	return BulkAuthorizationResult{Allow: results}, nil
}

// QueryUserPermissionsCached fetches a user's permission set, caching the
// raw OPA result body keyed on the full query. Unlike the reference
// implementation's HTTP handler (which discards the cached body and
// returns a bare 200), this always returns the body on a hit — callers
// need the body either way.
func (c *CachedClient) QueryUserPermissionsCached(ctx context.Context, q UserPermissionsQuery, cc CacheControl) (json.RawMessage, error) {
	key, err := fingerprint(familyUserPermissions, q)
	if err != nil {
		return nil, err
	}

	if cached, hit := c.get(ctx, key, cc, familyUserPermissions); hit {
		return json.RawMessage(cached), nil
	}

	start := time.Now()
	raw, err := c.raw.QueryUserPermissions(ctx, q)
	c.track(pathUserPermissions, start, err)
	if err != nil {
		return nil, err
	}

	c.set(ctx, key, cc, raw)
	return raw, nil
}

// QueryAuthorizedUsersCached fetches the set of users authorized for a
// resource/action pair.
func (c *CachedClient) QueryAuthorizedUsersCached(ctx context.Context, q AuthorizedUsersQuery, cc CacheControl) (AuthorizedUsersResult, error) {
	key, err := fingerprint(familyAuthorizedUsers, q)
	if err != nil {
		return AuthorizedUsersResult{}, err
	}

	if cached, hit := c.get(ctx, key, cc, familyAuthorizedUsers); hit {
		var result AuthorizedUsersResult
		if err := json.Unmarshal(cached, &result); err == nil {
			return result, nil
		}
	}

	start := time.Now()
	result, err := c.raw.QueryAuthorizedUsers(ctx, q, c.useNewAuthorizedUsers)
	c.track(pathAuthorizedUsers, start, err)
	if err != nil {
		return AuthorizedUsersResult{}, err
	}

	if encoded, err := json.Marshal(result); err == nil {
		c.set(ctx, key, cc, encoded)
	}
	return result, nil
}
