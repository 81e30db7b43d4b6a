package opaclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitio/pdp-sidecar/errs"
)

func TestQueryAllowedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":true,"debug":{"reason":"ok"}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	result, err := c.QueryAllowed(context.Background(), AllowedQuery{User: User{Key: "u"}, Action: "read", Resource: Resource{Type: "doc"}})
	require.NoError(t, err)
	assert.True(t, result.Allow)
	assert.Equal(t, "ok", result.Debug["reason"])
}

func TestQueryAllowedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	_, err := c.QueryAllowed(context.Background(), AllowedQuery{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errs.HTTPStatus(err))
}

func TestQueryAllowedInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	_, err := c.QueryAllowed(context.Background(), AllowedQuery{})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))
}

func TestQueryAllowedBulkEmptyChecksStillPosts(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		_, _ = w.Write([]byte(`{"result":{"allow":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	result, err := c.QueryAllowedBulk(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Allow)
	assert.Contains(t, gotBody, `"checks":[]`)
}

func TestQueryAuthorizedUsersPathSelection(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		// OPA nests the payload under a second "result" key.
		_, _ = w.Write([]byte(`{"result":{"result":{"resource":"doc","tenant":"default","users":{}}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, zerolog.Nop())
	result, err := c.QueryAuthorizedUsers(context.Background(), AuthorizedUsersQuery{}, false)
	require.NoError(t, err)
	assert.Equal(t, pathAuthorizedUsers, gotPath)
	assert.Equal(t, "doc", result.Resource)

	_, err = c.QueryAuthorizedUsers(context.Background(), AuthorizedUsersQuery{}, true)
	require.NoError(t, err)
	assert.Equal(t, pathAuthorizedUsersNew, gotPath)
}
