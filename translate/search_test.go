package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToUserPermissionsQueryForActionSearchIncludesResource(t *testing.T) {
	req := ActionSearchRequest{
		Subject:  AuthZenSubject{Type: "user", ID: "alice"},
		Resource: AuthZenResource{Type: "document", ID: "doc1", Properties: map[string]interface{}{"owner": "alice"}},
		Context:  map[string]interface{}{"ip": "1.2.3.4"},
	}

	q := ToUserPermissionsQueryForActionSearch(req)
	assert.Equal(t, "alice", q.User.Key)
	require.NotNil(t, q.Resource)
	assert.Equal(t, "document", q.Resource.Type)
	assert.Equal(t, "doc1", q.Resource.Key)
	assert.Equal(t, "alice", q.Resource.Attributes["owner"])
	assert.Equal(t, "authzen", q.SDK)
}

func TestToUserPermissionsQueryForResourceSearchOmitsResource(t *testing.T) {
	req := ResourceSearchRequest{
		Subject:      AuthZenSubject{Type: "user", ID: "alice"},
		ResourceType: "document",
	}

	q := ToUserPermissionsQueryForResourceSearch(req)
	assert.Nil(t, q.Resource, "a resource-type search has no single resource to scope to")
	assert.Equal(t, []string{"document"}, q.ResourceTypes)
}
