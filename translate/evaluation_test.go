package translate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permitio/pdp-sidecar/opaclient"
)

func TestToAllowedQueryMapsFields(t *testing.T) {
	req := AccessEvaluationRequest{
		Subject:  AuthZenSubject{Type: "user", ID: "alice", Properties: map[string]interface{}{"dept": "eng"}},
		Resource: AuthZenResource{Type: "document", ID: "doc1", Properties: map[string]interface{}{"tenant": "acme"}},
		Action:   AuthZenAction{Name: "can_read"},
		Context:  map[string]interface{}{"ip": "1.2.3.4"},
	}

	q := ToAllowedQuery(req)
	assert.Equal(t, "alice", q.User.Key)
	assert.Equal(t, "eng", q.User.Attributes["dept"])
	assert.Equal(t, "document", q.Resource.Type)
	assert.Equal(t, "doc1", q.Resource.Key)
	assert.Equal(t, `"acme"`, q.Resource.Tenant, "tenant coercion mirrors serde_json::Value::to_string() verbatim, quotes included")
	assert.Equal(t, "can_read", q.Action)
	assert.Equal(t, "authzen", q.SDK)
}

func TestToAllowedQueryTenantAbsent(t *testing.T) {
	req := AccessEvaluationRequest{
		Subject:  AuthZenSubject{Type: "user", ID: "alice"},
		Resource: AuthZenResource{Type: "document", ID: "doc1"},
		Action:   AuthZenAction{Name: "can_read"},
	}
	q := ToAllowedQuery(req)
	assert.Equal(t, "", q.Resource.Tenant)
}

func TestFromAllowedResultPrefersDebugOverQuery(t *testing.T) {
	result := opaclient.AllowedResult{
		Allow: true,
		Debug: map[string]interface{}{"reason": "role match"},
		Query: map[string]interface{}{"raw": "query"},
	}
	resp := FromAllowedResult(result)
	assert.True(t, resp.Decision)
	assert.Equal(t, "role match", resp.Context["reason"])
}

func TestFromAllowedResultFallsBackToQuery(t *testing.T) {
	result := opaclient.AllowedResult{Allow: false, Query: map[string]interface{}{"raw": "query"}}
	resp := FromAllowedResult(result)
	assert.False(t, resp.Decision)
	assert.Equal(t, "query", resp.Context["raw"])
}

func TestValidateEvaluationRequest(t *testing.T) {
	valid := AccessEvaluationRequest{
		Subject:  AuthZenSubject{Type: "user", ID: "alice"},
		Resource: AuthZenResource{Type: "document", ID: ""},
		Action:   AuthZenAction{Name: "can_read"},
	}
	assert.NoError(t, ValidateEvaluationRequest(valid), "empty resource.id is valid, only resource.type is required")

	missingSubject := valid
	missingSubject.Subject = AuthZenSubject{}
	assert.Error(t, ValidateEvaluationRequest(missingSubject))

	missingAction := valid
	missingAction.Action = AuthZenAction{}
	assert.Error(t, ValidateEvaluationRequest(missingAction))
}

func TestToBulkAllowedQueriesMergesDefaults(t *testing.T) {
	subject := AuthZenSubject{Type: "user", ID: "alice"}
	req := AccessEvaluationsRequest{
		Subject: &subject,
		Context: map[string]interface{}{"trace": "t1"},
		Evaluations: []IndividualEvaluation{
			{
				Action:   &AuthZenAction{Name: "can_read"},
				Resource: &AuthZenResource{Type: "document", ID: "doc1"},
			},
			{
				Action:   &AuthZenAction{Name: "can_write"},
				Resource: &AuthZenResource{Type: "document", ID: "doc1"},
				Context:  map[string]interface{}{"override": true},
			},
		},
	}

	queries, err := ToBulkAllowedQueries(req)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, "alice", queries[0].User.Key)
	assert.Equal(t, "can_read", queries[0].Action)
	assert.Equal(t, "t1", queries[0].Context["trace"])
	assert.Equal(t, "t1", queries[1].Context["trace"], "batch-level context merges into every evaluation")
	assert.Equal(t, true, queries[1].Context["override"], "per-evaluation context overrides/extends the default")
}

func TestToBulkAllowedQueriesRejectsMissingRequiredField(t *testing.T) {
	req := AccessEvaluationsRequest{
		Evaluations: []IndividualEvaluation{
			{Action: &AuthZenAction{Name: "can_read"}, Resource: &AuthZenResource{Type: "document"}},
		},
	}
	_, err := ToBulkAllowedQueries(req)
	assert.Error(t, err, "missing subject with no batch default must fail validation")
}

func TestToBulkAllowedQueriesRejectsEmptyBatch(t *testing.T) {
	_, err := ToBulkAllowedQueries(AccessEvaluationsRequest{})
	assert.Error(t, err)
}

func TestFromBulkAllowedResultPreservesOrder(t *testing.T) {
	result := opaclient.BulkAuthorizationResult{
		Allow: []opaclient.AllowedResult{{Allow: true}, {Allow: false}, {Allow: true}},
	}
	resp := FromBulkAllowedResult(result)
	require.Len(t, resp.Evaluations, 3)
	assert.True(t, resp.Evaluations[0].Decision)
	assert.False(t, resp.Evaluations[1].Decision)
	assert.True(t, resp.Evaluations[2].Decision)
}
