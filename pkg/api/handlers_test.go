package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TimMatthis/auzguard/pkg/api"
	"github.com/TimMatthis/auzguard/pkg/audit"
	"github.com/TimMatthis/auzguard/pkg/auth"
	"github.com/TimMatthis/auzguard/pkg/connector"
	"github.com/TimMatthis/auzguard/pkg/orchestrator"
	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/routing"
	"github.com/TimMatthis/auzguard/pkg/store"
)

func newTestServer(t *testing.T) (*api.Server, *store.SnapshotStore) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(store.DriverSQLite, "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	pol := policy.Policy{
		PolicyID: "pol-1",
		Version:  "v1.0.0",
		Title:    "Test Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: policy.EvaluationStrategy{
			Order:              "priority",
			ConflictResolution: "first_match",
			DefaultEffect:      policy.Allow,
		},
		Rules: []policy.Rule{
			{
				RuleID:    "allow_all",
				Title:     "Allow everything",
				Condition: "true",
				Effect:    policy.Allow,
				Priority:  1,
				Enabled:   true,
			},
		},
	}
	require.NoError(t, st.PutPolicy(ctx, pol))

	pool := routing.ModelPool{PoolID: "pol-1", Region: "au-east"}
	require.NoError(t, st.PutPool(ctx, pool))
	require.NoError(t, st.PutTarget(ctx, routing.RouteTarget{
		ID: "t1", PoolID: "pol-1", Provider: "openai", Endpoint: "https://api.openai.test",
		Weight: 1, IsActive: true,
	}))

	snap, err := store.NewSnapshotStore(ctx, st)
	require.NoError(t, err)

	engine := policy.NewEngine()
	auditLog := audit.NewLog("test-salt")
	conn := connector.NewConnector(true)
	orch := orchestrator.New(engine, auditLog, conn)

	return api.NewServer(snap, st, orch, auditLog, engine), snap
}

func withPrincipal(r *http.Request, roles ...string) *http.Request {
	p := &auth.BasePrincipal{ID: "user-1", OrgID: "org-1", Roles: roles}
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

func TestHandleEvaluateAllowDecision(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.EvaluateRequest{PolicyID: "pol-1", Payload: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewReader(body))
	req = withPrincipal(req, "viewer")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.EvaluateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, policy.Allow, resp.Decision.Decision)
	require.NotEmpty(t, resp.AuditEntryID)
}

func TestHandleEvaluateUnknownPolicyReturnsNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.EvaluateRequest{PolicyID: "does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var env api.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, api.CodeNotFound, env.Error.Code)
}

func TestHandleEvaluateMissingPolicyIDIsValidationError(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSimulateEnrichesPayloadLikeEvaluate(t *testing.T) {
	server, snap := newTestServer(t)
	ctx := context.Background()

	healthPol := policy.Policy{
		PolicyID:     "pol-health",
		Version:      "v1.0.0",
		Title:        "Health Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: policy.EvaluationStrategy{
			Order: "priority", ConflictResolution: "first_match", DefaultEffect: policy.Allow,
		},
		Rules: []policy.Rule{
			{
				RuleID:    "HEALTH_NO_OFFSHORE",
				Title:     "Block offshore health data",
				Condition: `data_class in ['health_record'] && destination_region != 'AU'`,
				Effect:    policy.Block,
				Priority:  10,
				Enabled:   true,
			},
		},
	}
	require.NoError(t, snap.PutPolicy(ctx, healthPol))

	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.EvaluateRequest{
		PolicyID: "pol-health",
		Payload: map[string]any{
			"messages": []any{
				map[string]any{"role": "user", "content": "Patient requires MRI results sent overseas."},
			},
			"destination_region": "US",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/evaluate/simulate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Decision policy.Decision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, policy.Block, resp.Decision.Decision)
	require.Equal(t, "HEALTH_NO_OFFSHORE", resp.Decision.MatchedRule)
}

func TestHandlePoliciesListReturnsStoredPolicies(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]policy.Policy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["policies"], 1)
}

func TestHandlePolicyByIDRequiresCapabilityToPublish(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	pol := policy.Policy{
		PolicyID: "pol-1",
		Version:  "v1.0.1",
		Title:    "Updated",
		Jurisdiction: "AU",
		EvaluationStrategy: policy.EvaluationStrategy{
			Order: "priority", ConflictResolution: "first_match", DefaultEffect: policy.Allow,
		},
		Rules: []policy.Rule{},
	}
	body, _ := json.Marshal(pol)

	req := httptest.NewRequest(http.MethodPut, "/api/policies/pol-1", bytes.NewReader(body))
	req = withPrincipal(req, "viewer")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlePolicyByIDPublishesWithCapability(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	pol := policy.Policy{
		PolicyID: "pol-1",
		Version:  "v1.0.1",
		Title:    "Updated",
		Jurisdiction: "AU",
		EvaluationStrategy: policy.EvaluationStrategy{
			Order: "priority", ConflictResolution: "first_match", DefaultEffect: policy.Allow,
		},
		Rules: []policy.Rule{},
	}
	body, _ := json.Marshal(pol)

	req := httptest.NewRequest(http.MethodPut, "/api/policies/pol-1", bytes.NewReader(body))
	req = withPrincipal(req, "policy_editor")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlePolicyValidateReportsSchemaErrors(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	bad := policy.Policy{PolicyID: "", Version: "not-a-version"}
	body, _ := json.Marshal(bad)

	req := httptest.NewRequest(http.MethodPost, "/api/policies/pol-1/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Valid  bool                    `json:"valid"`
		Errors []policy.ValidationError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Valid)
	require.NotEmpty(t, resp.Errors)
}

func TestHandleRuleTestReportsWhetherRuleMatched(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.RuleTestRequest{Request: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/api/policies/pol-1/rules/allow_all/test", bytes.NewReader(body))
	req = withPrincipal(req, "viewer")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Pass    bool               `json:"pass"`
		Results []policy.TraceStep `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Pass)
}

func TestHandleRoutePreviewRankingReturnsRankedCandidates(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.RoutePreviewRankingRequest{})
	req := httptest.NewRequest(http.MethodPost, "/api/routes/pools/pol-1/preview-ranking", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decision routing.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.Len(t, decision.Candidates, 1)
}

func TestHandleOverrideExecuteRequiresJustification(t *testing.T) {
	server, snap := newTestServer(t)
	ctx := context.Background()

	overridePol := policy.Policy{
		PolicyID: "pol-override",
		Version:  "v1.0.0",
		Title:    "Override Policy",
		Jurisdiction: "AU",
		EvaluationStrategy: policy.EvaluationStrategy{
			Order: "priority", ConflictResolution: "first_match", DefaultEffect: policy.Block,
		},
		Rules: []policy.Rule{
			{
				RuleID: "gate", Title: "gate", Condition: "true",
				Effect: policy.RequireOverride, Priority: 1, Enabled: true,
				Overrides: policy.Overrides{Allowed: true, RequireJustification: true},
			},
		},
	}
	require.NoError(t, snap.PutPolicy(ctx, overridePol))

	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.OverrideExecuteRequest{
		PolicyID: "pol-override", RuleID: "gate", Request: map[string]any{},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/overrides/execute", bytes.NewReader(body))
	req = withPrincipal(req, "approver")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAuditVerifyReportsValidChain(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	evalBody, _ := json.Marshal(api.EvaluateRequest{PolicyID: "pol-1", Payload: map[string]any{}})
	evalReq := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewReader(evalBody))
	mux.ServeHTTP(httptest.NewRecorder(), evalReq)

	req := httptest.NewRequest(http.MethodPost, "/api/audit/verify", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report audit.IntegrityReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.True(t, report.Valid)
}

func TestHandleRouteExecuteReturnsRankedCandidates(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	body, _ := json.Marshal(api.RouteExecuteRequest{PoolID: "pol-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/routes/execute", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var decision routing.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	require.Len(t, decision.Candidates, 1)
}

func TestHandlePolicyImportAcceptsYAMLBundle(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	yamlBody := []byte(`
policy_id: pol-from-yaml
version: v1.0.0
title: Imported via YAML
jurisdiction: AU
evaluation_strategy:
  order: priority
  conflict_resolution: first_match
  default_effect: ALLOW
rules:
  - rule_id: allow_all
    title: Allow everything
    condition: "true"
    effect: ALLOW
    priority: 1
    enabled: true
`)

	req := httptest.NewRequest(http.MethodPost, "/api/policies/import", bytes.NewReader(yamlBody))
	req.Header.Set("Content-Type", "application/yaml")
	req = withPrincipal(req, "policy_editor")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var pol policy.Policy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pol))
	require.Equal(t, "pol-from-yaml", pol.PolicyID)
}

func TestHandleAuditExportRequiresManageSettingsCapability(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/export", nil)
	req = withPrincipal(req, "viewer")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleAuditExportReturnsZipPack(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	evalBody, _ := json.Marshal(api.EvaluateRequest{PolicyID: "pol-1", Payload: map[string]any{}})
	evalReq := httptest.NewRequest(http.MethodPost, "/api/evaluate", bytes.NewReader(evalBody))
	mux.ServeHTTP(httptest.NewRecorder(), evalReq)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/export?from=2000-01-01T00:00:00Z", nil)
	req = withPrincipal(req, "admin")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Evidence-Pack-Checksum"))
	require.NotEmpty(t, rec.Body.Bytes())
}

func TestHandlePolicyImportRejectsMalformedYAML(t *testing.T) {
	server, _ := newTestServer(t)
	mux := http.NewServeMux()
	server.Routes(mux)

	req := httptest.NewRequest(http.MethodPost, "/api/policies/import", bytes.NewReader([]byte("not: [valid")))
	req.Header.Set("Content-Type", "application/yaml")
	req = withPrincipal(req, "policy_editor")
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
