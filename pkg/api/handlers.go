// Package api implements the gateway's HTTP surface: handlers, the
// canonical error envelope, and request middleware.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TimMatthis/auzguard/pkg/audit"
	"github.com/TimMatthis/auzguard/pkg/auth"
	"github.com/TimMatthis/auzguard/pkg/orchestrator"
	"github.com/TimMatthis/auzguard/pkg/policy"
	"github.com/TimMatthis/auzguard/pkg/preprocess"
	"github.com/TimMatthis/auzguard/pkg/routing"
	"github.com/TimMatthis/auzguard/pkg/store"
)

// Server wires the gateway's domain packages to HTTP handlers.
type Server struct {
	snapshot     *store.SnapshotStore
	store        *store.Store
	orchestrator *orchestrator.Orchestrator
	auditLog     *audit.Log
	engine       *policy.Engine
	exporter     *audit.Exporter
}

// NewServer constructs a Server from its wired dependencies.
func NewServer(snap *store.SnapshotStore, st *store.Store, orch *orchestrator.Orchestrator, auditLog *audit.Log, engine *policy.Engine) *Server {
	return &Server{
		snapshot:     snap,
		store:        st,
		orchestrator: orch,
		auditLog:     auditLog,
		engine:       engine,
		exporter:     audit.NewExporter(auditLog, nil, ""),
	}
}

// WithExporter overrides the Server's evidence-pack exporter, e.g. to
// attach a configured S3 client/bucket for Upload. Safe to call with a
// nil client: GeneratePack still works, Upload fails closed.
func (s *Server) WithExporter(e *audit.Exporter) *Server {
	s.exporter = e
	return s
}

// Routes registers all gateway endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/evaluate/simulate", s.handleSimulate)
	mux.HandleFunc("/api/overrides/execute", s.handleOverrideExecute)

	mux.HandleFunc("/api/policies", s.handlePolicies)
	mux.HandleFunc("/api/policies/", s.handlePolicyByID)
	mux.HandleFunc("/api/policies/import", s.handlePolicyImport)

	mux.HandleFunc("/api/audit", s.handleAuditList)
	mux.HandleFunc("/api/audit/", s.handleAuditByID)
	mux.HandleFunc("/api/audit/proof/latest", s.handleAuditProofLatest)
	mux.HandleFunc("/api/audit/verify", s.handleAuditVerify)
	mux.HandleFunc("/api/audit/export", s.handleAuditExport)

	mux.HandleFunc("/api/routes/pools", s.handleRoutePools)
	mux.HandleFunc("/api/routes/pools/", s.handleRoutePoolByID)
	mux.HandleFunc("/api/routes/execute", s.handleRouteExecute)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EvaluateRequest is the body of POST /api/evaluate and /api/evaluate/simulate.
type EvaluateRequest struct {
	PolicyID   string                    `json:"policy_id"`
	Payload    map[string]any            `json:"payload"`
	Preference *routing.RoutingPreference `json:"preference,omitempty"`
}

// EvaluateResponse is the body returned by a successful evaluation.
type EvaluateResponse struct {
	Decision     policy.Decision           `json:"decision"`
	AuditEntryID string                    `json:"audit_entry_id,omitempty"`
	Routing      *routing.RoutingDecision  `json:"routing,omitempty"`
	Invocation   map[string]any            `json:"invocation,omitempty"`
	DurationMs   float64                   `json:"duration_ms"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}
	if req.PolicyID == "" {
		WriteValidationError(w, "policy_id is required", nil)
		return
	}

	orgID := ""
	if principal, err := auth.GetPrincipal(r.Context()); err == nil {
		orgID = principal.GetOrgID()
	}

	result, err := s.orchestrator.Decide(r.Context(), s.snapshot.Load(), orchestrator.Request{
		PolicyID:   req.PolicyID,
		OrgID:      orgID,
		ActorID:    actorIDFrom(r),
		Payload:    req.Payload,
		Preference: req.Preference,
	})
	if err != nil {
		writeOrchestratorError(w, err)
		return
	}

	resp := EvaluateResponse{
		Decision:     result.Decision,
		AuditEntryID: result.AuditEntryID,
		Routing:      result.Routing,
		DurationMs:   float64(result.Duration.Microseconds()) / 1000,
	}
	if result.Invocation != nil {
		resp.Invocation = map[string]any{
			"provider":  result.Invocation.Provider,
			"target_id": result.Invocation.TargetID,
			"output":    result.Invocation.Output,
			"stubbed":   result.Invocation.Stubbed,
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleSimulate evaluates a policy but never persists an audit entry or
// invokes a model — for dry-run rule authoring.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}

	pol, ok := s.snapshot.Load().Policy(req.PolicyID)
	if !ok {
		WriteNotFound(w, "policy not found")
		return
	}

	ctx := preprocess.Enrich(req.Payload)
	decision := s.engine.Evaluate(pol, ctx)
	WriteJSON(w, http.StatusOK, map[string]any{"decision": decision})
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case err == orchestrator.ErrPolicyNotFound:
		WriteNotFound(w, "policy not found")
	case isRoutingError(err):
		WriteRoutingError(w, err.Error())
	case isCancelled(err):
		WriteError(w, CodeValidationError, err.Error(), nil)
	default:
		WriteInternal(w, err)
	}
}

func isRoutingError(err error) bool {
	return err != nil && (err == orchestrator.ErrRoutingError || isWrapped(err, orchestrator.ErrRoutingError))
}

func isCancelled(err error) bool {
	return err != nil && (err == orchestrator.ErrCancelled || isWrapped(err, orchestrator.ErrCancelled))
}

func isWrapped(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// decodePolicyBody decodes the import request body as a policy.Policy,
// accepting either JSON (default) or YAML (Content-Type: application/yaml,
// application/x-yaml, or text/yaml) bundles — operators commonly author
// policy bundles by hand, where YAML's comments and lack of quoting noise
// are preferred to JSON.
func decodePolicyBody(r *http.Request) (policy.Policy, error) {
	var pol policy.Policy
	if !isYAMLContentType(r.Header.Get("Content-Type")) {
		if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
			return policy.Policy{}, err
		}
		return pol, nil
	}

	var doc map[string]any
	if err := yaml.NewDecoder(r.Body).Decode(&doc); err != nil {
		return policy.Policy{}, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return policy.Policy{}, err
	}
	if err := json.Unmarshal(raw, &pol); err != nil {
		return policy.Policy{}, err
	}
	return pol, nil
}

func isYAMLContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	default:
		return false
	}
}

func actorIDFrom(r *http.Request) string {
	if principal, err := auth.GetPrincipal(r.Context()); err == nil {
		return principal.GetID()
	}
	return "anonymous"
}

// OverrideExecuteRequest is the body of POST /api/overrides/execute.
type OverrideExecuteRequest struct {
	PolicyID      string         `json:"policy_id"`
	RuleID        string         `json:"rule_id"`
	Request       map[string]any `json:"request"`
	Justification string         `json:"justification"`
}

func (s *Server) handleOverrideExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	if !principal.HasCapability(auth.CapManageOverrides) {
		WriteForbidden(w, "missing manage_overrides capability")
		return
	}

	var req OverrideExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}

	pol, ok := s.snapshot.Load().Policy(req.PolicyID)
	if !ok {
		WriteNotFound(w, "policy not found")
		return
	}
	var rule policy.Rule
	found := false
	for _, r := range pol.Rules {
		if r.RuleID == req.RuleID {
			rule = r
			found = true
			break
		}
	}
	if !found {
		WriteNotFound(w, "rule not found")
		return
	}

	resp, err := s.auditLog.ExecuteOverride(audit.OverrideRequest{
		PolicyID:      req.PolicyID,
		RuleID:        req.RuleID,
		Request:       req.Request,
		Justification: req.Justification,
		ActorRole:     firstRole(principal.GetRoles()),
		ActorID:       principal.GetID(),
	}, rule, rule.AuditLogFields)
	if err != nil {
		writeOverrideError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, resp)
}

func firstRole(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return roles[0]
}

func writeOverrideError(w http.ResponseWriter, err error) {
	switch err {
	case audit.ErrOverrideNotAllowed, audit.ErrRoleNotAuthorized:
		WriteForbidden(w, err.Error())
	case audit.ErrJustificationRequired:
		WriteValidationError(w, err.Error(), nil)
	default:
		WriteInternal(w, err)
	}
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.snapshot.Load()
		_ = snap
		policies, err := s.store.ListPolicies(r.Context())
		if err != nil {
			WriteInternal(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
	default:
		WriteError(w, CodeValidationError, "method not allowed", nil)
	}
}

func (s *Server) handlePolicyByID(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/api/policies/"):]
	if rest == "" || rest == "import" {
		http.NotFound(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/validate"); ok {
		s.handlePolicyValidate(w, r, id)
		return
	}
	if before, ruleID, ok := strings.Cut(rest, "/rules/"); ok {
		if ruleID, ok := strings.CutSuffix(ruleID, "/test"); ok {
			s.handleRuleTest(w, r, before, ruleID)
			return
		}
		http.NotFound(w, r)
		return
	}

	id := rest
	switch r.Method {
	case http.MethodGet:
		pol, err := s.store.GetPolicy(r.Context(), id)
		if err == store.ErrNotFound {
			WriteNotFound(w, "policy not found")
			return
		}
		if err != nil {
			WriteInternal(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, pol)
	case http.MethodPut:
		principal, err := auth.GetPrincipal(r.Context())
		if err != nil {
			WriteUnauthorized(w, "")
			return
		}
		if !principal.HasCapability(auth.CapPublishRules) {
			WriteForbidden(w, "missing publish_rules capability")
			return
		}
		var pol policy.Policy
		if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
			WriteValidationError(w, "invalid request body", nil)
			return
		}
		pol.PolicyID = id
		if ok, errs := policy.Validate(pol); !ok {
			WriteValidationError(w, "policy failed schema validation", errs)
			return
		}
		if err := s.snapshot.PutPolicy(r.Context(), pol); err != nil {
			WriteInternal(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, pol)
	case http.MethodDelete:
		principal, err := auth.GetPrincipal(r.Context())
		if err != nil {
			WriteUnauthorized(w, "")
			return
		}
		if !principal.HasCapability(auth.CapPublishRules) {
			WriteForbidden(w, "missing publish_rules capability")
			return
		}
		if err := s.snapshot.DeletePolicy(r.Context(), id); err != nil {
			WriteInternal(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		WriteError(w, CodeValidationError, "method not allowed", nil)
	}
}

// handlePolicyValidate validates a posted policy document against the
// schema without publishing it. id is unused beyond routing (the body,
// not the stored policy, is what's validated).
func (s *Server) handlePolicyValidate(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	var pol policy.Policy
	if err := json.NewDecoder(r.Body).Decode(&pol); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}
	valid, errs := policy.Validate(pol)
	WriteJSON(w, http.StatusOK, map[string]any{"valid": valid, "errors": errs})
}

// RuleTestRequest is the body of POST /api/policies/:id/rules/:rid/test.
type RuleTestRequest struct {
	Request map[string]any `json:"request"`
}

// handleRuleTest evaluates policyID's full rule set against an enriched
// request payload and reports whether ruleID matched, alongside the
// per-rule trace for every rule considered.
func (s *Server) handleRuleTest(w http.ResponseWriter, r *http.Request, policyID, ruleID string) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	if !principal.HasCapability(auth.CapSimulate) {
		WriteForbidden(w, "missing simulate capability")
		return
	}

	pol, ok := s.snapshot.Load().Policy(policyID)
	if !ok {
		WriteNotFound(w, "policy not found")
		return
	}

	var req RuleTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}

	ctx := preprocess.Enrich(req.Request)
	decision := s.engine.Evaluate(pol, ctx)

	pass := false
	for _, step := range decision.Trace {
		if step.RuleID == ruleID {
			pass = step.Matched && !step.Skipped
			break
		}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"pass": pass, "results": decision.Trace})
}

func (s *Server) handlePolicyImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	if !principal.HasCapability(auth.CapPublishRules) {
		WriteForbidden(w, "missing publish_rules capability")
		return
	}

	pol, err := decodePolicyBody(r)
	if err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}
	if ok, errs := policy.Validate(pol); !ok {
		WriteValidationError(w, "policy failed schema validation", errs)
		return
	}
	if err := s.snapshot.PutPolicy(r.Context(), pol); err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, pol)
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		OrgID:  q.Get("org_id"),
		RuleID: q.Get("rule_id"),
		Effect: q.Get("effect"),
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = &t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = &t
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	entries := s.auditLog.ListLogs(filter)
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleAuditByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	id := r.URL.Path[len("/api/audit/"):]
	if id == "" || id == "proof" || id == "verify" {
		http.NotFound(w, r)
		return
	}
	entry, err := s.auditLog.GetByID(id)
	if err == audit.ErrEntryNotFound {
		WriteNotFound(w, "audit entry not found")
		return
	}
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAuditProofLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	WriteJSON(w, http.StatusOK, s.auditLog.GetLatestProof())
}

func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	report := s.auditLog.VerifyIntegrity()
	WriteJSON(w, http.StatusOK, report)
}

// handleAuditExport packages a time-range slice of the audit log into a
// zip evidence pack (entries.json + manifest.json with the Merkle root),
// returned as the response body. Gated behind manage_settings since an
// evidence pack is a compliance artifact, not routine audit reading.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	principal, err := auth.GetPrincipal(r.Context())
	if err != nil {
		WriteUnauthorized(w, "")
		return
	}
	if !principal.HasCapability(auth.CapManageSettings) {
		WriteForbidden(w, "missing manage_settings capability")
		return
	}

	q := r.URL.Query()
	req := audit.ExportRequest{OrgID: q.Get("org_id")}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			WriteValidationError(w, "from must be RFC3339", nil)
			return
		}
		req.StartTime = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			WriteValidationError(w, "to must be RFC3339", nil)
			return
		}
		req.EndTime = t
	} else {
		req.EndTime = time.Now().UTC()
	}

	pack, checksum, err := s.exporter.GeneratePack(req)
	if err != nil {
		if err == audit.ErrInvalidTimeRange {
			WriteValidationError(w, err.Error(), nil)
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("X-Evidence-Pack-Checksum", checksum)
	w.Header().Set("Content-Disposition", `attachment; filename="evidence-pack.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pack)
}

func (s *Server) handleRoutePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

// RouteExecuteRequest is the body of POST /api/routes/execute.
type RouteExecuteRequest struct {
	PoolID     string                     `json:"pool_id"`
	Preference *routing.RoutingPreference `json:"preference,omitempty"`
}

func (s *Server) handleRouteExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	var req RouteExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}

	pool, targets, ok := s.snapshot.Load().Pool(req.PoolID)
	if !ok {
		WriteNotFound(w, "pool not found")
		return
	}

	decision := routing.Score(pool, targets, req.Preference)
	if len(decision.Candidates) == 0 {
		WriteRoutingError(w, "no active targets in pool")
		return
	}
	WriteJSON(w, http.StatusOK, decision)
}

// handleRoutePoolByID dispatches sub-resources nested under a pool ID,
// currently only preview-ranking.
func (s *Server) handleRoutePoolByID(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/api/routes/pools/"):]
	if poolID, ok := strings.CutSuffix(rest, "/preview-ranking"); ok {
		s.handleRoutePreviewRanking(w, r, poolID)
		return
	}
	http.NotFound(w, r)
}

// RoutePreviewRankingRequest is the body of POST
// /api/routes/pools/:id/preview-ranking.
type RoutePreviewRankingRequest struct {
	Preferences *routing.RoutingPreference `json:"preferences,omitempty"`
}

// handleRoutePreviewRanking scores poolID's targets without executing a
// request — a dry run for inspecting how a preference set would rank.
func (s *Server) handleRoutePreviewRanking(w http.ResponseWriter, r *http.Request, poolID string) {
	if r.Method != http.MethodPost {
		WriteError(w, CodeValidationError, "method not allowed", nil)
		return
	}

	var req RoutePreviewRankingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteValidationError(w, "invalid request body", nil)
		return
	}

	pool, targets, ok := s.snapshot.Load().Pool(poolID)
	if !ok {
		WriteNotFound(w, "pool not found")
		return
	}

	decision := routing.Score(pool, targets, req.Preferences)
	if len(decision.Candidates) == 0 {
		WriteRoutingError(w, "no active targets in pool")
		return
	}
	WriteJSON(w, http.StatusOK, decision)
}
