package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/georgeshao/fleetctx/internal/audit"
	"github.com/georgeshao/fleetctx/internal/cache"
	"github.com/georgeshao/fleetctx/internal/catalog"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/dispatcher"
	"github.com/georgeshao/fleetctx/internal/gate"
	"github.com/georgeshao/fleetctx/internal/metrics"
	"github.com/georgeshao/fleetctx/internal/planner"
	"github.com/georgeshao/fleetctx/internal/query"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite/sqlitetest"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func setupTestApp(t *testing.T, p dispatcher.Planner) *fiber.App {
	t.Helper()

	store := sqlitetest.Standard(t).Open()
	policy := config.DefaultPolicy()
	policy.PlannerRPS = -1

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	log := audit.NewMemory(100)

	svc := query.NewService(store, query.FixedClock(sqlitetest.Now), policy)
	g := gate.New(store, log, policy, gate.WithMetrics(m))

	c := cache.New(time.Minute)
	t.Cleanup(c.Stop)

	d := dispatcher.New(catalog.New(svc, g, policy), p, c, policy, dispatcher.WithMetrics(m))

	app := fiber.New()
	SetupRoutes(app, store, d, log, reg)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return resp, data
}

func TestHealthEndpoint(t *testing.T) {
	app := setupTestApp(t, nil)

	resp, _ := doJSON(t, app, http.MethodGet, "/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
}

func TestListOperations(t *testing.T) {
	app := setupTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodGet, "/v1/catalog", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var out types.CatalogResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Count != 9 {
		t.Errorf("Expected 9 operations, got %d", out.Count)
	}
	if out.Operations[0].Name != config.OpDeploymentStatus {
		t.Errorf("First operation mismatch: got %s", out.Operations[0].Name)
	}
}

func TestInvokeDeploymentStatus(t *testing.T) {
	app := setupTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/ops/get_deployment_status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var out types.DeploymentStatusResult
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Summary.Total != 3 || out.Summary.Healthy != 1 || out.Summary.Degraded != 1 || out.Summary.Down != 1 {
		t.Errorf("Summary mismatch: %+v", out.Summary)
	}
}

func TestInvokeErrorMapping(t *testing.T) {
	app := setupTestApp(t, nil)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown operation", "/v1/ops/drop_everything", "{}", http.StatusNotFound, "NOT_FOUND"},
		{"missing request", "/v1/ops/get_request_detail", `{"request_id":"req_nope"}`, http.StatusNotFound, "NOT_FOUND"},
		{"unknown field", "/v1/ops/get_deployment_status", `{"region":"eu"}`, http.StatusBadRequest, "INVALID_PARAMETER"},
		{"malformed body", "/v1/ops/get_deployment_status", `{"status":`, http.StatusBadRequest, "INVALID_PARAMETER"},
		{"rejected sql", "/v1/ops/safe_sql_query", `{"query":"DELETE FROM requests"}`, http.StatusUnprocessableEntity, "REJECTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, resp.StatusCode, body)
			}
			var errResp types.ErrorResponse
			if err := json.Unmarshal(body, &errResp); err != nil {
				t.Fatalf("Failed to decode error: %v", err)
			}
			if errResp.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, errResp.Code)
			}
		})
	}
}

func TestSafeSQLIsAudited(t *testing.T) {
	app := setupTestApp(t, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/ops/safe_sql_query", `{"query":"SELECT id FROM tiers ORDER BY id"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}
	doJSON(t, app, http.MethodPost, "/v1/ops/safe_sql_query", `{"query":"UPDATE tiers SET id = 'x'"}`)

	resp, body = doJSON(t, app, http.MethodGet, "/v1/audit?limit=10", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var out types.AuditListResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Count != 2 {
		t.Fatalf("Expected 2 audit entries, got %d", out.Count)
	}
	if out.Entries[0].Outcome != types.AuditRejected || out.Entries[1].Outcome != types.AuditOK {
		t.Errorf("Audit order mismatch: %s, %s", out.Entries[0].Outcome, out.Entries[1].Outcome)
	}
	if out.Totals[types.AuditOK] != 1 || out.Totals[types.AuditRejected] != 1 {
		t.Errorf("Totals mismatch: %v", out.Totals)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/v1/audit?limit=0", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for limit=0, got %d", resp.StatusCode)
	}
}

func TestAskWithoutPlanner(t *testing.T) {
	app := setupTestApp(t, nil)

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/ask", `{"question":"anything down?"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}
}

func TestAsk(t *testing.T) {
	p := planner.NewScripted(
		types.PlannerResponse{Invocations: []types.Invocation{
			{Name: config.OpDeploymentStatus, Args: json.RawMessage(`{"status":"down"}`)},
			{Name: config.OpActiveIncidents},
		}},
		types.PlannerResponse{Done: true, Answer: "llama-3-70b/vllm has no snapshot"},
	)
	app := setupTestApp(t, p)

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/ask", `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty question, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/v1/ask", `{"question":"anything down?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", resp.StatusCode, body)
	}

	var out types.SessionResult
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if out.Outcome != types.OutcomeAnswered || out.Steps != 1 {
		t.Errorf("Session mismatch: outcome=%s steps=%d", out.Outcome, out.Steps)
	}
	if len(out.ToolsUsed) != 2 {
		t.Errorf("Expected 2 tools used, got %v", out.ToolsUsed)
	}
	// question + two results
	if len(out.Observations) != 3 {
		t.Fatalf("Expected 3 observations, got %d", len(out.Observations))
	}
	if out.Observations[1].Name != config.OpDeploymentStatus || out.Observations[2].Name != config.OpActiveIncidents {
		t.Errorf("Observation order mismatch")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := setupTestApp(t, nil)

	doJSON(t, app, http.MethodPost, "/v1/ops/get_active_incidents", "{}")
	doJSON(t, app, http.MethodPost, "/v1/ops/get_active_incidents", "{}")

	resp, body := doJSON(t, app, http.MethodGet, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `fleetctx_cache_requests_total{result="hit"} 1`) {
		t.Errorf("Expected one cache hit in metrics output")
	}
	if !strings.Contains(string(body), "fleetctx_op_duration_seconds") {
		t.Errorf("Expected op duration histogram in metrics output")
	}
}
