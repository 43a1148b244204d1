// Package sqlitetest builds throwaway operational databases for tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite"
)

// Fixture owns a writable handle used for seeding. Open returns the
// read-only store the code under test sees.
type Fixture struct {
	t    testing.TB
	Path string
	DB   *sql.DB
}

func New(t testing.TB) *Fixture {
	t.Helper()

	path := filepath.Join(t.TempDir(), "context.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.ApplySchema(context.Background(), db))

	t.Cleanup(func() { db.Close() })
	return &Fixture{t: t, Path: path, DB: db}
}

// Open returns a query-only store over the fixture database.
func (f *Fixture) Open() *sqlite.SQLiteStore {
	f.t.Helper()
	store, err := sqlite.New(f.Path, sqlite.DefaultOptions())
	require.NoError(f.t, err)
	f.t.Cleanup(func() { store.Close() })
	return store
}

func (f *Fixture) exec(query string, args ...any) {
	f.t.Helper()
	_, err := f.DB.Exec(query, args...)
	require.NoError(f.t, err, query)
}

func (f *Fixture) Tier(id string, latencySLA int64, maxErrorRate, maxTimeoutRate float64) {
	f.exec(`INSERT INTO tiers (id, latency_sla_p95_ms, max_error_rate, max_timeout_rate) VALUES (?, ?, ?, ?)`,
		id, latencySLA, maxErrorRate, maxTimeoutRate)
}

// Deployment inserts model/backend and returns its id.
func (f *Fixture) Deployment(modelID, backendID string) string {
	id := modelID + "/" + backendID
	f.exec(`INSERT INTO deployments (id, model_id, backend_id, created_at) VALUES (?, ?, ?, ?)`,
		id, modelID, backendID, "2025-01-01T00:00:00Z")
	return id
}

type Snapshot struct {
	DeploymentID string
	Status       string
	SampleCount  int64
	UpdatedAt    time.Time
	LatencyP50   float64
	LatencyP95   float64
	ErrorRate    float64
	TimeoutRate  float64
	QueueDepth   float64
}

func (f *Fixture) Snapshot(s Snapshot) {
	f.exec(`INSERT INTO deployment_state_current
		(deployment_id, status, window_sec, sample_count, updated_at,
		 latency_p50_ms, latency_p95_ms, error_rate, timeout_rate, queue_depth)
		VALUES (?, ?, 300, ?, ?, ?, ?, ?, ?, ?)`,
		s.DeploymentID, s.Status, s.SampleCount, storage.FormatTime(s.UpdatedAt),
		s.LatencyP50, s.LatencyP95, s.ErrorRate, s.TimeoutRate, s.QueueDepth)
}

type User struct {
	ID                 string
	TierID             string
	DailyBudgetUSD     *float64
	LatencySLAOverride *int64
}

func (f *Fixture) User(u User) {
	f.exec(`INSERT INTO users (id, tier_id, daily_budget_usd, latency_sla_p95_ms_override) VALUES (?, ?, ?, ?)`,
		u.ID, u.TierID, u.DailyBudgetUSD, u.LatencySLAOverride)
}

type Request struct {
	ID            string
	CreatedAt     time.Time
	UserID        string
	DeploymentID  string
	TaskType      string
	LatencyMs     *int64
	CostUSD       float64
	Status        string
	ErrorCode     string
	RoutingReason string
}

// Request inserts r. Model and backend are derived from the deployment id.
func (f *Fixture) Request(r Request) {
	f.t.Helper()
	var modelID, backendID string
	require.NoError(f.t, f.DB.QueryRow(`SELECT model_id, backend_id FROM deployments WHERE id = ?`, r.DeploymentID).
		Scan(&modelID, &backendID))
	if r.Status == "" {
		r.Status = "success"
	}
	f.exec(`INSERT INTO requests
		(id, created_at, user_id, deployment_id, model_id, backend_id, task_type,
		 input_tokens, output_tokens, latency_ms, cost_usd, status, error_code, router_version, routing_reason_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, 100, 200, ?, ?, ?, ?, 'v1', ?)`,
		r.ID, storage.FormatTime(r.CreatedAt), r.UserID, r.DeploymentID, modelID, backendID,
		nullable(r.TaskType), r.LatencyMs, r.CostUSD, r.Status, nullable(r.ErrorCode), nullable(r.RoutingReason))
}

type Incident struct {
	ID         string
	TargetType string
	TargetID   string
	Title      string
	StartedAt  time.Time
	ResolvedAt *time.Time
}

func (f *Fixture) Incident(i Incident) {
	status := "active"
	var resolved any
	if i.ResolvedAt != nil {
		status = "resolved"
		resolved = storage.FormatTime(*i.ResolvedAt)
	}
	f.exec(`INSERT INTO incidents (id, target_type, target_id, title, status, started_at, resolved_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.TargetType, i.TargetID, i.Title, status, storage.FormatTime(i.StartedAt), resolved)
}

func (f *Fixture) Score(requestID, evalType string, score float64, evaluatedAt time.Time) {
	f.exec(`INSERT INTO quality_scores (request_id, eval_type, score, evaluated_at) VALUES (?, ?, ?, ?)`,
		requestID, evalType, score, storage.FormatTime(evaluatedAt))
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func Int64(v int64) *int64 { return &v }

func Float64(v float64) *float64 { return &v }

// Now is the reference instant of the Standard data set.
var Now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Standard seeds a small fleet around Now: three tiers, three deployments
// with one stale and one missing snapshot, two users, a day of requests,
// incidents and quality scores.
func Standard(t testing.TB) *Fixture {
	f := New(t)

	f.Tier("premium", 500, 0.03, 0.02)
	f.Tier("standard", 900, 0.05, 0.03)
	f.Tier("budget", 1500, 0.08, 0.05)

	gpt := f.Deployment("gpt-4o", "openai")
	claude := f.Deployment("claude-3-5-sonnet", "anthropic")
	llama := f.Deployment("llama-3-70b", "vllm")

	f.Snapshot(Snapshot{DeploymentID: gpt, Status: "healthy", SampleCount: 120, UpdatedAt: Now,
		LatencyP50: 320, LatencyP95: 610, ErrorRate: 0.01, TimeoutRate: 0.005, QueueDepth: 2})
	f.Snapshot(Snapshot{DeploymentID: claude, Status: "degraded", SampleCount: 4, UpdatedAt: Now.Add(-2 * time.Minute),
		LatencyP50: 900, LatencyP95: 2100, ErrorRate: 0.06, TimeoutRate: 0.02, QueueDepth: 9})

	f.User(User{ID: "user_p_1", TierID: "premium", DailyBudgetUSD: Float64(1.00)})
	f.User(User{ID: "user_s_1", TierID: "standard", LatencySLAOverride: Int64(700)})

	for i := 0; i < 12; i++ {
		created := Now.Add(-time.Duration(i) * time.Hour)
		status := "success"
		if i%5 == 4 {
			status = "error"
		}
		f.Request(Request{
			ID:           fmt.Sprintf("req_user_p_1_%06d", i+1),
			CreatedAt:    created,
			UserID:       "user_p_1",
			DeploymentID: gpt,
			TaskType:     "chat",
			LatencyMs:    Int64(int64(300 + 10*i)),
			CostUSD:      0.05,
			Status:       status,
			RoutingReason: fmt.Sprintf(`{"tier_id":"premium","options_considered":[{"deployment":%q,"available":true},{"deployment":%q,"available":false}],"decision":%q}`,
				gpt, claude, gpt),
		})
	}
	f.Request(Request{
		ID:           "req_user_s_1_000001",
		CreatedAt:    Now.Add(-30 * time.Minute),
		UserID:       "user_s_1",
		DeploymentID: claude,
		TaskType:     "summarize",
		LatencyMs:    Int64(2400),
		CostUSD:      0.12,
		Status:       "timeout",
		ErrorCode:    "upstream_timeout",
	})
	f.Request(Request{
		ID:           "req_user_s_1_000002",
		CreatedAt:    Now.Add(-3 * time.Hour),
		UserID:       "user_s_1",
		DeploymentID: llama,
		LatencyMs:    Int64(800),
		CostUSD:      0.01,
	})

	resolved := Now.Add(-20 * time.Minute)
	f.Incident(Incident{ID: "inc_backend", TargetType: "backend", TargetID: "anthropic",
		Title: "anthropic elevated latency", StartedAt: Now.Add(-2 * time.Hour)})
	f.Incident(Incident{ID: "inc_deploy", TargetType: "deployment", TargetID: claude,
		Title: "sonnet timeouts", StartedAt: Now.Add(-1 * time.Hour), ResolvedAt: &resolved})
	f.Incident(Incident{ID: "inc_old", TargetType: "model", TargetID: "gpt-4o",
		Title: "old outage", StartedAt: Now.Add(-72 * time.Hour), ResolvedAt: timePtr(Now.Add(-70 * time.Hour))})

	f.Score("req_user_p_1_000001", "helpfulness", 0.9, Now.Add(-10*time.Minute))
	f.Score("req_user_p_1_000001", "correctness", 0.7, Now.Add(-5*time.Minute))
	f.Score("req_user_p_1_000002", "helpfulness", 0.8, Now.Add(-50*time.Minute))
	f.Score("req_user_s_1_000001", "helpfulness", 0.4, Now.Add(-20*time.Minute))

	return f
}

func timePtr(t time.Time) *time.Time { return &t }
