package sqlite_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite/sqlitetest"
)

func setupTestStore(t *testing.T) (*sqlite.SQLiteStore, *sqlitetest.Fixture) {
	t.Helper()
	f := sqlitetest.Standard(t)
	return f.Open(), f
}

func strPtr(s string) *string { return &s }

func TestListSnapshots(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	records, err := store.ListSnapshots(ctx, storage.SnapshotFilter{})
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 deployments, got %d", len(records))
	}

	// Ordered by deployment id.
	if records[0].DeploymentID != "claude-3-5-sonnet/anthropic" {
		t.Errorf("First deployment mismatch: got %s", records[0].DeploymentID)
	}
	llama := records[2]
	if llama.Status != nil || llama.UpdatedAt != nil {
		t.Errorf("Deployment without snapshot should have nil status and updated_at")
	}

	down, err := store.ListSnapshots(ctx, storage.SnapshotFilter{Status: strPtr("down")})
	if err != nil {
		t.Fatalf("ListSnapshots(down) failed: %v", err)
	}
	if len(down) != 1 || down[0].DeploymentID != "llama-3-70b/vllm" {
		t.Errorf("Missing snapshot should match status down, got %d records", len(down))
	}

	byBackend, err := store.ListSnapshots(ctx, storage.SnapshotFilter{BackendID: strPtr("openai")})
	if err != nil {
		t.Fatalf("ListSnapshots(backend) failed: %v", err)
	}
	if len(byBackend) != 1 || *byBackend[0].SampleCount != 120 {
		t.Errorf("Backend filter mismatch: %+v", byBackend)
	}
}

func TestLatestTimestamps(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestSnapshotUpdate(ctx)
	if err != nil {
		t.Fatalf("LatestSnapshotUpdate failed: %v", err)
	}
	if latest == nil || !latest.Equal(sqlitetest.Now) {
		t.Errorf("LatestSnapshotUpdate mismatch: got %v", latest)
	}

	activity, err := store.LatestActivity(ctx)
	if err != nil {
		t.Fatalf("LatestActivity failed: %v", err)
	}
	if activity == nil || !activity.Equal(sqlitetest.Now) {
		t.Errorf("LatestActivity mismatch: got %v", activity)
	}
}

func TestLatestTimestampsEmpty(t *testing.T) {
	store := sqlitetest.New(t).Open()

	latest, err := store.LatestActivity(context.Background())
	if err != nil {
		t.Fatalf("LatestActivity failed: %v", err)
	}
	if latest != nil {
		t.Errorf("Expected nil activity on empty store, got %v", latest)
	}
}

func TestIncidents(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	active, err := store.ListActiveIncidents(ctx, storage.IncidentFilter{})
	if err != nil {
		t.Fatalf("ListActiveIncidents failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "inc_backend" {
		t.Fatalf("Expected only inc_backend active, got %d", len(active))
	}
	if active[0].ResolvedAt != nil {
		t.Error("Active incident should not have resolved_at")
	}

	at := sqlitetest.Now.Add(-30 * time.Minute)
	overlap, err := store.OverlappingIncidents(ctx, at, "claude-3-5-sonnet/anthropic", "claude-3-5-sonnet", "anthropic")
	if err != nil {
		t.Fatalf("OverlappingIncidents failed: %v", err)
	}
	if len(overlap) != 2 {
		t.Fatalf("Expected 2 overlapping incidents, got %d", len(overlap))
	}
	// started_at DESC
	if overlap[0].ID != "inc_deploy" || overlap[1].ID != "inc_backend" {
		t.Errorf("Overlap order mismatch: %s, %s", overlap[0].ID, overlap[1].ID)
	}

	// After the deployment incident resolved only the backend one remains.
	overlap, err = store.OverlappingIncidents(ctx, sqlitetest.Now, "claude-3-5-sonnet/anthropic", "claude-3-5-sonnet", "anthropic")
	if err != nil {
		t.Fatalf("OverlappingIncidents failed: %v", err)
	}
	if len(overlap) != 1 || overlap[0].ID != "inc_backend" {
		t.Errorf("Expected only inc_backend, got %d", len(overlap))
	}
}

func TestSearchRequests(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	records, total, err := store.SearchRequests(ctx, storage.RequestFilter{
		UserID: strPtr("user_p_1"),
		Limit:  5,
	})
	if err != nil {
		t.Fatalf("SearchRequests failed: %v", err)
	}
	if total != 12 {
		t.Errorf("Total mismatch: got %d, want 12", total)
	}
	if len(records) != 5 {
		t.Fatalf("Page size mismatch: got %d, want 5", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].CreatedAt.After(records[i-1].CreatedAt) {
			t.Errorf("Records not ordered newest first at %d", i)
		}
	}
	if records[0].UserTier != "premium" {
		t.Errorf("Tier mismatch: got %s", records[0].UserTier)
	}

	_, total, err = store.SearchRequests(ctx, storage.RequestFilter{
		UserTier: strPtr("standard"),
		Status:   strPtr("timeout"),
		Since:    sqlitetest.Now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("SearchRequests failed: %v", err)
	}
	if total != 1 {
		t.Errorf("Filtered total mismatch: got %d, want 1", total)
	}
}

func TestGetRequestAndScores(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	r, err := store.GetRequest(ctx, "req_user_p_1_000001")
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if r == nil {
		t.Fatal("GetRequest returned nil")
	}
	if r.RoutingReasonJSON == nil || !strings.Contains(*r.RoutingReasonJSON, "options_considered") {
		t.Error("Routing reason not loaded")
	}
	if r.LatencyMs == nil || *r.LatencyMs != 300 {
		t.Errorf("Latency mismatch: %v", r.LatencyMs)
	}

	missing, err := store.GetRequest(ctx, "req_nope")
	if err != nil {
		t.Fatalf("GetRequest(missing) failed: %v", err)
	}
	if missing != nil {
		t.Error("Expected nil for missing request")
	}

	scores, err := store.ListQualityScores(ctx, "req_user_p_1_000001")
	if err != nil {
		t.Fatalf("ListQualityScores failed: %v", err)
	}
	if len(scores) != 2 || scores[0].EvalType != "correctness" {
		t.Errorf("Expected latest score first, got %+v", scores)
	}
}

func TestUserAndUsage(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	u, err := store.GetUser(ctx, "user_s_1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if u == nil {
		t.Fatal("GetUser returned nil")
	}
	if u.LatencySLAOverride == nil || *u.LatencySLAOverride != 700 {
		t.Errorf("Override mismatch: %v", u.LatencySLAOverride)
	}
	if u.TierLatencySLA != 900 || u.DailyBudgetUSD != nil {
		t.Errorf("Tier defaults mismatch: %+v", u)
	}

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	usage, err := store.UserUsage(ctx, "user_p_1", day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("UserUsage failed: %v", err)
	}
	// Requests at 12:00 back to 01:00 fall on the same UTC day.
	if usage.Requests != 12 {
		t.Errorf("Usage count mismatch: got %d", usage.Requests)
	}

	none, err := store.GetUser(ctx, "user_x")
	if err != nil || none != nil {
		t.Errorf("Expected (nil, nil) for missing user, got %v, %v", none, err)
	}
}

func TestAggregates(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	samples, err := store.ListLatencySamples(ctx, storage.LatencyFilter{ModelID: strPtr("gpt-4o")})
	if err != nil {
		t.Fatalf("ListLatencySamples failed: %v", err)
	}
	if len(samples) != 12 {
		t.Errorf("Sample count mismatch: got %d", len(samples))
	}

	quality, err := store.QualitySummary(ctx, storage.QualityFilter{Since: sqlitetest.Now.Add(-24 * time.Hour)})
	if err != nil {
		t.Fatalf("QualitySummary failed: %v", err)
	}
	if len(quality) != 2 {
		t.Fatalf("Expected 2 quality groups, got %d", len(quality))
	}
	if quality[0].ModelID != "gpt-4o" || quality[0].SampleCount != 3 {
		t.Errorf("Largest group mismatch: %+v", quality[0])
	}

	volume, err := store.RequestVolume(ctx, storage.VolumeFilter{GroupBy: "tier", Granularity: "day"})
	if err != nil {
		t.Fatalf("RequestVolume failed: %v", err)
	}
	total := 0
	for _, v := range volume {
		if !strings.HasSuffix(v.Period, "T00:00:00Z") {
			t.Errorf("Day period format mismatch: %s", v.Period)
		}
		total += v.RequestCount
	}
	if total != 14 {
		t.Errorf("Volume total mismatch: got %d, want 14", total)
	}

	if _, err := store.RequestVolume(ctx, storage.VolumeFilter{GroupBy: "region", Granularity: "day"}); err == nil {
		t.Error("Expected error for unknown group_by")
	}
}

func TestQueryRows(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	set, err := store.QueryRows(ctx, "SELECT id, latency_sla_p95_ms FROM tiers ORDER BY id")
	if err != nil {
		t.Fatalf("QueryRows failed: %v", err)
	}
	if len(set.Columns) != 2 || set.Columns[0] != "id" {
		t.Errorf("Columns mismatch: %v", set.Columns)
	}
	if len(set.Rows) != 3 {
		t.Fatalf("Row count mismatch: got %d", len(set.Rows))
	}
	if set.Rows[0][0] != "budget" {
		t.Errorf("Text column should decode to string, got %T", set.Rows[0][0])
	}
}

func TestQueryOnlyRejectsWrites(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.QueryRows(context.Background(), "DELETE FROM tiers")
	if err == nil {
		t.Fatal("Expected write to fail on query-only store")
	}
}
