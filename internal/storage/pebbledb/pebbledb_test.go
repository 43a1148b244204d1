package pebbledb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func setupTestLog(t *testing.T) (*AuditLog, string, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "pebble_audit_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tempDir, "audit")
	log, err := New(dbPath)
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open audit log: %v", err)
	}

	cleanup := func() {
		if err := log.Close(); err != nil {
			t.Logf("Failed to close audit log: %v", err)
		}
		os.RemoveAll(tempDir)
	}
	return log, dbPath, cleanup
}

func entryAt(i int, outcome string) types.AuditEntry {
	ts := time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC)
	return types.AuditEntry{
		ID:        fmt.Sprintf("a%02d", i),
		Timestamp: storage.FormatTime(ts),
		Query:     "SELECT 1",
		Outcome:   outcome,
	}
}

func TestAppendAndList(t *testing.T) {
	log, _, cleanup := setupTestLog(t)
	defer cleanup()
	ctx := context.Background()

	for i, outcome := range []string{types.AuditOK, types.AuditRejected, types.AuditOK, types.AuditTimeout} {
		if err := log.Append(ctx, entryAt(i, outcome)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := log.List(ctx, 3)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "a03" || entries[2].ID != "a01" {
		t.Errorf("Expected newest first, got %s..%s", entries[0].ID, entries[2].ID)
	}

	totals, err := log.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals failed: %v", err)
	}
	if totals[types.AuditOK] != 2 || totals[types.AuditRejected] != 1 || totals[types.AuditError] != 0 {
		t.Errorf("Totals mismatch: %v", totals)
	}
}

func TestEntriesSurviveReopen(t *testing.T) {
	log, dbPath, cleanup := setupTestLog(t)
	defer cleanup()
	ctx := context.Background()

	if err := log.Append(ctx, entryAt(1, types.AuditError)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(dbPath)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	*log = *reopened

	entries, err := log.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != types.AuditError {
		t.Errorf("Expected the error entry after reopen, got %+v", entries)
	}
}

func TestAppendRejectsBadTimestamp(t *testing.T) {
	log, _, cleanup := setupTestLog(t)
	defer cleanup()

	entry := entryAt(0, types.AuditOK)
	entry.Timestamp = "yesterday"
	if err := log.Append(context.Background(), entry); err == nil {
		t.Error("Expected error for unparseable timestamp")
	}
}
