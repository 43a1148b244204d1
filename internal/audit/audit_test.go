package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/pkg/types"
)

func entry(i int, outcome string) types.AuditEntry {
	return types.AuditEntry{
		ID:        fmt.Sprintf("e%d", i),
		Timestamp: fmt.Sprintf("2025-06-01T12:00:%02d.000Z", i),
		Query:     "SELECT 1",
		Outcome:   outcome,
	}
}

func TestMemoryDropsOldest(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, m.Append(ctx, entry(i, types.AuditOK)))
	}

	all, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e4", all[0].ID)
	assert.Equal(t, "e2", all[2].ID)

	two, err := m.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	totals, err := m.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, totals[types.AuditOK])
}

func TestJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sql_audit.jsonl")
	j, err := NewJSONFile(path)
	require.NoError(t, err)
	ctx := context.Background()

	empty, err := j.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, j.Append(ctx, entry(1, types.AuditRejected)))
	require.NoError(t, j.Append(ctx, entry(2, types.AuditOK)))

	// A torn trailing line is ignored.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"e3","out`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := j.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, types.AuditRejected, entries[1].Outcome)
}

func TestTee(t *testing.T) {
	a, b := NewMemory(10), NewMemory(10)
	tee := Tee{a, b}
	ctx := context.Background()

	require.NoError(t, tee.Append(ctx, entry(1, types.AuditTimeout)))

	fromB, err := b.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, fromB, 1)

	totals, err := tee.Totals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, totals[types.AuditTimeout])
}
