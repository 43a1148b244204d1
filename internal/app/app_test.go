package app

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/storage/sqlite/sqlitetest"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func TestNewWiresDurableAudit(t *testing.T) {
	f := sqlitetest.Standard(t)
	dir := t.TempDir()

	s := config.DefaultSettings()
	s.DatabasePath = f.Path
	s.AuditPath = filepath.Join(dir, "audit")
	s.AuditJSONL = filepath.Join(dir, "audit.jsonl")
	s.Policy = config.DefaultPolicy()

	logger, err := NewLogger("warn")
	require.NoError(t, err)

	a, err := New(s, logger, prometheus.NewRegistry())
	require.NoError(t, err)

	_, err = a.Dispatcher.Invoke(context.Background(), config.OpSafeSQL, json.RawMessage(`{"query":"SELECT COUNT(*) AS n FROM requests"}`))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	// Entries survive a restart through the pebble log.
	a, err = New(s, logger, nil)
	require.NoError(t, err)
	defer a.Close()

	entries, err := a.Audit.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, types.AuditOK, entries[0].Outcome)
	assert.False(t, a.Dispatcher.HasPlanner())
}

func TestNewRejectsBadLogLevel(t *testing.T) {
	_, err := NewLogger("loud")
	assert.Error(t, err)
}
