package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.ListenAddr)
	assert.Equal(t, "store", s.Clock)
	assert.Equal(t, 10, s.Policy.MaxSteps)
	assert.Equal(t, 100, s.Policy.RowCeiling)
	assert.Equal(t, 5*time.Second, s.Policy.AdhocTimeout)
	assert.Equal(t, 10*time.Second, s.Policy.TTL(OpDeploymentStatus))
	assert.Equal(t, 300*time.Second, s.Policy.TTL(OpRequestDetail))
	assert.Zero(t, s.Policy.TTL(OpSafeSQL))
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fleetctx.yaml")
	body := `
database_path: /tmp/ctx.db
policy:
  max_steps: 4
  row_ceiling: 25
  ttls:
    get_active_incidents: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("FLEETCTX_POLICY_MAX_STEPS", "6")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ctx.db", s.DatabasePath)
	assert.Equal(t, 6, s.Policy.MaxSteps)
	assert.Equal(t, 25, s.Policy.RowCeiling)
	assert.Equal(t, 5*time.Second, s.Policy.TTL(OpActiveIncidents))
	assert.Equal(t, 60*time.Second, s.Policy.TTL(OpLatencyTrends))
}

func TestValidateRejectsUnknownPrecedence(t *testing.T) {
	p := DefaultPolicy()
	p.IncidentPrecedence = []string{"deployment", "region"}
	assert.Error(t, p.Validate())

	p.IncidentPrecedence = []string{"model", "model"}
	assert.Error(t, p.Validate())

	p.IncidentPrecedence = []string{"backend", "model", "deployment"}
	assert.NoError(t, p.Validate())
}
