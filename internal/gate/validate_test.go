package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/internal/opserr"
)

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name  string
		query string
		sql   string
	}{
		{"plain", "SELECT id FROM tiers", "SELECT id FROM tiers"},
		{"trailing terminator", "select id from tiers;  ", "select id from tiers"},
		{"with", "WITH t AS (SELECT 1 AS x) SELECT x FROM t", "WITH t AS (SELECT 1 AS x) SELECT x FROM t"},
		{"parenthesized", "(SELECT 1)", "(SELECT 1)"},
		{"quoted keyword", "SELECT * FROM incidents WHERE title = 'delete; drop table'", "SELECT * FROM incidents WHERE title = 'delete; drop table'"},
		{"escaped quote", "SELECT 'it''s; update' AS s", "SELECT 'it''s; update' AS s"},
		{"quoted identifier", `SELECT "delete" FROM t`, `SELECT "delete" FROM t`},
		{"line comment", "SELECT 1 -- drop everything; now", "SELECT 1"},
		{"block comment", "SELECT /* insert */ 1;", "SELECT   1"},
		{"keyword as substring", "SELECT updated_at, created_at FROM deployment_state_current", "SELECT updated_at, created_at FROM deployment_state_current"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := Validate(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, stmt.SQL)
		})
	}
}

func TestValidateRejects(t *testing.T) {
	queries := map[string]string{
		"second statement":     "SELECT 1; DROP TABLE requests",
		"two selects":          "SELECT 1; SELECT 2",
		"not a read":           "DELETE FROM requests",
		"nested write":         "WITH x AS (DELETE FROM requests RETURNING id) SELECT * FROM x",
		"pragma":               "PRAGMA query_only = 0",
		"replace into":         "SELECT 1 UNION ALL SELECT 2; REPLACE INTO tiers VALUES (1)",
		"attach":               "SELECT * FROM t WHERE 1 = 1 AND attach",
		"empty":                "  ;  ",
		"only comment":         "-- nothing",
		"unterminated literal": "SELECT 'oops",
		"unterminated comment": "SELECT 1 /* open",
		"explain":              "EXPLAIN SELECT 1",
		"prefix before select": "x SELECT 1",
	}

	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			_, err := Validate(q)
			require.Error(t, err)
			assert.Equal(t, opserr.Rejected, opserr.KindOf(err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Equal(t, "SELECT * FROM (SELECT 1 LIMIT 1000) LIMIT 101", Wrap("SELECT 1 LIMIT 1000", 100))
}
