package timeexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/internal/opserr"
)

var now = time.Date(2025, 6, 1, 12, 30, 45, 500, time.UTC)

func TestResolve(t *testing.T) {
	tests := []struct {
		expr string
		want time.Time
	}{
		{"now", time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)},
		{"NOW", time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)},
		{"today", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)},
		{"1 hour ago", time.Date(2025, 6, 1, 11, 30, 45, 0, time.UTC)},
		{"7 days ago", time.Date(2025, 5, 25, 12, 30, 45, 0, time.UTC)},
		{"30 minutes ago", time.Date(2025, 6, 1, 12, 0, 45, 0, time.UTC)},
		{"2 weeks ago", time.Date(2025, 5, 18, 12, 30, 45, 0, time.UTC)},
		{"2025-05-30T08:00:00Z", time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)},
		{"2025-05-30T10:00:00+02:00", time.Date(2025, 5, 30, 8, 0, 0, 0, time.UTC)},
		{"2025-05-30", time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := Resolve(tt.expr, now)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s want %s", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}

func TestResolveInvalid(t *testing.T) {
	for _, expr := range []string{"", "soon", "3 fortnights ago", "x days ago", "-1 days ago", "2025-13-40"} {
		_, err := Resolve(expr, now)
		require.Error(t, err, expr)
		assert.Equal(t, opserr.InvalidParameter, opserr.KindOf(err), expr)
	}
}

func TestRangeDefaults(t *testing.T) {
	since, until, err := Range("", "", now, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC), until)
	assert.Equal(t, until.Add(-24*time.Hour), since)
}

func TestRangeRejectsInverted(t *testing.T) {
	_, _, err := Range("today", "yesterday", now, time.Hour)
	require.Error(t, err)
	assert.Equal(t, opserr.InvalidParameter, opserr.KindOf(err))
}
