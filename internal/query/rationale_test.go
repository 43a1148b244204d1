package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/pkg/types"
)

func TestParseRationale(t *testing.T) {
	t.Run("tier preference", func(t *testing.T) {
		got := ParseRationale(strPtr(`{"tier_id":"budget","options_considered":[{"deployment":"a/b","available":false},{"deployment":"c/d","available":true}],"decision":"c/d"}`))
		require.NotNil(t, got)
		assert.Equal(t, types.RationaleTierPreference, got.Kind)
		assert.Equal(t, []types.RoutingOption{{Deployment: "a/b"}, {Deployment: "c/d", Available: true}}, got.TierPreference.OptionsConsidered)
		assert.Equal(t, "c/d", got.TierPreference.Decision)
	})

	t.Run("scored candidates", func(t *testing.T) {
		got := ParseRationale(strPtr(`{"candidates":[{"deployment":"a/b","score":0.42}],"chosen":"a/b"}`))
		require.NotNil(t, got)
		assert.Equal(t, types.RationaleScoredCandidates, got.Kind)
		assert.Equal(t, 0.42, got.ScoredCandidates.Candidates[0].Score)
	})

	t.Run("malformed variant falls back to generic", func(t *testing.T) {
		got := ParseRationale(strPtr(`{"candidates":[{"deployment":"a/b","score":"high"}]}`))
		require.NotNil(t, got)
		assert.Equal(t, types.RationaleGeneric, got.Kind)
		assert.Contains(t, got.Fields, "candidates")
	})

	t.Run("generic", func(t *testing.T) {
		got := ParseRationale(strPtr(`{"reason":"sticky session"}`))
		require.NotNil(t, got)
		assert.Equal(t, types.RationaleGeneric, got.Kind)
		assert.Equal(t, "sticky session", got.Fields["reason"])
	})

	for _, raw := range []*string{nil, strPtr(""), strPtr("not json"), strPtr(`["a"]`)} {
		assert.Nil(t, ParseRationale(raw))
	}
}
