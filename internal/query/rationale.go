package query

import (
	"github.com/tidwall/gjson"

	"github.com/georgeshao/fleetctx/pkg/types"
)

// ParseRationale classifies a stored routing_reason payload. It returns nil
// when the payload is absent or not a JSON object.
func ParseRationale(raw *string) *types.RoutingRationale {
	if raw == nil || !gjson.Valid(*raw) {
		return nil
	}
	doc := gjson.Parse(*raw)
	if !doc.IsObject() {
		return nil
	}

	if tp, ok := tierPreference(doc); ok {
		return &types.RoutingRationale{Kind: types.RationaleTierPreference, TierPreference: tp}
	}
	if sc, ok := scoredCandidates(doc); ok {
		return &types.RoutingRationale{Kind: types.RationaleScoredCandidates, ScoredCandidates: sc}
	}

	fields, _ := doc.Value().(map[string]any)
	return &types.RoutingRationale{Kind: types.RationaleGeneric, Fields: fields}
}

func tierPreference(doc gjson.Result) (*types.TierPreference, bool) {
	tier := doc.Get("tier_id")
	options := doc.Get("options_considered")
	if tier.Type != gjson.String || !options.IsArray() {
		return nil, false
	}

	tp := &types.TierPreference{
		TierID:            tier.String(),
		OptionsConsidered: []types.RoutingOption{},
		Decision:          doc.Get("decision").String(),
	}
	for _, o := range options.Array() {
		dep := o.Get("deployment")
		if !o.IsObject() || dep.Type != gjson.String {
			return nil, false
		}
		tp.OptionsConsidered = append(tp.OptionsConsidered, types.RoutingOption{
			Deployment: dep.String(),
			Available:  o.Get("available").Bool(),
		})
	}
	return tp, true
}

func scoredCandidates(doc gjson.Result) (*types.ScoredCandidates, bool) {
	candidates := doc.Get("candidates")
	if !candidates.IsArray() {
		return nil, false
	}

	sc := &types.ScoredCandidates{
		Candidates: []types.ScoredCandidate{},
		Chosen:     doc.Get("chosen").String(),
	}
	for _, c := range candidates.Array() {
		dep := c.Get("deployment")
		score := c.Get("score")
		if !c.IsObject() || dep.Type != gjson.String || score.Type != gjson.Number {
			return nil, false
		}
		sc.Candidates = append(sc.Candidates, types.ScoredCandidate{
			Deployment: dep.String(),
			Score:      score.Float(),
		})
	}
	return sc, true
}
