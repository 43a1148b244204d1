package types

// Rationale kinds.
const (
	RationaleTierPreference   = "tier_preference"
	RationaleScoredCandidates = "scored_candidates"
	RationaleGeneric          = "generic"
)

// RoutingRationale is the parsed routing_reason payload of a request.
// Exactly one of the variant fields is set, selected by Kind.
type RoutingRationale struct {
	Kind             string            `json:"kind"`
	TierPreference   *TierPreference   `json:"tier_preference,omitempty"`
	ScoredCandidates *ScoredCandidates `json:"scored_candidates,omitempty"`
	Fields           map[string]any    `json:"fields,omitempty"`
}

type TierPreference struct {
	TierID            string          `json:"tier_id"`
	OptionsConsidered []RoutingOption `json:"options_considered"`
	Decision          string          `json:"decision"`
}

type RoutingOption struct {
	Deployment string `json:"deployment"`
	Available  bool   `json:"available"`
}

type ScoredCandidates struct {
	Candidates []ScoredCandidate `json:"candidates"`
	Chosen     string            `json:"chosen"`
}

type ScoredCandidate struct {
	Deployment string  `json:"deployment"`
	Score      float64 `json:"score"`
}
