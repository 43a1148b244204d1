package types

type Request struct {
	ID               string   `json:"id"`
	CreatedAt        string   `json:"created_at"`
	UserID           string   `json:"user_id"`
	UserTier         string   `json:"user_tier,omitempty"`
	DeploymentID     string   `json:"deployment_id"`
	ModelID          string   `json:"model_id"`
	BackendID        string   `json:"backend_id"`
	TaskType         *string  `json:"task_type"`
	InputTokens      *int64   `json:"input_tokens"`
	OutputTokens     *int64   `json:"output_tokens"`
	LatencyMs        *int64   `json:"latency_ms"`
	TTFTMs           *int64   `json:"ttft_ms"`
	DecodeToksPerSec *float64 `json:"decode_toks_per_sec"`
	CostUSD          float64  `json:"cost_usd"`
	Status           string   `json:"status"`
	ErrorCode        *string  `json:"error_code"`
	RouterVersion    *string  `json:"router_version"`
	ExperimentID     *string  `json:"experiment_id"`
}

type RecentRequestsArgs struct {
	UserID       *string `json:"user_id,omitempty"`
	UserTier     *string `json:"user_tier,omitempty"`
	DeploymentID *string `json:"deployment_id,omitempty"`
	ModelID      *string `json:"model_id,omitempty"`
	BackendID    *string `json:"backend_id,omitempty"`
	Status       *string `json:"status,omitempty"`
	Since        string  `json:"since,omitempty"`
	Until        string  `json:"until,omitempty"`
	Limit        *int    `json:"limit,omitempty"`
}

type RecentRequestsResult struct {
	Requests []Request `json:"requests"`
	Count    int       `json:"count"`
	Total    int       `json:"total"`
	HasMore  bool      `json:"has_more"`
	Limit    int       `json:"limit"`
	Since    string    `json:"since"`
	Until    string    `json:"until"`
}

type RequestDetailArgs struct {
	RequestID string `json:"request_id"`
}

type QualityScore struct {
	EvalType    string  `json:"eval_type"`
	Score       float64 `json:"score"`
	EvaluatedAt string  `json:"evaluated_at"`
}

type RequestDetailResult struct {
	Request          Request           `json:"request"`
	RoutingRationale *RoutingRationale `json:"routing_rationale"`
	QualityScore     *QualityScore     `json:"quality_score"`
	QualityScores    []QualityScore    `json:"quality_scores"`
	RelatedIncident  *Incident         `json:"related_incident"`
}
