package types

type LatencyTrendsArgs struct {
	DeploymentID *string `json:"deployment_id,omitempty"`
	ModelID      *string `json:"model_id,omitempty"`
	BackendID    *string `json:"backend_id,omitempty"`
	Since        string  `json:"since,omitempty"`
	Until        string  `json:"until,omitempty"`
	Granularity  string  `json:"granularity,omitempty"`
}

type LatencyBucket struct {
	Period       string   `json:"period"`
	DeploymentID string   `json:"deployment_id"`
	RequestCount int      `json:"request_count"`
	LatencyP50Ms *float64 `json:"latency_p50_ms"`
	LatencyP95Ms *float64 `json:"latency_p95_ms"`
	ErrorRate    float64  `json:"error_rate"`
}

type LatencySummary struct {
	TotalRequests   int      `json:"total_requests"`
	AvgLatencyP50Ms *float64 `json:"avg_latency_p50_ms"`
	AvgLatencyP95Ms *float64 `json:"avg_latency_p95_ms"`
	Weighting       string   `json:"weighting"`
}

type LatencyTrendsResult struct {
	Granularity string          `json:"granularity"`
	Since       string          `json:"since"`
	Until       string          `json:"until"`
	Buckets     []LatencyBucket `json:"buckets"`
	Count       int             `json:"count"`
	Summary     LatencySummary  `json:"summary"`
}

type QualitySummaryArgs struct {
	ModelID  *string `json:"model_id,omitempty"`
	TaskType *string `json:"task_type,omitempty"`
	Since    string  `json:"since,omitempty"`
	Until    string  `json:"until,omitempty"`
}

type QualityGroup struct {
	ModelID     string  `json:"model_id"`
	TaskType    string  `json:"task_type"`
	AvgScore    float64 `json:"avg_score"`
	MinScore    float64 `json:"min_score"`
	MaxScore    float64 `json:"max_score"`
	SampleCount int     `json:"sample_count"`
}

type QualitySummaryResult struct {
	Groups []QualityGroup `json:"groups"`
	Count  int            `json:"count"`
	Since  string         `json:"since"`
	Until  string         `json:"until"`
}

type RequestVolumeArgs struct {
	GroupBy     string `json:"group_by,omitempty"`
	Since       string `json:"since,omitempty"`
	Until       string `json:"until,omitempty"`
	Granularity string `json:"granularity,omitempty"`
}

type VolumePoint struct {
	Period       string  `json:"period"`
	Group        string  `json:"group"`
	RequestCount int     `json:"request_count"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

type VolumeTotal struct {
	Requests int     `json:"requests"`
	CostUSD  float64 `json:"cost_usd"`
}

type RequestVolumeResult struct {
	GroupBy     string                 `json:"group_by"`
	Granularity string                 `json:"granularity"`
	Since       string                 `json:"since"`
	Until       string                 `json:"until"`
	Series      []VolumePoint          `json:"series"`
	Count       int                    `json:"count"`
	Totals      map[string]VolumeTotal `json:"totals"`
}
