package types

type DeploymentStatusArgs struct {
	ModelID   *string `json:"model_id,omitempty"`
	BackendID *string `json:"backend_id,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// DeploymentStatus is one deployment with its current snapshot. Metric
// fields are null when they were not measured in the current window.
type DeploymentStatus struct {
	DeploymentID       string   `json:"deployment_id"`
	ModelID            string   `json:"model_id"`
	BackendID          string   `json:"backend_id"`
	Enabled            bool     `json:"enabled"`
	Weight             float64  `json:"weight"`
	Status             string   `json:"status"`
	WindowSec          *int64   `json:"window_sec"`
	SampleCount        *int64   `json:"sample_count"`
	UpdatedAt          *string  `json:"updated_at"`
	LatencyP50Ms       *float64 `json:"latency_p50_ms"`
	LatencyP95Ms       *float64 `json:"latency_p95_ms"`
	ErrorRate          *float64 `json:"error_rate"`
	TimeoutRate        *float64 `json:"timeout_rate"`
	QueueDepth         *float64 `json:"queue_depth"`
	RateLimitRemaining *float64 `json:"rate_limit_remaining"`
	TTFTP50Ms          *float64 `json:"ttft_p50_ms"`
	TTFTP95Ms          *float64 `json:"ttft_p95_ms"`
	DecodeTPSP50       *float64 `json:"decode_toks_per_sec_p50"`
	DecodeTPSP95       *float64 `json:"decode_toks_per_sec_p95"`
	IsStale            bool     `json:"is_stale"`
	StaleReasons       []string `json:"stale_reasons,omitempty"`
}

type StatusSummary struct {
	Total    int `json:"total"`
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Down     int `json:"down"`
}

type DeploymentStatusResult struct {
	Deployments []DeploymentStatus `json:"deployments"`
	Count       int                `json:"count"`
	Summary     StatusSummary      `json:"summary"`
	// ReferenceTime is the freshest snapshot update in the fleet.
	ReferenceTime *string `json:"reference_time"`
}

type IncidentArgs struct {
	TargetType *string `json:"target_type,omitempty"`
	TargetID   *string `json:"target_id,omitempty"`
}

type Incident struct {
	ID              string  `json:"id"`
	TargetType      string  `json:"target_type"`
	TargetID        string  `json:"target_id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	StartedAt       string  `json:"started_at"`
	ResolvedAt      *string `json:"resolved_at"`
	DurationMinutes *int64  `json:"duration_minutes,omitempty"`
}

type ActiveIncidentsResult struct {
	Incidents []Incident `json:"incidents"`
	Count     int        `json:"count"`
	AsOf      string     `json:"as_of"`
}

type UserContextArgs struct {
	UserID string `json:"user_id"`
}

type EffectiveSLA struct {
	LatencyP95Ms   int64   `json:"latency_p95_ms"`
	MaxErrorRate   float64 `json:"max_error_rate"`
	MaxTimeoutRate float64 `json:"max_timeout_rate"`
	// Overridden lists the SLA fields taken from per-user overrides.
	Overridden []string `json:"overridden"`
}

type UserContextResult struct {
	UserID                  string       `json:"user_id"`
	Tier                    string       `json:"tier"`
	SLA                     EffectiveSLA `json:"sla"`
	DailyBudgetUSD          *float64     `json:"daily_budget_usd"`
	DailyBudgetUsedUSD      float64      `json:"daily_budget_used_usd"`
	DailyBudgetRemainingUSD *float64     `json:"daily_budget_remaining_usd"`
	RequestsToday           int          `json:"requests_today"`
	BudgetDay               string       `json:"budget_day"`
}
