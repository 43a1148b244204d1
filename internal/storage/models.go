package storage

import (
	"time"
)

// TimeLayout is the canonical timestamp format exchanged with the store.
const TimeLayout = "2006-01-02T15:04:05Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts the canonical layout and falls back to RFC 3339.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// SnapshotRecord joins a deployment with its current health row. Status and
// the metric fields are nil when the deployment has no snapshot yet.
type SnapshotRecord struct {
	DeploymentID       string
	ModelID            string
	BackendID          string
	Enabled            bool
	Weight             float64
	Status             *string
	WindowSec          *int64
	SampleCount        *int64
	UpdatedAt          *time.Time
	LatencyP50Ms       *float64
	LatencyP95Ms       *float64
	ErrorRate          *float64
	TimeoutRate        *float64
	QueueDepth         *float64
	RateLimitRemaining *float64
	TTFTP50Ms          *float64
	TTFTP95Ms          *float64
	DecodeTPSP50       *float64
	DecodeTPSP95       *float64
}

type SnapshotFilter struct {
	ModelID   *string
	BackendID *string
	Status    *string
}

type IncidentRecord struct {
	ID         string
	TargetType string
	TargetID   string
	Title      string
	Status     string
	StartedAt  time.Time
	ResolvedAt *time.Time
}

type IncidentFilter struct {
	TargetType *string
	TargetID   *string
}

type RequestRecord struct {
	ID                string
	CreatedAt         time.Time
	UserID            string
	UserTier          string
	DeploymentID      string
	ModelID           string
	BackendID         string
	TaskType          *string
	InputTokens       *int64
	OutputTokens      *int64
	LatencyMs         *int64
	TTFTMs            *int64
	DecodeToksPerSec  *float64
	CostUSD           float64
	Status            string
	ErrorCode         *string
	RouterVersion     *string
	ExperimentID      *string
	RoutingReasonJSON *string
}

// RequestFilter is conjunctive. Since and Until are inclusive bounds.
type RequestFilter struct {
	UserID       *string
	UserTier     *string
	DeploymentID *string
	ModelID      *string
	BackendID    *string
	Status       *string
	Since        time.Time
	Until        time.Time
	Limit        int
}

type QualityScoreRecord struct {
	RequestID   string
	EvalType    string
	Score       float64
	EvaluatedAt time.Time
}

type UserRecord struct {
	ID                  string
	TierID              string
	DailyBudgetUSD      *float64
	LatencySLAOverride  *int64
	ErrorRateOverride   *float64
	TimeoutRateOverride *float64
	TierLatencySLA      int64
	TierMaxErrorRate    float64
	TierMaxTimeoutRate  float64
}

type UsageRecord struct {
	CostUSD  float64
	Requests int
}

// LatencySample is one request as seen by the latency trend.
type LatencySample struct {
	CreatedAt    time.Time
	DeploymentID string
	LatencyMs    *int64
	Status       string
}

type LatencyFilter struct {
	DeploymentID *string
	ModelID      *string
	BackendID    *string
	Since        time.Time
	Until        time.Time
}

type QualityFilter struct {
	ModelID  *string
	TaskType *string
	Since    time.Time
	Until    time.Time
}

type QualityAggregate struct {
	ModelID     string
	TaskType    string
	AvgScore    float64
	MinScore    float64
	MaxScore    float64
	SampleCount int
}

type VolumeFilter struct {
	GroupBy     string
	Granularity string
	Since       time.Time
	Until       time.Time
}

type VolumeRow struct {
	Period       string
	Group        string
	RequestCount int
	TotalCostUSD float64
}

// RowSet is the column-typed result of a free-form read statement.
type RowSet struct {
	Columns []string
	Rows    [][]any
}
