package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Operation names shared by the catalog, the cache TTL table and the API.
const (
	OpDeploymentStatus = "get_deployment_status"
	OpActiveIncidents  = "get_active_incidents"
	OpRecentRequests   = "get_recent_requests"
	OpRequestDetail    = "get_request_detail"
	OpUserContext      = "get_user_context"
	OpLatencyTrends    = "get_latency_trends"
	OpQualitySummary   = "get_quality_summary"
	OpRequestVolume    = "get_request_volume"
	OpSafeSQL          = "safe_sql_query"
)

// Settings is the process configuration. Values come from an optional YAML
// file first and FLEETCTX_* environment variables second.
type Settings struct {
	DatabasePath   string        `envconfig:"DATABASE_PATH" yaml:"database_path"`
	ListenAddr     string        `envconfig:"LISTEN_ADDR" yaml:"listen_addr"`
	LogLevel       string        `envconfig:"LOG_LEVEL" yaml:"log_level"`
	Clock          string        `envconfig:"CLOCK" yaml:"clock"`
	QueryOnly      bool          `envconfig:"QUERY_ONLY" yaml:"query_only"`
	MaxOpenConns   int           `envconfig:"MAX_OPEN_CONNS" yaml:"max_open_conns"`
	AuditPath      string        `envconfig:"AUDIT_PATH" yaml:"audit_path"`
	AuditJSONL     string        `envconfig:"SQL_AUDIT_LOG_PATH" yaml:"audit_jsonl"`
	PlannerURL     string        `envconfig:"PLANNER_URL" yaml:"planner_url"`
	PlannerTimeout time.Duration `envconfig:"PLANNER_TIMEOUT" yaml:"planner_timeout"`
	Policy         Policy        `envconfig:"POLICY" yaml:"policy"`
}

// Policy holds the knobs of the dispatch loop, the gate and the query layer.
// It is passed to constructors explicitly so sessions with different policies
// can coexist.
type Policy struct {
	MaxSteps           int                      `envconfig:"MAX_STEPS" yaml:"max_steps"`
	StepTimeout        time.Duration            `envconfig:"STEP_TIMEOUT" yaml:"step_timeout"`
	MaxParallel        int                      `envconfig:"MAX_PARALLEL" yaml:"max_parallel"`
	PlannerRPS         float64                  `envconfig:"PLANNER_RPS" yaml:"planner_rps"`
	RowCeiling         int                      `envconfig:"ROW_CEILING" yaml:"row_ceiling"`
	AdhocTimeout       time.Duration            `envconfig:"ADHOC_TIMEOUT" yaml:"adhoc_timeout"`
	RetryBackoff       time.Duration            `envconfig:"RETRY_BACKOFF" yaml:"retry_backoff"`
	StaleAfter         time.Duration            `envconfig:"STALE_AFTER" yaml:"stale_after"`
	MinSamples         int                      `envconfig:"MIN_SAMPLES" yaml:"min_samples"`
	SearchLimitCap     int                      `envconfig:"SEARCH_LIMIT_CAP" yaml:"search_limit_cap"`
	TTLs               map[string]time.Duration `envconfig:"TTLS" yaml:"ttls"`
	IncidentPrecedence []string                 `envconfig:"INCIDENT_PRECEDENCE" yaml:"incident_precedence"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxSteps:       10,
		StepTimeout:    60 * time.Second,
		MaxParallel:    4,
		PlannerRPS:     5,
		RowCeiling:     100,
		AdhocTimeout:   5 * time.Second,
		RetryBackoff:   100 * time.Millisecond,
		StaleAfter:     60 * time.Second,
		MinSamples:     10,
		SearchLimitCap: 500,
		TTLs: map[string]time.Duration{
			OpDeploymentStatus: 10 * time.Second,
			OpActiveIncidents:  30 * time.Second,
			OpRecentRequests:   30 * time.Second,
			OpRequestDetail:    300 * time.Second,
			OpUserContext:      30 * time.Second,
			OpLatencyTrends:    60 * time.Second,
			OpQualitySummary:   60 * time.Second,
			OpRequestVolume:    60 * time.Second,
		},
		IncidentPrecedence: []string{"deployment", "model", "backend"},
	}
}

// TTL returns the cache lifetime for an operation. Zero disables caching.
func (p Policy) TTL(op string) time.Duration {
	return p.TTLs[op]
}

func DefaultSettings() Settings {
	return Settings{
		DatabasePath:   "./data/context.db",
		ListenAddr:     ":8080",
		LogLevel:       "info",
		Clock:          "store",
		QueryOnly:      true,
		MaxOpenConns:   4,
		PlannerTimeout: 60 * time.Second,
	}
}

// Load reads an optional YAML file (empty path skips it) and then applies
// environment overrides. Unset policy fields fall back to DefaultPolicy.
func Load(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process("FLEETCTX", &s); err != nil {
		return s, fmt.Errorf("process env: %w", err)
	}
	switch s.Clock {
	case "store", "wall":
	default:
		return s, fmt.Errorf("clock must be store or wall, got %q", s.Clock)
	}
	s.Policy = s.Policy.WithDefaults()
	if err := s.Policy.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// WithDefaults fills zero-valued fields from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxSteps == 0 {
		p.MaxSteps = d.MaxSteps
	}
	if p.StepTimeout == 0 {
		p.StepTimeout = d.StepTimeout
	}
	if p.MaxParallel == 0 {
		p.MaxParallel = d.MaxParallel
	}
	if p.PlannerRPS == 0 {
		p.PlannerRPS = d.PlannerRPS
	}
	if p.RowCeiling == 0 {
		p.RowCeiling = d.RowCeiling
	}
	if p.AdhocTimeout == 0 {
		p.AdhocTimeout = d.AdhocTimeout
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = d.RetryBackoff
	}
	if p.StaleAfter == 0 {
		p.StaleAfter = d.StaleAfter
	}
	if p.MinSamples == 0 {
		p.MinSamples = d.MinSamples
	}
	if p.SearchLimitCap == 0 {
		p.SearchLimitCap = d.SearchLimitCap
	}
	if len(p.IncidentPrecedence) == 0 {
		p.IncidentPrecedence = d.IncidentPrecedence
	}
	ttls := make(map[string]time.Duration, len(d.TTLs))
	for k, v := range d.TTLs {
		ttls[k] = v
	}
	for k, v := range p.TTLs {
		ttls[k] = v
	}
	p.TTLs = ttls
	return p
}

func (p Policy) Validate() error {
	if p.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", p.MaxSteps)
	}
	if p.RowCeiling <= 0 {
		return fmt.Errorf("row_ceiling must be positive, got %d", p.RowCeiling)
	}
	if p.MaxParallel <= 0 {
		return fmt.Errorf("max_parallel must be positive, got %d", p.MaxParallel)
	}
	if p.AdhocTimeout <= 0 {
		return fmt.Errorf("adhoc_timeout must be positive, got %s", p.AdhocTimeout)
	}
	seen := make(map[string]bool)
	for _, t := range p.IncidentPrecedence {
		switch t {
		case "deployment", "model", "backend":
		default:
			return fmt.Errorf("incident_precedence: unknown target type %q", t)
		}
		if seen[t] {
			return fmt.Errorf("incident_precedence: duplicate target type %q", t)
		}
		seen[t] = true
	}
	return nil
}
