package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/georgeshao/fleetctx/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL of the operational tables. The core never applies
// it on its own; ingestion tooling and test fixtures do.
func Schema() string {
	return schemaSQL
}

type Options struct {
	// QueryOnly opens every connection with PRAGMA query_only.
	QueryOnly    bool
	MaxOpenConns int
}

func DefaultOptions() Options {
	return Options{
		QueryOnly:    true,
		MaxOpenConns: 4,
	}
}

type SQLiteStore struct {
	db *sql.DB
}

func New(dbPath string, opts Options) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	if opts.QueryOnly {
		dsn += "&_query_only=true"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Readers only; WAL lets them proceed alongside the external writer.
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 1
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	return &SQLiteStore{db: db}, nil
}

// ApplySchema creates the operational tables on a writable handle.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const snapshotColumns = `
	d.id, d.model_id, d.backend_id, d.enabled, d.weight,
	s.status, s.window_sec, s.sample_count, s.updated_at,
	s.latency_p50_ms, s.latency_p95_ms, s.error_rate, s.timeout_rate,
	s.queue_depth, s.rate_limit_remaining,
	s.ttft_p50_ms, s.ttft_p95_ms, s.decode_toks_per_sec_p50, s.decode_toks_per_sec_p95`

func (s *SQLiteStore) ListSnapshots(ctx context.Context, filter storage.SnapshotFilter) ([]*storage.SnapshotRecord, error) {
	var w where
	w.eq("d.model_id", filter.ModelID)
	w.eq("d.backend_id", filter.BackendID)
	w.eq("COALESCE(s.status, 'down')", filter.Status)

	query := `SELECT` + snapshotColumns + `
		FROM deployments d
		LEFT JOIN deployment_state_current s ON s.deployment_id = d.id
		` + w.sql() + `
		ORDER BY d.id ASC`

	rows, err := s.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var records []*storage.SnapshotRecord
	for rows.Next() {
		var (
			r         storage.SnapshotRecord
			enabled   int64
			status    sql.NullString
			windowSec sql.NullInt64
			samples   sql.NullInt64
			updatedAt sql.NullString
			metrics   [10]sql.NullFloat64
		)
		if err := rows.Scan(
			&r.DeploymentID, &r.ModelID, &r.BackendID, &enabled, &r.Weight,
			&status, &windowSec, &samples, &updatedAt,
			&metrics[0], &metrics[1], &metrics[2], &metrics[3],
			&metrics[4], &metrics[5],
			&metrics[6], &metrics[7], &metrics[8], &metrics[9],
		); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		r.Enabled = enabled != 0
		r.Status = fromNullString(status)
		r.WindowSec = fromNullInt64(windowSec)
		r.SampleCount = fromNullInt64(samples)
		if r.UpdatedAt, err = fromNullTime(updatedAt); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", r.DeploymentID, err)
		}
		r.LatencyP50Ms = fromNullFloat64(metrics[0])
		r.LatencyP95Ms = fromNullFloat64(metrics[1])
		r.ErrorRate = fromNullFloat64(metrics[2])
		r.TimeoutRate = fromNullFloat64(metrics[3])
		r.QueueDepth = fromNullFloat64(metrics[4])
		r.RateLimitRemaining = fromNullFloat64(metrics[5])
		r.TTFTP50Ms = fromNullFloat64(metrics[6])
		r.TTFTP95Ms = fromNullFloat64(metrics[7])
		r.DecodeTPSP50 = fromNullFloat64(metrics[8])
		r.DecodeTPSP95 = fromNullFloat64(metrics[9])
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) LatestSnapshotUpdate(ctx context.Context) (*time.Time, error) {
	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM deployment_state_current`).Scan(&ts); err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot update: %w", err)
	}
	return fromNullTime(ts)
}

func (s *SQLiteStore) LatestActivity(ctx context.Context) (*time.Time, error) {
	query := `
		WITH ts AS (
			SELECT MAX(updated_at) AS t FROM deployment_state_current
			UNION ALL SELECT MAX(created_at) FROM requests
			UNION ALL SELECT MAX(evaluated_at) FROM quality_scores
			UNION ALL SELECT MAX(started_at) FROM incidents
			UNION ALL SELECT MAX(resolved_at) FROM incidents
		)
		SELECT MAX(t) FROM ts`

	var ts sql.NullString
	if err := s.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
		return nil, fmt.Errorf("failed to get latest activity: %w", err)
	}
	return fromNullTime(ts)
}

const incidentColumns = `id, target_type, target_id, title, status, started_at, resolved_at`

func (s *SQLiteStore) ListActiveIncidents(ctx context.Context, filter storage.IncidentFilter) ([]*storage.IncidentRecord, error) {
	w := where{conds: []string{"status = 'active'"}}
	w.eq("target_type", filter.TargetType)
	w.eq("target_id", filter.TargetID)

	query := `SELECT ` + incidentColumns + ` FROM incidents ` + w.sql() + ` ORDER BY started_at DESC, id ASC`
	return s.queryIncidents(ctx, query, w.args...)
}

func (s *SQLiteStore) OverlappingIncidents(ctx context.Context, at time.Time, deploymentID, modelID, backendID string) ([]*storage.IncidentRecord, error) {
	ts := storage.FormatTime(at)
	query := `SELECT ` + incidentColumns + `
		FROM incidents
		WHERE started_at <= ?
		  AND (resolved_at IS NULL OR resolved_at >= ?)
		  AND (
		    (target_type = 'deployment' AND target_id = ?)
		    OR (target_type = 'model' AND target_id = ?)
		    OR (target_type = 'backend' AND target_id = ?)
		  )
		ORDER BY started_at DESC, id ASC`
	return s.queryIncidents(ctx, query, ts, ts, deploymentID, modelID, backendID)
}

func (s *SQLiteStore) queryIncidents(ctx context.Context, query string, args ...any) ([]*storage.IncidentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	var records []*storage.IncidentRecord
	for rows.Next() {
		var (
			r          storage.IncidentRecord
			startedAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TargetType, &r.TargetID, &r.Title, &r.Status, &startedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		if r.StartedAt, err = storage.ParseTime(startedAt); err != nil {
			return nil, fmt.Errorf("incident %s started_at: %w", r.ID, err)
		}
		if r.ResolvedAt, err = fromNullTime(resolvedAt); err != nil {
			return nil, fmt.Errorf("incident %s resolved_at: %w", r.ID, err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}

	return records, nil
}

const requestColumns = `
	r.id, r.created_at, r.user_id, COALESCE(u.tier_id, ''), r.deployment_id, r.model_id, r.backend_id,
	r.task_type, r.input_tokens, r.output_tokens, r.latency_ms, r.ttft_ms, r.decode_toks_per_sec,
	r.cost_usd, r.status, r.error_code, r.router_version, r.experiment_id, r.routing_reason_json`

func (s *SQLiteStore) SearchRequests(ctx context.Context, filter storage.RequestFilter) ([]*storage.RequestRecord, int, error) {
	var w where
	w.eq("r.user_id", filter.UserID)
	w.eq("u.tier_id", filter.UserTier)
	w.eq("r.deployment_id", filter.DeploymentID)
	w.eq("r.model_id", filter.ModelID)
	w.eq("r.backend_id", filter.BackendID)
	w.eq("r.status", filter.Status)
	w.timeRange("r.created_at", filter.Since, filter.Until)

	from := ` FROM requests r LEFT JOIN users u ON u.id = r.user_id ` + w.sql()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*)`+from, w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args := append(append([]any{}, w.args...), limit)
	rows, err := s.db.QueryContext(ctx, `SELECT`+requestColumns+from+` ORDER BY r.created_at DESC, r.id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search requests: %w", err)
	}
	defer rows.Close()

	var records []*storage.RequestRecord
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate requests: %w", err)
	}

	return records, total, nil
}

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*storage.RequestRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+requestColumns+`
		FROM requests r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.id = ?`, id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get request: %w", err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(sc scanner) (*storage.RequestRecord, error) {
	var (
		r             storage.RequestRecord
		createdAt     string
		taskType      sql.NullString
		inputTokens   sql.NullInt64
		outputTokens  sql.NullInt64
		latencyMs     sql.NullInt64
		ttftMs        sql.NullInt64
		decode        sql.NullFloat64
		errorCode     sql.NullString
		routerVersion sql.NullString
		experimentID  sql.NullString
		reason        sql.NullString
	)
	if err := sc.Scan(
		&r.ID, &createdAt, &r.UserID, &r.UserTier, &r.DeploymentID, &r.ModelID, &r.BackendID,
		&taskType, &inputTokens, &outputTokens, &latencyMs, &ttftMs, &decode,
		&r.CostUSD, &r.Status, &errorCode, &routerVersion, &experimentID, &reason,
	); err != nil {
		return nil, err
	}

	t, err := storage.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("request %s created_at: %w", r.ID, err)
	}
	r.CreatedAt = t
	r.TaskType = fromNullString(taskType)
	r.InputTokens = fromNullInt64(inputTokens)
	r.OutputTokens = fromNullInt64(outputTokens)
	r.LatencyMs = fromNullInt64(latencyMs)
	r.TTFTMs = fromNullInt64(ttftMs)
	r.DecodeToksPerSec = fromNullFloat64(decode)
	r.ErrorCode = fromNullString(errorCode)
	r.RouterVersion = fromNullString(routerVersion)
	r.ExperimentID = fromNullString(experimentID)
	r.RoutingReasonJSON = fromNullString(reason)

	return &r, nil
}

func (s *SQLiteStore) ListQualityScores(ctx context.Context, requestID string) ([]*storage.QualityScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, eval_type, score, evaluated_at
		FROM quality_scores
		WHERE request_id = ?
		ORDER BY evaluated_at DESC, eval_type ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quality scores: %w", err)
	}
	defer rows.Close()

	var records []*storage.QualityScoreRecord
	for rows.Next() {
		var (
			r           storage.QualityScoreRecord
			evaluatedAt string
		)
		if err := rows.Scan(&r.RequestID, &r.EvalType, &r.Score, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quality score: %w", err)
		}
		if r.EvaluatedAt, err = storage.ParseTime(evaluatedAt); err != nil {
			return nil, fmt.Errorf("quality score %s/%s: %w", r.RequestID, r.EvalType, err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quality scores: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*storage.UserRecord, error) {
	var (
		r           storage.UserRecord
		budget      sql.NullFloat64
		latencySLA  sql.NullInt64
		errorRate   sql.NullFloat64
		timeoutRate sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.tier_id, u.daily_budget_usd,
		       u.latency_sla_p95_ms_override, u.max_error_rate_override, u.max_timeout_rate_override,
		       t.latency_sla_p95_ms, t.max_error_rate, t.max_timeout_rate
		FROM users u
		JOIN tiers t ON t.id = u.tier_id
		WHERE u.id = ?`, id).Scan(
		&r.ID, &r.TierID, &budget,
		&latencySLA, &errorRate, &timeoutRate,
		&r.TierLatencySLA, &r.TierMaxErrorRate, &r.TierMaxTimeoutRate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	r.DailyBudgetUSD = fromNullFloat64(budget)
	r.LatencySLAOverride = fromNullInt64(latencySLA)
	r.ErrorRateOverride = fromNullFloat64(errorRate)
	r.TimeoutRateOverride = fromNullFloat64(timeoutRate)

	return &r, nil
}

func (s *SQLiteStore) UserUsage(ctx context.Context, userID string, since, until time.Time) (*storage.UsageRecord, error) {
	var usage storage.UsageRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(cost_usd), 0), COUNT(*)
		FROM requests
		WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, storage.FormatTime(since), storage.FormatTime(until)).Scan(&usage.CostUSD, &usage.Requests)
	if err != nil {
		return nil, fmt.Errorf("failed to sum user usage: %w", err)
	}
	return &usage, nil
}

func (s *SQLiteStore) ListLatencySamples(ctx context.Context, filter storage.LatencyFilter) ([]*storage.LatencySample, error) {
	var w where
	w.eq("deployment_id", filter.DeploymentID)
	w.eq("model_id", filter.ModelID)
	w.eq("backend_id", filter.BackendID)
	w.timeRange("created_at", filter.Since, filter.Until)

	rows, err := s.db.QueryContext(ctx, `
		SELECT created_at, deployment_id, latency_ms, status
		FROM requests `+w.sql()+`
		ORDER BY created_at ASC, id ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list latency samples: %w", err)
	}
	defer rows.Close()

	var samples []*storage.LatencySample
	for rows.Next() {
		var (
			sample    storage.LatencySample
			createdAt string
			latency   sql.NullInt64
		)
		if err := rows.Scan(&createdAt, &sample.DeploymentID, &latency, &sample.Status); err != nil {
			return nil, fmt.Errorf("failed to scan latency sample: %w", err)
		}
		if sample.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("latency sample created_at: %w", err)
		}
		sample.LatencyMs = fromNullInt64(latency)
		samples = append(samples, &sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latency samples: %w", err)
	}

	return samples, nil
}

func (s *SQLiteStore) QualitySummary(ctx context.Context, filter storage.QualityFilter) ([]*storage.QualityAggregate, error) {
	var w where
	w.eq("r.model_id", filter.ModelID)
	w.eq("r.task_type", filter.TaskType)
	w.timeRange("q.evaluated_at", filter.Since, filter.Until)

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.model_id,
		       COALESCE(r.task_type, 'unknown') AS task,
		       AVG(q.score), MIN(q.score), MAX(q.score), COUNT(*) AS n
		FROM quality_scores q
		JOIN requests r ON r.id = q.request_id
		`+w.sql()+`
		GROUP BY r.model_id, task
		HAVING COUNT(*) > 0
		ORDER BY n DESC, r.model_id ASC, task ASC`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize quality: %w", err)
	}
	defer rows.Close()

	var out []*storage.QualityAggregate
	for rows.Next() {
		var a storage.QualityAggregate
		if err := rows.Scan(&a.ModelID, &a.TaskType, &a.AvgScore, &a.MinScore, &a.MaxScore, &a.SampleCount); err != nil {
			return nil, fmt.Errorf("failed to scan quality aggregate: %w", err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quality aggregates: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) RequestVolume(ctx context.Context, filter storage.VolumeFilter) ([]*storage.VolumeRow, error) {
	var period string
	switch filter.Granularity {
	case "hour":
		period = "SUBSTR(r.created_at, 1, 13) || ':00:00Z'"
	case "day":
		period = "SUBSTR(r.created_at, 1, 10) || 'T00:00:00Z'"
	default:
		return nil, fmt.Errorf("unsupported granularity: %s", filter.Granularity)
	}

	var group, join string
	switch filter.GroupBy {
	case "tier":
		group, join = "u.tier_id", "JOIN users u ON u.id = r.user_id"
	case "model":
		group = "r.model_id"
	case "backend":
		group = "r.backend_id"
	case "deployment":
		group = "r.deployment_id"
	default:
		return nil, fmt.Errorf("unsupported group_by: %s", filter.GroupBy)
	}

	var w where
	w.timeRange("r.created_at", filter.Since, filter.Until)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s AS period, %s AS grp, COUNT(*), COALESCE(SUM(r.cost_usd), 0)
		FROM requests r
		%s
		%s
		GROUP BY period, grp
		ORDER BY period ASC, grp ASC`, period, group, join, w.sql()), w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate request volume: %w", err)
	}
	defer rows.Close()

	var out []*storage.VolumeRow
	for rows.Next() {
		var (
			v   storage.VolumeRow
			grp sql.NullString
		)
		if err := rows.Scan(&v.Period, &grp, &v.RequestCount, &v.TotalCostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan volume row: %w", err)
		}
		if !grp.Valid {
			continue
		}
		v.Group = grp.String
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate volume rows: %w", err)
	}

	return out, nil
}

func (s *SQLiteStore) QueryRows(ctx context.Context, query string, args ...any) (*storage.RowSet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classify(err)
	}

	set := &storage.RowSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, classify(err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v)
		}
		set.Rows = append(set.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	return set, nil
}

// classify tags generic SQL errors so callers can tell a bad statement from
// an unavailable store.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrError {
		return fmt.Errorf("%w: %v", storage.ErrInvalidStatement, err)
	}
	return err
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return storage.FormatTime(x)
	default:
		return x
	}
}

// where accumulates conjunctive conditions and their positional args.
type where struct {
	conds []string
	args  []any
}

func (w *where) eq(column string, value *string) {
	if value == nil || *value == "" {
		return
	}
	w.conds = append(w.conds, column+" = ?")
	w.args = append(w.args, *value)
}

func (w *where) timeRange(column string, since, until time.Time) {
	if !since.IsZero() {
		w.conds = append(w.conds, column+" >= ?")
		w.args = append(w.args, storage.FormatTime(since))
	}
	if !until.IsZero() {
		w.conds = append(w.conds, column+" <= ?")
		w.args = append(w.args, storage.FormatTime(until))
	}
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func fromNullInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	return &n.Int64
}

func fromNullFloat64(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func fromNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := storage.ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
