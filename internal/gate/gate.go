// Package gate validates, rewrites and executes single free-form read
// statements under a row cap and a wall-clock timeout, auditing every call.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/georgeshao/fleetctx/internal/audit"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/metrics"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

type Gate struct {
	store   storage.Store
	audit   audit.Log
	policy  config.Policy
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Gate)

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Gate) { g.logger = l }
}

func New(store storage.Store, log audit.Log, policy config.Policy, opts ...Option) *Gate {
	g := &Gate{
		store:  store,
		audit:  log,
		policy: policy.WithDefaults(),
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wrap caps stmt at limit rows. The extra row lets the caller detect
// truncation.
func Wrap(stmt string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) LIMIT %d", stmt, limit+1)
}

func (g *Gate) Query(ctx context.Context, args types.SQLQueryArgs) (*types.SQLQueryResult, error) {
	start := g.now()
	entry := types.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: start.UTC().Format(audit.TimeLayout),
		Query:     args.Query,
	}

	result, err := g.run(ctx, args, &entry)

	entry.DurationMs = g.now().Sub(start).Milliseconds()
	switch opserr.KindOf(err) {
	case "":
		entry.Outcome = types.AuditOK
		entry.RowCount = result.RowCount
	case opserr.Rejected:
		entry.Outcome = types.AuditRejected
	case opserr.Timeout:
		entry.Outcome = types.AuditTimeout
	default:
		entry.Outcome = types.AuditError
	}
	if err != nil {
		entry.Error = opserr.Message(err)
	}
	g.record(ctx, entry)

	return result, err
}

func (g *Gate) run(ctx context.Context, args types.SQLQueryArgs, entry *types.AuditEntry) (*types.SQLQueryResult, error) {
	stmt, err := Validate(args.Query)
	if err != nil {
		entry.Normalized = Normalize(args.Query)
		return nil, err
	}
	entry.Normalized = stmt.Normalized

	limit := g.policy.RowCeiling
	if args.MaxRows != nil {
		if *args.MaxRows <= 0 {
			return nil, opserr.Invalidf("max_rows must be positive, got %d", *args.MaxRows)
		}
		limit = min(*args.MaxRows, g.policy.RowCeiling)
	}
	executed := Wrap(stmt.SQL, limit)
	entry.ExecutedSQL = executed

	qctx, cancel := context.WithTimeout(ctx, g.policy.AdhocTimeout)
	defer cancel()

	set, err := g.store.QueryRows(qctx, executed)
	if err != nil {
		if errors.Is(qctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, opserr.New(opserr.Timeout, "query exceeded %s", g.policy.AdhocTimeout)
		}
		if errors.Is(err, storage.ErrInvalidStatement) {
			return nil, &opserr.Error{Kind: opserr.InvalidParameter, Message: "statement failed", Err: err}
		}
		return nil, opserr.Unavailable(err, "execute ad-hoc query")
	}

	result := &types.SQLQueryResult{
		Columns:     set.Columns,
		Rows:        set.Rows,
		RowCap:      limit,
		ExecutedSQL: executed,
	}
	if len(result.Rows) > limit {
		result.Rows = result.Rows[:limit]
		result.HasMore = true
	}
	result.RowCount = len(result.Rows)

	return result, nil
}

// record appends the audit entry. A failing sink is logged, never surfaced.
func (g *Gate) record(ctx context.Context, entry types.AuditEntry) {
	g.metrics.RecordGate(entry.Outcome)
	if g.audit == nil {
		return
	}
	if err := g.audit.Append(context.WithoutCancel(ctx), entry); err != nil {
		g.logger.WithError(err).WithField("audit_id", entry.ID).Error("failed to append audit entry")
	}
}
