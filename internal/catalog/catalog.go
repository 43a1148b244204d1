// Package catalog exposes the query operations and the ad-hoc gate as named
// contracts taking and returning JSON-shaped records.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/gate"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/query"
	"github.com/georgeshao/fleetctx/pkg/types"
)

type Func func(ctx context.Context, args json.RawMessage) (any, error)

type Operation struct {
	Spec types.OperationSpec
	TTL  time.Duration
	Call Func
}

type Registry struct {
	ops   map[string]*Operation
	order []string
}

func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

func (r *Registry) Register(op *Operation) {
	if _, exists := r.ops[op.Spec.Name]; !exists {
		r.order = append(r.order, op.Spec.Name)
	}
	op.Spec.TTLSeconds = int(op.TTL / time.Second)
	r.ops[op.Spec.Name] = op
}

func (r *Registry) Lookup(name string) (*Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Specs lists the operations in registration order.
func (r *Registry) Specs() []types.OperationSpec {
	specs := make([]types.OperationSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.ops[name].Spec)
	}
	return specs
}

func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (any, error) {
	op, ok := r.ops[name]
	if !ok {
		return nil, opserr.Invalidf("unknown operation: %s", name)
	}
	return op.Call(ctx, args)
}

// decode strictly unmarshals args into T. Unknown fields are rejected so a
// misspelled filter never silently widens a query.
func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, opserr.Invalidf("invalid arguments: %v", err)
	}
	return v, nil
}

func bind[A any, R any](fn func(context.Context, A) (R, error)) Func {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		args, err := decode[A](raw)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}
}

// New registers every query operation and, when g is non-nil, the ad-hoc
// gate.
func New(svc *query.Service, g *gate.Gate, policy config.Policy) *Registry {
	r := NewRegistry()
	ttl := policy.TTL

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpDeploymentStatus,
			Description: "Current health snapshot per deployment with staleness flags and a status summary.",
			Params: []types.ParamSpec{
				{Name: "model_id", Type: "string"},
				{Name: "backend_id", Type: "string"},
				{Name: "status", Type: "string", Enum: []string{"healthy", "degraded", "down"}},
			},
		},
		TTL:  ttl(config.OpDeploymentStatus),
		Call: bind(svc.DeploymentStatus),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpActiveIncidents,
			Description: "Active incidents with their duration in minutes.",
			Params: []types.ParamSpec{
				{Name: "target_type", Type: "string", Enum: []string{"deployment", "model", "backend"}},
				{Name: "target_id", Type: "string"},
			},
		},
		TTL:  ttl(config.OpActiveIncidents),
		Call: bind(svc.ActiveIncidents),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpRecentRequests,
			Description: "Search requests newest first with conjunctive filters; returns total and has_more.",
			Params: []types.ParamSpec{
				{Name: "user_id", Type: "string"},
				{Name: "user_tier", Type: "string", Enum: []string{"premium", "standard", "budget"}},
				{Name: "deployment_id", Type: "string"},
				{Name: "model_id", Type: "string"},
				{Name: "backend_id", Type: "string"},
				{Name: "status", Type: "string", Enum: []string{"success", "error", "timeout"}},
				{Name: "since", Type: "time", Description: "default 24 hours ago"},
				{Name: "until", Type: "time", Description: "default now"},
				{Name: "limit", Type: "integer", Description: "1..500, default 50"},
			},
		},
		TTL:  ttl(config.OpRecentRequests),
		Call: bind(svc.RecentRequests),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpRequestDetail,
			Description: "One request with parsed routing rationale, quality scores and the related incident.",
			Params: []types.ParamSpec{
				{Name: "request_id", Type: "string", Required: true},
			},
		},
		TTL:  ttl(config.OpRequestDetail),
		Call: bind(svc.RequestDetail),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpUserContext,
			Description: "User tier, effective SLA and today's budget usage.",
			Params: []types.ParamSpec{
				{Name: "user_id", Type: "string", Required: true},
			},
		},
		TTL:  ttl(config.OpUserContext),
		Call: bind(svc.UserContext),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpLatencyTrends,
			Description: "Latency p50/p95 (nearest rank) and error rate per time bucket and deployment.",
			Params: []types.ParamSpec{
				{Name: "deployment_id", Type: "string"},
				{Name: "model_id", Type: "string"},
				{Name: "backend_id", Type: "string"},
				{Name: "since", Type: "time", Description: "default 24 hours ago"},
				{Name: "until", Type: "time", Description: "default now"},
				{Name: "granularity", Type: "string", Enum: []string{"hour", "day"}},
			},
		},
		TTL:  ttl(config.OpLatencyTrends),
		Call: bind(svc.LatencyTrends),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpQualitySummary,
			Description: "Average, min and max quality score per model and task type.",
			Params: []types.ParamSpec{
				{Name: "model_id", Type: "string"},
				{Name: "task_type", Type: "string"},
				{Name: "since", Type: "time", Description: "default 7 days ago"},
				{Name: "until", Type: "time", Description: "default now"},
			},
		},
		TTL:  ttl(config.OpQualitySummary),
		Call: bind(svc.QualitySummary),
	})

	r.Register(&Operation{
		Spec: types.OperationSpec{
			Name:        config.OpRequestVolume,
			Description: "Request count and cost per time bucket and group, with per-group totals.",
			Params: []types.ParamSpec{
				{Name: "group_by", Type: "string", Enum: []string{"tier", "model", "backend", "deployment"}},
				{Name: "since", Type: "time", Description: "default 7 days ago"},
				{Name: "until", Type: "time", Description: "default now"},
				{Name: "granularity", Type: "string", Enum: []string{"hour", "day"}},
			},
		},
		TTL:  ttl(config.OpRequestVolume),
		Call: bind(svc.RequestVolume),
	})

	if g != nil {
		r.Register(&Operation{
			Spec: types.OperationSpec{
				Name:        config.OpSafeSQL,
				Description: "Run one read-only SELECT/WITH statement; rows are capped and the call is audited.",
				Params: []types.ParamSpec{
					{Name: "query", Type: "string", Required: true},
					{Name: "max_rows", Type: "integer", Description: "capped at the row ceiling"},
				},
			},
			// Ad-hoc results are never cached.
			TTL:  0,
			Call: bind(g.Query),
		})
	}

	return r
}
