// Package dispatcher runs the bounded planning loop: it presents the catalog
// to a planner, executes the invocations it asks for and feeds the results
// back until the planner answers or the step ceiling is reached.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/georgeshao/fleetctx/internal/cache"
	"github.com/georgeshao/fleetctx/internal/catalog"
	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/metrics"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

// Planner is the reasoning client. It sees the question, the observation
// history and the catalog, and either requests invocations or answers.
type Planner interface {
	Plan(ctx context.Context, req *types.PlannerRequest) (*types.PlannerResponse, error)
}

type State string

const (
	StatePlanning  State = "planning"
	StateExecuting State = "executing"
	StateDone      State = "done"
)

type Dispatcher struct {
	catalog *catalog.Registry
	planner Planner
	cache   *cache.Cache
	policy  config.Policy
	scope   string
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

type Option func(*Dispatcher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New builds a dispatcher. The cache may be shared between dispatchers;
// entries are scoped to the catalog and policy. A nil cache disables
// memoization. A nil planner allows Invoke but not Run. Zero policy fields
// take their defaults and a negative PlannerRPS disables pacing.
func New(reg *catalog.Registry, planner Planner, c *cache.Cache, policy config.Policy, opts ...Option) *Dispatcher {
	policy = policy.WithDefaults()
	policy.MaxSteps = max(policy.MaxSteps, 1)
	policy.MaxParallel = max(policy.MaxParallel, 1)

	limit := rate.Inf
	if policy.PlannerRPS > 0 {
		limit = rate.Limit(policy.PlannerRPS)
	}
	d := &Dispatcher{
		catalog: reg,
		planner: planner,
		cache:   c,
		policy:  policy,
		scope:   cacheScope(reg, policy),
		limiter: rate.NewLimiter(limit, 1),
		logger:  logrus.StandardLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HasPlanner reports whether Run can consult a reasoning client.
func (d *Dispatcher) HasPlanner() bool {
	return d.planner != nil
}

func (d *Dispatcher) Catalog() *catalog.Registry {
	return d.catalog
}

// Run answers one question. It always returns a result; failures are
// reported through its Outcome.
func (d *Dispatcher) Run(ctx context.Context, question string) *types.SessionResult {
	s := &session{
		result: &types.SessionResult{
			SessionID: uuid.New().String(),
			Question:  question,
			ToolsUsed: []string{},
		},
		state: StatePlanning,
	}
	s.result.Observations = []types.Observation{{Kind: types.ObservationQuestion, Text: question}}
	log := d.logger.WithField("session_id", s.result.SessionID)
	log.WithField("question", question).Info("session started")

	if d.planner == nil {
		s.finish(types.OutcomeError, "no planner configured")
		s.result.Error = "no planner configured"
	}

	for s.state != StateDone {
		if err := ctx.Err(); err != nil {
			s.finish(types.OutcomeCancelled, "Session cancelled before a final answer.")
			s.result.Error = err.Error()
			break
		}

		switch s.state {
		case StatePlanning:
			resp, err := d.plan(ctx, s)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.WithError(err).WithField("step", s.result.Steps).Warn("planner failed")
				s.finish(types.OutcomeError, "The planner failed before a final answer.")
				s.result.Error = err.Error()
				break
			}
			if resp.Done {
				s.finish(types.OutcomeAnswered, resp.Answer)
				break
			}

			s.result.Steps++
			if s.result.Steps >= d.policy.MaxSteps {
				s.result.Unexecuted = numbered(s.result.Steps, resp.Invocations)
				answer := hardStopAnswer(d.policy.MaxSteps, s.result.ToolsUsed, s.result.Unexecuted)
				s.result.Observations = append(s.result.Observations, types.Observation{
					Kind: types.ObservationHardStop,
					Step: s.result.Steps,
					Text: answer,
					Error: &types.ObservationError{
						Code:    string(opserr.HardStop),
						Message: fmt.Sprintf("iteration ceiling of %d reached", d.policy.MaxSteps),
					},
				})
				s.finish(types.OutcomeHardStop, answer)
				break
			}
			s.pending = numbered(s.result.Steps, resp.Invocations)
			s.state = StateExecuting

		case StateExecuting:
			step := s.result.Steps
			observations := d.execute(ctx, step, s.pending)
			s.result.Observations = append(s.result.Observations, observations...)
			for _, inv := range s.pending {
				s.result.ToolsUsed = appendUnique(s.result.ToolsUsed, inv.Name)
			}
			log.WithFields(logrus.Fields{"step": step, "invocations": len(s.pending)}).Debug("step executed")
			s.pending = nil
			s.state = StatePlanning
		}
	}

	d.metrics.RecordSession(s.result.Outcome, s.result.Steps)
	log.WithFields(logrus.Fields{"outcome": s.result.Outcome, "steps": s.result.Steps}).Info("session finished")
	return s.result
}

type session struct {
	result  *types.SessionResult
	state   State
	pending []types.Invocation
}

func (s *session) finish(outcome, answer string) {
	s.result.Outcome = outcome
	s.result.Answer = answer
	s.state = StateDone
}

func (d *Dispatcher) plan(ctx context.Context, s *session) (*types.PlannerResponse, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pctx, cancel := context.WithTimeout(ctx, d.policy.StepTimeout)
	defer cancel()

	history := make([]types.Observation, len(s.result.Observations))
	copy(history, s.result.Observations)

	resp, err := d.planner.Plan(pctx, &types.PlannerRequest{
		Question:           s.result.Question,
		ObservationHistory: history,
		OperationCatalog:   d.catalog.Specs(),
	})
	if err != nil {
		return nil, fmt.Errorf("plan step %d: %w", s.result.Steps+1, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("plan step %d: empty planner response", s.result.Steps+1)
	}
	return resp, nil
}

// execute runs one step's invocations concurrently and returns their
// observations in request order. Cancellation of ctx does not interrupt
// operations already started.
func (d *Dispatcher) execute(ctx context.Context, step int, invocations []types.Invocation) []types.Observation {
	ctx = context.WithoutCancel(ctx)
	observations := make([]types.Observation, len(invocations))

	var g errgroup.Group
	sem := make(chan struct{}, d.policy.MaxParallel)

	for i, inv := range invocations {
		g.Go(func() error {
			sem <- struct{}{}        // Acquire semaphore
			defer func() { <-sem }() // Release semaphore

			observations[i] = d.observe(ctx, step, inv)
			return nil
		})
	}
	_ = g.Wait()

	return observations
}

func (d *Dispatcher) observe(ctx context.Context, step int, inv types.Invocation) types.Observation {
	obs := types.Observation{
		Kind:         types.ObservationResult,
		Step:         step,
		InvocationID: inv.ID,
		Name:         inv.Name,
		Args:         inv.Args,
	}

	result, err := d.Invoke(ctx, inv.Name, inv.Args)
	if err != nil {
		obs.Kind = types.ObservationFailed
		obs.Error = &types.ObservationError{
			Code:    string(opserr.KindOf(err)),
			Message: opserr.Message(err),
		}
		return obs
	}
	obs.Result = result
	return obs
}

// Invoke runs one named operation through the cache, retrying a store
// failure once. It is also the entry point for callers outside a session.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	op, ok := d.catalog.Lookup(name)
	if !ok {
		return nil, opserr.Invalidf("unknown operation: %s", name)
	}

	var key string
	if d.cache != nil && op.TTL > 0 {
		k, err := cache.Key(d.scope+":"+name, args, d.now(), op.TTL)
		if err != nil {
			return nil, opserr.Invalidf("%v", err)
		}
		key = k
		if cached, hit := d.cache.Get(key); hit {
			d.metrics.RecordCache(true)
			return cached, nil
		}
		d.metrics.RecordCache(false)
	}

	start := d.now()
	out, err := op.Call(ctx, args)
	if err != nil && opserr.Retryable(err) {
		d.logger.WithError(err).WithField("op", name).Warn("store unavailable, retrying once")
		if !sleep(ctx, d.policy.RetryBackoff) {
			return nil, err
		}
		out, err = op.Call(ctx, args)
	}
	d.metrics.RecordOp(name, d.now().Sub(start).Seconds(), string(opserr.KindOf(err)))
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}
	if key != "" {
		d.cache.Set(key, raw, op.TTL)
	}
	return raw, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
