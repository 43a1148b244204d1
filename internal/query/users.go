package query

import (
	"context"
	"strings"

	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/internal/timeexpr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func (s *Service) UserContext(ctx context.Context, args types.UserContextArgs) (*types.UserContextResult, error) {
	id := strings.TrimSpace(args.UserID)
	if id == "" {
		return nil, opserr.Invalidf("user_id is required")
	}

	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, opserr.Unavailable(err, "get user %s", id)
	}
	if u == nil {
		return nil, opserr.NotFoundf("user not found: %s", id)
	}

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	day := timeexpr.StartOfDay(now)

	usage, err := s.store.UserUsage(ctx, id, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, opserr.Unavailable(err, "sum usage for %s", id)
	}

	sla := types.EffectiveSLA{
		LatencyP95Ms:   u.TierLatencySLA,
		MaxErrorRate:   u.TierMaxErrorRate,
		MaxTimeoutRate: u.TierMaxTimeoutRate,
		Overridden:     []string{},
	}
	if u.LatencySLAOverride != nil {
		sla.LatencyP95Ms = *u.LatencySLAOverride
		sla.Overridden = append(sla.Overridden, "latency_p95_ms")
	}
	if u.ErrorRateOverride != nil {
		sla.MaxErrorRate = *u.ErrorRateOverride
		sla.Overridden = append(sla.Overridden, "max_error_rate")
	}
	if u.TimeoutRateOverride != nil {
		sla.MaxTimeoutRate = *u.TimeoutRateOverride
		sla.Overridden = append(sla.Overridden, "max_timeout_rate")
	}

	used := money(usage.CostUSD)
	result := &types.UserContextResult{
		UserID:             u.ID,
		Tier:               u.TierID,
		SLA:                sla,
		DailyBudgetUSD:     u.DailyBudgetUSD,
		DailyBudgetUsedUSD: used,
		RequestsToday:      usage.Requests,
		BudgetDay:          storage.FormatTime(day),
	}
	// Remaining is unbounded without a ceiling.
	if u.DailyBudgetUSD != nil {
		remaining := money(*u.DailyBudgetUSD - used)
		result.DailyBudgetRemainingUSD = &remaining
	}

	return result, nil
}
