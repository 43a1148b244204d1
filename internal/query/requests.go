package query

import (
	"context"
	"strings"
	"time"

	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/internal/timeexpr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

const defaultSearchLimit = 50

func (s *Service) RecentRequests(ctx context.Context, args types.RecentRequestsArgs) (*types.RecentRequestsResult, error) {
	if err := oneOf("status", args.Status, "success", "error", "timeout"); err != nil {
		return nil, err
	}
	if err := oneOf("user_tier", args.UserTier, "premium", "standard", "budget"); err != nil {
		return nil, err
	}

	limit := defaultSearchLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	if limit < 1 || limit > s.policy.SearchLimitCap {
		return nil, opserr.Invalidf("limit must be between 1 and %d, got %d", s.policy.SearchLimitCap, limit)
	}

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	since, until, err := timeexpr.Range(args.Since, args.Until, now, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	records, total, err := s.store.SearchRequests(ctx, storage.RequestFilter{
		UserID:       args.UserID,
		UserTier:     args.UserTier,
		DeploymentID: args.DeploymentID,
		ModelID:      args.ModelID,
		BackendID:    args.BackendID,
		Status:       args.Status,
		Since:        since,
		Until:        until,
		Limit:        limit,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "search requests")
	}

	result := &types.RecentRequestsResult{
		Requests: make([]types.Request, 0, len(records)),
		Total:    total,
		Limit:    limit,
		Since:    storage.FormatTime(since),
		Until:    storage.FormatTime(until),
	}
	for _, r := range records {
		result.Requests = append(result.Requests, toRequest(r))
	}
	result.Count = len(result.Requests)
	result.HasMore = total > result.Count

	return result, nil
}

func (s *Service) RequestDetail(ctx context.Context, args types.RequestDetailArgs) (*types.RequestDetailResult, error) {
	id := strings.TrimSpace(args.RequestID)
	if id == "" {
		return nil, opserr.Invalidf("request_id is required")
	}

	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, opserr.Unavailable(err, "get request %s", id)
	}
	if r == nil {
		return nil, opserr.NotFoundf("request not found: %s", id)
	}

	scores, err := s.store.ListQualityScores(ctx, id)
	if err != nil {
		return nil, opserr.Unavailable(err, "list quality scores for %s", id)
	}

	candidates, err := s.store.OverlappingIncidents(ctx, r.CreatedAt, r.DeploymentID, r.ModelID, r.BackendID)
	if err != nil {
		return nil, opserr.Unavailable(err, "find incidents overlapping %s", id)
	}

	result := &types.RequestDetailResult{
		Request:          toRequest(r),
		RoutingRationale: ParseRationale(r.RoutingReasonJSON),
		QualityScores:    make([]types.QualityScore, 0, len(scores)),
	}
	for _, q := range scores {
		result.QualityScores = append(result.QualityScores, types.QualityScore{
			EvalType:    q.EvalType,
			Score:       q.Score,
			EvaluatedAt: storage.FormatTime(q.EvaluatedAt),
		})
	}
	if len(result.QualityScores) > 0 {
		latest := result.QualityScores[0]
		result.QualityScore = &latest
	}
	if inc := relatedIncident(candidates, s.policy.IncidentPrecedence); inc != nil {
		related := toIncident(inc)
		result.RelatedIncident = &related
	}

	return result, nil
}

func toRequest(r *storage.RequestRecord) types.Request {
	return types.Request{
		ID:               r.ID,
		CreatedAt:        storage.FormatTime(r.CreatedAt),
		UserID:           r.UserID,
		UserTier:         r.UserTier,
		DeploymentID:     r.DeploymentID,
		ModelID:          r.ModelID,
		BackendID:        r.BackendID,
		TaskType:         r.TaskType,
		InputTokens:      r.InputTokens,
		OutputTokens:     r.OutputTokens,
		LatencyMs:        r.LatencyMs,
		TTFTMs:           r.TTFTMs,
		DecodeToksPerSec: r.DecodeToksPerSec,
		CostUSD:          r.CostUSD,
		Status:           r.Status,
		ErrorCode:        r.ErrorCode,
		RouterVersion:    r.RouterVersion,
		ExperimentID:     r.ExperimentID,
	}
}
