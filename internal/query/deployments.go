package query

import (
	"context"
	"time"

	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

// Stale reasons.
const (
	StaleNoSnapshot = "no_snapshot"
	StaleLagging    = "lagging"
	StaleLowSamples = "low_samples"
)

// StaleReasons explains why a snapshot cannot be trusted. ref is the most
// recent updated_at across the fleet; an empty result means fresh.
func StaleReasons(r *storage.SnapshotRecord, ref *time.Time, policy config.Policy) []string {
	if r.Status == nil || r.UpdatedAt == nil || r.SampleCount == nil {
		return []string{StaleNoSnapshot}
	}
	var reasons []string
	if ref != nil && ref.Sub(*r.UpdatedAt) > policy.StaleAfter {
		reasons = append(reasons, StaleLagging)
	}
	if *r.SampleCount < int64(policy.MinSamples) {
		reasons = append(reasons, StaleLowSamples)
	}
	return reasons
}

func (s *Service) DeploymentStatus(ctx context.Context, args types.DeploymentStatusArgs) (*types.DeploymentStatusResult, error) {
	if err := oneOf("status", args.Status, "healthy", "degraded", "down"); err != nil {
		return nil, err
	}

	records, err := s.store.ListSnapshots(ctx, storage.SnapshotFilter{
		ModelID:   args.ModelID,
		BackendID: args.BackendID,
		Status:    args.Status,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "list deployment snapshots")
	}

	// The reference is fleet-wide, independent of the filters.
	latest, err := s.store.LatestSnapshotUpdate(ctx)
	if err != nil {
		return nil, opserr.Unavailable(err, "get fleet snapshot reference")
	}

	result := &types.DeploymentStatusResult{
		Deployments:   make([]types.DeploymentStatus, 0, len(records)),
		ReferenceTime: fmtTimePtr(latest),
	}
	for _, r := range records {
		status := "down"
		if r.Status != nil {
			status = *r.Status
		}
		reasons := StaleReasons(r, latest, s.policy)

		result.Deployments = append(result.Deployments, types.DeploymentStatus{
			DeploymentID:       r.DeploymentID,
			ModelID:            r.ModelID,
			BackendID:          r.BackendID,
			Enabled:            r.Enabled,
			Weight:             r.Weight,
			Status:             status,
			WindowSec:          r.WindowSec,
			SampleCount:        r.SampleCount,
			UpdatedAt:          fmtTimePtr(r.UpdatedAt),
			LatencyP50Ms:       r.LatencyP50Ms,
			LatencyP95Ms:       r.LatencyP95Ms,
			ErrorRate:          r.ErrorRate,
			TimeoutRate:        r.TimeoutRate,
			QueueDepth:         r.QueueDepth,
			RateLimitRemaining: r.RateLimitRemaining,
			TTFTP50Ms:          r.TTFTP50Ms,
			TTFTP95Ms:          r.TTFTP95Ms,
			DecodeTPSP50:       r.DecodeTPSP50,
			DecodeTPSP95:       r.DecodeTPSP95,
			IsStale:            len(reasons) > 0,
			StaleReasons:       reasons,
		})

		switch status {
		case "healthy":
			result.Summary.Healthy++
		case "degraded":
			result.Summary.Degraded++
		default:
			result.Summary.Down++
		}
	}
	result.Count = len(result.Deployments)
	result.Summary.Total = result.Count

	return result, nil
}
