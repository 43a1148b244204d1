package query

import (
	"context"
	"slices"
	"time"

	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

func (s *Service) ActiveIncidents(ctx context.Context, args types.IncidentArgs) (*types.ActiveIncidentsResult, error) {
	if err := oneOf("target_type", args.TargetType, "deployment", "model", "backend"); err != nil {
		return nil, err
	}

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.store.ListActiveIncidents(ctx, storage.IncidentFilter{
		TargetType: args.TargetType,
		TargetID:   args.TargetID,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "list active incidents")
	}

	result := &types.ActiveIncidentsResult{
		Incidents: make([]types.Incident, 0, len(records)),
		AsOf:      storage.FormatTime(now),
	}
	for _, r := range records {
		inc := toIncident(r)
		minutes := int64(now.Sub(r.StartedAt) / time.Minute)
		if minutes < 0 {
			minutes = 0
		}
		inc.DurationMinutes = &minutes
		result.Incidents = append(result.Incidents, inc)
	}
	result.Count = len(result.Incidents)

	return result, nil
}

// relatedIncident picks the most specific candidate per precedence, then the
// most recent start. Candidates arrive ordered by started_at descending.
func relatedIncident(candidates []*storage.IncidentRecord, precedence []string) *storage.IncidentRecord {
	var best *storage.IncidentRecord
	bestRank := len(precedence) + 1
	for _, c := range candidates {
		rank := slices.Index(precedence, c.TargetType)
		if rank < 0 {
			rank = len(precedence)
		}
		if rank < bestRank || (rank == bestRank && best != nil && c.StartedAt.After(best.StartedAt)) {
			best, bestRank = c, rank
		}
	}
	return best
}

func toIncident(r *storage.IncidentRecord) types.Incident {
	return types.Incident{
		ID:         r.ID,
		TargetType: r.TargetType,
		TargetID:   r.TargetID,
		Title:      r.Title,
		Status:     r.Status,
		StartedAt:  storage.FormatTime(r.StartedAt),
		ResolvedAt: fmtTimePtr(r.ResolvedAt),
	}
}
