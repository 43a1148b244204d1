package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/internal/timeexpr"
	"github.com/georgeshao/fleetctx/pkg/types"
)

// NearestRank returns the p-th percentile of sorted using the nearest-rank
// method: the value at rank ceil(p/100 * n).
func NearestRank(sorted []int64, p float64) (int64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1], true
}

func bucketStart(t time.Time, granularity string) time.Time {
	if granularity == "day" {
		return timeexpr.StartOfDay(t)
	}
	return t.UTC().Truncate(time.Hour)
}

func checkGranularity(g string) error {
	if g != "hour" && g != "day" {
		return opserr.Invalidf("granularity must be one of [hour day], got %q", g)
	}
	return nil
}

type latencyBucket struct {
	period     time.Time
	deployment string
	requests   int
	failures   int
	latencies  []int64
}

func (s *Service) LatencyTrends(ctx context.Context, args types.LatencyTrendsArgs) (*types.LatencyTrendsResult, error) {
	granularity := orDefault(args.Granularity, "hour")
	if err := checkGranularity(granularity); err != nil {
		return nil, err
	}

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	since, until, err := timeexpr.Range(args.Since, args.Until, now, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	samples, err := s.store.ListLatencySamples(ctx, storage.LatencyFilter{
		DeploymentID: args.DeploymentID,
		ModelID:      args.ModelID,
		BackendID:    args.BackendID,
		Since:        since,
		Until:        until,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "list latency samples")
	}

	type key struct {
		period     time.Time
		deployment string
	}
	buckets := make(map[key]*latencyBucket)
	for _, sample := range samples {
		k := key{bucketStart(sample.CreatedAt, granularity), sample.DeploymentID}
		b, ok := buckets[k]
		if !ok {
			b = &latencyBucket{period: k.period, deployment: k.deployment}
			buckets[k] = b
		}
		b.requests++
		if sample.Status == "error" || sample.Status == "timeout" {
			b.failures++
		}
		if sample.LatencyMs != nil {
			b.latencies = append(b.latencies, *sample.LatencyMs)
		}
	}

	ordered := make([]*latencyBucket, 0, len(buckets))
	for _, b := range buckets {
		ordered = append(ordered, b)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].period.Equal(ordered[j].period) {
			return ordered[i].period.Before(ordered[j].period)
		}
		return ordered[i].deployment < ordered[j].deployment
	})

	result := &types.LatencyTrendsResult{
		Granularity: granularity,
		Since:       storage.FormatTime(since),
		Until:       storage.FormatTime(until),
		Buckets:     make([]types.LatencyBucket, 0, len(ordered)),
		Summary:     types.LatencySummary{Weighting: "request_count"},
	}

	var weighted50, weighted95 float64
	var weight int
	for _, b := range ordered {
		sort.Slice(b.latencies, func(i, j int) bool { return b.latencies[i] < b.latencies[j] })
		out := types.LatencyBucket{
			Period:       storage.FormatTime(b.period),
			DeploymentID: b.deployment,
			RequestCount: b.requests,
			ErrorRate:    round(float64(b.failures)/float64(b.requests), 4),
		}
		if p50, ok := NearestRank(b.latencies, 50); ok {
			p95, _ := NearestRank(b.latencies, 95)
			v50, v95 := float64(p50), float64(p95)
			out.LatencyP50Ms, out.LatencyP95Ms = &v50, &v95
			weighted50 += v50 * float64(b.requests)
			weighted95 += v95 * float64(b.requests)
			weight += b.requests
		}
		result.Buckets = append(result.Buckets, out)
		result.Summary.TotalRequests += b.requests
	}
	result.Count = len(result.Buckets)
	if weight > 0 {
		avg50 := round(weighted50/float64(weight), 2)
		avg95 := round(weighted95/float64(weight), 2)
		result.Summary.AvgLatencyP50Ms = &avg50
		result.Summary.AvgLatencyP95Ms = &avg95
	}

	return result, nil
}

func (s *Service) QualitySummary(ctx context.Context, args types.QualitySummaryArgs) (*types.QualitySummaryResult, error) {
	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	since, until, err := timeexpr.Range(args.Since, args.Until, now, 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	aggregates, err := s.store.QualitySummary(ctx, storage.QualityFilter{
		ModelID:  args.ModelID,
		TaskType: args.TaskType,
		Since:    since,
		Until:    until,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "summarize quality scores")
	}

	result := &types.QualitySummaryResult{
		Groups: make([]types.QualityGroup, 0, len(aggregates)),
		Since:  storage.FormatTime(since),
		Until:  storage.FormatTime(until),
	}
	for _, a := range aggregates {
		if a.SampleCount == 0 {
			continue
		}
		result.Groups = append(result.Groups, types.QualityGroup{
			ModelID:     a.ModelID,
			TaskType:    a.TaskType,
			AvgScore:    round(a.AvgScore, 4),
			MinScore:    a.MinScore,
			MaxScore:    a.MaxScore,
			SampleCount: a.SampleCount,
		})
	}
	result.Count = len(result.Groups)

	return result, nil
}

func (s *Service) RequestVolume(ctx context.Context, args types.RequestVolumeArgs) (*types.RequestVolumeResult, error) {
	groupBy := orDefault(args.GroupBy, "tier")
	if err := oneOf("group_by", &groupBy, "tier", "model", "backend", "deployment"); err != nil {
		return nil, err
	}
	granularity := orDefault(args.Granularity, "day")
	if err := checkGranularity(granularity); err != nil {
		return nil, err
	}

	now, err := s.now(ctx)
	if err != nil {
		return nil, err
	}
	since, until, err := timeexpr.Range(args.Since, args.Until, now, 7*24*time.Hour)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.RequestVolume(ctx, storage.VolumeFilter{
		GroupBy:     groupBy,
		Granularity: granularity,
		Since:       since,
		Until:       until,
	})
	if err != nil {
		return nil, opserr.Unavailable(err, "aggregate request volume")
	}

	result := &types.RequestVolumeResult{
		GroupBy:     groupBy,
		Granularity: granularity,
		Since:       storage.FormatTime(since),
		Until:       storage.FormatTime(until),
		Series:      make([]types.VolumePoint, 0, len(rows)),
		Totals:      make(map[string]types.VolumeTotal),
	}
	for _, r := range rows {
		result.Series = append(result.Series, types.VolumePoint{
			Period:       r.Period,
			Group:        r.Group,
			RequestCount: r.RequestCount,
			TotalCostUSD: money(r.TotalCostUSD),
		})
		t := result.Totals[r.Group]
		t.Requests += r.RequestCount
		t.CostUSD = money(t.CostUSD + r.TotalCostUSD)
		result.Totals[r.Group] = t
	}
	result.Count = len(result.Series)

	return result, nil
}
