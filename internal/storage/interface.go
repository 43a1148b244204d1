package storage

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidStatement marks a QueryRows failure caused by the statement
// itself (syntax, unknown table or column) rather than by the store.
var ErrInvalidStatement = errors.New("invalid statement")

// Store is the read-only accessor over the operational tables. Methods that
// look up a single entity return (nil, nil) when it does not exist.
type Store interface {
	ListSnapshots(ctx context.Context, filter SnapshotFilter) ([]*SnapshotRecord, error)
	LatestSnapshotUpdate(ctx context.Context) (*time.Time, error)
	LatestActivity(ctx context.Context) (*time.Time, error)

	ListActiveIncidents(ctx context.Context, filter IncidentFilter) ([]*IncidentRecord, error)
	OverlappingIncidents(ctx context.Context, at time.Time, deploymentID, modelID, backendID string) ([]*IncidentRecord, error)

	SearchRequests(ctx context.Context, filter RequestFilter) ([]*RequestRecord, int, error)
	GetRequest(ctx context.Context, id string) (*RequestRecord, error)
	ListQualityScores(ctx context.Context, requestID string) ([]*QualityScoreRecord, error)

	GetUser(ctx context.Context, id string) (*UserRecord, error)
	UserUsage(ctx context.Context, userID string, since, until time.Time) (*UsageRecord, error)

	ListLatencySamples(ctx context.Context, filter LatencyFilter) ([]*LatencySample, error)
	QualitySummary(ctx context.Context, filter QualityFilter) ([]*QualityAggregate, error)
	RequestVolume(ctx context.Context, filter VolumeFilter) ([]*VolumeRow, error)

	// QueryRows runs an already validated read statement.
	QueryRows(ctx context.Context, query string, args ...any) (*RowSet, error)

	Ping(ctx context.Context) error
	Close() error
}
