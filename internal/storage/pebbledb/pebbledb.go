// Package pebbledb persists the ad-hoc query audit trail in a Pebble
// key-value store so it survives restarts and can be read by operators.
package pebbledb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"

	"github.com/georgeshao/fleetctx/internal/storage"
	"github.com/georgeshao/fleetctx/pkg/types"
)

// Key prefixes
const (
	prefixAudit = "audit:" // audit:{unixnano}:{id} → entry JSON
	prefixCount = "count:" // count:{outcome} → int64
)

var outcomes = []string{types.AuditOK, types.AuditRejected, types.AuditTimeout, types.AuditError}

type AuditLog struct {
	db *pebble.DB
}

func New(dbPath string) (*AuditLog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	opts := &pebble.Options{
		Merger: &pebble.Merger{
			Name: "int64_add",
			Merge: func(key, value []byte) (pebble.ValueMerger, error) {
				return &int64Merger{sum: decodeInt64(value)}, nil
			},
		},
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &AuditLog{db: db}, nil
}

func (l *AuditLog) Close() error {
	return l.db.Close()
}

func auditKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixAudit, ts, id))
}

func countKey(outcome string) []byte {
	return []byte(prefixCount + outcome)
}

func encodeInt64(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

type int64Merger struct {
	sum int64
}

func (m *int64Merger) MergeNewer(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) MergeOlder(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return encodeInt64(m.sum), nil, nil
}

func upperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub
		}
		ub[i] = 0
	}
	return append(ub, 0)
}

// Append writes the entry and bumps its outcome counter in one synced batch.
func (l *AuditLog) Append(ctx context.Context, entry types.AuditEntry) error {
	ts, err := storage.ParseTime(entry.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid audit timestamp: %w", err)
	}

	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	batch := l.db.NewBatch()
	defer batch.Close()
	batch.Set(auditKey(ts.UnixNano(), entry.ID), value, nil)
	batch.Merge(countKey(entry.Outcome), encodeInt64(1), nil)
	return batch.Commit(pebble.Sync)
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (l *AuditLog) List(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	prefix := []byte(prefixAudit)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	entries := []types.AuditEntry{}
	for iter.Last(); iter.Valid(); iter.Prev() {
		var entry types.AuditEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal audit entry: %w", err)
		}
		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	return entries, nil
}

// Totals returns the number of entries recorded per outcome.
func (l *AuditLog) Totals(ctx context.Context) (map[string]int64, error) {
	totals := make(map[string]int64, len(outcomes))
	for _, outcome := range outcomes {
		n, err := l.getCount(outcome)
		if err != nil {
			return nil, err
		}
		totals[outcome] = n
	}
	return totals, nil
}

func (l *AuditLog) getCount(outcome string) (int64, error) {
	value, closer, err := l.db.Get(countKey(outcome))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get %s count: %w", outcome, err)
	}
	defer closer.Close()
	return decodeInt64(value), nil
}
