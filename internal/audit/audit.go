// Package audit records every ad-hoc query gate invocation in an
// append-only, operator-readable sequence.
package audit

import (
	"context"
	"sync"

	"github.com/georgeshao/fleetctx/pkg/types"
)

// TimeLayout keeps millisecond precision so entries within one second stay
// ordered.
const TimeLayout = "2006-01-02T15:04:05.000Z"

type Log interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]types.AuditEntry, error)
}

// Counter is implemented by logs that keep per-outcome totals.
type Counter interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// Memory is a bounded in-process log. The oldest entries are dropped once
// capacity is reached.
type Memory struct {
	mu       sync.Mutex
	entries  []types.AuditEntry
	capacity int
	totals   map[string]int64
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Memory{
		capacity: capacity,
		totals:   make(map[string]int64),
	}
}

func (m *Memory) Append(_ context.Context, entry types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == m.capacity {
		copy(m.entries, m.entries[1:])
		m.entries = m.entries[:len(m.entries)-1]
	}
	m.entries = append(m.entries, entry)
	m.totals[entry.Outcome]++
	return nil
}

func (m *Memory) List(_ context.Context, limit int) ([]types.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.entries, limit), nil
}

func (m *Memory) Totals(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out, nil
}

func newestFirst(entries []types.AuditEntry, limit int) []types.AuditEntry {
	n := len(entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.AuditEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Tee appends to every log and lists from the first one.
type Tee []Log

func (t Tee) Append(ctx context.Context, entry types.AuditEntry) error {
	var firstErr error
	for _, l := range t {
		if err := l.Append(ctx, entry); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t Tee) List(ctx context.Context, limit int) ([]types.AuditEntry, error) {
	if len(t) == 0 {
		return []types.AuditEntry{}, nil
	}
	return t[0].List(ctx, limit)
}

func (t Tee) Totals(ctx context.Context) (map[string]int64, error) {
	for _, l := range t {
		if c, ok := l.(Counter); ok {
			return c.Totals(ctx)
		}
	}
	return nil, nil
}
