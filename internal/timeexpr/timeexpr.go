// Package timeexpr resolves the relative and absolute time expressions
// accepted by query operations into UTC instants.
package timeexpr

import (
	"strconv"
	"strings"
	"time"

	"github.com/georgeshao/fleetctx/internal/opserr"
)

var units = map[string]time.Duration{
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// Resolve converts expr to an instant relative to now. Results are UTC and
// truncated to whole seconds.
func Resolve(expr string, now time.Time) (time.Time, error) {
	now = now.UTC().Truncate(time.Second)
	v := strings.TrimSpace(expr)
	if v == "" {
		return time.Time{}, opserr.Invalidf("empty time expression")
	}

	s := strings.ToLower(v)
	switch s {
	case "now":
		return now, nil
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return startOfDay(now).AddDate(0, 0, -1), nil
	}

	if t, ok := relative(s, now); ok {
		return t, nil
	}

	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC().Truncate(time.Second), nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, opserr.Invalidf("unrecognized time expression: %q", expr)
}

// relative parses "N <unit>[s] ago".
func relative(s string, now time.Time) (time.Time, bool) {
	fields := strings.Fields(s)
	if len(fields) != 3 || fields[2] != "ago" {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	unit, ok := units[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return time.Time{}, false
	}
	return now.Add(-time.Duration(n) * unit), true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns midnight UTC of t's day.
func StartOfDay(t time.Time) time.Time {
	return startOfDay(t.UTC())
}

// Range resolves an optional since/until pair. An empty since defaults to
// now minus lookback, an empty until to now.
func Range(since, until string, now time.Time, lookback time.Duration) (time.Time, time.Time, error) {
	now = now.UTC().Truncate(time.Second)

	end := now
	if until != "" {
		t, err := Resolve(until, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = t
	}

	start := now.Add(-lookback)
	if since != "" {
		t, err := Resolve(since, now)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, opserr.Invalidf("since (%s) is after until (%s)",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}
