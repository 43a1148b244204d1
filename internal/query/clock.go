package query

import (
	"context"
	"time"

	"github.com/georgeshao/fleetctx/internal/storage"
)

// Clock supplies the reference instant "now" for an operation.
type Clock interface {
	Now(ctx context.Context) (time.Time, error)
}

type WallClock struct{}

func (WallClock) Now(context.Context) (time.Time, error) {
	return time.Now().UTC().Truncate(time.Second), nil
}

// StoreClock anchors "now" to the latest event recorded in the store, so
// historical or seeded stores answer relative to their own data. An empty
// store falls back to wall clock.
type StoreClock struct {
	Store storage.Store
}

func (c StoreClock) Now(ctx context.Context) (time.Time, error) {
	t, err := c.Store.LatestActivity(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return WallClock{}.Now(ctx)
	}
	return t.UTC(), nil
}

type FixedClock time.Time

func (c FixedClock) Now(context.Context) (time.Time, error) {
	return time.Time(c).UTC(), nil
}

// NewClock returns the clock named by kind ("store" or "wall").
func NewClock(kind string, store storage.Store) Clock {
	if kind == "wall" {
		return WallClock{}
	}
	return StoreClock{Store: store}
}
