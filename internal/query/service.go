// Package query implements the fixed catalog of read operations over the
// operational store. Every operation returns either a result or an
// *opserr.Error so callers can always turn the outcome into an observation.
package query

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/georgeshao/fleetctx/internal/config"
	"github.com/georgeshao/fleetctx/internal/opserr"
	"github.com/georgeshao/fleetctx/internal/storage"
)

type Service struct {
	store  storage.Store
	clock  Clock
	policy config.Policy
}

func NewService(store storage.Store, clock Clock, policy config.Policy) *Service {
	if clock == nil {
		clock = StoreClock{Store: store}
	}
	return &Service{
		store:  store,
		clock:  clock,
		policy: policy.WithDefaults(),
	}
}

func (s *Service) Policy() config.Policy {
	return s.policy
}

func (s *Service) now(ctx context.Context) (time.Time, error) {
	t, err := s.clock.Now(ctx)
	if err != nil {
		return time.Time{}, opserr.Unavailable(err, "resolve current time")
	}
	return t, nil
}

func oneOf(field string, value *string, allowed ...string) error {
	if value == nil || *value == "" {
		return nil
	}
	if !slices.Contains(allowed, *value) {
		return opserr.Invalidf("%s must be one of %v, got %q", field, allowed, *value)
	}
	return nil
}

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// money rounds a USD amount to six decimals.
func money(v float64) float64 {
	return round(v, 6)
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := storage.FormatTime(*t)
	return &s
}
