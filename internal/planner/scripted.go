package planner

import (
	"context"
	"sync"

	"github.com/georgeshao/fleetctx/pkg/types"
)

// Scripted replays a fixed list of responses, one per planning turn. Once
// the script runs out it answers with Fallback.
type Scripted struct {
	mu        sync.Mutex
	responses []types.PlannerResponse
	requests  []types.PlannerRequest
	Fallback  string
}

func NewScripted(responses ...types.PlannerResponse) *Scripted {
	return &Scripted{responses: responses, Fallback: "no further steps"}
}

func (s *Scripted) Plan(ctx context.Context, req *types.PlannerRequest) (*types.PlannerResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, *req)
	if len(s.responses) == 0 {
		return &types.PlannerResponse{Done: true, Answer: s.Fallback}, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return &next, nil
}

// Requests returns the requests seen so far.
func (s *Scripted) Requests() []types.PlannerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PlannerRequest, len(s.requests))
	copy(out, s.requests)
	return out
}
