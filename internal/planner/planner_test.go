package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/fleetctx/pkg/types"
)

func TestClientPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req types.PlannerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "which deployments are degraded?", req.Question)
		assert.Len(t, req.OperationCatalog, 1)

		w.Write([]byte(`{"invocations":[{"id":"a","name":"get_deployment_status","args":{"status":"degraded"}}],"done":false}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	resp, err := c.Plan(context.Background(), &types.PlannerRequest{
		Question:         "which deployments are degraded?",
		OperationCatalog: []types.OperationSpec{{Name: "get_deployment_status"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Invocations, 1)
	assert.Equal(t, "get_deployment_status", resp.Invocations[0].Name)
	assert.JSONEq(t, `{"status":"degraded"}`, string(resp.Invocations[0].Args))
	assert.False(t, resp.Done)
}

func TestClientAnswerImpliesDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"answer":"two deployments are degraded"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).Plan(context.Background(), &types.PlannerRequest{})
	require.NoError(t, err)
	assert.True(t, resp.Done)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			http.Error(w, "model overloaded", http.StatusServiceUnavailable)
		case "/garbage":
			w.Write([]byte(`not json`))
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"done":true}`))
		}
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL+"/fail", time.Second).Plan(context.Background(), &types.PlannerRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")

	_, err = NewClient(srv.URL+"/garbage", time.Second).Plan(context.Background(), &types.PlannerRequest{})
	assert.ErrorContains(t, err, "decode")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewClient(srv.URL+"/slow", time.Second).Plan(ctx, &types.PlannerRequest{})
	assert.Error(t, err)
}

func TestScripted(t *testing.T) {
	s := NewScripted(types.PlannerResponse{
		Invocations: []types.Invocation{{Name: "get_active_incidents"}},
	})

	first, err := s.Plan(context.Background(), &types.PlannerRequest{Question: "q"})
	require.NoError(t, err)
	assert.False(t, first.Done)
	assert.Len(t, first.Invocations, 1)

	second, err := s.Plan(context.Background(), &types.PlannerRequest{Question: "q"})
	require.NoError(t, err)
	assert.True(t, second.Done)
	assert.Equal(t, "no further steps", second.Answer)

	assert.Len(t, s.Requests(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Plan(ctx, &types.PlannerRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}
