package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/cellwatch/internal/metrics"
	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/testutil"
)

func finished(outcome report.Outcome) *report.Report {
	rep := report.New(report.KindHealthCheck, nil)
	rep.Finish(outcome, 0, "probe exited 1")
	return rep
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealth_NoCheckYet(t *testing.T) {
	s := New("127.0.0.1:0", nil, testutil.Logger())
	w := get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	var p Problem
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, ProblemTypeUnavailable, p.Type)
	assert.Equal(t, "/healthz", p.Instance)
}

func TestHealth_FollowsLastOutcome(t *testing.T) {
	s := New("127.0.0.1:0", nil, testutil.Logger())

	tests := []struct {
		outcome report.Outcome
		want    int
	}{
		{report.OutcomeHealthy, http.StatusOK},
		{report.OutcomeDisabled, http.StatusOK},
		{report.OutcomeRestarted, http.StatusServiceUnavailable},
		{report.OutcomeSuppressed, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			s.Update(finished(tt.outcome))
			assert.Equal(t, tt.want, get(t, s, "/healthz").Code)
		})
	}
}

func TestLast(t *testing.T) {
	s := New("127.0.0.1:0", nil, testutil.Logger())
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/v1/last").Code)

	rep := finished(report.OutcomeRestarted)
	s.Update(rep)
	w := get(t, s, "/api/v1/last")
	require.Equal(t, http.StatusOK, w.Code)
	var got report.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, rep.ID, got.ID)
	assert.Equal(t, report.OutcomeRestarted, got.Outcome)
}

func TestMetricsRoute(t *testing.T) {
	noMetrics := New("127.0.0.1:0", nil, testutil.Logger())
	assert.Equal(t, http.StatusNotFound, get(t, noMetrics, "/metrics").Code)

	e := metrics.New()
	e.Observe(finished(report.OutcomeHealthy))
	s := New("127.0.0.1:0", e.Registry(), testutil.Logger())
	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cellwatch_runs_total{kind="healthcheck",outcome="healthy"} 1`)
}

func TestVersion(t *testing.T) {
	s := New("127.0.0.1:0", nil, testutil.Logger())
	w := get(t, s, "/api/v1/version")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version"`)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(addr, nil, testutil.Logger())
	s.Update(finished(report.OutcomeHealthy))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServe_ListenError(t *testing.T) {
	s := New("256.0.0.1:bad", nil, testutil.Logger())
	err := s.Serve(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listen"))
}
