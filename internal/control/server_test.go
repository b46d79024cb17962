// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package control

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeService struct {
	started int
	stopped int
}

func (f *fakeService) Start() { f.started++ }
func (f *fakeService) Stop()  { f.stopped++ }

func newTestServer(t *testing.T) (*httptest.Server, *fakeService) {
	t.Helper()
	svc := &fakeService{}
	s := NewServer(":0", svc)
	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, svc
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestControlStartStop(t *testing.T) {
	ts, svc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/control/start", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.started)

	resp, err = http.Post(ts.URL+"/control/stop", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, svc.stopped)
}

func TestControlReinitializeIsNoOp(t *testing.T) {
	ts, svc := newTestServer(t)

	resp, err := http.Post(ts.URL+"/control/reinitialize", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, svc.started)
	require.Zero(t, svc.stopped)
}

func TestControlRejectsGet(t *testing.T) {
	ts, svc := newTestServer(t)

	resp, err := http.Get(ts.URL + "/control/start")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	require.Zero(t, svc.started)
}
