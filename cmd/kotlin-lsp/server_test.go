package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/lsp"
	"github.com/luhmann/kotlinlsp/testutil"
	"github.com/luhmann/kotlinlsp/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := fakeLSPConfig(t)
	cfg.Server.HTTPPort = 0
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Metrics.Namespace = nextTestNamespace()

	srv := NewServer(cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func postJSON(t *testing.T, url string, body any) (*http.Response, apiResponse) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func getClients(t *testing.T, base string) ClientsStatus {
	t.Helper()
	resp, err := http.Get(base + routeClients)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return testutil.MustParseJSON[ClientsStatus](string(out.Data))
}

func TestServer_DiagnoseOverHTTP(t *testing.T) {
	srv := startTestServer(t)
	base := "http://" + srv.Addr()
	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})
	file := filepath.Join(root, "src", "Main.kt")

	assert.Equal(t, noActiveClients, getClients(t, base).Text)

	resp, out := postJSON(t, base+routeDiagnostics, diagnostics.Params{Path: file})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var result diagnostics.Result
	require.NoError(t, json.Unmarshal(out.Data, &result))
	assert.Equal(t, root, result.Details.Workspace)
	assert.Equal(t, 2, result.Details.Total)
	assert.Equal(t, 1, result.Details.Errors)
	assert.Equal(t, 1, result.Details.Warnings)

	status := getClients(t, base)
	assert.Equal(t, []string{root + " (running, ready)"}, status.Clients)

	resp, out = postJSON(t, base+routeRestart, struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, RestartResult{Stopped: 1}, testutil.MustParseJSON[RestartResult](string(out.Data)))
	assert.Equal(t, []string{root + " (stopped, stopped)"}, getClients(t, base).Clients)

	// 重启后下一次诊断重新拉起进程
	resp, _ = postJSON(t, base+routeDiagnostics, diagnostics.Params{Path: file})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{root + " (running, ready)"}, getClients(t, base).Clients)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	srv := startTestServer(t)
	base := "http://" + srv.Addr()

	resp, err := http.Get(base + routeHealth)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(base + routeMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), srv.cfg.Metrics.Namespace+"_http_requests_total")
}

func TestServer_ShutdownClosesRegistry(t *testing.T) {
	srv := startTestServer(t)
	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})

	_, err := srv.registry.Diagnose(testutil.TestContext(t), root, filepath.Join(root, "src", "Main.kt"), fixtures.SampleSource)
	require.NoError(t, err)
	session, err := srv.registry.Client(root)
	require.NoError(t, err)
	require.True(t, session.Running())

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.False(t, session.Running())
	assert.Equal(t, lsp.StateStopped, session.State())

	_, err = srv.registry.Client(root)
	assert.ErrorIs(t, err, lsp.ErrClosed)
}

func TestServer_WaitForShutdownOnContext(t *testing.T) {
	srv := startTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.WaitForShutdown(ctx) }()
	cancel()

	err, ok := testutil.WaitForChannel(done, 10*time.Second)
	require.True(t, ok, "WaitForShutdown did not return")
	assert.NoError(t, err)
	assert.False(t, srv.httpManager.IsRunning())
}
