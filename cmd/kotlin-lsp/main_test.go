package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/luhmann/kotlinlsp/config"
	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/testutil"
	"github.com/luhmann/kotlinlsp/testutil/fixtures"
	"github.com/luhmann/kotlinlsp/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(testutil.TestContext(t), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_VersionAndHelp(t *testing.T) {
	code, out, _ := runCLI(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "kotlin-lsp bridge dev")
	assert.Contains(t, out, "Git Commit: unknown")

	code, out, _ = runCLI(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "diagnose  Print diagnostics for a Kotlin file")
}

func TestRun_UnknownAndMissingCommand(t *testing.T) {
	code, _, errOut := runCLI(t, "lint")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Unknown command: lint")

	code, _, errOut = runCLI(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Usage:")
}

func TestRun_DiagnoseArgumentErrors(t *testing.T) {
	code, _, errOut := runCLI(t, "diagnose")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "diagnose expects exactly one file, got 0")

	code, _, errOut = runCLI(t, "diagnose", "--max-problems", "many", "Main.kt")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid value")

	dir := t.TempDir()
	broken := testutil.WriteFile(t, dir, "broken.yaml", "lsp: [\n")
	code, _, errOut = runCLI(t, "diagnose", "--config", broken, "Main.kt")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "load config")

	invalid := testutil.WriteFile(t, dir, "invalid.yaml", "diagnostics:\n  max_problems: 900\n")
	code, _, errOut = runCLI(t, "diagnose", "--config", invalid, "Main.kt")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid config")
}

func TestRun_DiagnoseUnreadableFile(t *testing.T) {
	cfg := fakeLSPConfig(t)
	path := writeConfigFile(t, cfg)

	code, out, errOut := runCLI(t, "diagnose", "--config", path, filepath.Join(t.TempDir(), "Missing.kt"))
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "Error: invalid path: file is not readable")
}

func TestRun_DiagnoseMaxProblemsOutOfRange(t *testing.T) {
	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})

	code, _, errOut := runCLI(t, "diagnose", "--max-problems", "0", filepath.Join(root, "src", "Main.kt"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid max_problems: must be between 1 and 500, got 0")
}

func TestRun_DiagnoseEndToEnd(t *testing.T) {
	cfg := fakeLSPConfig(t)
	path := writeConfigFile(t, cfg)
	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})
	file := filepath.Join(root, "src", "Main.kt")

	code, out, errOut := runCLI(t, "diagnose", "--config", path, file)
	require.Equal(t, 0, code, errOut)

	lines := testutil.Lines(out)
	assert.Equal(t, []string{
		"Workspace: " + root,
		"File: " + file,
		"Diagnostics: 2 total (1 errors, 1 warnings)",
		"",
		"- [error] 2:18 (TYPE_MISMATCH) [kotlin] Type mismatch: inferred type is String but Int was expected",
		"- [warning] 2:9 (UNUSED_VARIABLE) [kotlin] Variable 'x' is never used",
	}, lines)
}

func TestRun_DiagnoseErrorsOnly(t *testing.T) {
	cfg := fakeLSPConfig(t)
	path := writeConfigFile(t, cfg)
	root := testutil.NewGradleProject(t, map[string]string{"src/Main.kt": fixtures.SampleSource})

	code, out, errOut := runCLI(t, "diagnose", "--config", path,
		"--include-warnings=false", "--max-problems", "1", "--workspace", root,
		filepath.Join(root, "src", "Main.kt"))
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Diagnostics: 2 total (1 errors, 1 warnings)")
	assert.Contains(t, out, "- [error] 2:18")
	assert.NotContains(t, out, "[warning]")
	assert.NotContains(t, out, "Showing")
}

func TestRun_StatusLocal(t *testing.T) {
	code, out, _ := runCLI(t, "status")
	assert.Equal(t, 0, code)
	assert.Equal(t, noActiveClients+"\n", out)
}

func TestRun_StatusRemote(t *testing.T) {
	clients := mocks.NewMockClients().WithStatus("/work/app (running, ready)")
	api := newAPIHandlers(diagnostics.NewTool(clients, diagnostics.DefaultConfig(), nil), clients, t.TempDir(), nil)
	mux := http.NewServeMux()
	api.register(mux, nil)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	code, out, errOut := runCLI(t, "status", "--addr", srv.URL+"/")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "/work/app (running, ready)\n", out)
}

func TestRun_StatusRemoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	code, _, errOut := runCLI(t, "status", "--addr", srv.URL)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Error:")
}

func TestFetchStatus_ContextCancelled(t *testing.T) {
	_, err := fetchStatus(testutil.CancelledContext(), "http://127.0.0.1:1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInitLogger(t *testing.T) {
	cfg := loadDefaultLogConfig(t)

	logger := initLogger(cfg)
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	cfg.Level = "debug"
	cfg.Format = "console"
	assert.True(t, initLogger(cfg).Core().Enabled(zapcore.DebugLevel))

	cfg.Level = "error"
	cfg.OutputPaths = nil
	logger = initLogger(cfg)
	assert.False(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func loadDefaultLogConfig(t *testing.T) config.LogConfig {
	t.Helper()
	cfg, err := loadConfig("")
	require.NoError(t, err)
	return cfg.Log
}
