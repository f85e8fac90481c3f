package main

import (
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/luhmann/kotlinlsp/config"
	"github.com/luhmann/kotlinlsp/lsp"
	"github.com/luhmann/kotlinlsp/testutil/fixtures"
)

// 测试二进制在设置了 fakeLSPEnv 时充当 kotlin-lsp
const fakeLSPEnv = "FAKE_KOTLIN_LSP"

func TestMain(m *testing.M) {
	if os.Getenv(fakeLSPEnv) == "1" {
		os.Exit(serveFakeLSP(os.Stdin, os.Stdout))
	}
	os.Exit(m.Run())
}

// serveFakeLSP 应答 initialize、textDocument/diagnostic 与 shutdown，收到 exit 后退出
func serveFakeLSP(in io.Reader, out io.Writer) int {
	codec := lsp.NewFrameCodec()
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		if n > 0 {
			msgs, ferr := codec.Feed(buf[:n])
			if ferr != nil {
				return 2
			}
			for _, msg := range msgs {
				switch msg.Method {
				case lsp.MethodInitialize:
					reply(out, msg.ID, map[string]any{
						"capabilities": map[string]any{"diagnosticProvider": map[string]any{}},
						"serverInfo":   map[string]string{"name": "fake-kotlin-lsp"},
					})
				case lsp.MethodDiagnostic:
					reply(out, msg.ID, map[string]any{
						"kind":  "full",
						"items": []lsp.Diagnostic{fixtures.TypeMismatch(), fixtures.UnusedVariable()},
					})
				case lsp.MethodShutdown:
					reply(out, msg.ID, nil)
				case lsp.MethodExit:
					return 0
				}
			}
		}
		if err != nil {
			return 0
		}
	}
}

func reply(out io.Writer, id json.RawMessage, result any) {
	msg, err := lsp.NewResponse(id, result)
	if err != nil {
		return
	}
	frame, err := lsp.Encode(msg)
	if err != nil {
		return
	}
	_, _ = out.Write(frame)
}

// fakeLSPConfig 返回指向测试二进制的配置，子进程通过继承的环境变量进入 fake 模式
func fakeLSPConfig(t *testing.T) *config.Config {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test executable: %v", err)
	}
	t.Setenv(fakeLSPEnv, "1")

	cfg := config.DefaultConfig()
	cfg.LSP.Command = exe
	cfg.LSP.Args = []string{"--stdio"}
	cfg.LSP.RequestTimeout = 10 * time.Second
	cfg.LSP.ShutdownTimeout = 500 * time.Millisecond
	cfg.LSP.KillDelay = 200 * time.Millisecond
	cfg.Log.Level = "error"
	return cfg
}

// writeConfigFile 把 fake 配置写成 YAML，供 --config 使用
func writeConfigFile(t *testing.T, cfg *config.Config) string {
	t.Helper()
	yaml := "lsp:\n" +
		"  command: " + cfg.LSP.Command + "\n" +
		"  args: [\"--stdio\"]\n" +
		"  request_timeout: 10s\n" +
		"  shutdown_timeout: 500ms\n" +
		"  kill_delay: 200ms\n" +
		"log:\n" +
		"  level: error\n"
	path := t.TempDir() + "/kotlin-lsp.yaml"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
