package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/luhmann/kotlinlsp/config"
	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/internal/telemetry"
	"github.com/luhmann/kotlinlsp/lsp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 客户端关闭的上限，单个会话自身的 shutdown/kill 超时更短
const disposeTimeout = 10 * time.Second

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 分发子命令并返回退出码
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "diagnose":
		err = runDiagnose(ctx, args[1:], stdout, stderr)
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "status":
		err = runStatus(ctx, args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// =============================================================================
// 🔍 diagnose 命令
// =============================================================================

func runDiagnose(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diagnose", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	workspace := fs.String("workspace", "", "Workspace root (default: auto-detect)")
	includeWarnings := fs.Bool("include-warnings", true, "Include warnings in the report")
	maxProblems := fs.Int("max-problems", diagnostics.DefaultMaxProblems, "Maximum diagnostics to show (1-500)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("diagnose expects exactly one file, got %d", fs.NArg())
	}

	params := diagnostics.Params{Path: fs.Arg(0), Workspace: *workspace}
	// 只有显式设置的 flag 才覆盖配置默认值
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "include-warnings":
			params.IncludeWarnings = includeWarnings
		case "max-problems":
			params.MaxProblems = maxProblems
		}
	})

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	registry := lsp.NewRegistry(cfg.LSP.SessionOptions(), logger, nil)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Debug("close kotlin-lsp clients", zap.Error(err))
		}
	}()

	tool := diagnostics.NewTool(registry, cfg.ToolConfig(), logger)
	result, err := tool.Run(ctx, cwd, params)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, result.Text)
	return nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting kotlin-lsp bridge",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, providers)
	if err := srv.Start(); err != nil {
		_ = providers.Shutdown(context.Background())
		return fmt.Errorf("start server: %w", err)
	}

	if err := srv.WaitForShutdown(ctx); err != nil {
		return err
	}
	logger.Info("kotlin-lsp bridge stopped")
	return nil
}

// =============================================================================
// 📋 status 命令
// =============================================================================

func runStatus(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", "", "Query a running server, e.g. http://127.0.0.1:8090")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *addr == "" {
		// 本进程内没有活动客户端
		registry := lsp.NewRegistry(lsp.DefaultOptions(), nil, nil)
		fmt.Fprintln(stdout, clientsStatus(registry.Status()).Text)
		return nil
	}

	status, err := fetchStatus(ctx, strings.TrimRight(*addr, "/"))
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, status.Text)
	return nil
}

func fetchStatus(ctx context.Context, addr string) (*ClientsStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+routeClients, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		Data  ClientsStatus `json:"data"`
		Error *ErrorInfo    `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if body.Error != nil {
			return nil, fmt.Errorf("status request failed: %s", body.Error.Message)
		}
		return nil, fmt.Errorf("status request failed: status %d", resp.StatusCode)
	}
	return &body.Data, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "kotlin-lsp bridge %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `kotlin-lsp - Kotlin diagnostics over the kotlin-lsp language server

Usage:
  kotlin-lsp <command> [options]

Commands:
  diagnose  Print diagnostics for a Kotlin file
  serve     Start the HTTP bridge
  status    Show kotlin-lsp client status
  version   Show version information
  help      Show this help message

Options for 'diagnose':
  --config <path>            Path to configuration file (YAML)
  --workspace <dir>          Workspace root (default: nearest Gradle/Maven/.git root)
  --include-warnings=<bool>  Include warnings (default true)
  --max-problems <n>         Maximum diagnostics to show, 1-500 (default 200)

Options for 'serve':
  --config <path>            Path to configuration file (YAML)

Options for 'status':
  --addr <url>               Query a running server

Examples:
  kotlin-lsp diagnose src/main/kotlin/App.kt
  kotlin-lsp diagnose --include-warnings=false --max-problems 20 @src/App.kt
  kotlin-lsp serve --config /etc/kotlin-lsp/config.yaml
  kotlin-lsp status --addr http://127.0.0.1:8090
  kotlin-lsp version`)
}

// =============================================================================
// 🔧 配置与日志初始化
// =============================================================================

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	encoding := "json"
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: true,
	}

	var opts []zap.Option
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
