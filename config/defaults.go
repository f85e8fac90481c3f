// =============================================================================
// 📦 kotlin-lsp 默认配置
// =============================================================================
package config

import (
	"time"

	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/lsp"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LSP:         DefaultLSPConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
		Server:      DefaultServerConfig(),
		Log:         DefaultLogConfig(),
		Metrics:     DefaultMetricsConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultLSPConfig 返回 kotlin-lsp 子进程默认配置
func DefaultLSPConfig() LSPConfig {
	return LSPConfig{
		Command:              lsp.DefaultCommand,
		Args:                 []string{"--stdio"},
		LanguageID:           lsp.DefaultLanguageID,
		RequestTimeout:       lsp.DefaultRequestTimeout,
		ShutdownTimeout:      lsp.DefaultShutdownTimeout,
		KillDelay:            lsp.DefaultKillDelay,
		StderrCapacity:       lsp.DefaultStderrCapacity,
		StderrTail:           lsp.DefaultStderrTail,
		StderrIgnorePrefixes: append([]string(nil), lsp.DefaultStderrIgnorePrefixes...),
		ClientName:           lsp.DefaultClientName,
		ClientVersion:        lsp.DefaultClientVersion,
		WorkspaceMarkers:     append([]string(nil), lsp.DefaultWorkspaceMarkers...),
	}
}

// DefaultDiagnosticsConfig 返回诊断工具默认配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		IncludeWarnings: true,
		MaxProblems:     diagnostics.DefaultMaxProblems,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		HTTPPort:        8090,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    3 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "kotlinlsp",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "kotlin-lsp-bridge",
		SampleRate:   0.1,
	}
}
