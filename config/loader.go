// =============================================================================
// 📦 kotlin-lsp 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("kotlin-lsp.yaml").
//	    WithEnvPrefix("KOTLINLSP").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/luhmann/kotlinlsp/diagnostics"
	"github.com/luhmann/kotlinlsp/lsp"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "KOTLINLSP"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 完整配置
type Config struct {
	// LSP 语言服务子进程配置
	LSP LSPConfig `yaml:"lsp" env:"LSP"`

	// Diagnostics 诊断工具默认值
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" env:"DIAGNOSTICS"`

	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// LSPConfig 语言服务配置
type LSPConfig struct {
	// 可执行文件，按 PATH 查找
	Command string `yaml:"command" env:"COMMAND"`
	// 命令行参数
	Args []string `yaml:"args" env:"ARGS"`
	// didOpen 使用的 languageId
	LanguageID string `yaml:"language_id" env:"LANGUAGE_ID"`
	// 单个请求超时
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	// shutdown 请求超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// SIGTERM 之后等待多久发送 SIGKILL
	KillDelay time.Duration `yaml:"kill_delay" env:"KILL_DELAY"`
	// stderr 环形缓冲行数
	StderrCapacity int `yaml:"stderr_capacity" env:"STDERR_CAPACITY"`
	// 错误消息附带的 stderr 行数
	StderrTail int `yaml:"stderr_tail" env:"STDERR_TAIL"`
	// 忽略的 stderr 行前缀
	StderrIgnorePrefixes []string `yaml:"stderr_ignore_prefixes" env:"STDERR_IGNORE_PREFIXES"`
	// initialize 中的 clientInfo
	ClientName    string `yaml:"client_name" env:"CLIENT_NAME"`
	ClientVersion string `yaml:"client_version" env:"CLIENT_VERSION"`
	// 工作区根目录标记文件
	WorkspaceMarkers []string `yaml:"workspace_markers" env:"WORKSPACE_MARKERS"`
}

// DiagnosticsConfig 诊断工具配置
type DiagnosticsConfig struct {
	// 是否默认包含警告
	IncludeWarnings bool `yaml:"include_warnings" env:"INCLUDE_WARNINGS"`
	// 默认最大输出条数
	MaxProblems int `yaml:"max_problems" env:"MAX_PROBLEMS"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	// 监听地址，默认只绑定本机
	Host string `yaml:"host" env:"HOST"`
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时，需覆盖一次完整的诊断
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每秒请求数，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// Addr 返回 host:port 形式的监听地址
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径，诊断结果写 stdout，日志默认写 stderr
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键名为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)

	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Validate 验证配置，一次返回所有问题
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.LSP.Command) == "" {
		errs = append(errs, "lsp.command is required")
	}
	if c.LSP.RequestTimeout <= 0 {
		errs = append(errs, "lsp.request_timeout must be positive")
	}
	if c.LSP.ShutdownTimeout <= 0 {
		errs = append(errs, "lsp.shutdown_timeout must be positive")
	}
	if c.LSP.KillDelay <= 0 {
		errs = append(errs, "lsp.kill_delay must be positive")
	}
	if c.LSP.StderrCapacity <= 0 {
		errs = append(errs, "lsp.stderr_capacity must be positive")
	}
	if c.LSP.StderrTail <= 0 || c.LSP.StderrTail > c.LSP.StderrCapacity {
		errs = append(errs, "lsp.stderr_tail must be between 1 and stderr_capacity")
	}
	if c.Diagnostics.MaxProblems < diagnostics.MinMaxProblems || c.Diagnostics.MaxProblems > diagnostics.MaxMaxProblems {
		errs = append(errs, fmt.Sprintf("diagnostics.max_problems must be between %d and %d",
			diagnostics.MinMaxProblems, diagnostics.MaxMaxProblems))
	}
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rate_limit_rps must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, "log.format must be json or console")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SessionOptions 转换为 lsp 会话配置
func (c LSPConfig) SessionOptions() lsp.Options {
	opts := lsp.DefaultOptions()
	opts.Command = c.Command
	opts.Args = append([]string(nil), c.Args...)
	opts.LanguageID = c.LanguageID
	opts.RequestTimeout = c.RequestTimeout
	opts.ShutdownTimeout = c.ShutdownTimeout
	opts.KillDelay = c.KillDelay
	opts.StderrCapacity = c.StderrCapacity
	opts.StderrTail = c.StderrTail
	opts.StderrIgnorePrefixes = append([]string(nil), c.StderrIgnorePrefixes...)
	opts.ClientName = c.ClientName
	opts.ClientVersion = c.ClientVersion
	return opts
}

// ToolConfig 转换为诊断工具配置
func (c *Config) ToolConfig() diagnostics.Config {
	return diagnostics.Config{
		IncludeWarnings:  c.Diagnostics.IncludeWarnings,
		MaxProblems:      c.Diagnostics.MaxProblems,
		WorkspaceMarkers: append([]string(nil), c.LSP.WorkspaceMarkers...),
	}
}
