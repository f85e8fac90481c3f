package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/luhmann/kotlinlsp/lsp"
	"go.uber.org/zap"
)

// 参数取值范围
const (
	DefaultMaxProblems = 200
	MinMaxProblems     = 1
	MaxMaxProblems     = 500
)

// Diagnoser 在指定工作区上对文件执行诊断
type Diagnoser interface {
	Diagnose(ctx context.Context, root, filePath, text string) ([]lsp.Diagnostic, error)
}

// Config 工具默认值
type Config struct {
	IncludeWarnings  bool     // 调用方未指定时是否包含警告
	MaxProblems      int      // 调用方未指定时的最大输出条数
	WorkspaceMarkers []string // 工作区根目录标记
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		IncludeWarnings:  true,
		MaxProblems:      DefaultMaxProblems,
		WorkspaceMarkers: append([]string(nil), lsp.DefaultWorkspaceMarkers...),
	}
}

// Params 一次诊断调用的参数
type Params struct {
	Path            string `json:"path"`
	Workspace       string `json:"workspace,omitempty"`
	IncludeWarnings *bool  `json:"include_warnings,omitempty"`
	MaxProblems     *int   `json:"max_problems,omitempty"`
}

// Details 结构化的调用结果
type Details struct {
	Workspace       string `json:"workspace"`
	File            string `json:"file"`
	IncludeWarnings bool   `json:"include_warnings"`
	MaxProblems     int    `json:"max_problems"`
	Total           int    `json:"total"`
	Errors          int    `json:"errors"`
	Warnings        int    `json:"warnings"`
	Shown           int    `json:"shown"`
}

// Result 诊断报告
type Result struct {
	Text        string           `json:"text"`
	Details     Details          `json:"details"`
	Diagnostics []lsp.Diagnostic `json:"diagnostics"`
}

// ValidationError 参数或输入文件不合法
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Tool Kotlin 诊断工具
type Tool struct {
	diagnoser Diagnoser
	config    Config
	logger    *zap.Logger
}

// NewTool 创建工具
func NewTool(diagnoser Diagnoser, config Config, logger *zap.Logger) *Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxProblems < MinMaxProblems || config.MaxProblems > MaxMaxProblems {
		config.MaxProblems = DefaultMaxProblems
	}
	if len(config.WorkspaceMarkers) == 0 {
		config.WorkspaceMarkers = lsp.DefaultWorkspaceMarkers
	}
	return &Tool{
		diagnoser: diagnoser,
		config:    config,
		logger:    logger.With(zap.String("component", "diagnostics_tool")),
	}
}

// Handle 以 JSON 参数调用 Run，返回 JSON 结果
func (t *Tool) Handle(ctx context.Context, cwd string, args json.RawMessage) (json.RawMessage, error) {
	var params Params
	if err := json.Unmarshal(args, &params); err != nil {
		return nil, &ValidationError{Field: "arguments", Message: "malformed JSON", Err: err}
	}
	result, err := t.Run(ctx, cwd, params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// Run 校验参数，读取文件，拉取诊断并生成报告
//
// 文件不可读时在启动语言服务之前返回 ValidationError。
func (t *Tool) Run(ctx context.Context, cwd string, params Params) (*Result, error) {
	includeWarnings := t.config.IncludeWarnings
	if params.IncludeWarnings != nil {
		includeWarnings = *params.IncludeWarnings
	}
	maxProblems := t.config.MaxProblems
	if params.MaxProblems != nil {
		maxProblems = *params.MaxProblems
	}
	if maxProblems < MinMaxProblems || maxProblems > MaxMaxProblems {
		return nil, &ValidationError{
			Field:   "max_problems",
			Message: fmt.Sprintf("must be between %d and %d, got %d", MinMaxProblems, MaxMaxProblems, maxProblems),
		}
	}
	if lsp.NormalizeToolPath(params.Path) == "" {
		return nil, &ValidationError{Field: "path", Message: "is required"}
	}

	filePath := lsp.ResolvePath(cwd, params.Path)
	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ValidationError{Field: "path", Message: "file is not readable", Err: err}
	}

	root := lsp.DetectWorkspace(filePath, cwd, t.config.WorkspaceMarkers)
	if params.Workspace != "" {
		root = lsp.ResolvePath(cwd, params.Workspace)
	}

	start := time.Now()
	t.logger.Debug("running diagnostics",
		zap.String("workspace", root),
		zap.String("file", filePath))

	all, err := t.diagnoser.Diagnose(ctx, root, filePath, string(source))
	if err != nil {
		t.logger.Warn("diagnostics failed",
			zap.String("workspace", root),
			zap.String("file", filePath),
			zap.Error(err))
		return nil, fmt.Errorf("kotlin diagnostics for %s: %w", filePath, err)
	}

	matching := Filter(all, includeWarnings)
	shown := matching
	if len(shown) > maxProblems {
		shown = shown[:maxProblems]
	}
	counts := Count(all)

	details := Details{
		Workspace:       root,
		File:            filePath,
		IncludeWarnings: includeWarnings,
		MaxProblems:     maxProblems,
		Total:           len(all),
		Errors:          counts.Errors,
		Warnings:        counts.Warnings,
		Shown:           len(shown),
	}

	t.logger.Debug("diagnostics completed",
		zap.String("file", filePath),
		zap.Int("total", details.Total),
		zap.Int("errors", details.Errors),
		zap.Int("warnings", details.Warnings),
		zap.Duration("duration", time.Since(start)))

	return &Result{
		Text:        Report(details, shown, len(matching)),
		Details:     details,
		Diagnostics: append([]lsp.Diagnostic{}, shown...),
	}, nil
}
