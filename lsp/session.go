package lsp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/luhmann/kotlinlsp/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const instrumentationName = "github.com/luhmann/kotlinlsp/lsp"

// 默认会话参数
const (
	DefaultServerName      = "kotlin-lsp"
	DefaultCommand         = "kotlin-lsp"
	DefaultLanguageID      = "kotlin"
	DefaultShutdownTimeout = 1500 * time.Millisecond
	DefaultKillDelay       = 500 * time.Millisecond
	DefaultClientName      = "kotlin-lsp-bridge"
	DefaultClientVersion   = "0.1"
)

// Options 会话配置
type Options struct {
	// ServerName 出现在错误消息与日志中
	ServerName string
	Command    string
	Args       []string
	// Env 为 nil 时继承当前进程环境
	Env             []string
	LanguageID      string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	KillDelay       time.Duration
	StderrCapacity  int
	StderrTail      int
	// StderrIgnorePrefixes 匹配这些前缀的 stderr 行不会进入环形缓冲
	StderrIgnorePrefixes []string
	ClientName           string
	ClientVersion        string
}

// DefaultOptions 返回 kotlin-lsp 的默认配置
func DefaultOptions() Options {
	return Options{
		ServerName:           DefaultServerName,
		Command:              DefaultCommand,
		Args:                 []string{"--stdio"},
		LanguageID:           DefaultLanguageID,
		RequestTimeout:       DefaultRequestTimeout,
		ShutdownTimeout:      DefaultShutdownTimeout,
		KillDelay:            DefaultKillDelay,
		StderrCapacity:       DefaultStderrCapacity,
		StderrTail:           DefaultStderrTail,
		StderrIgnorePrefixes: append([]string(nil), DefaultStderrIgnorePrefixes...),
		ClientName:           DefaultClientName,
		ClientVersion:        DefaultClientVersion,
	}
}

// withDefaults 补齐零值字段
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ServerName == "" {
		o.ServerName = d.ServerName
	}
	if o.Command == "" {
		o.Command = d.Command
		if o.Args == nil {
			o.Args = d.Args
		}
	}
	if o.LanguageID == "" {
		o.LanguageID = d.LanguageID
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = d.ShutdownTimeout
	}
	if o.KillDelay <= 0 {
		o.KillDelay = d.KillDelay
	}
	if o.StderrCapacity <= 0 {
		o.StderrCapacity = d.StderrCapacity
	}
	if o.StderrTail <= 0 {
		o.StderrTail = d.StderrTail
	}
	if o.StderrIgnorePrefixes == nil {
		o.StderrIgnorePrefixes = d.StderrIgnorePrefixes
	}
	if o.ClientName == "" {
		o.ClientName = d.ClientName
	}
	if o.ClientVersion == "" {
		o.ClientVersion = d.ClientVersion
	}
	return o
}

// SessionState 会话状态
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateStopped
	StateCrashed
)

// String 返回状态名
func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting-down"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Session 一个工作区根目录对应的语言服务会话
//
// 公开操作经 FIFO 队列串行执行。握手惰性进行，失败后下一次操作会重试；
// 进程退出后下一次操作会重新拉起进程并握手。
type Session struct {
	root    string
	folder  WorkspaceFolder
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	transport *Transport
	corr      *Correlator
	handler   *ServerRequestHandler
	queue     opQueue
	handshake singleflight.Group

	mu          sync.Mutex
	state       SessionState
	proc        *Process
	initialized bool
	// detached 被注册表移除后置位，之后的操作不再拉起进程
	detached    bool
	diagnostics map[string][]Diagnostic
}

// NewSession 创建会话，不会启动子进程
func NewSession(root string, opts Options, logger *zap.Logger, collector *metrics.Collector) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	logger = logger.With(zap.String("component", "lsp_session"), zap.String("workspace", root))

	folder := WorkspaceFolder{URI: FileURI(root), Name: folderName(root)}
	transport := NewTransport(TransportConfig{
		Server:         opts.ServerName,
		Command:        opts.Command,
		Args:           opts.Args,
		Dir:            root,
		Env:            opts.Env,
		StderrCapacity: opts.StderrCapacity,
		StderrTail:     opts.StderrTail,
		IgnorePrefixes: opts.StderrIgnorePrefixes,
		KillDelay:      opts.KillDelay,
	}, logger, collector)

	return &Session{
		root:        root,
		folder:      folder,
		opts:        opts,
		logger:      logger,
		metrics:     collector,
		tracer:      otel.Tracer(instrumentationName),
		transport:   transport,
		corr:        NewCorrelator(opts.ServerName, transport.StderrTail, collector),
		handler:     NewServerRequestHandler(opts.ServerName+" bridge", folder, logger, collector),
		diagnostics: make(map[string][]Diagnostic),
	}
}

// Root 返回工作区根目录
func (s *Session) Root() string { return s.root }

// State 返回当前状态
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Running 子进程是否存活
func (s *Session) Running() bool {
	return s.transport.Running()
}

// Status 返回一行可读状态
func (s *Session) Status() string {
	running := "stopped"
	if s.Running() {
		running = "running"
	}
	return fmt.Sprintf("%s (%s, %s)", s.root, running, s.State())
}

// Pending 未完成请求数
func (s *Session) Pending() int {
	return s.corr.Len()
}

// StderrTail 返回最近的 stderr 行
func (s *Session) StderrTail() []string {
	return s.transport.StderrTail()
}

// CachedDiagnostics 返回某个 URI 最近一次的诊断
func (s *Session) CachedDiagnostics(uri string) ([]Diagnostic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	diags, ok := s.diagnostics[uri]
	if !ok {
		return nil, false
	}
	return append([]Diagnostic(nil), diags...), true
}

// =============================================================================
// 握手
// =============================================================================

// Initialize 在队列中完成握手，已就绪时立即返回
func (s *Session) Initialize(ctx context.Context) error {
	_, err := runExclusive(ctx, &s.queue, func(ctx context.Context) (*Process, error) {
		return s.ensureInitialized(ctx)
	})
	return err
}

// ensureInitialized 返回已完成握手的进程
func (s *Session) ensureInitialized(ctx context.Context) (*Process, error) {
	s.mu.Lock()
	if s.detached {
		s.mu.Unlock()
		return nil, ErrDetached
	}
	if s.state == StateShuttingDown {
		s.mu.Unlock()
		return nil, s.shuttingDownError()
	}
	if s.initialized && s.proc != nil && !s.proc.Exited() {
		proc := s.proc
		s.mu.Unlock()
		return proc, nil
	}
	s.mu.Unlock()

	v, err, _ := s.handshake.Do("initialize", func() (any, error) {
		return s.runHandshake(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Process), nil
}

func (s *Session) runHandshake(ctx context.Context) (*Process, error) {
	proc, started, err := s.transport.Start(ctx)
	if err != nil {
		s.setState(StateCrashed)
		return nil, err
	}
	if started {
		go s.dispatch(proc)
	}

	s.mu.Lock()
	s.proc = proc
	s.initialized = false
	s.state = StateInitializing
	s.mu.Unlock()

	s.logger.Info("initializing language server", zap.Int("pid", proc.PID()))
	params := newInitializeParams(os.Getpid(), s.root, ClientInfo{
		Name:    s.opts.ClientName,
		Version: s.opts.ClientVersion,
	})
	if _, err := s.call(ctx, proc, MethodInitialize, params, s.opts.RequestTimeout); err != nil {
		s.handshakeFailed(proc, err)
		return nil, err
	}
	if err := proc.Notify(MethodInitialized, struct{}{}); err != nil {
		s.handshakeFailed(proc, err)
		return nil, err
	}

	s.mu.Lock()
	if s.proc == proc && s.state == StateInitializing {
		s.initialized = true
		s.state = StateReady
	}
	s.mu.Unlock()

	s.logger.Info("language server ready", zap.Int("pid", proc.PID()))
	return proc, nil
}

func (s *Session) handshakeFailed(proc *Process, err error) {
	s.mu.Lock()
	if s.proc == proc && s.state == StateInitializing {
		if proc.Exited() {
			s.state = StateCrashed
		} else {
			s.state = StateUninitialized
		}
	}
	s.mu.Unlock()
	s.logger.Warn("language server handshake failed", zap.Error(err))
}

// =============================================================================
// 消息分发
// =============================================================================

// dispatch 消费单个进程的入站消息，进程退出后处理退出事件
func (s *Session) dispatch(proc *Process) {
	for msg := range proc.Frames() {
		s.handleMessage(proc, msg)
	}
	<-proc.Done()
	s.handleExit(proc)
}

func (s *Session) handleMessage(proc *Process, msg *Message) {
	switch {
	case msg.IsRequest() && msg.Result == nil && msg.Error == nil:
		reply := s.handler.Handle(msg)
		if err := proc.Send(reply); err != nil {
			s.logger.Debug("failed to answer server request",
				zap.String("method", msg.Method),
				zap.Error(err),
			)
		}
	case msg.HasID():
		if !s.corr.Resolve(msg) {
			s.logger.Debug("ignoring response without pending request", zap.ByteString("id", msg.ID))
		}
	case msg.Method == MethodPublishDiagnostics:
		s.handlePublish(msg.Params)
	}
}

func (s *Session) handlePublish(raw json.RawMessage) {
	var params PublishDiagnosticsParams
	if err := json.Unmarshal(raw, &params); err != nil {
		s.logger.Debug("malformed publishDiagnostics", zap.Error(err))
		return
	}
	if params.URI == "" || params.Diagnostics == nil {
		return
	}
	s.mu.Lock()
	s.diagnostics[params.URI] = params.Diagnostics
	s.mu.Unlock()
}

func (s *Session) handleExit(proc *Process) {
	err := proc.Err()
	n := s.corr.RejectGeneration(proc.Generation(), err)

	s.mu.Lock()
	if s.proc == proc {
		s.initialized = false
		s.proc = nil
		if s.state != StateShuttingDown && s.state != StateStopped {
			s.state = StateCrashed
		}
	}
	s.mu.Unlock()

	if n > 0 {
		s.logger.Warn("rejected pending requests after process exit",
			zap.Int("count", n),
			zap.Error(err),
		)
	}
}

// =============================================================================
// 请求
// =============================================================================

// call 登记请求后再写出，保证响应到达时一定能匹配
func (s *Session) call(ctx context.Context, proc *Process, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	ctx, span := s.tracer.Start(ctx, "lsp.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		))
	defer span.End()

	pending := s.corr.Begin(method, timeout, proc.Generation())
	span.SetAttributes(attribute.Int64("rpc.jsonrpc.request_id", pending.ID()))

	msg, err := NewRequest(pending.ID(), method, params)
	if err != nil {
		s.corr.Fail(pending.ID(), err)
	} else if err := proc.Send(msg); err != nil {
		s.corr.Fail(pending.ID(), err)
	}

	result, err := pending.Wait(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

// =============================================================================
// 诊断
// =============================================================================

// Diagnose 打开文档、拉取诊断、关闭文档
//
// 无论诊断请求成功与否，didOpen 成功后都会发送 didClose。
func (s *Session) Diagnose(ctx context.Context, filePath, text string) ([]Diagnostic, error) {
	ctx, span := s.tracer.Start(ctx, "lsp.Diagnose",
		trace.WithAttributes(
			attribute.String("lsp.workspace", s.root),
			attribute.String("lsp.file", filePath),
		))
	defer span.End()

	start := time.Now()
	diags, err := runExclusive(ctx, &s.queue, func(ctx context.Context) ([]Diagnostic, error) {
		return s.diagnose(ctx, filePath, text)
	})
	if err != nil {
		s.metrics.RecordDiagnose("error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.RecordDiagnose("ok", time.Since(start))
	for severity, count := range countBySeverity(diags) {
		s.metrics.RecordDiagnostics(severity.String(), count)
	}
	span.SetAttributes(attribute.Int("lsp.diagnostics", len(diags)))
	return diags, nil
}

func (s *Session) diagnose(ctx context.Context, filePath, text string) ([]Diagnostic, error) {
	proc, err := s.ensureInitialized(ctx)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("resolve document path %q: %w", filePath, err)
	}
	uri := FileURI(abs)
	doc := TextDocumentIdentifier{URI: uri}

	open := DidOpenTextDocumentParams{TextDocument: TextDocumentItem{
		URI:        uri,
		LanguageID: s.opts.LanguageID,
		Version:    time.Now().UnixMilli(),
		Text:       text,
	}}
	if err := proc.Notify(MethodDidOpen, open); err != nil {
		return nil, err
	}
	defer func() {
		if err := proc.Notify(MethodDidClose, DidCloseTextDocumentParams{TextDocument: doc}); err != nil {
			s.logger.Debug("didClose not delivered", zap.String("uri", uri), zap.Error(err))
		}
	}()

	raw, err := s.call(ctx, proc, MethodDiagnostic, DocumentDiagnosticParams{TextDocument: doc}, s.opts.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return s.applyReport(uri, raw), nil
}

// applyReport full 报告覆盖缓存，unchanged 返回缓存，其他情况返回空列表
func (s *Session) applyReport(uri string, raw json.RawMessage) []Diagnostic {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Diagnostic{}
	}

	var report DocumentDiagnosticReport
	if err := json.Unmarshal(raw, &report); err != nil {
		s.logger.Warn("malformed diagnostic report", zap.String("uri", uri), zap.Error(err))
		return []Diagnostic{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch report.Kind {
	case ReportKindFull:
		if report.Items == nil {
			return []Diagnostic{}
		}
		s.diagnostics[uri] = report.Items
		return append([]Diagnostic(nil), report.Items...)
	case ReportKindUnchanged:
		cached := s.diagnostics[uri]
		return append([]Diagnostic{}, cached...)
	default:
		return []Diagnostic{}
	}
}

func countBySeverity(diags []Diagnostic) map[DiagnosticSeverity]int {
	counts := make(map[DiagnosticSeverity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}

// =============================================================================
// 关闭
// =============================================================================

// Dispose 优雅关闭子进程
//
// 依次发送 shutdown 请求（短超时，失败忽略）与 exit 通知，拒绝所有未完成
// 请求，然后 SIGTERM，KillDelay 后仍存活则 SIGKILL。Dispose 不进入操作队列，
// 只有 ctx 提前结束时才返回错误。之后的操作会重新拉起进程。
func (s *Session) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateShuttingDown {
		s.mu.Unlock()
		return nil
	}
	proc := s.proc
	s.state = StateShuttingDown
	s.mu.Unlock()

	if proc == nil {
		if p, err := s.transport.Process(); err == nil {
			proc = p
		}
	}

	if proc != nil && !proc.Exited() {
		shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
		if _, err := s.call(shutdownCtx, proc, MethodShutdown, nil, s.opts.ShutdownTimeout); err != nil {
			s.logger.Debug("shutdown request failed", zap.Error(err))
		}
		cancel()
		if err := proc.Notify(MethodExit, nil); err != nil {
			s.logger.Debug("exit notification failed", zap.Error(err))
		}
	}

	if n := s.corr.RejectAll(s.shuttingDownError()); n > 0 {
		s.logger.Debug("rejected pending requests on dispose", zap.Int("count", n))
	}
	stopErr := s.transport.Stop(ctx)

	s.mu.Lock()
	s.state = StateStopped
	s.initialized = false
	s.proc = nil
	s.mu.Unlock()

	s.logger.Info("language server disposed")
	return stopErr
}

// detach 使会话永久失效，由 Registry 在移除会话时调用
func (s *Session) detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}

func (s *Session) shuttingDownError() error {
	return fmt.Errorf("%s %w", s.opts.ServerName, ErrShuttingDown)
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateShuttingDown {
		s.state = state
	}
}
