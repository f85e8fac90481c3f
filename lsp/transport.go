package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luhmann/kotlinlsp/internal/metrics"
	"go.uber.org/zap"
)

const (
	readChunkSize    = 32 * 1024
	frameChannelSize = 64
)

// TransportConfig 子进程启动参数
type TransportConfig struct {
	// Server 用于错误消息与日志的服务名
	Server  string
	Command string
	Args    []string
	// Dir 子进程工作目录，即工作区根目录
	Dir string
	// Env 为 nil 时继承当前进程环境，PATH 总会被清洗
	Env            []string
	StderrCapacity int
	StderrTail     int
	IgnorePrefixes []string
	// KillDelay SIGTERM 之后等待多久发送 SIGKILL
	KillDelay time.Duration
}

// Transport 持有至多一个存活的子进程
//
// 进程退出后句柄被清空，下一次 Start 会重新拉起。stderr 环形缓冲
// 跨进程保留，便于在重启后的错误中仍能看到上一次崩溃的输出。
type Transport struct {
	cfg     TransportConfig
	logger  *zap.Logger
	metrics *metrics.Collector
	stderr  *StderrRing

	mu   sync.Mutex
	proc *Process
	gen  uint64
}

// NewTransport 创建传输层，不会立即启动进程
func NewTransport(cfg TransportConfig, logger *zap.Logger, collector *metrics.Collector) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server == "" {
		cfg.Server = cfg.Command
	}
	if cfg.StderrTail <= 0 {
		cfg.StderrTail = DefaultStderrTail
	}
	return &Transport{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "lsp_transport")),
		metrics: collector,
		stderr:  NewStderrRing(cfg.StderrCapacity, cfg.IgnorePrefixes),
	}
}

// Process 一个已启动的子进程
type Process struct {
	server  string
	gen     uint64
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	frames chan *Message
	done   chan struct{}
	err    error

	framingErr error
	stopping   atomic.Bool
	tail       func() []string
}

// Start 启动子进程，已有存活进程时直接返回它，started 为 false
func (t *Transport) Start(ctx context.Context) (proc *Process, started bool, err error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.proc != nil && !t.proc.Exited() {
		return t.proc, false, nil
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	env := t.cfg.Env
	if env == nil {
		env = os.Environ()
	}
	cmd.Env = buildEnv(env)
	cmd.Stderr = t.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, false, t.spawnError(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, false, t.spawnError(err)
	}
	if err := cmd.Start(); err != nil {
		return nil, false, t.spawnError(err)
	}

	t.gen++
	p := &Process{
		server: t.cfg.Server,
		gen:    t.gen,
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan *Message, frameChannelSize),
		done:   make(chan struct{}),
		tail:   t.StderrTail,
	}
	t.proc = p
	t.metrics.RecordProcessStart(true)

	t.logger.Info("language server started",
		zap.String("command", t.cfg.Command),
		zap.Strings("args", t.cfg.Args),
		zap.String("dir", t.cfg.Dir),
		zap.Int("pid", cmd.Process.Pid),
		zap.Uint64("generation", p.gen),
	)

	readDone := make(chan struct{})
	go t.readLoop(p, stdout, readDone)
	go t.wait(p, readDone)

	return p, true, nil
}

func (t *Transport) spawnError(err error) error {
	t.metrics.RecordProcessStart(false)
	t.logger.Error("failed to start language server",
		zap.String("command", t.cfg.Command),
		zap.String("dir", t.cfg.Dir),
		zap.Error(err),
	)
	return &ProcessError{
		Server: t.cfg.Server,
		Op:     opSpawn,
		Code:   -1,
		Err:    err,
		Stderr: t.StderrTail(),
	}
}

// readLoop 将 stdout 字节送入解码器，帧错误时杀死进程
func (t *Transport) readLoop(p *Process, stdout io.Reader, done chan<- struct{}) {
	defer close(done)
	defer close(p.frames)

	codec := NewFrameCodec()
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			dropped := codec.Dropped()
			msgs, ferr := codec.Feed(buf[:n])
			for i := dropped; i < codec.Dropped(); i++ {
				t.metrics.RecordDroppedFrame()
				t.logger.Debug("dropped frame with invalid JSON body", zap.Uint64("generation", p.gen))
			}
			for _, msg := range msgs {
				p.frames <- msg
			}
			if ferr != nil {
				p.framingErr = ferr
				t.logger.Error("fatal framing error, killing language server",
					zap.Uint64("generation", p.gen),
					zap.Error(ferr),
				)
				_ = p.cmd.Process.Kill()
				_, _ = io.Copy(io.Discard, stdout)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				t.logger.Debug("stdout read ended", zap.Error(err))
			}
			return
		}
	}
}

// wait 在 stdout 读完后回收进程并发布退出事件
func (t *Transport) wait(p *Process, readDone <-chan struct{}) {
	<-readDone
	waitErr := p.cmd.Wait()
	t.stderr.Flush()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	signal := exitSignal(p.cmd)

	var cause error
	switch {
	case p.framingErr != nil:
		cause = p.framingErr
	case waitErr != nil && !isExitError(waitErr):
		cause = waitErr
	}

	p.err = &ProcessError{
		Server: t.cfg.Server,
		Op:     opExit,
		Code:   code,
		Signal: signal,
		Err:    cause,
		Stderr: t.StderrTail(),
	}

	reason := "crashed"
	switch {
	case p.framingErr != nil:
		reason = "framing"
	case p.stopping.Load():
		reason = "stopped"
	case code == 0:
		reason = "clean"
	}
	t.metrics.RecordProcessExit(reason)

	fields := []zap.Field{
		zap.Int("pid", p.PID()),
		zap.Uint64("generation", p.gen),
		zap.Int("code", code),
		zap.String("signal", signal),
		zap.String("reason", reason),
	}
	if reason == "stopped" || reason == "clean" {
		t.logger.Info("language server exited", fields...)
	} else {
		t.logger.Warn("language server exited unexpectedly", append(fields, zap.Strings("stderr", t.StderrTail()))...)
	}

	t.mu.Lock()
	if t.proc == p {
		t.proc = nil
	}
	t.mu.Unlock()

	close(p.done)
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// Process 返回当前存活的进程
func (t *Transport) Process() (*Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.proc == nil || t.proc.Exited() {
		return nil, t.notRunning()
	}
	return t.proc, nil
}

// Running 是否有存活进程
func (t *Transport) Running() bool {
	_, err := t.Process()
	return err == nil
}

// Send 向当前进程写入一条消息
func (t *Transport) Send(msg *Message) error {
	p, err := t.Process()
	if err != nil {
		return err
	}
	return p.Send(msg)
}

// Stop 先发送 SIGTERM，KillDelay 后仍未退出则 SIGKILL
//
// 进程不存在时直接返回 nil。ctx 结束时停止等待并返回 ctx.Err()，
// 此时 SIGKILL 已发出或即将发出。
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p == nil || p.Exited() {
		return nil
	}

	p.stopping.Store(true)
	_ = p.stdin.Close()
	if err := terminate(p.cmd.Process); err != nil {
		_ = p.cmd.Process.Kill()
	}

	delay := t.cfg.KillDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-timer.C:
		t.logger.Warn("language server ignored SIGTERM, killing", zap.Int("pid", p.PID()))
		_ = p.cmd.Process.Kill()
	case <-ctx.Done():
		_ = p.cmd.Process.Kill()
		return ctx.Err()
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StderrTail 返回最近的 stderr 行
func (t *Transport) StderrTail() []string {
	return t.stderr.Tail(t.cfg.StderrTail)
}

// Stderr 返回 stderr 环形缓冲
func (t *Transport) Stderr() *StderrRing {
	return t.stderr
}

func (t *Transport) notRunning() error {
	return &ProcessError{Server: t.cfg.Server, Op: opSend, Code: -1, Stderr: t.StderrTail()}
}

// =============================================================================
// Process
// =============================================================================

// Frames 解码后的入站消息，进程 stdout 关闭后通道关闭
func (p *Process) Frames() <-chan *Message {
	return p.frames
}

// Done 进程退出后关闭
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited 进程是否已退出
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err 返回退出错误，进程未退出时为 nil
func (p *Process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// PID 返回进程号
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Generation 返回进程代数，每次启动递增
func (p *Process) Generation() uint64 {
	return p.gen
}

// Send 编码并写入一条消息，写入互斥
func (p *Process) Send(msg *Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if p.Exited() || p.stopping.Load() {
		return &ProcessError{Server: p.server, Op: opSend, Code: -1, Stderr: p.tail()}
	}
	if _, err := p.stdin.Write(frame); err != nil {
		return &ProcessError{
			Server: p.server,
			Op:     opSend,
			Code:   -1,
			Err:    fmt.Errorf("write stdin: %w", err),
			Stderr: p.tail(),
		}
	}
	return nil
}

// Notify 发送通知
func (p *Process) Notify(method string, params any) error {
	msg, err := NewNotification(method, params)
	if err != nil {
		return err
	}
	return p.Send(msg)
}
