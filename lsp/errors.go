package lsp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 哨兵错误，使用 errors.Is 判断
var (
	// ErrNotRunning 子进程未运行
	ErrNotRunning = errors.New("language server is not running")

	// ErrProcessExited 子进程启动失败或已退出
	ErrProcessExited = errors.New("language server process exited")

	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timed out")

	// ErrFraming 帧头非法
	ErrFraming = errors.New("invalid message framing")

	// ErrShuttingDown 客户端正在关闭
	ErrShuttingDown = errors.New("client is shutting down")

	// ErrClosed 注册表已关闭
	ErrClosed = errors.New("registry is closed")

	// ErrDetached 会话已被注册表移除，需重新通过 Registry.Client 获取
	ErrDetached = fmt.Errorf("workspace client detached: %w", ErrClosed)
)

// JSON-RPC 标准错误码
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// RPCError JSON-RPC 错误对象
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ResponseError 服务端对某个请求返回了 error 载荷
type ResponseError struct {
	Server string
	Method string
	Err    *RPCError
	Stderr []string
}

func (e *ResponseError) Error() string {
	payload, err := json.Marshal(e.Err)
	if err != nil {
		payload = []byte(e.Err.Error())
	}
	return fmt.Sprintf("%s failed: %s%s", e.Method, payload, stderrSuffix(e.Server, e.Stderr))
}

func (e *ResponseError) Unwrap() error { return e.Err }

// TimeoutError 请求在截止时间内没有收到响应
type TimeoutError struct {
	Server  string
	Method  string
	Timeout time.Duration
	Stderr  []string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Timeout waiting for %s (%dms)%s",
		e.Method, e.Timeout.Milliseconds(), stderrSuffix(e.Server, e.Stderr))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// FramingError 帧头缺少合法的 Content-Length
type FramingError struct {
	Header string
	// Reason 非空时说明长度本身不可接受
	Reason string
}

func (e *FramingError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid LSP header %q: %s", e.Header, e.Reason)
	}
	return fmt.Sprintf("invalid LSP header: %q", e.Header)
}

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// 进程错误发生的阶段
const (
	opSpawn = "spawn"
	opExit  = "exit"
	opSend  = "send"
)

// ProcessError 子进程级错误：启动失败、意外退出或写入时进程不在运行
type ProcessError struct {
	Server string
	Op     string
	// Code 退出码，未知或被信号终止时为 -1
	Code int
	// Signal 终止信号名，未被信号终止时为空
	Signal string
	Err    error
	Stderr []string
}

func (e *ProcessError) Error() string {
	var msg string
	switch e.Op {
	case opSpawn:
		msg = fmt.Sprintf("failed to start %s: %v", e.Server, e.Err)
	case opSend:
		msg = fmt.Sprintf("%s is not running", e.Server)
	default:
		code, signal := "null", "null"
		if e.Code >= 0 {
			code = fmt.Sprintf("%d", e.Code)
		}
		if e.Signal != "" {
			signal = e.Signal
		}
		msg = fmt.Sprintf("%s exited (code=%s, signal=%s)", e.Server, code, signal)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
	}
	return msg + stderrSuffix(e.Server, e.Stderr)
}

func (e *ProcessError) Unwrap() error { return e.Err }

func (e *ProcessError) Is(target error) bool {
	switch target {
	case ErrNotRunning:
		return e.Op == opSend
	case ErrProcessExited:
		return e.Op != opSend
	}
	return false
}

// stderrSuffix 将最近的 stderr 行拼接为错误消息后缀
func stderrSuffix(server string, lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return fmt.Sprintf("\nRecent %s stderr:\n%s", server, strings.Join(lines, "\n"))
}
