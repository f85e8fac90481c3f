// Package mocks 提供 kotlin-lsp 客户端注册表的 Mock 实现
package mocks

import (
	"context"
	"sync"

	"github.com/luhmann/kotlinlsp/lsp"
)

// DiagnoseCall 记录一次 Diagnose 调用
type DiagnoseCall struct {
	Root     string
	FilePath string
	Text     string
}

// MockClients 模拟 lsp.Registry 的公开操作
//
// 零值可用：Diagnose 返回空列表，Status 返回空，Restart 返回 0。
type MockClients struct {
	mu sync.Mutex

	diagnostics []lsp.Diagnostic
	diagnoseErr error
	status      []string
	restarted   int
	restartErr  error

	calls    []DiagnoseCall
	restarts int
}

// NewMockClients 创建 MockClients
func NewMockClients() *MockClients {
	return &MockClients{}
}

// WithDiagnostics 设置 Diagnose 返回的诊断
func (m *MockClients) WithDiagnostics(diags ...lsp.Diagnostic) *MockClients {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnostics = diags
	return m
}

// WithDiagnoseError 设置 Diagnose 返回的错误
func (m *MockClients) WithDiagnoseError(err error) *MockClients {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.diagnoseErr = err
	return m
}

// WithStatus 设置 Status 返回的行
func (m *MockClients) WithStatus(lines ...string) *MockClients {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = lines
	return m
}

// WithRestart 设置 Restart 的返回值
func (m *MockClients) WithRestart(n int, err error) *MockClients {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarted, m.restartErr = n, err
	return m
}

// Diagnose 记录调用并返回预设结果
func (m *MockClients) Diagnose(ctx context.Context, root, filePath, text string) ([]lsp.Diagnostic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, DiagnoseCall{Root: root, FilePath: filePath, Text: text})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.diagnoseErr != nil {
		return nil, m.diagnoseErr
	}
	return append([]lsp.Diagnostic(nil), m.diagnostics...), nil
}

// Status 返回预设状态行
func (m *MockClients) Status() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.status...)
}

// Restart 记录调用并返回预设结果
func (m *MockClients) Restart(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	return m.restarted, m.restartErr
}

// Calls 返回全部 Diagnose 调用
func (m *MockClients) Calls() []DiagnoseCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DiagnoseCall(nil), m.calls...)
}

// Restarts 返回 Restart 调用次数
func (m *MockClients) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarts
}
