package lsp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/luhmann/kotlinlsp/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry 工作区根目录到 Session 的映射
//
// 同一个规范化后的根目录只会有一个 Session，因此也只会有一个子进程。
// 不同根目录的会话互不影响，可以并发执行。
type Registry struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry 创建注册表
func NewRegistry(opts Options, logger *zap.Logger, collector *metrics.Collector) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		opts:     opts.withDefaults(),
		logger:   logger,
		metrics:  collector,
		sessions: make(map[string]*Session),
	}
}

// NormalizeRoot 将根目录转换为干净的绝对路径
func NormalizeRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root %q: %w", root, err)
	}
	return filepath.Clean(abs), nil
}

// Client 返回根目录对应的会话，不存在时创建
func (r *Registry) Client(root string) (*Session, error) {
	key, err := NormalizeRoot(root)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if s, ok := r.sessions[key]; ok {
		return s, nil
	}

	s := NewSession(key, r.opts, r.logger, r.metrics)
	r.sessions[key] = s
	r.metrics.SetActiveClients(len(r.sessions))
	r.logger.Debug("created workspace client", zap.String("workspace", key))
	return s, nil
}

// Diagnose 在 root 对应的会话上执行诊断
func (r *Registry) Diagnose(ctx context.Context, root, filePath, text string) ([]Diagnostic, error) {
	s, err := r.Client(root)
	if err != nil {
		return nil, err
	}
	return s.Diagnose(ctx, filePath, text)
}

// StopAll 关闭所有会话并清空注册表，之后仍可创建新会话
//
// 被移除的会话随即失效，持有旧 *Session 的调用方会得到 ErrDetached。
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		s.detach()
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.metrics.SetActiveClients(0)
	r.mu.Unlock()

	return r.dispose(ctx, sessions)
}

// Restart 关闭所有会话，下一次访问时重新拉起
func (r *Registry) Restart(ctx context.Context) (int, error) {
	r.mu.Lock()
	n := len(r.sessions)
	r.mu.Unlock()

	if err := r.StopAll(ctx); err != nil {
		return n, err
	}
	r.logger.Info("workspace clients restarted", zap.Int("count", n))
	return n, nil
}

// Close 关闭所有会话并拒绝后续 Client 调用
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return r.StopAll(ctx)
}

func (r *Registry) dispose(ctx context.Context, sessions []*Session) error {
	if len(sessions) == 0 {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		g.Go(func() error {
			return s.Dispose(ctx)
		})
	}
	return g.Wait()
}

// Status 返回每个会话的一行状态，按根目录排序
func (r *Registry) Status() []string {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Root() < sessions[j].Root() })
	lines := make([]string, 0, len(sessions))
	for _, s := range sessions {
		lines = append(lines, s.Status())
	}
	return lines
}

// Len 返回会话数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
