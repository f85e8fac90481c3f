package lsp

import (
	"bytes"
	"strings"
	"sync"
)

// 默认 stderr 环形缓冲参数
const (
	DefaultStderrCapacity = 40
	DefaultStderrTail     = 8
)

// DefaultStderrIgnorePrefixes JVM 启动时打印的噪声行
var DefaultStderrIgnorePrefixes = []string{"WARNING: package "}

// StderrRing 保存子进程最近的 stderr 行
//
// 实现 io.Writer，可直接作为 exec.Cmd.Stderr。行首尾空白会被去除，
// 空行和匹配忽略前缀的行不会入队。超过容量时丢弃最旧的行。
type StderrRing struct {
	mu       sync.Mutex
	capacity int
	ignore   []string
	lines    []string
	partial  []byte
}

// NewStderrRing 创建环形缓冲，capacity <= 0 时使用默认容量
func NewStderrRing(capacity int, ignorePrefixes []string) *StderrRing {
	if capacity <= 0 {
		capacity = DefaultStderrCapacity
	}
	return &StderrRing{
		capacity: capacity,
		ignore:   append([]string(nil), ignorePrefixes...),
		lines:    make([]string, 0, capacity),
	}
}

// Write 追加一块 stderr 输出，未以换行结尾的部分缓存到下一次写入
func (r *StderrRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.partial = append(r.partial, p...)
	for {
		idx := bytes.IndexByte(r.partial, '\n')
		if idx < 0 {
			break
		}
		r.pushLocked(string(r.partial[:idx]))
		r.partial = r.partial[idx+1:]
	}
	if len(r.partial) == 0 {
		r.partial = nil
	}
	return len(p), nil
}

// Push 直接追加一行
func (r *StderrRing) Push(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(line)
}

// Flush 将缓存的半行作为完整一行入队，进程退出时调用
func (r *StderrRing) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.partial) > 0 {
		r.pushLocked(string(r.partial))
		r.partial = nil
	}
}

func (r *StderrRing) pushLocked(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	for _, prefix := range r.ignore {
		if strings.HasPrefix(trimmed, prefix) {
			return
		}
	}
	if len(r.lines) == r.capacity {
		copy(r.lines, r.lines[1:])
		r.lines = r.lines[:r.capacity-1]
	}
	r.lines = append(r.lines, trimmed)
}

// Lines 返回全部缓存行的副本
func (r *StderrRing) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Tail 返回最近 n 行
func (r *StderrRing) Tail(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || len(r.lines) == 0 {
		return nil
	}
	if n > len(r.lines) {
		n = len(r.lines)
	}
	return append([]string(nil), r.lines[len(r.lines)-n:]...)
}

// Len 返回当前行数
func (r *StderrRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}
