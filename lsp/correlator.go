package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/luhmann/kotlinlsp/internal/metrics"
)

// DefaultRequestTimeout 普通请求的默认超时
const DefaultRequestTimeout = 120 * time.Second

// Correlator 分配请求 ID 并跟踪未完成请求
//
// ID 从 1 开始单调递增，同一个 Correlator 内永不复用。每个 PendingRequest
// 只会被结算一次：响应、超时、取消或进程退出，先到者生效。
type Correlator struct {
	server  string
	tail    func() []string
	metrics *metrics.Collector

	mu      sync.Mutex
	nextID  int64
	pending map[int64]*PendingRequest
}

// NewCorrelator 创建关联器，tail 用于在错误中附带最近的 stderr
func NewCorrelator(server string, tail func() []string, collector *metrics.Collector) *Correlator {
	if tail == nil {
		tail = func() []string { return nil }
	}
	return &Correlator{
		server:  server,
		tail:    tail,
		metrics: collector,
		nextID:  1,
		pending: make(map[int64]*PendingRequest),
	}
}

type settlement struct {
	result json.RawMessage
	err    error
}

// PendingRequest 一个等待响应的请求
type PendingRequest struct {
	c       *Correlator
	id      int64
	method  string
	gen     uint64
	started time.Time
	timer   *time.Timer
	ch      chan settlement
}

// Begin 登记一个新请求并启动超时计时，必须在写出请求之前调用
func (c *Correlator) Begin(method string, timeout time.Duration, gen uint64) *PendingRequest {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	p := &PendingRequest{
		c:       c,
		id:      id,
		method:  method,
		gen:     gen,
		started: time.Now(),
		ch:      make(chan settlement, 1),
	}
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.settle(id, settlement{err: &TimeoutError{
			Server:  c.server,
			Method:  method,
			Timeout: timeout,
			Stderr:  c.tail(),
		}})
	})
	c.mu.Unlock()

	return p
}

// settle 从表中移除并投递结果，只有移除成功的调用方才会投递
func (c *Correlator) settle(id int64, s settlement) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	p.deliver(s)
	return true
}

func (p *PendingRequest) deliver(s settlement) {
	p.timer.Stop()
	p.c.metrics.RecordRequest(p.method, settlementStatus(s.err), time.Since(p.started))
	p.ch <- s
}

// Resolve 按 id 匹配响应，没有对应的未完成请求时返回 false
//
// 既没有 result 也没有 error 的响应按 null 结果处理。
func (c *Correlator) Resolve(msg *Message) bool {
	id, ok := msg.IntID()
	if !ok {
		return false
	}

	c.mu.Lock()
	p, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return false
	}

	if msg.Error != nil {
		return c.settle(id, settlement{err: &ResponseError{
			Server: c.server,
			Method: p.method,
			Err:    msg.Error,
			Stderr: c.tail(),
		}})
	}
	return c.settle(id, settlement{result: msg.Result})
}

// Fail 以指定错误结算请求
func (c *Correlator) Fail(id int64, err error) bool {
	return c.settle(id, settlement{err: err})
}

// RejectAll 以同一错误拒绝所有未完成请求，返回被拒绝的数量
func (c *Correlator) RejectAll(err error) int {
	return c.reject(func(*PendingRequest) bool { return true }, err)
}

// RejectGeneration 拒绝发往指定进程代数的请求
func (c *Correlator) RejectGeneration(gen uint64, err error) int {
	return c.reject(func(p *PendingRequest) bool { return p.gen == gen }, err)
}

func (c *Correlator) reject(match func(*PendingRequest) bool, err error) int {
	c.mu.Lock()
	var rejected []*PendingRequest
	for id, p := range c.pending {
		if match(p) {
			delete(c.pending, id)
			rejected = append(rejected, p)
		}
	}
	c.mu.Unlock()

	for _, p := range rejected {
		p.deliver(settlement{err: err})
	}
	return len(rejected)
}

// Len 返回未完成请求数
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ID 请求 id
func (p *PendingRequest) ID() int64 { return p.id }

// Method 请求方法名
func (p *PendingRequest) Method() string { return p.method }

// Wait 等待结算，ctx 结束时以 ctx.Err() 结算并移除该请求
func (p *PendingRequest) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case s := <-p.ch:
		return s.result, s.err
	case <-ctx.Done():
		p.c.Fail(p.id, ctx.Err())
		s := <-p.ch
		return s.result, s.err
	}
}

func settlementStatus(err error) string {
	var (
		respErr *ResponseError
		procErr *ProcessError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &respErr):
		return "error"
	case errors.As(err, &procErr):
		return "exited"
	case errors.Is(err, ErrShuttingDown):
		return "shutting_down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "failed"
	}
}
