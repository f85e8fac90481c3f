package lsp

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// opQueue FIFO 单槽队列
//
// 基于权重为 1 的 semaphore：等待者按 Acquire 顺序获得执行权，ctx 结束的
// 等待者直接出队。前一个操作成功或失败都会释放，失败不会阻塞后续操作。
// 零值可用。
type opQueue struct {
	once sync.Once
	sem  *semaphore.Weighted
}

func (q *opQueue) weighted() *semaphore.Weighted {
	q.once.Do(func() { q.sem = semaphore.NewWeighted(1) })
	return q.sem
}

// acquire 排队等待轮到自己，返回的 release 必须调用
func (q *opQueue) acquire(ctx context.Context) (release func(), err error) {
	sem := q.weighted()
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return sync.OnceFunc(func() { sem.Release(1) }), nil
}

// runExclusive 在队列中执行 fn
func runExclusive[T any](ctx context.Context, q *opQueue, fn func(context.Context) (T, error)) (T, error) {
	release, err := q.acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}
