package lsp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpQueue_FIFO(t *testing.T) {
	var q opQueue
	var (
		mu    sync.Mutex
		order []int
	)

	first, err := q.acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runExclusive(context.Background(), &q, func(context.Context) (struct{}, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
		// 等待 goroutine 入队后再提交下一个
		time.Sleep(10 * time.Millisecond)
	}

	first()
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, order)
}

func TestOpQueue_FailureDoesNotBlock(t *testing.T) {
	var q opQueue
	boom := errors.New("boom")

	_, err := runExclusive(context.Background(), &q, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := runExclusive(context.Background(), &q, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestOpQueue_MutualExclusion(t *testing.T) {
	var q opQueue
	var active, maxActive int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runExclusive(context.Background(), &q, func(context.Context) (struct{}, error) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return struct{}{}, nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestOpQueue_CanceledWaiterKeepsChain(t *testing.T) {
	var q opQueue

	hold, err := q.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = q.acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	done := make(chan struct{})
	go func() {
		release, err := q.acquire(context.Background())
		if err == nil {
			release()
		}
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("third operation ran before the first released")
	case <-time.After(20 * time.Millisecond):
	}

	hold()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queue stalled after canceled waiter")
	}
}

func TestOpQueue_CanceledWhileWaiting(t *testing.T) {
	var q opQueue

	hold, err := q.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	_, err = runExclusive(ctx, &q, func(context.Context) (struct{}, error) {
		ran = true
		return struct{}{}, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	hold()
	got, err := runExclusive(context.Background(), &q, func(context.Context) (string, error) {
		return "next", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "next", got)
}
