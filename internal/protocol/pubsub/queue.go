package pubsub

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ============================================================================
//                              有界消息处理队列
// ============================================================================

// messageQueue 消息处理队列
//
// 最多 concurrency 个任务同时执行，最多 size 个任务排队；
// 队列满时 Submit 阻塞，形成对读循环的背压。
type messageQueue struct {
	sem   *semaphore.Weighted
	tasks chan func()

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	inFlight    atomic.Int64
	maxInFlight atomic.Int64

	// onInFlight 在途任务数变化时回调
	onInFlight func(n int64)
}

func newMessageQueue(concurrency, size int, onInFlight func(n int64)) *messageQueue {
	ctx, cancel := context.WithCancel(context.Background())
	if onInFlight == nil {
		onInFlight = func(int64) {}
	}
	q := &messageQueue{
		sem:        semaphore.NewWeighted(int64(concurrency)),
		tasks:      make(chan func(), size),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		onInFlight: onInFlight,
	}
	go q.dispatch()
	return q
}

// Submit 提交任务，队列满时阻塞
func (q *messageQueue) Submit(ctx context.Context, task func()) error {
	if q.ctx.Err() != nil {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.ctx.Done():
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *messageQueue) dispatch() {
	defer close(q.done)
	for {
		var task func()
		select {
		case task = <-q.tasks:
		case <-q.ctx.Done():
			return
		}

		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			return
		}
		q.wg.Add(1)
		q.track(q.inFlight.Add(1))

		go func() {
			defer func() {
				q.track(q.inFlight.Add(-1))
				q.sem.Release(1)
				q.wg.Done()
			}()
			task()
		}()
	}
}

func (q *messageQueue) track(n int64) {
	for {
		peak := q.maxInFlight.Load()
		if n <= peak || q.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	q.onInFlight(n)
}

// InFlight 正在执行的任务数
func (q *messageQueue) InFlight() int64 {
	return q.inFlight.Load()
}

// MaxInFlight 观测到的最大并发任务数
func (q *messageQueue) MaxInFlight() int64 {
	return q.maxInFlight.Load()
}

// Close 停止接收任务，排队中的任务丢弃，等待执行中的任务结束
//
// 执行中的任务不会被强制取消，等待时间受 ctx 限制。
func (q *messageQueue) Close(ctx context.Context) error {
	q.cancel()
	<-q.done

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
