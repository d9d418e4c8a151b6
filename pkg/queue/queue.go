// Package queue 提供线程安全的 FIFO 队列：支持带超时的出队、可选容量上限（背压）以及任务计数 Join。
// 事件总线与 REST 请求分发器共用这一实现。
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull 有界队列已满（TryPut）
	ErrFull = errors.New("queue: full")
	// ErrTaskDone TaskDone 调用次数超过入队次数
	ErrTaskDone = errors.New("queue: task_done called too many times")
)

// Queue 是一个泛型 FIFO 队列。capacity <= 0 表示无界。
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int

	notEmpty *signal
	notFull  *signal

	unfinished int
	allDone    *sync.Cond
}

// New 创建队列
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue[T]{
		capacity: capacity,
		notEmpty: newSignal(),
		notFull:  newSignal(),
	}
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// Capacity 返回容量上限（0 表示无界）
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Len 返回当前排队的元素个数
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished 返回已入队但尚未 TaskDone 的任务数
func (q *Queue[T]) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// Put 入队。无界队列从不阻塞；有界队列满时阻塞直到有空位。
func (q *Queue[T]) Put(item T) {
	_ = q.PutContext(context.Background(), item)
}

// PutContext 同 Put，但有界队列等待空位时可被 ctx 取消。
func (q *Queue[T]) PutContext(ctx context.Context, item T) error {
	for {
		if q.tryPut(item) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notFull.wait():
		}
	}
}

// TryPut 非阻塞入队，有界队列已满时返回 ErrFull。
func (q *Queue[T]) TryPut(item T) error {
	if !q.tryPut(item) {
		return ErrFull
	}
	return nil
}

func (q *Queue[T]) tryPut(item T) bool {
	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, item)
	q.unfinished++
	free := q.capacity == 0 || len(q.items) < q.capacity
	q.mu.Unlock()

	q.notEmpty.emit()
	if free {
		// 可能还有其它生产者在等待空位
		q.notFull.emit()
	}
	return true
}

// Get 出队。队列为空时最多等待 timeout；超时或 ctx 取消返回 false。
// timeout <= 0 表示不等待。
func (q *Queue[T]) Get(ctx context.Context, timeout time.Duration) (T, bool) {
	if item, ok := q.pop(); ok {
		return item, true
	}

	var zero T
	if timeout <= 0 {
		return zero, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return zero, false
		case <-timer.C:
			return q.pop()
		case <-q.notEmpty.wait():
			if item, ok := q.pop(); ok {
				return item, true
			}
		}
	}
}

func (q *Queue[T]) pop() (T, bool) {
	var zero T

	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	remaining := len(q.items)
	q.mu.Unlock()

	// 信号是合并的，剩余元素需要再唤醒下一个消费者
	if remaining > 0 {
		q.notEmpty.emit()
	}
	q.notFull.emit()
	return item, true
}

// TaskDone 标记一个已出队任务处理完毕
func (q *Queue[T]) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= 0 {
		return ErrTaskDone
	}
	q.unfinished--
	if q.unfinished == 0 {
		q.allDone.Broadcast()
	}
	return nil
}

// Join 阻塞直到所有入队任务都被 TaskDone
func (q *Queue[T]) Join() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.unfinished > 0 {
		q.allDone.Wait()
	}
}
