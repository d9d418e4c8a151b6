package events

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/metrics"
	"github.com/betbot/fxcore/pkg/queue"
	"github.com/betbot/fxcore/pkg/syncgroup"
)

const (
	// DefaultTimerInterval 定时事件默认间隔
	DefaultTimerInterval = time.Second
	// pollTimeout 分发循环出队的等待上限
	pollTimeout = time.Second
)

// Option Bus 构造选项
type Option func(*Bus)

// WithInterval 设置 EventTimer 的间隔
func WithInterval(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithCapacity 设置队列容量。0（默认）为无界；>0 时 Put 在队列满时阻塞（背压）。
func WithCapacity(n int) Option {
	return func(b *Bus) {
		b.capacity = n
	}
}

// WithLogger 替换默认 logger
func WithLogger(l *logrus.Entry) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// Bus 进程内事件总线：
// - 一个分发 goroutine 严格按 FIFO 顺序投递，同一事件的处理器按注册顺序串行调用
// - 一个定时 goroutine 每隔 interval 投递一次 EventTimer
// - 处理器 panic 会被恢复并记录，不影响其它处理器和后续事件
type Bus struct {
	interval time.Duration
	capacity int
	queue    *queue.Queue[Event]
	log      *logrus.Entry

	mu       sync.RWMutex
	handlers map[string][]Handler
	general  []Handler

	lifecycleMu sync.Mutex
	active      bool
	cancel      context.CancelFunc
	sg          *syncgroup.SyncGroup
}

// NewBus 创建事件总线（未启动）
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		interval: DefaultTimerInterval,
		log:      logrus.WithField("component", "event_bus"),
		handlers: make(map[string][]Handler),
		sg:       syncgroup.NewSyncGroup(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.queue = queue.New[Event](b.capacity)
	return b
}

// Interval 返回定时事件间隔
func (b *Bus) Interval() time.Duration {
	return b.interval
}

// Active 是否在运行
func (b *Bus) Active() bool {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	return b.active
}

// Pending 返回排队中尚未分发的事件数
func (b *Bus) Pending() int {
	return b.queue.Len()
}

// Start 启动分发与定时 goroutine，重复调用无副作用
func (b *Bus) Start() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	if b.active {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.active = true

	b.sg.Add(func() { b.run(ctx) })
	b.sg.Add(func() { b.runTimer(ctx) })
	b.sg.Run()
	b.log.Debugf("事件总线已启动 interval=%s capacity=%d", b.interval, b.capacity)
}

// Stop 停止并等待两个 goroutine 退出。正在执行的处理器会先跑完；
// 队列中剩余的事件保留（不会丢弃，也不会再分发，直到下一次 Start）。
func (b *Bus) Stop() {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()
	if !b.active {
		return
	}

	b.active = false
	b.cancel()
	b.sg.WaitAndClear()
	b.log.Debugf("事件总线已停止，剩余 %d 个事件", b.queue.Len())
}

// Put 投递事件。无界队列从不阻塞；有界队列已满时阻塞直到有空位。
// 总线未启动时也可以投递，事件会在 Start 之后分发。
func (b *Bus) Put(e Event) {
	b.queue.Put(e)
	metrics.BusEventsPut.Add(1)
}

// TryPut 非阻塞投递，有界队列已满返回 queue.ErrFull
func (b *Bus) TryPut(e Event) error {
	if err := b.queue.TryPut(e); err != nil {
		return err
	}
	metrics.BusEventsPut.Add(1)
	return nil
}

// Register 为事件类型注册处理器。同一处理器重复注册无效。
func (b *Bus) Register(eventType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	if indexOf(list, h) >= 0 {
		return
	}
	b.handlers[eventType] = append(list, h)
}

// Unregister 注销处理器，列表为空时删除该类型；未注册过则忽略。
func (b *Bus) Unregister(eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers[eventType]
	i := indexOf(list, h)
	if i < 0 {
		return
	}
	// 拷贝而不是原地删除：分发循环可能还持有旧切片的快照
	next := make([]Handler, 0, len(list)-1)
	next = append(next, list[:i]...)
	next = append(next, list[i+1:]...)
	if len(next) == 0 {
		delete(b.handlers, eventType)
		return
	}
	b.handlers[eventType] = next
}

// RegisterGeneral 注册接收所有事件的处理器，在类型处理器之后调用
func (b *Bus) RegisterGeneral(h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if indexOf(b.general, h) >= 0 {
		return
	}
	b.general = append(b.general, h)
}

// UnregisterGeneral 注销通用处理器
func (b *Bus) UnregisterGeneral(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := indexOf(b.general, h)
	if i < 0 {
		return
	}
	next := make([]Handler, 0, len(b.general)-1)
	next = append(next, b.general[:i]...)
	b.general = append(next, b.general[i+1:]...)
}

// HasHandlers 是否有该类型的处理器
func (b *Bus) HasHandlers(eventType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[eventType]
	return ok
}

// HandlerCount 返回该类型已注册的处理器数量
func (b *Bus) HandlerCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

func (b *Bus) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		e, ok := b.queue.Get(ctx, pollTimeout)
		if !ok {
			continue
		}
		b.process(e)
		_ = b.queue.TaskDone()
	}
}

func (b *Bus) runTimer(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Stop 之后无人消费，等待空位必须能被 ctx 取消
			if err := b.queue.PutContext(ctx, Event{Type: EventTimer}); err != nil {
				return
			}
			metrics.BusEventsPut.Add(1)
		}
	}
}

// process 在弹出事件时拿处理器快照，处理过程中的注册/注销从下一个事件开始生效
func (b *Bus) process(e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Type]
	general := b.general
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeHandle(h, e)
	}
	for _, h := range general {
		b.safeHandle(h, e)
	}
	metrics.BusEventsDispatched.Add(1)
}

func (b *Bus) safeHandle(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BusHandlerFaults.Add(1)
			b.log.WithFields(logrus.Fields{
				"event_type": e.Type,
				"handler":    fmt.Sprintf("%T", h),
			}).Errorf("事件处理器 panic: %v\n%s", r, debug.Stack())
		}
	}()
	h.Handle(e)
}

func indexOf(list []Handler, h Handler) int {
	for i, x := range list {
		if x == h {
			return i
		}
	}
	return -1
}
