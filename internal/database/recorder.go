package database

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/metrics"
	"github.com/betbot/fxcore/pkg/queue"
)

// RecorderOptions 录制选项
type RecorderOptions struct {
	RecordTicks bool
	RecordBars  bool
	// BatchSize 单次写库的最大条数，默认 100
	BatchSize int
}

type record struct {
	tick *domain.Tick
	bar  *domain.Bar
}

// Recorder 订阅总线上的 Tick/Bar 并批量写入数据库。
// 处理器只负责入队，写库在 Recorder 自己的 goroutine 里完成。
type Recorder struct {
	db   Manager
	bus  *events.Bus
	opts RecorderOptions
	log  *logrus.Entry

	queue       *queue.Queue[record]
	tickHandler events.Handler
	barHandler  events.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRecorder 创建录制器，Start 之后才注册处理器
func NewRecorder(db Manager, bus *events.Bus, opts RecorderOptions) *Recorder {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	r := &Recorder{
		db:    db,
		bus:   bus,
		opts:  opts,
		log:   logrus.WithField("component", "recorder"),
		queue: queue.New[record](0),
	}
	r.tickHandler = events.Func(r.onTick)
	r.barHandler = events.Func(r.onBar)
	return r
}

// Start 注册处理器并启动写库 goroutine；重复调用无副作用
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)

	if r.opts.RecordTicks {
		r.bus.Register(events.EventTick, r.tickHandler)
	}
	if r.opts.RecordBars {
		r.bus.Register(events.EventBar, r.barHandler)
	}
	r.log.Infof("行情录制已启动 ticks=%v bars=%v batch=%d", r.opts.RecordTicks, r.opts.RecordBars, r.opts.BatchSize)
}

// Stop 注销处理器，写完队列中剩余的数据后返回
func (r *Recorder) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}

	r.bus.Unregister(events.EventTick, r.tickHandler)
	r.bus.Unregister(events.EventBar, r.barHandler)
	cancel()
	<-done
}

// Name 引擎名
func (r *Recorder) Name() string {
	return "recorder"
}

// Close 同 Stop
func (r *Recorder) Close() error {
	r.Stop()
	return nil
}

// Pending 尚未写库的记录数
func (r *Recorder) Pending() int {
	return r.queue.Len()
}

func (r *Recorder) onTick(e events.Event) {
	if tick, ok := e.Data.(*domain.Tick); ok {
		// 网关可能复用 tick 对象，入队副本
		cp := *tick
		r.queue.Put(record{tick: &cp})
	}
}

func (r *Recorder) onBar(e events.Event) {
	if bar, ok := e.Data.(*domain.Bar); ok {
		cp := *bar
		r.queue.Put(record{bar: &cp})
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	for {
		first, ok := r.queue.Get(ctx, time.Second)
		if !ok {
			if ctx.Err() != nil {
				r.flushRemaining()
				return
			}
			continue
		}
		batch := []record{first}
		for len(batch) < r.opts.BatchSize {
			next, ok := r.queue.Get(ctx, 0)
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		r.write(batch)
	}
}

func (r *Recorder) flushRemaining() {
	for {
		var batch []record
		for len(batch) < r.opts.BatchSize {
			next, ok := r.queue.Get(context.Background(), 0)
			if !ok {
				break
			}
			batch = append(batch, next)
		}
		if len(batch) == 0 {
			return
		}
		r.write(batch)
	}
}

func (r *Recorder) write(batch []record) {
	var ticks []*domain.Tick
	var bars []*domain.Bar
	for _, rec := range batch {
		if rec.tick != nil {
			ticks = append(ticks, rec.tick)
		}
		if rec.bar != nil {
			bars = append(bars, rec.bar)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.db.SaveTicks(ctx, ticks); err != nil {
		metrics.RecorderErrors.Add(1)
		r.log.Errorf("写入 %d 条 tick 失败: %v", len(ticks), err)
	} else {
		metrics.RecorderWrites.Add(int64(len(ticks)))
	}
	if err := r.db.SaveBars(ctx, bars); err != nil {
		metrics.RecorderErrors.Add(1)
		r.log.Errorf("写入 %d 根 K 线失败: %v", len(bars), err)
	} else {
		metrics.RecorderWrites.Add(int64(len(bars)))
	}

	for range batch {
		_ = r.queue.TaskDone()
	}
}
