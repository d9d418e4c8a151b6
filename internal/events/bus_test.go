package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder 收集处理器调用，用于断言顺序
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 5*time.Millisecond)
}

func TestBus_RegistrationOrder(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	h1 := Func(func(e Event) { rec.add("h1:" + e.Data.(string)) })
	h2 := Func(func(e Event) { rec.add("h2:" + e.Data.(string)) })
	bus.Register("X", h1)
	bus.Register("X", h2)

	bus.Start()
	defer bus.Stop()

	bus.Put(New("X", "a"))
	bus.Put(New("X", "b"))

	waitFor(t, func() bool { return len(rec.snapshot()) == 4 })
	assert.Equal(t, []string{"h1:a", "h2:a", "h1:b", "h2:b"}, rec.snapshot())
}

func TestBus_RegisterIsIdempotent(t *testing.T) {
	bus := NewBus()
	h := Func(func(Event) {})

	bus.Register("X", h)
	bus.Register("X", h)
	assert.Equal(t, 1, bus.HandlerCount("X"))

	bus.Unregister("X", h)
	assert.False(t, bus.HasHandlers("X"))

	// 再次注销不报错
	bus.Unregister("X", h)
	bus.Unregister("Y", h)
}

func TestBus_UnregisterKeepsOthers(t *testing.T) {
	bus := NewBus()
	h1 := Func(func(Event) {})
	h2 := Func(func(Event) {})
	bus.Register("X", h1)
	bus.Register("X", h2)

	bus.Unregister("X", h1)
	assert.True(t, bus.HasHandlers("X"))
	assert.Equal(t, 1, bus.HandlerCount("X"))
}

func TestBus_HandlerPanicIsIsolated(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	bus.Register("X", Func(func(Event) { panic("boom") }))
	bus.Register("X", Func(func(e Event) { rec.add(e.Data.(string)) }))

	bus.Start()
	defer bus.Stop()

	bus.Put(New("X", "first"))
	bus.Put(New("X", "second"))

	waitFor(t, func() bool { return len(rec.snapshot()) == 2 })
	assert.Equal(t, []string{"first", "second"}, rec.snapshot())
}

func TestBus_PerProducerFIFO(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))

	var mu sync.Mutex
	got := map[int][]int{}
	bus.Register("X", Func(func(e Event) {
		v := e.Data.([2]int)
		mu.Lock()
		got[v[0]] = append(got[v[0]], v[1])
		mu.Unlock()
	}))

	bus.Start()
	defer bus.Stop()

	const producers, perProducer = 4, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				bus.Put(New("X", [2]int{p, i}))
			}
		}(p)
	}
	wg.Wait()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		total := 0
		for _, v := range got {
			total += len(v)
		}
		return total == producers*perProducer
	})

	mu.Lock()
	defer mu.Unlock()
	for p := 0; p < producers; p++ {
		for i, v := range got[p] {
			require.Equal(t, i, v, "producer %d out of order", p)
		}
	}
}

func TestBus_TimerEvents(t *testing.T) {
	bus := NewBus(WithInterval(20 * time.Millisecond))

	var mu sync.Mutex
	count := 0
	bus.Register(EventTimer, Func(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	bus.Start()
	time.Sleep(150 * time.Millisecond)
	bus.Stop()

	mu.Lock()
	n := count
	mu.Unlock()
	assert.GreaterOrEqual(t, n, 3)

	// 停止后不再产生定时事件
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, n, count)
	mu.Unlock()
}

func TestBus_StopJoinsAndIsIdempotent(t *testing.T) {
	bus := NewBus()
	bus.Stop() // 未启动时无效

	bus.Start()
	bus.Start()
	assert.True(t, bus.Active())

	done := make(chan struct{})
	go func() {
		bus.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.False(t, bus.Active())
	bus.Stop()
}

func TestBus_PutBeforeStart(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}
	bus.Register("X", Func(func(e Event) { rec.add(e.Data.(string)) }))

	bus.Put(New("X", "early"))
	assert.Equal(t, 1, bus.Pending())

	bus.Start()
	defer bus.Stop()
	waitFor(t, func() bool { return len(rec.snapshot()) == 1 })
}

func TestBus_GeneralHandlersRunAfterTyped(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	general := Func(func(e Event) { rec.add("general:" + e.Type) })
	bus.RegisterGeneral(general)
	bus.RegisterGeneral(general)
	bus.Register("X", Func(func(Event) { rec.add("typed") }))

	bus.Start()
	defer bus.Stop()

	bus.Put(New("X", nil))
	bus.Put(New("Y", nil))

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	assert.Equal(t, []string{"typed", "general:X", "general:Y"}, rec.snapshot())

	bus.UnregisterGeneral(general)
	bus.Put(New("Y", nil))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 3)
}

func TestBus_TargetedSubscription(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	bus.Register(EventTick, Func(func(Event) { rec.add("all") }))
	bus.Register(EventTick+"btcusdt.HUOBI", Func(func(Event) { rec.add("btc") }))

	bus.Start()
	defer bus.Stop()

	// 网关先发基础类型，再发带 key 的类型
	bus.Put(New(EventTick, nil))
	bus.Put(New(EventTick+"btcusdt.HUOBI", nil))
	bus.Put(New(EventTick, nil))
	bus.Put(New(EventTick+"ethusdt.HUOBI", nil))

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"all", "btc", "all"}, rec.snapshot())
}

func TestBus_RegisterDuringDispatch(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	late := Func(func(e Event) { rec.add("late:" + e.Data.(string)) })
	var once sync.Once
	bus.Register("X", Func(func(e Event) {
		rec.add("first:" + e.Data.(string))
		once.Do(func() { bus.Register("X", late) })
	}))

	bus.Start()
	defer bus.Stop()

	bus.Put(New("X", "a"))
	bus.Put(New("X", "b"))

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	assert.Equal(t, []string{"first:a", "first:b", "late:b"}, rec.snapshot())
}

func TestBus_BoundedTryPut(t *testing.T) {
	bus := NewBus(WithCapacity(1))
	require.NoError(t, bus.TryPut(New("X", nil)))
	assert.Error(t, bus.TryPut(New("X", nil)))
}

func TestBus_UnregisterDuringDispatch(t *testing.T) {
	bus := NewBus(WithInterval(time.Hour))
	rec := &recorder{}

	second := Func(func(e Event) { rec.add("second:" + e.Data.(string)) })
	var once sync.Once
	bus.Register("X", Func(func(e Event) {
		rec.add("first:" + e.Data.(string))
		once.Do(func() { bus.Unregister("X", second) })
	}))
	bus.Register("X", second)

	bus.Start()
	defer bus.Stop()

	bus.Put(New("X", "a"))
	bus.Put(New("X", "b"))

	waitFor(t, func() bool { return len(rec.snapshot()) == 3 })
	// 当前事件仍投递给已注销的处理器，下一个事件不再投递
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"first:a", "second:a", "first:b"}, rec.snapshot())
}

func TestBus_StopWithFullBoundedQueue(t *testing.T) {
	bus := NewBus(WithCapacity(1), WithInterval(5*time.Millisecond))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	bus.Register("X", Func(func(Event) {
		once.Do(func() { close(started) })
		<-release
	}))

	bus.Start()
	bus.Put(New("X", nil))
	<-started
	// 处理器阻塞期间定时事件把队列填满
	waitFor(t, func() bool { return bus.Pending() == 1 })
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		bus.Stop()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("Stop did not return, pending=%d", bus.Pending())
	}
	assert.False(t, bus.Active())
}
