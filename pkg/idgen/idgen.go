// Package idgen 生成本地订单号与请求 nonce：并发安全、严格递增、不重复。
package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Counter 单调递增计数器
type Counter struct {
	n atomic.Int64
}

// NewCounter 从 start 开始计数，第一次 Next 返回 start+1
func NewCounter(start int64) *Counter {
	c := &Counter{}
	c.n.Store(start)
	return c
}

// Next 返回下一个值
func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Current 返回最近一次发出的值
func (c *Counter) Current() int64 {
	return c.n.Load()
}

// TimeOrderID 生成 "20060102-150405-00000001" 形式的订单号：
// 时间前缀为生成器创建（连接）时刻，后缀为 8 位递增序号。
type TimeOrderID struct {
	prefix  string
	counter *Counter
}

// NewTimeOrderID 以当前时间作为前缀
func NewTimeOrderID() *TimeOrderID {
	return NewTimeOrderIDAt(time.Now())
}

// NewTimeOrderIDAt 以指定时间作为前缀
func NewTimeOrderIDAt(t time.Time) *TimeOrderID {
	return &TimeOrderID{
		prefix:  t.Format("20060102-150405-"),
		counter: NewCounter(0),
	}
}

// Next 下一个订单号
func (g *TimeOrderID) Next() string {
	return fmt.Sprintf("%s%08d", g.prefix, g.counter.Next())
}

// NumericOrderID 生成整数订单号：base*1_000_000 + 序号，base 一般取连接时刻 yyMMddHHmmss。
type NumericOrderID struct {
	base    int64
	counter *Counter
}

// NewNumericOrderID base 为 0 时取当前时间
func NewNumericOrderID(base int64) *NumericOrderID {
	if base == 0 {
		base = ConnectTimeBase(time.Now())
	}
	return &NumericOrderID{
		base:    base * 1_000_000,
		counter: NewCounter(0),
	}
}

// ConnectTimeBase 把时间转为 yyMMddHHmmss 整数
func ConnectTimeBase(t time.Time) int64 {
	v, _ := strconv.ParseInt(t.Format("060102150405"), 10, 64)
	return v
}

// Next 下一个订单号
func (g *NumericOrderID) Next() int64 {
	return g.base + g.counter.Next()
}

// Nonce 毫秒/微秒级时间戳 nonce，保证严格递增（同一时刻多次调用时 +1）
type Nonce struct {
	mu   sync.Mutex
	last int64
	unit time.Duration
	now  func() time.Time
}

// NewNonce unit 为 time.Microsecond 或 time.Millisecond
func NewNonce(unit time.Duration) *Nonce {
	if unit <= 0 {
		unit = time.Microsecond
	}
	return &Nonce{unit: unit, now: time.Now}
}

// Next 下一个 nonce
func (n *Nonce) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := n.now().UnixNano() / int64(n.unit)
	if v <= n.last {
		v = n.last + 1
	}
	n.last = v
	return v
}
