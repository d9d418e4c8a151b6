package oms

import (
	"sync"

	"github.com/betbot/fxcore/internal/domain"
)

// ActiveOrderBook 活跃订单索引：订单状态为提交中/未成交/部分成交时在册，
// 进入终态（全部成交/撤销/拒单）时移除。key 为 vt_orderid，保留插入顺序。
type ActiveOrderBook struct {
	mu     sync.RWMutex
	orders *book[*domain.Order]

	newCallbacks  []func(order *domain.Order)
	doneCallbacks []func(order *domain.Order)
}

// NewActiveOrderBook 创建活跃订单簿
func NewActiveOrderBook() *ActiveOrderBook {
	return &ActiveOrderBook{
		orders: newBook[*domain.Order](),
	}
}

// OnNew 订单首次进入活跃索引时回调
func (b *ActiveOrderBook) OnNew(cb func(order *domain.Order)) {
	b.mu.Lock()
	b.newCallbacks = append(b.newCallbacks, cb)
	b.mu.Unlock()
}

// OnDone 订单离开活跃索引（进入终态）时回调
func (b *ActiveOrderBook) OnDone(cb func(order *domain.Order)) {
	b.mu.Lock()
	b.doneCallbacks = append(b.doneCallbacks, cb)
	b.mu.Unlock()
}

// Sync 按订单最新状态维护索引
func (b *ActiveOrderBook) Sync(order *domain.Order) {
	// 回调在锁外执行
	for _, cb := range b.update(order) {
		cb(order)
	}
}

// update 更新索引，返回需要触发的回调
func (b *ActiveOrderBook) update(order *domain.Order) []func(*domain.Order) {
	key := order.VtOrderID()

	b.mu.Lock()
	defer b.mu.Unlock()
	_, existed := b.orders.get(key)
	if order.IsActive() {
		b.orders.set(key, order)
		if !existed {
			return b.newCallbacks
		}
	} else if existed {
		b.orders.delete(key)
		return b.doneCallbacks
	}
	return nil
}

// Get 按 vt_orderid 查询
func (b *ActiveOrderBook) Get(vtOrderID string) (*domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orders.get(vtOrderID)
}

// Exists 是否在册
func (b *ActiveOrderBook) Exists(vtOrderID string) bool {
	_, ok := b.Get(vtOrderID)
	return ok
}

// NumOfOrders 活跃订单数
func (b *ActiveOrderBook) NumOfOrders() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orders.len()
}

// Orders 活跃订单快照；vtSymbol 非空时只返回该合约的订单
func (b *ActiveOrderBook) Orders(vtSymbol string) []*domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	all := b.orders.list()
	if vtSymbol == "" {
		return all
	}
	out := make([]*domain.Order, 0, len(all))
	for _, o := range all {
		if o.VtSymbol() == vtSymbol {
			out = append(out, o)
		}
	}
	return out
}
