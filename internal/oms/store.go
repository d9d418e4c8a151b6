// Package oms 维护交易状态的内存快照：行情、订单、成交、持仓、账户、合约，以及活跃订单索引。
// 所有写入来自事件总线的分发 goroutine；读取可以来自任意 goroutine。
package oms

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/metrics"
)

var log = logrus.WithField("component", "oms")

// Store 订单管理状态
type Store struct {
	bus *events.Bus

	mu        sync.RWMutex
	ticks     *book[*domain.Tick]
	orders    *book[*domain.Order]
	trades    *book[*domain.Trade]
	positions *book[*domain.Position]
	accounts  *book[*domain.Account]
	contracts *book[*domain.Contract]

	active *ActiveOrderBook

	handlers map[string]events.Handler
}

// New 创建并向总线注册处理器
func New(bus *events.Bus) *Store {
	s := &Store{
		bus:       bus,
		ticks:     newBook[*domain.Tick](),
		orders:    newBook[*domain.Order](),
		trades:    newBook[*domain.Trade](),
		positions: newBook[*domain.Position](),
		accounts:  newBook[*domain.Account](),
		contracts: newBook[*domain.Contract](),
		active:    NewActiveOrderBook(),
	}
	s.handlers = map[string]events.Handler{
		events.EventTick:     events.Func(s.processTick),
		events.EventOrder:    events.Func(s.processOrder),
		events.EventTrade:    events.Func(s.processTrade),
		events.EventPosition: events.Func(s.processPosition),
		events.EventAccount:  events.Func(s.processAccount),
		events.EventContract: events.Func(s.processContract),
	}
	for eventType, h := range s.handlers {
		bus.Register(eventType, h)
	}
	return s
}

// Name 引擎名
func (s *Store) Name() string {
	return "oms"
}

// Close 从总线注销
func (s *Store) Close() error {
	for eventType, h := range s.handlers {
		s.bus.Unregister(eventType, h)
	}
	return nil
}

// ActiveOrderBook 活跃订单索引，可用于注册 OnNew/OnDone 回调
func (s *Store) ActiveOrderBook() *ActiveOrderBook {
	return s.active
}

func (s *Store) processTick(e events.Event) {
	tick, ok := e.Data.(*domain.Tick)
	if !ok {
		log.Warnf("tick 事件数据类型错误: %T", e.Data)
		return
	}
	s.mu.Lock()
	s.ticks.set(tick.VtSymbol(), tick)
	s.mu.Unlock()
}

func (s *Store) processOrder(e events.Event) {
	order, ok := e.Data.(*domain.Order)
	if !ok {
		log.Warnf("order 事件数据类型错误: %T", e.Data)
		return
	}
	// 订单表和活动索引在同一把锁下更新，外部读到的两者一致
	s.mu.Lock()
	s.orders.set(order.VtOrderID(), order)
	callbacks := s.active.update(order)
	s.mu.Unlock()

	for _, cb := range callbacks {
		cb(order)
	}
	metrics.OrdersActive.Set(int64(s.active.NumOfOrders()))
}

func (s *Store) processTrade(e events.Event) {
	trade, ok := e.Data.(*domain.Trade)
	if !ok {
		log.Warnf("trade 事件数据类型错误: %T", e.Data)
		return
	}
	s.mu.Lock()
	s.trades.set(trade.VtTradeID(), trade)
	s.mu.Unlock()
}

func (s *Store) processPosition(e events.Event) {
	pos, ok := e.Data.(*domain.Position)
	if !ok {
		log.Warnf("position 事件数据类型错误: %T", e.Data)
		return
	}
	s.mu.Lock()
	s.positions.set(pos.VtPositionID(), pos)
	s.mu.Unlock()
}

func (s *Store) processAccount(e events.Event) {
	acc, ok := e.Data.(*domain.Account)
	if !ok {
		log.Warnf("account 事件数据类型错误: %T", e.Data)
		return
	}
	s.mu.Lock()
	s.accounts.set(acc.VtAccountID(), acc)
	s.mu.Unlock()
}

func (s *Store) processContract(e events.Event) {
	c, ok := e.Data.(*domain.Contract)
	if !ok {
		log.Warnf("contract 事件数据类型错误: %T", e.Data)
		return
	}
	s.mu.Lock()
	s.contracts.set(c.VtSymbol(), c)
	s.mu.Unlock()
}

// Tick 按 vt_symbol 查询最新行情
func (s *Store) Tick(vtSymbol string) (*domain.Tick, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.get(vtSymbol)
}

// Order 按 vt_orderid 查询
func (s *Store) Order(vtOrderID string) (*domain.Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.get(vtOrderID)
}

// Trade 按 vt_tradeid 查询
func (s *Store) Trade(vtTradeID string) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades.get(vtTradeID)
}

// Position 按 vt_positionid 查询
func (s *Store) Position(vtPositionID string) (*domain.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions.get(vtPositionID)
}

// Account 按 vt_accountid 查询
func (s *Store) Account(vtAccountID string) (*domain.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.get(vtAccountID)
}

// Contract 按 vt_symbol 查询
func (s *Store) Contract(vtSymbol string) (*domain.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contracts.get(vtSymbol)
}

// Ticks 所有行情（按首次出现顺序）
func (s *Store) Ticks() []*domain.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks.list()
}

// Orders 所有订单
func (s *Store) Orders() []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orders.list()
}

// Trades 所有成交
func (s *Store) Trades() []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades.list()
}

// Positions 所有持仓
func (s *Store) Positions() []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.positions.list()
}

// Accounts 所有账户
func (s *Store) Accounts() []*domain.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts.list()
}

// Contracts 所有合约
func (s *Store) Contracts() []*domain.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contracts.list()
}

// ActiveOrders 活跃订单；vtSymbol 为空返回全部
func (s *Store) ActiveOrders(vtSymbol string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.Orders(vtSymbol)
}
