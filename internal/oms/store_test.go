package oms

import (
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
)

func newStore(t *testing.T) (*Store, *events.Bus) {
	t.Helper()
	bus := events.NewBus(events.WithInterval(time.Hour))
	store := New(bus)
	bus.Start()
	t.Cleanup(bus.Stop)
	return store, bus
}

// drain 投递一个哨兵事件并等待它被处理，保证之前的事件都已分发
func drain(t *testing.T, bus *events.Bus) {
	t.Helper()
	done := make(chan struct{})
	h := events.Func(func(events.Event) { close(done) })
	bus.Register("test.drain", h)
	defer bus.Unregister("test.drain", h)

	bus.Put(events.New("test.drain", nil))
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("bus did not drain")
	}
}

func order(id string, status domain.Status) *domain.Order {
	return &domain.Order{
		GatewayName: "HUOBI",
		Symbol:      "btcusdt",
		Exchange:    domain.ExchangeHuobi,
		OrderID:     id,
		Price:       decimal.NewFromInt(8000),
		Volume:      decimal.NewFromInt(1),
		Status:      status,
	}
}

func TestStore_OrderLifecycle(t *testing.T) {
	store, bus := newStore(t)

	bus.Put(events.New(events.EventOrder, order("A", domain.StatusNotTraded)))
	drain(t, bus)

	got, ok := store.Order("HUOBI.A")
	require.True(t, ok)
	assert.Equal(t, domain.StatusNotTraded, got.Status)
	assert.Len(t, store.ActiveOrders(""), 1)

	bus.Put(events.New(events.EventOrder, order("A", domain.StatusAllTraded)))
	drain(t, bus)

	got, ok = store.Order("HUOBI.A")
	require.True(t, ok)
	assert.Equal(t, domain.StatusAllTraded, got.Status)
	assert.Empty(t, store.ActiveOrders(""))
	assert.Len(t, store.Orders(), 1)
}

func TestStore_ActiveIndexMatchesPredicate(t *testing.T) {
	store, bus := newStore(t)

	statuses := []domain.Status{
		domain.StatusSubmitting,
		domain.StatusNotTraded,
		domain.StatusPartTraded,
		domain.StatusAllTraded,
		domain.StatusCancelled,
		domain.StatusRejected,
	}
	for i, s := range statuses {
		bus.Put(events.New(events.EventOrder, order(string(rune('a'+i)), s)))
	}
	drain(t, bus)

	active := store.ActiveOrders("")
	require.Len(t, active, 3)
	for _, o := range store.Orders() {
		_, inIndex := store.ActiveOrderBook().Get(o.VtOrderID())
		assert.Equal(t, o.IsActive(), inIndex, o.VtOrderID())
	}
}

func TestStore_ActiveOrdersSymbolFilter(t *testing.T) {
	store, bus := newStore(t)

	btc := order("1", domain.StatusNotTraded)
	eth := order("2", domain.StatusNotTraded)
	eth.Symbol = "ethusdt"
	bus.Put(events.New(events.EventOrder, btc))
	bus.Put(events.New(events.EventOrder, eth))
	drain(t, bus)

	assert.Len(t, store.ActiveOrders(""), 2)
	only := store.ActiveOrders("ethusdt.HUOBI")
	require.Len(t, only, 1)
	assert.Equal(t, "HUOBI.2", only[0].VtOrderID())
	assert.Empty(t, store.ActiveOrders("xrpusdt.HUOBI"))
}

func TestStore_LastWriteWinsKeepsInsertionOrder(t *testing.T) {
	store, bus := newStore(t)

	for _, sym := range []string{"btcusdt", "ethusdt", "eosusdt"} {
		bus.Put(events.New(events.EventTick, &domain.Tick{Symbol: sym, Exchange: domain.ExchangeHuobi, LastPrice: decimal.NewFromInt(1)}))
	}
	bus.Put(events.New(events.EventTick, &domain.Tick{Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, LastPrice: decimal.NewFromInt(2)}))
	drain(t, bus)

	ticks := store.Ticks()
	require.Len(t, ticks, 3)
	assert.Equal(t, "btcusdt", ticks[0].Symbol)
	assert.Equal(t, "ethusdt", ticks[1].Symbol)
	assert.Equal(t, "eosusdt", ticks[2].Symbol)

	tick, ok := store.Tick("btcusdt.HUOBI")
	require.True(t, ok)
	assert.True(t, tick.LastPrice.Equal(decimal.NewFromInt(2)))
}

func TestStore_OtherEntities(t *testing.T) {
	store, bus := newStore(t)

	bus.Put(events.New(events.EventTrade, &domain.Trade{GatewayName: "HUOBI", TradeID: "t1", Symbol: "btcusdt", Exchange: domain.ExchangeHuobi}))
	bus.Put(events.New(events.EventPosition, &domain.Position{GatewayName: "HUOBI", Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, Direction: domain.DirectionNet}))
	bus.Put(events.New(events.EventAccount, &domain.Account{GatewayName: "HUOBI", AccountID: "usdt", Balance: decimal.NewFromInt(10)}))
	bus.Put(events.New(events.EventContract, &domain.Contract{GatewayName: "HUOBI", Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, Product: domain.ProductSpot}))
	// 类型错误的数据被忽略
	bus.Put(events.New(events.EventAccount, "not an account"))
	drain(t, bus)

	_, ok := store.Trade("HUOBI.t1")
	assert.True(t, ok)
	_, ok = store.Position("btcusdt.HUOBI.net")
	assert.True(t, ok)
	_, ok = store.Account("HUOBI.usdt")
	assert.True(t, ok)
	_, ok = store.Contract("btcusdt.HUOBI")
	assert.True(t, ok)

	assert.Len(t, store.Trades(), 1)
	assert.Len(t, store.Positions(), 1)
	assert.Len(t, store.Accounts(), 1)
	assert.Len(t, store.Contracts(), 1)

	_, ok = store.Order("HUOBI.missing")
	assert.False(t, ok)
}

func TestStore_CloseUnregisters(t *testing.T) {
	store, bus := newStore(t)
	require.NoError(t, store.Close())

	bus.Put(events.New(events.EventOrder, order("A", domain.StatusNotTraded)))
	drain(t, bus)

	assert.Empty(t, store.Orders())
	assert.False(t, bus.HasHandlers(events.EventOrder))
}

func TestActiveOrderBook_Callbacks(t *testing.T) {
	b := NewActiveOrderBook()
	var news, dones []string
	b.OnNew(func(o *domain.Order) { news = append(news, o.OrderID) })
	b.OnDone(func(o *domain.Order) { dones = append(dones, o.OrderID) })

	b.Sync(order("1", domain.StatusSubmitting))
	b.Sync(order("1", domain.StatusPartTraded))
	b.Sync(order("1", domain.StatusAllTraded))
	// 从未活跃过的终态订单不触发回调
	b.Sync(order("2", domain.StatusRejected))

	assert.Equal(t, []string{"1"}, news)
	assert.Equal(t, []string{"1"}, dones)
	assert.Equal(t, 0, b.NumOfOrders())
	assert.False(t, b.Exists("HUOBI.1"))
}

func TestStore_OrderAndActiveIndexConsistent(t *testing.T) {
	store, bus := newStore(t)

	var doneSeen []domain.Status
	store.ActiveOrderBook().OnDone(func(o *domain.Order) {
		// 回调里读 store 不会死锁
		if got, ok := store.Order(o.VtOrderID()); ok {
			doneSeen = append(doneSeen, got.Status)
		}
	})

	// 每个订单只会从活跃变为终态；一旦读到终态，活跃列表里不能再出现
	stop := make(chan struct{})
	violation := make(chan string, 1)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, o := range store.Orders() {
				if o.IsActive() {
					continue
				}
				for _, a := range store.ActiveOrders("") {
					if a.VtOrderID() == o.VtOrderID() {
						select {
						case violation <- o.VtOrderID():
						default:
						}
					}
				}
			}
		}
	}()

	const n = 200
	for i := 0; i < n; i++ {
		id := strconv.Itoa(i)
		bus.Put(events.New(events.EventOrder, order(id, domain.StatusNotTraded)))
		bus.Put(events.New(events.EventOrder, order(id, domain.StatusAllTraded)))
	}
	drain(t, bus)
	close(stop)

	select {
	case id := <-violation:
		t.Fatalf("order %s listed as active after reaching a final status", id)
	default:
	}
	assert.Empty(t, store.ActiveOrders(""))
	require.Len(t, doneSeen, n)
	assert.Equal(t, domain.StatusAllTraded, doneSeen[0])
}
