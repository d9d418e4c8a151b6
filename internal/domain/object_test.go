package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	order := &Order{GatewayName: "HUOBI", Symbol: "btcusdt", Exchange: ExchangeHuobi, OrderID: "20190101-000000-00000001"}
	assert.Equal(t, "btcusdt.HUOBI", order.VtSymbol())
	assert.Equal(t, "HUOBI.20190101-000000-00000001", order.VtOrderID())

	trade := &Trade{GatewayName: "HUOBI", TradeID: "42", OrderID: "7"}
	assert.Equal(t, "HUOBI.42", trade.VtTradeID())
	assert.Equal(t, "HUOBI.7", trade.VtOrderID())

	pos := &Position{Symbol: "btcusdt", Exchange: ExchangeHuobi, Direction: DirectionLong}
	assert.Equal(t, "btcusdt.HUOBI.long", pos.VtPositionID())

	acc := &Account{GatewayName: "HUOBI", AccountID: "usdt"}
	assert.Equal(t, "HUOBI.usdt", acc.VtAccountID())
}

func TestOrderIsActive(t *testing.T) {
	cases := map[Status]bool{
		StatusSubmitting: true,
		StatusNotTraded:  true,
		StatusPartTraded: true,
		StatusAllTraded:  false,
		StatusCancelled:  false,
		StatusRejected:   false,
	}
	for status, want := range cases {
		t.Run(string(status), func(t *testing.T) {
			o := &Order{Status: status}
			assert.Equal(t, want, o.IsActive())
		})
	}
}

func TestTickDepth(t *testing.T) {
	tick := &Tick{}
	for n := 1; n <= DepthLevels; n++ {
		tick.SetBid(n, decimal.NewFromInt(int64(100-n)), decimal.NewFromInt(int64(n)))
		tick.SetAsk(n, decimal.NewFromInt(int64(100+n)), decimal.NewFromInt(int64(n)))
	}
	// 越界忽略
	tick.SetBid(0, decimal.NewFromInt(1), decimal.NewFromInt(1))
	tick.SetAsk(6, decimal.NewFromInt(1), decimal.NewFromInt(1))

	assert.True(t, tick.Bid(1).Price.Equal(decimal.NewFromInt(99)))
	assert.True(t, tick.Ask(5).Price.Equal(decimal.NewFromInt(105)))
	assert.True(t, tick.Bid(6).IsZero())
	assert.True(t, tick.Ask(0).IsZero())
}

func TestOrderRequestCreateOrder(t *testing.T) {
	req := OrderRequest{
		Symbol:    "btcusdt",
		Exchange:  ExchangeHuobi,
		Direction: DirectionLong,
		Type:      OrderTypeLimit,
		Price:     decimal.RequireFromString("8000.5"),
		Volume:    decimal.RequireFromString("0.01"),
	}
	order := req.CreateOrder("1", "HUOBI")
	assert.Equal(t, StatusSubmitting, order.Status)
	assert.Equal(t, "HUOBI.1", order.VtOrderID())
	assert.True(t, order.Traded.IsZero())

	cancel := order.CreateCancelRequest()
	assert.Equal(t, "1", cancel.OrderID)
	assert.Equal(t, "btcusdt.HUOBI", cancel.VtSymbol())
}

func TestAccountAvailable(t *testing.T) {
	acc := &Account{Balance: decimal.NewFromInt(100), Frozen: decimal.NewFromInt(30)}
	assert.True(t, acc.Available().Equal(decimal.NewFromInt(70)))
}

func TestParseVtSymbol(t *testing.T) {
	symbol, ex, ok := ParseVtSymbol("btc.usdt.OKEX")
	assert.True(t, ok)
	assert.Equal(t, "btc.usdt", symbol)
	assert.Equal(t, ExchangeOkex, ex)

	for _, bad := range []string{"", "btcusdt", ".HUOBI", "btcusdt."} {
		_, _, ok = ParseVtSymbol(bad)
		assert.False(t, ok, bad)
	}
}
