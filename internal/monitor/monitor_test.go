package monitor

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/fxcore/internal/domain"
)

type fakeSource struct {
	ticks  []*domain.Tick
	orders []*domain.Order
	calls  int
}

func (f *fakeSource) Ticks() []*domain.Tick {
	f.calls++
	return append([]*domain.Tick(nil), f.ticks...)
}
func (f *fakeSource) Positions() []*domain.Position {
	return []*domain.Position{{GatewayName: "HUOBI", Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, Direction: domain.DirectionNet, Volume: decimal.NewFromInt(3)}}
}
func (f *fakeSource) Accounts() []*domain.Account {
	return []*domain.Account{{GatewayName: "HUOBI", AccountID: "usdt", Balance: decimal.NewFromInt(100), Frozen: decimal.NewFromInt(40)}}
}
func (f *fakeSource) ActiveOrders(string) []*domain.Order { return f.orders }

func TestModel_ViewAndRefresh(t *testing.T) {
	src := &fakeSource{
		ticks: []*domain.Tick{
			{Symbol: "ethusdt", Exchange: domain.ExchangeHuobi, LastPrice: decimal.NewFromInt(200)},
			{Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, LastPrice: decimal.NewFromInt(8000)},
		},
	}
	m := newModel(src, "fxcore", time.Second)
	assert.Equal(t, 1, src.calls)

	view := m.View()
	assert.Contains(t, view, "btcusdt.HUOBI")
	assert.Contains(t, view, "HUOBI.usdt")
	assert.Contains(t, view, "可用 60")
	assert.Less(t, strings.Index(view, "btcusdt.HUOBI"), strings.Index(view, "ethusdt.HUOBI"))

	src.orders = []*domain.Order{{GatewayName: "HUOBI", OrderID: "7", Symbol: "btcusdt", Exchange: domain.ExchangeHuobi, Direction: domain.DirectionShort, Status: domain.StatusNotTraded}}
	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	assert.Equal(t, 2, src.calls)
	assert.Contains(t, next.View(), "HUOBI.7")
	assert.Contains(t, next.View(), "活跃订单 (1)")
}

func TestModel_Quit(t *testing.T) {
	m := newModel(&fakeSource{}, "fxcore", time.Second)
	assert.Contains(t, m.View(), "暂无行情")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Nil(t, cmd)
}
