// Package gateway 定义交易网关接口与公共基类：网关把交易所的推送/回报转换成领域对象，
// 以“基础事件 + 定向事件”的形式投递到事件总线。
package gateway

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
)

var (
	// ErrGatewayNotFound 找不到网关
	ErrGatewayNotFound = errors.New("gateway: not found")
	// ErrNotSupported 网关不支持该操作
	ErrNotSupported = errors.New("gateway: operation not supported")
)

// Setting 网关连接参数（key/secret/代理等），键名由各网关的 DefaultSetting 定义
type Setting map[string]string

// Get 读取配置项，缺失时返回 def
func (s Setting) Get(key, def string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return def
}

// Gateway 交易网关
type Gateway interface {
	Name() string
	Exchanges() []domain.Exchange
	DefaultSetting() Setting

	Connect(setting Setting) error
	Close()

	Subscribe(req domain.SubscribeRequest) error
	// SendOrder 立即返回 vt_orderid，订单状态通过 EventOrder 异步推送
	SendOrder(req domain.OrderRequest) string
	CancelOrder(req domain.CancelRequest)

	QueryAccount()
	QueryPosition()
	QueryHistory(req domain.HistoryRequest) ([]*domain.Bar, error)
}

// Base 网关公共部分：事件投递与日志
type Base struct {
	name     string
	bus      *events.Bus
	registry *ContractRegistry
	log      *logrus.Entry
}

// NewBase 创建网关基类。registry 为 nil 时创建新的合约表。
func NewBase(name string, bus *events.Bus, registry *ContractRegistry) *Base {
	if registry == nil {
		registry = NewContractRegistry()
	}
	return &Base{
		name:     name,
		bus:      bus,
		registry: registry,
		log:      logrus.WithField("gateway", name),
	}
}

// Name 网关名
func (b *Base) Name() string {
	return b.name
}

// Bus 事件总线
func (b *Base) Bus() *events.Bus {
	return b.bus
}

// Registry 本网关的合约表
func (b *Base) Registry() *ContractRegistry {
	return b.registry
}

// Logger 网关 logger
func (b *Base) Logger() *logrus.Entry {
	return b.log
}

func (b *Base) put(eventType string, data any) {
	b.bus.Put(events.New(eventType, data))
}

// OnTick 投递 EventTick 与 EventTick+vt_symbol
func (b *Base) OnTick(tick *domain.Tick) {
	b.put(events.EventTick, tick)
	b.put(events.EventTick+tick.VtSymbol(), tick)
}

// OnBar 投递 EventBar 与 EventBar+vt_symbol
func (b *Base) OnBar(bar *domain.Bar) {
	b.put(events.EventBar, bar)
	b.put(events.EventBar+bar.VtSymbol(), bar)
}

// OnTrade 投递 EventTrade 与 EventTrade+vt_symbol
func (b *Base) OnTrade(trade *domain.Trade) {
	b.put(events.EventTrade, trade)
	b.put(events.EventTrade+trade.VtSymbol(), trade)
}

// OnOrder 投递 EventOrder 与 EventOrder+vt_orderid
func (b *Base) OnOrder(order *domain.Order) {
	b.put(events.EventOrder, order)
	b.put(events.EventOrder+order.VtOrderID(), order)
}

// OnPosition 投递 EventPosition 与 EventPosition+vt_symbol
func (b *Base) OnPosition(pos *domain.Position) {
	b.put(events.EventPosition, pos)
	b.put(events.EventPosition+pos.VtSymbol(), pos)
}

// OnAccount 投递 EventAccount 与 EventAccount+vt_accountid
func (b *Base) OnAccount(acc *domain.Account) {
	b.put(events.EventAccount, acc)
	b.put(events.EventAccount+acc.VtAccountID(), acc)
}

// OnContract 只投递 EventContract，同时登记到合约表
func (b *Base) OnContract(c *domain.Contract) {
	b.registry.Add(c)
	b.put(events.EventContract, c)
}

// OnLog 只投递 EventLog
func (b *Base) OnLog(l *domain.Log) {
	b.put(events.EventLog, l)
}

// WriteLog 以网关名投递一条 info 日志
func (b *Base) WriteLog(format string, args ...any) {
	b.OnLog(domain.NewLog(b.name, fmt.Sprintf(format, args...)))
}

// WriteError 投递一条 error 日志
func (b *Base) WriteError(format string, args ...any) {
	l := domain.NewLog(b.name, fmt.Sprintf(format, args...))
	l.Level = domain.LogLevelError
	b.OnLog(l)
}

// SendOrders 批量下单，返回 vt_orderid 列表
func SendOrders(g Gateway, reqs []domain.OrderRequest) []string {
	ids := make([]string, 0, len(reqs))
	for _, req := range reqs {
		ids = append(ids, g.SendOrder(req))
	}
	return ids
}

// CancelOrders 批量撤单
func CancelOrders(g Gateway, reqs []domain.CancelRequest) {
	for _, req := range reqs {
		g.CancelOrder(req)
	}
}
