package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevels 行情盘口档位数
const DepthLevels = 5

// VtSymbol 组合合约 key：symbol.exchange
func VtSymbol(symbol string, exchange Exchange) string {
	return fmt.Sprintf("%s.%s", symbol, exchange)
}

// VtKey 组合 gateway 级 key：gateway.id（订单号、成交号、账户号）
func VtKey(gatewayName, id string) string {
	return fmt.Sprintf("%s.%s", gatewayName, id)
}

// PriceLevel 一档盘口
type PriceLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// IsZero 该档是否为空
func (l PriceLevel) IsZero() bool {
	return l.Price.IsZero() && l.Volume.IsZero()
}

// Tick 行情快照：最新价与 5 档盘口
type Tick struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Datetime    time.Time
	Name        string

	Volume       decimal.Decimal
	LastPrice    decimal.Decimal
	LastVolume   decimal.Decimal
	LimitUp      decimal.Decimal
	LimitDown    decimal.Decimal
	OpenPrice    decimal.Decimal
	HighPrice    decimal.Decimal
	LowPrice     decimal.Decimal
	PreClose     decimal.Decimal
	OpenInterest decimal.Decimal

	// Bids[0]/Asks[0] 为第 1 档
	Bids [DepthLevels]PriceLevel
	Asks [DepthLevels]PriceLevel
}

// VtSymbol 合约 key
func (t *Tick) VtSymbol() string {
	return VtSymbol(t.Symbol, t.Exchange)
}

// SetBid 设置第 n 档买盘（n 从 1 开始），越界忽略
func (t *Tick) SetBid(n int, price, volume decimal.Decimal) {
	if n < 1 || n > DepthLevels {
		return
	}
	t.Bids[n-1] = PriceLevel{Price: price, Volume: volume}
}

// SetAsk 设置第 n 档卖盘（n 从 1 开始），越界忽略
func (t *Tick) SetAsk(n int, price, volume decimal.Decimal) {
	if n < 1 || n > DepthLevels {
		return
	}
	t.Asks[n-1] = PriceLevel{Price: price, Volume: volume}
}

// Bid 第 n 档买盘，越界返回零值
func (t *Tick) Bid(n int) PriceLevel {
	if n < 1 || n > DepthLevels {
		return PriceLevel{}
	}
	return t.Bids[n-1]
}

// Ask 第 n 档卖盘，越界返回零值
func (t *Tick) Ask(n int) PriceLevel {
	if n < 1 || n > DepthLevels {
		return PriceLevel{}
	}
	return t.Asks[n-1]
}

// Bar K 线
type Bar struct {
	GatewayName  string
	Symbol       string
	Exchange     Exchange
	Datetime     time.Time
	Interval     Interval
	Volume       decimal.Decimal
	OpenInterest decimal.Decimal
	OpenPrice    decimal.Decimal
	HighPrice    decimal.Decimal
	LowPrice     decimal.Decimal
	ClosePrice   decimal.Decimal
}

// VtSymbol 合约 key
func (b *Bar) VtSymbol() string {
	return VtSymbol(b.Symbol, b.Exchange)
}

// Order 委托。Status 的变化驱动 OMS 中的活跃订单索引。
type Order struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	OrderID     string

	Type      OrderType
	Direction Direction
	Offset    Offset
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Traded    decimal.Decimal
	Status    Status
	Time      string
}

// VtSymbol 合约 key
func (o *Order) VtSymbol() string {
	return VtSymbol(o.Symbol, o.Exchange)
}

// VtOrderID 订单 key：gateway.orderid
func (o *Order) VtOrderID() string {
	return VtKey(o.GatewayName, o.OrderID)
}

// IsActive 是否为活跃订单（提交中/未成交/部分成交）
func (o *Order) IsActive() bool {
	return o.Status.IsActive()
}

// CreateCancelRequest 根据订单生成撤单请求
func (o *Order) CreateCancelRequest() CancelRequest {
	return CancelRequest{
		OrderID:  o.OrderID,
		Symbol:   o.Symbol,
		Exchange: o.Exchange,
	}
}

// Trade 成交
type Trade struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	OrderID     string
	TradeID     string
	Direction   Direction
	Offset      Offset
	Price       decimal.Decimal
	Volume      decimal.Decimal
	Time        string
}

// VtSymbol 合约 key
func (t *Trade) VtSymbol() string {
	return VtSymbol(t.Symbol, t.Exchange)
}

// VtOrderID 所属订单 key
func (t *Trade) VtOrderID() string {
	return VtKey(t.GatewayName, t.OrderID)
}

// VtTradeID 成交 key：gateway.tradeid
func (t *Trade) VtTradeID() string {
	return VtKey(t.GatewayName, t.TradeID)
}

// Position 持仓
type Position struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Direction   Direction
	Volume      decimal.Decimal
	Frozen      decimal.Decimal
	Price       decimal.Decimal
	PnL         decimal.Decimal
	YdVolume    decimal.Decimal
}

// VtSymbol 合约 key
func (p *Position) VtSymbol() string {
	return VtSymbol(p.Symbol, p.Exchange)
}

// VtPositionID 持仓 key：vt_symbol.direction
func (p *Position) VtPositionID() string {
	return fmt.Sprintf("%s.%s", p.VtSymbol(), p.Direction)
}

// Account 资金账户
type Account struct {
	GatewayName string
	AccountID   string
	Balance     decimal.Decimal
	Frozen      decimal.Decimal
}

// VtAccountID 账户 key：gateway.accountid
func (a *Account) VtAccountID() string {
	return VtKey(a.GatewayName, a.AccountID)
}

// Available 可用资金
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.Frozen)
}

// Contract 合约信息
type Contract struct {
	GatewayName string
	Symbol      string
	Exchange    Exchange
	Name        string
	Product     Product
	Size        decimal.Decimal
	PriceTick   decimal.Decimal
	MinVolume   decimal.Decimal

	StopSupported    bool
	NetPosition      bool
	HistoryData      bool
	OptionStrike     decimal.Decimal
	OptionUnderlying string
	OptionType       OptionType
	OptionExpiry     time.Time
}

// VtSymbol 合约 key
func (c *Contract) VtSymbol() string {
	return VtSymbol(c.Symbol, c.Exchange)
}

// LogLevel 日志级别，取值与 logrus 一致
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warning"
	LogLevelError LogLevel = "error"
)

// Log 通过事件总线传递的日志
type Log struct {
	GatewayName string
	Msg         string
	Level       LogLevel
	Time        time.Time
}

// NewLog 创建 info 级别日志
func NewLog(gatewayName, msg string) *Log {
	return &Log{
		GatewayName: gatewayName,
		Msg:         msg,
		Level:       LogLevelInfo,
		Time:        time.Now(),
	}
}

// ParseVtSymbol 拆分 symbol.EXCHANGE，symbol 本身可以包含点号
func ParseVtSymbol(vtSymbol string) (string, Exchange, bool) {
	i := strings.LastIndex(vtSymbol, ".")
	if i <= 0 || i == len(vtSymbol)-1 {
		return "", "", false
	}
	return vtSymbol[:i], Exchange(vtSymbol[i+1:]), true
}
