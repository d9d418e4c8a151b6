package domain

// Direction 方向
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNet   Direction = "net"
)

// Offset 开平
type Offset string

const (
	OffsetNone       Offset = ""
	OffsetOpen       Offset = "open"
	OffsetClose      Offset = "close"
	OffsetCloseToday Offset = "close_today"
	OffsetCloseYest  Offset = "close_yesterday"
)

// Status 订单状态
type Status string

const (
	StatusSubmitting Status = "submitting"  // 已提交，交易所未确认
	StatusNotTraded  Status = "not_traded"  // 已挂单，未成交
	StatusPartTraded Status = "part_traded" // 部分成交
	StatusAllTraded  Status = "all_traded"  // 全部成交
	StatusCancelled  Status = "cancelled"   // 已撤销
	StatusRejected   Status = "rejected"    // 拒单
)

// IsActive 订单是否仍在交易所活跃（可撤）
func (s Status) IsActive() bool {
	switch s {
	case StatusSubmitting, StatusNotTraded, StatusPartTraded:
		return true
	}
	return false
}

// Product 产品类型
type Product string

const (
	ProductEquity  Product = "equity"
	ProductFutures Product = "futures"
	ProductOption  Product = "option"
	ProductIndex   Product = "index"
	ProductForex   Product = "forex"
	ProductSpot    Product = "spot"
	ProductETF     Product = "etf"
	ProductBond    Product = "bond"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
	OrderTypeStop   OrderType = "stop"
	OrderTypeFAK    OrderType = "fak"
	OrderTypeFOK    OrderType = "fok"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// Exchange 交易所
type Exchange string

const (
	ExchangeHuobi    Exchange = "HUOBI"
	ExchangeOkex     Exchange = "OKEX"
	ExchangeBinance  Exchange = "BINANCE"
	ExchangeBitmex   Exchange = "BITMEX"
	ExchangeBitfinex Exchange = "BITFINEX"
	ExchangeGateio   Exchange = "GATEIO"
	ExchangeLocal    Exchange = "LOCAL"
)

// Interval K 线周期
type Interval string

const (
	IntervalMinute Interval = "1m"
	IntervalHour   Interval = "1h"
	IntervalDaily  Interval = "d"
	IntervalWeekly Interval = "w"
)
