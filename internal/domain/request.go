package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscribeRequest 行情订阅请求
type SubscribeRequest struct {
	Symbol   string
	Exchange Exchange
}

// VtSymbol 合约 key
func (r SubscribeRequest) VtSymbol() string {
	return VtSymbol(r.Symbol, r.Exchange)
}

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol    string
	Exchange  Exchange
	Direction Direction
	Type      OrderType
	Volume    decimal.Decimal
	Price     decimal.Decimal
	Offset    Offset
}

// VtSymbol 合约 key
func (r OrderRequest) VtSymbol() string {
	return VtSymbol(r.Symbol, r.Exchange)
}

// CreateOrder 生成状态为 submitting 的订单
func (r OrderRequest) CreateOrder(orderID, gatewayName string) *Order {
	return &Order{
		GatewayName: gatewayName,
		Symbol:      r.Symbol,
		Exchange:    r.Exchange,
		OrderID:     orderID,
		Type:        r.Type,
		Direction:   r.Direction,
		Offset:      r.Offset,
		Price:       r.Price,
		Volume:      r.Volume,
		Traded:      decimal.Zero,
		Status:      StatusSubmitting,
	}
}

// CancelRequest 撤单请求
type CancelRequest struct {
	OrderID  string
	Symbol   string
	Exchange Exchange
}

// VtSymbol 合约 key
func (r CancelRequest) VtSymbol() string {
	return VtSymbol(r.Symbol, r.Exchange)
}

// HistoryRequest 历史 K 线请求。End 为零值表示到当前。
type HistoryRequest struct {
	Symbol   string
	Exchange Exchange
	Start    time.Time
	End      time.Time
	Interval Interval
}

// VtSymbol 合约 key
func (r HistoryRequest) VtSymbol() string {
	return VtSymbol(r.Symbol, r.Exchange)
}
