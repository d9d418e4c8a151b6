package huobi

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// envelope Huobi 响应公共字段
type envelope struct {
	Status  string `json:"status"`
	ErrCode string `json:"err-code"`
	ErrMsg  string `json:"err-msg"`
}

type accountData struct {
	ID    json.Number `json:"id"`
	Type  string      `json:"type"`
	State string      `json:"state"`
}

type balanceData struct {
	Currency string          `json:"currency"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
}

type orderData struct {
	ID            json.Number     `json:"id"`
	ClientOrderID string          `json:"client-order-id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Amount        decimal.Decimal `json:"amount"`
	FilledAmount  decimal.Decimal `json:"filled-amount"`
	Type          string          `json:"type"`
	State         string          `json:"state"`
	CreatedAt     int64           `json:"created-at"`
}

type symbolData struct {
	Symbol          string `json:"symbol"`
	BaseCurrency    string `json:"base-currency"`
	QuoteCurrency   string `json:"quote-currency"`
	PricePrecision  int32  `json:"price-precision"`
	AmountPrecision int32  `json:"amount-precision"`
}

type klineData struct {
	ID    int64           `json:"id"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
	Vol   decimal.Decimal `json:"vol"`
}

func decode(b []byte, out any) error {
	return json.Unmarshal(b, out)
}

func upper(s string) string {
	return strings.ToUpper(s)
}
