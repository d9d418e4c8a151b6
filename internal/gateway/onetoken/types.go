package onetoken

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/fxcore/internal/domain"
)

type serverTime struct {
	ServerTime json.Number `json:"server_time"`
}

type contractData struct {
	Name       string          `json:"name"`
	Symbol     string          `json:"symbol"`
	MinAmount  decimal.Decimal `json:"min_amount"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
}

// exchange okex/btc.usdt -> OKEX
func (c contractData) exchange() (domain.Exchange, bool) {
	prefix, _, _ := strings.Cut(c.Symbol, "/")
	ex, ok := exchangeOneToken2Vt[strings.ToLower(prefix)]
	return ex, ok
}

type orderResult struct {
	ClientOID   string `json:"client_oid"`
	ExchangeOID string `json:"exchange_oid"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

type level struct {
	Price  decimal.Decimal `json:"price"`
	Volume decimal.Decimal `json:"volume"`
}

type tickData struct {
	Contract string          `json:"contract"`
	Last     decimal.Decimal `json:"last"`
	Volume   decimal.Decimal `json:"volume"`
	Time     string          `json:"time"`
	Bids     []level         `json:"bids"`
	Asks     []level         `json:"asks"`
}

// parseTime 推送时间为带时区的 ISO8601，解析失败时用当前时间
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.ParseInLocation(layout, s, chinaTZ); err == nil {
			return t.In(chinaTZ)
		}
	}
	return time.Now().In(chinaTZ)
}
