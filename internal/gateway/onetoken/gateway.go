// Package onetoken 1Token 聚合交易网关：REST 下单撤单、合约查询，WebSocket 推送行情。
package onetoken

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/gateway"
	"github.com/betbot/fxcore/pkg/idgen"
	"github.com/betbot/fxcore/pkg/rest"
	"github.com/betbot/fxcore/pkg/websocket"
)

const (
	GatewayName       = "1TOKEN"
	RestHost          = "https://1token.trade/api"
	DataWebsocketHost = "wss://cdn.1tokentrade.cn/api/v1/ws/tick"

	// PingEvery 每收到多少个定时事件发送一次行情心跳
	PingEvery = 20
)

// 连接参数 key
const (
	SettingKey           = "key"
	SettingSecret        = "secret"
	SettingExchange      = "exchange"
	SettingAccount       = "account"
	SettingSessionNumber = "session_number"
	SettingProxyHost     = "proxy_host"
	SettingProxyPort     = "proxy_port"
	SettingRestHost      = "rest_host"
	SettingWebsocketHost = "ws_host"
)

var directionVt2OneToken = map[domain.Direction]string{
	domain.DirectionLong:  "b",
	domain.DirectionShort: "s",
}

var exchangeVt2OneToken = map[domain.Exchange]string{
	domain.ExchangeOkex:    "okex",
	domain.ExchangeHuobi:   "huobi",
	domain.ExchangeBinance: "binance",
	domain.ExchangeBitmex:  "bitmex",
	domain.ExchangeGateio:  "gateio",
}

var exchangeOneToken2Vt = func() map[string]domain.Exchange {
	m := make(map[string]domain.Exchange, len(exchangeVt2OneToken))
	for k, v := range exchangeVt2OneToken {
		m[v] = k
	}
	return m
}()

// exchangeAlias 账户所在的 1Token 交易所代码 -> 交易接口使用的交易所
var exchangeAlias = map[string]string{
	"okex":      "okex",
	"okef":      "okex",
	"okswap":    "okex",
	"huobip":    "huobi",
	"huobiswap": "huobi",
	"binance":   "binance",
	"binancef":  "binance",
	"bitmex":    "bitmex",
	"gate":      "gateio",
}

var chinaTZ = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

// Gateway 1Token 网关
type Gateway struct {
	*gateway.Base

	client  *rest.Client
	signer  *signer
	stream  *dataStream
	orderID *idgen.NumericOrderID

	exchange string
	account  string

	timer     events.Handler
	pingCount int // 仅在总线分发 goroutine 中访问

	mu     sync.RWMutex
	orders map[string]*domain.Order
}

var (
	_ gateway.Gateway   = (*Gateway)(nil)
	_ rest.ErrorHandler = (*Gateway)(nil)
)

// New 创建网关
func New(bus *events.Bus, registry *gateway.ContractRegistry, opts ...rest.Option) *Gateway {
	g := &Gateway{
		Base:   gateway.NewBase(GatewayName, bus, registry),
		signer: &signer{nonce: idgen.NewNonce(time.Microsecond)},
		orders: make(map[string]*domain.Order),
	}
	g.stream = newDataStream(g)
	g.timer = events.Func(g.processTimerEvent)
	opts = append([]rest.Option{
		rest.WithSigner(g.signer),
		rest.WithErrorHandler(g),
		rest.WithLogger(g.Logger().WithField("component", "onetoken_rest")),
	}, opts...)
	g.client = rest.New(opts...)
	return g
}

// Exchanges 支持的交易所
func (g *Gateway) Exchanges() []domain.Exchange {
	return []domain.Exchange{
		domain.ExchangeOkex,
		domain.ExchangeHuobi,
		domain.ExchangeBinance,
		domain.ExchangeBitmex,
		domain.ExchangeGateio,
	}
}

// DefaultSetting 默认连接参数
func (g *Gateway) DefaultSetting() gateway.Setting {
	return gateway.Setting{
		SettingKey:           "",
		SettingSecret:        "",
		SettingExchange:      "BINANCE",
		SettingAccount:       "",
		SettingSessionNumber: "3",
		SettingProxyHost:     "",
		SettingProxyPort:     "",
		SettingRestHost:      RestHost,
		SettingWebsocketHost: DataWebsocketHost,
	}
}

// Client 底层 REST 客户端
func (g *Gateway) Client() *rest.Client {
	return g.client
}

// Connect 启动 REST 与行情 WebSocket，查询服务器时间和合约，并注册定时心跳
func (g *Gateway) Connect(setting gateway.Setting) error {
	exchange, ok := exchangeAlias[strings.ToLower(setting.Get(SettingExchange, "binance"))]
	if !ok {
		return fmt.Errorf("onetoken: unsupported exchange %q", setting.Get(SettingExchange, ""))
	}
	sessions, _ := strconv.Atoi(setting.Get(SettingSessionNumber, "3"))
	proxyHost := setting.Get(SettingProxyHost, "")
	proxyPort, _ := strconv.Atoi(setting.Get(SettingProxyPort, "0"))

	g.signer.key = setting.Get(SettingKey, "")
	g.signer.secret = setting.Get(SettingSecret, "")
	g.exchange = exchange
	g.account = setting.Get(SettingAccount, "")
	g.orderID = idgen.NewNumericOrderID(idgen.ConnectTimeBase(time.Now().In(chinaTZ)))

	g.client.Configure(setting.Get(SettingRestHost, RestHost), proxyHost, proxyPort)
	g.client.Start(sessions)
	g.WriteLog("REST API 启动成功")

	g.queryTime()
	g.queryContract()

	g.stream.connect(websocket.Config{
		URL:       setting.Get(SettingWebsocketHost, DataWebsocketHost),
		ProxyHost: proxyHost,
		ProxyPort: proxyPort,
	})

	g.Bus().Register(events.EventTimer, g.timer)
	return nil
}

// Close 注销心跳，关闭 WebSocket 和 REST
func (g *Gateway) Close() {
	g.Bus().Unregister(events.EventTimer, g.timer)
	g.stream.close()
	g.client.Stop()
	g.client.Wait()
}

// Subscribe 订阅逐笔盘口
func (g *Gateway) Subscribe(req domain.SubscribeRequest) error {
	if _, ok := exchangeVt2OneToken[req.Exchange]; !ok {
		return fmt.Errorf("onetoken: unsupported exchange %q", req.Exchange)
	}
	return g.stream.subscribe(req)
}

// Order 网关本地记录的订单
func (g *Gateway) Order(orderID string) (*domain.Order, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.orders[orderID]
	return o, ok
}

func (g *Gateway) onOrder(order *domain.Order) {
	snapshot := *order
	g.mu.Lock()
	g.orders[order.OrderID] = &snapshot
	g.mu.Unlock()
	g.OnOrder(&snapshot)
}

func (g *Gateway) ordersPath() string {
	return fmt.Sprintf("/v1/trade/%s/%s/orders", g.exchange, g.account)
}

// SendOrder 下单，client_oid 为 连接时间*1e6+序号
func (g *Gateway) SendOrder(req domain.OrderRequest) string {
	orderID := strconv.FormatInt(g.orderID.Next(), 10)
	order := req.CreateOrder(orderID, g.Name())
	order.Time = time.Now().In(chinaTZ).Format("15:04:05")

	data := map[string]any{
		"contract":   g.exchange + "/" + req.Symbol,
		"price":      json.Number(req.Price.String()),
		"bs":         directionVt2OneToken[req.Direction],
		"amount":     json.Number(req.Volume.String()),
		"client_oid": orderID,
	}
	if req.Offset == domain.OffsetClose {
		data["options"] = map[string]any{"close": true}
	}

	g.onOrder(order)
	g.client.Submit("POST", g.ordersPath(), g.onSendOrder,
		rest.WithData(data),
		rest.WithExtra(order),
		rest.OnFailed(g.onSendOrderFailed),
		rest.OnError(g.onSendOrderError),
	)
	return order.VtOrderID()
}

// CancelOrder 按 client_oid 撤单
func (g *Gateway) CancelOrder(req domain.CancelRequest) {
	g.client.Submit("DELETE", g.ordersPath(), g.onCancelOrder,
		rest.WithParams(url.Values{"client_oid": {req.OrderID}}),
		rest.WithExtra(req),
		rest.OnError(g.onCancelOrderError),
	)
}

// QueryAccount 资金通过交易推送维护，这里不主动查询
func (g *Gateway) QueryAccount() {}

// QueryPosition 同上
func (g *Gateway) QueryPosition() {}

// QueryHistory 1Token 网关不提供历史 K 线
func (g *Gateway) QueryHistory(req domain.HistoryRequest) ([]*domain.Bar, error) {
	return nil, gateway.ErrNotSupported
}

// processTimerEvent 每 PingEvery 个定时事件发一次行情心跳
func (g *Gateway) processTimerEvent(events.Event) {
	g.pingCount++
	if g.pingCount < PingEvery {
		return
	}
	g.pingCount = 0
	if err := g.stream.ping(); err != nil {
		g.Logger().Debugf("行情心跳发送失败: %v", err)
	}
}

func (g *Gateway) queryTime() {
	g.client.Submit("GET", "/v1/basic/time", g.onQueryTime)
}

func (g *Gateway) queryContract() {
	g.client.Submit("GET", "/v1/basic/contract", g.onQueryContract,
		rest.WithParams(url.Values{"exchange": {g.exchange}}))
}

func (g *Gateway) onQueryTime(data any, _ *rest.Request) {
	var d serverTime
	if err := rest.Bind(data, &d); err != nil {
		panic(err)
	}
	ts, err := d.ServerTime.Float64()
	if err != nil {
		panic(err)
	}
	server := time.Unix(0, int64(ts*float64(time.Second))).UTC()
	g.WriteLog("服务器时间：%s,本机时间：%s", server.Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339))
}

func (g *Gateway) onQueryContract(data any, _ *rest.Request) {
	var list []contractData
	if err := rest.Bind(data, &list); err != nil {
		panic(err)
	}
	for _, d := range list {
		exchange, ok := d.exchange()
		if !ok {
			g.Logger().Debugf("跳过未知交易所合约 %s", d.Symbol)
			continue
		}
		g.OnContract(&domain.Contract{
			GatewayName: g.Name(),
			Symbol:      d.Name,
			Exchange:    exchange,
			Name:        d.Name,
			Product:     domain.ProductSpot,
			Size:        d.MinAmount,
			PriceTick:   d.UnitAmount,
			MinVolume:   d.MinAmount,
		})
	}
	g.WriteLog("合约信息查询成功")
}

func (g *Gateway) onSendOrder(data any, req *rest.Request) {
	var res orderResult
	if err := rest.Bind(data, &res); err != nil {
		panic(err)
	}
	if res.Code != "" && res.Code != "0" {
		g.rejectOrder(req)
		g.WriteError("委托失败，代码：%s,信息：%s", res.Code, res.Message)
		return
	}
	g.Logger().Debugf("委托成功 client_oid=%s exchange_oid=%s", res.ClientOID, res.ExchangeOID)
}

func (g *Gateway) onSendOrderFailed(statusCode int, req *rest.Request) {
	g.rejectOrder(req)
	g.WriteError("委托失败，状态码：%d, 信息：%s", statusCode, responseText(req))
}

// onSendOrderError 下单异常：订单改为拒单；网络类错误不再上报
func (g *Gateway) onSendOrderError(err error, req *rest.Request) {
	g.rejectOrder(req)
	if rest.IsNetworkError(err) {
		g.Logger().Warnf("下单网络异常: %v", err)
		return
	}
	g.OnError(err, req)
}

func (g *Gateway) rejectOrder(req *rest.Request) {
	order, ok := req.Extra.(*domain.Order)
	if !ok {
		return
	}
	rejected := *order
	rejected.Status = domain.StatusRejected
	g.onOrder(&rejected)
}

func (g *Gateway) onCancelOrder(_ any, req *rest.Request) {
	cancel, _ := req.Extra.(domain.CancelRequest)
	order, ok := g.Order(cancel.OrderID)
	if !ok {
		return
	}
	updated := *order
	updated.Status = domain.StatusCancelled
	g.onOrder(&updated)
	g.WriteLog("委托撤单成功：%s", cancel.OrderID)
}

func (g *Gateway) onCancelOrderError(err error, req *rest.Request) {
	if rest.IsNetworkError(err) {
		g.Logger().Warnf("撤单网络异常: %v", err)
		return
	}
	g.OnError(err, req)
}

// OnError 实现 rest.ErrorHandler
func (g *Gateway) OnError(err error, req *rest.Request) {
	g.WriteError("触发异常，信息：%v", err)
	g.Logger().Error(rest.ExceptionDetail(err, req))
}

func responseText(req *rest.Request) string {
	if req.Response == nil {
		return ""
	}
	return req.Response.String()
}
