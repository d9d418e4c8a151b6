// Package huobi Huobi 现货 REST 网关：合约/账户/委托查询、下单撤单、历史 K 线。
package huobi

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/gateway"
	"github.com/betbot/fxcore/pkg/idgen"
	"github.com/betbot/fxcore/pkg/rest"
)

const (
	GatewayName = "HUOBI"
	RestHost    = "https://api.huobi.pro"
)

// 连接参数 key
const (
	SettingKey           = "key"
	SettingSecret        = "secret"
	SettingSessionNumber = "session_number"
	SettingProxyHost     = "proxy_host"
	SettingProxyPort     = "proxy_port"
	SettingRestHost      = "rest_host"
)

var statusHuobi2Vt = map[string]domain.Status{
	"submitted":        domain.StatusNotTraded,
	"partial-filled":   domain.StatusPartTraded,
	"filled":           domain.StatusAllTraded,
	"cancelling":       domain.StatusCancelled,
	"partial-canceled": domain.StatusCancelled,
	"canceled":         domain.StatusCancelled,
}

type orderKind struct {
	direction domain.Direction
	orderType domain.OrderType
}

var orderTypeVt2Huobi = map[orderKind]string{
	{domain.DirectionLong, domain.OrderTypeMarket}:  "buy-market",
	{domain.DirectionShort, domain.OrderTypeMarket}: "sell-market",
	{domain.DirectionLong, domain.OrderTypeLimit}:   "buy-limit",
	{domain.DirectionShort, domain.OrderTypeLimit}:  "sell-limit",
}

var orderTypeHuobi2Vt = func() map[string]orderKind {
	m := make(map[string]orderKind, len(orderTypeVt2Huobi))
	for k, v := range orderTypeVt2Huobi {
		m[v] = k
	}
	return m
}()

var intervalVt2Huobi = map[domain.Interval]string{
	domain.IntervalMinute: "1min",
	domain.IntervalHour:   "60min",
	domain.IntervalDaily:  "1day",
	domain.IntervalWeekly: "1week",
}

// chinaTZ 交易所时间戳按北京时间展示
var chinaTZ = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}()

// Gateway Huobi 网关
type Gateway struct {
	*gateway.Base

	client  *rest.Client
	signer  *signer
	host    string
	orderID *idgen.TimeOrderID

	mu        sync.RWMutex
	accountID string
	orders    map[string]*domain.Order
}

var (
	_ gateway.Gateway   = (*Gateway)(nil)
	_ rest.ErrorHandler = (*Gateway)(nil)
)

// New 创建网关。registry 由调用方持有，可与其他组件共享。
func New(bus *events.Bus, registry *gateway.ContractRegistry, opts ...rest.Option) *Gateway {
	g := &Gateway{
		Base:   gateway.NewBase(GatewayName, bus, registry),
		signer: &signer{now: time.Now},
		orders: make(map[string]*domain.Order),
	}
	opts = append([]rest.Option{
		rest.WithSigner(g.signer),
		rest.WithErrorHandler(g),
		rest.WithLogger(g.Logger().WithField("component", "huobi_rest")),
	}, opts...)
	g.client = rest.New(opts...)
	return g
}

// Exchanges 支持的交易所
func (g *Gateway) Exchanges() []domain.Exchange {
	return []domain.Exchange{domain.ExchangeHuobi}
}

// DefaultSetting 默认连接参数
func (g *Gateway) DefaultSetting() gateway.Setting {
	return gateway.Setting{
		SettingKey:           "",
		SettingSecret:        "",
		SettingSessionNumber: "3",
		SettingProxyHost:     "",
		SettingProxyPort:     "",
		SettingRestHost:      RestHost,
	}
}

// Client 底层 REST 客户端
func (g *Gateway) Client() *rest.Client {
	return g.client
}

// Connect 配置并启动 REST 客户端，随后查询合约、账户和未完成委托
func (g *Gateway) Connect(setting gateway.Setting) error {
	restHost := setting.Get(SettingRestHost, RestHost)
	u, err := url.Parse(restHost)
	if err != nil || u.Host == "" {
		return fmt.Errorf("huobi: invalid rest host %q", restHost)
	}
	sessions, _ := strconv.Atoi(setting.Get(SettingSessionNumber, "3"))
	proxyPort, _ := strconv.Atoi(setting.Get(SettingProxyPort, "0"))

	g.host = u.Host
	g.signer.key = setting.Get(SettingKey, "")
	g.signer.secret = setting.Get(SettingSecret, "")
	g.signer.host = u.Host
	g.orderID = idgen.NewTimeOrderID()

	g.client.Configure(restHost, setting.Get(SettingProxyHost, ""), proxyPort)
	g.client.Start(sessions)
	g.WriteLog("REST API 启动成功")

	g.queryContract()
	g.queryAccountID()
	g.queryOrder()
	return nil
}

// Close 停止 REST 客户端
func (g *Gateway) Close() {
	g.client.Stop()
	g.client.Wait()
}

// Subscribe REST 网关不提供行情推送
func (g *Gateway) Subscribe(req domain.SubscribeRequest) error {
	g.WriteLog("%s 行情订阅不支持（仅 REST）", req.VtSymbol())
	return nil
}

// Order 网关本地记录的订单
func (g *Gateway) Order(orderID string) (*domain.Order, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	o, ok := g.orders[orderID]
	return o, ok
}

// AccountID 现货账户 id
func (g *Gateway) AccountID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.accountID
}

// onOrder 记录本地订单后投递拷贝（总线上的订单对象不可再修改）
func (g *Gateway) onOrder(order *domain.Order) {
	snapshot := *order
	g.mu.Lock()
	g.orders[order.OrderID] = &snapshot
	g.mu.Unlock()
	g.OnOrder(&snapshot)
}

// SendOrder 下单：先以 submitting 状态推送订单，回报失败时改为 rejected
func (g *Gateway) SendOrder(req domain.OrderRequest) string {
	huobiType := orderTypeVt2Huobi[orderKind{req.Direction, req.Type}]
	orderID := g.orderID.Next()
	order := req.CreateOrder(orderID, g.Name())
	order.Time = time.Now().In(chinaTZ).Format("15:04:05")

	data := map[string]any{
		"account-id":      g.AccountID(),
		"amount":          req.Volume.String(),
		"symbol":          req.Symbol,
		"type":            huobiType,
		"price":           req.Price.String(),
		"source":          "api",
		"client-order-id": orderID,
	}
	// 先推送 submitting，保证后续的拒单回报不会被它覆盖
	g.onOrder(order)
	g.client.Submit("POST", "/v1/order/orders/place", g.onSendOrder,
		rest.WithData(data),
		rest.WithExtra(order),
		rest.OnFailed(g.onSendOrderFailed),
		rest.OnError(g.onSendOrderError),
	)
	return order.VtOrderID()
}

// CancelOrder 按 client-order-id 撤单
func (g *Gateway) CancelOrder(req domain.CancelRequest) {
	data := map[string]any{"client-order-id": req.OrderID}
	g.client.Submit("POST", "/v1/order/orders/submitCancelClientOrder", g.onCancelOrder,
		rest.WithData(data),
		rest.WithExtra(req),
		rest.OnError(g.onCancelOrderError),
	)
}

// QueryAccount 查询现货账户余额
func (g *Gateway) QueryAccount() {
	accountID := g.AccountID()
	if accountID == "" {
		g.WriteLog("账户代码未就绪，跳过余额查询")
		return
	}
	g.client.Submit("GET", fmt.Sprintf("/v1/account/accounts/%s/balance", accountID), g.onQueryBalance)
}

// QueryPosition 现货没有持仓
func (g *Gateway) QueryPosition() {}

// QueryHistory 同步查询历史 K 线（最多 2000 根，按时间升序返回）
func (g *Gateway) QueryHistory(req domain.HistoryRequest) ([]*domain.Bar, error) {
	period, ok := intervalVt2Huobi[req.Interval]
	if !ok {
		return nil, fmt.Errorf("huobi: unsupported interval %q", req.Interval)
	}
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("period", period)
	params.Set("size", "2000")

	resp, err := g.client.Request("GET", "/market/history/kline", rest.WithParams(params))
	if err != nil {
		g.WriteError("获取历史数据失败: %v", err)
		return nil, err
	}
	if !resp.IsSuccess() {
		g.WriteError("获取历史数据失败，状态码：%d, 信息：%s", resp.StatusCode(), resp.String())
		return nil, fmt.Errorf("huobi: history status %d", resp.StatusCode())
	}

	var payload struct {
		envelope
		Data []klineData `json:"data"`
	}
	if err := decode(resp.Body(), &payload); err != nil {
		return nil, err
	}
	if g.checkError(payload.envelope, "获取历史数据") {
		return nil, fmt.Errorf("huobi: %s %s", payload.ErrCode, payload.ErrMsg)
	}
	if len(payload.Data) == 0 {
		g.WriteLog("获取历史数据为空")
		return nil, nil
	}

	// 交易所按时间倒序返回
	history := make([]*domain.Bar, 0, len(payload.Data))
	for i := len(payload.Data) - 1; i >= 0; i-- {
		d := payload.Data[i]
		dt := time.Unix(d.ID, 0).In(chinaTZ)
		if !req.Start.IsZero() && dt.Before(req.Start) {
			continue
		}
		if !req.End.IsZero() && dt.After(req.End) {
			continue
		}
		history = append(history, &domain.Bar{
			GatewayName: g.Name(),
			Symbol:      req.Symbol,
			Exchange:    req.Exchange,
			Datetime:    dt,
			Interval:    req.Interval,
			Volume:      d.Vol,
			OpenPrice:   d.Open,
			HighPrice:   d.High,
			LowPrice:    d.Low,
			ClosePrice:  d.Close,
		})
	}
	if len(history) > 0 {
		g.WriteLog("获取历史数据成功，%s - %s, %s - %s", req.Symbol, req.Interval,
			history[0].Datetime.Format(time.DateTime), history[len(history)-1].Datetime.Format(time.DateTime))
	}
	return history, nil
}

func (g *Gateway) queryContract() {
	g.client.Submit("GET", "/v1/common/symbols", g.onQueryContract)
}

func (g *Gateway) queryAccountID() {
	g.client.Submit("GET", "/v1/account/accounts", g.onQueryAccount)
}

func (g *Gateway) queryOrder() {
	g.client.Submit("GET", "/v1/order/openOrders", g.onQueryOrder)
}

func (g *Gateway) onQueryAccount(data any, _ *rest.Request) {
	var payload struct {
		envelope
		Data []accountData `json:"data"`
	}
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	if g.checkError(payload.envelope, "查询账户") {
		return
	}
	for _, d := range payload.Data {
		if d.Type != "spot" {
			continue
		}
		g.mu.Lock()
		g.accountID = d.ID.String()
		g.mu.Unlock()
		g.WriteLog("账户代码%s查询成功", d.ID)
		g.QueryAccount()
	}
}

func (g *Gateway) onQueryBalance(data any, _ *rest.Request) {
	var payload struct {
		envelope
		Data struct {
			List []balanceData `json:"list"`
		} `json:"data"`
	}
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	if g.checkError(payload.envelope, "查询余额") {
		return
	}

	accounts := map[string]*domain.Account{}
	var order []string
	for _, d := range payload.Data.List {
		acc, ok := accounts[d.Currency]
		if !ok {
			acc = &domain.Account{GatewayName: g.Name(), AccountID: d.Currency}
			accounts[d.Currency] = acc
			order = append(order, d.Currency)
		}
		acc.Balance = acc.Balance.Add(d.Balance)
		if d.Type == "frozen" {
			acc.Frozen = acc.Frozen.Add(d.Balance)
		}
	}
	for _, currency := range order {
		if acc := accounts[currency]; !acc.Balance.IsZero() {
			g.OnAccount(acc)
		}
	}
}

func (g *Gateway) onQueryOrder(data any, _ *rest.Request) {
	var payload struct {
		envelope
		Data []orderData `json:"data"`
	}
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	if g.checkError(payload.envelope, "查询委托") {
		return
	}

	for _, d := range payload.Data {
		kind := orderTypeHuobi2Vt[d.Type]
		status, ok := statusHuobi2Vt[d.State]
		if !ok {
			status = domain.StatusNotTraded
		}
		created := time.UnixMilli(d.CreatedAt).In(chinaTZ)
		g.onOrder(&domain.Order{
			GatewayName: g.Name(),
			OrderID:     d.ClientOrderID,
			Symbol:      d.Symbol,
			Exchange:    domain.ExchangeHuobi,
			Price:       d.Price,
			Volume:      d.Amount,
			Traded:      d.FilledAmount,
			Type:        kind.orderType,
			Direction:   kind.direction,
			Status:      status,
			Time:        created.Format("15:04:05"),
		})
	}
	g.WriteLog("委托查询成功")
}

func (g *Gateway) onQueryContract(data any, _ *rest.Request) {
	var payload struct {
		envelope
		Data []symbolData `json:"data"`
	}
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	if g.checkError(payload.envelope, "查询合约") {
		return
	}

	for _, d := range payload.Data {
		g.OnContract(&domain.Contract{
			GatewayName: g.Name(),
			Symbol:      d.Symbol,
			Exchange:    domain.ExchangeHuobi,
			Name:        fmt.Sprintf("%s/%s", upper(d.BaseCurrency), upper(d.QuoteCurrency)),
			PriceTick:   decimal.New(1, -d.PricePrecision),
			MinVolume:   decimal.New(1, -d.AmountPrecision),
			Size:        decimal.NewFromInt(1),
			Product:     domain.ProductSpot,
			HistoryData: true,
		})
	}
	g.WriteLog("合约信息查询成功")
}

func (g *Gateway) onSendOrder(data any, req *rest.Request) {
	var payload envelope
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	if g.checkError(payload, "委托") {
		g.rejectOrder(req)
	}
}

func (g *Gateway) onSendOrderFailed(statusCode int, req *rest.Request) {
	g.rejectOrder(req)
	g.WriteError("委托失败，状态码：%d,信息：%s", statusCode, responseText(req))
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

func (g *Gateway) onCancelOrder(data any, req *rest.Request) {
	cancel, _ := req.Extra.(domain.CancelRequest)
	order, ok := g.Order(cancel.OrderID)
	if !ok {
		return
	}

	var payload envelope
	if err := rest.Bind(data, &payload); err != nil {
		panic(err)
	}
	updated := *order
	if g.checkError(payload, "撤单") {
		updated.Status = domain.StatusRejected
	} else {
		updated.Status = domain.StatusCancelled
		g.WriteLog("委托撤单成功：%s", order.OrderID)
	}
	g.onOrder(&updated)
}

func (g *Gateway) onCancelOrderError(err error, req *rest.Request) {
	if rest.IsNetworkError(err) {
		g.Logger().Warnf("撤单网络异常: %v", err)
		return
	}
	g.OnError(err, req)
}

// OnError 实现 rest.ErrorHandler：写网关日志并输出完整异常报告
func (g *Gateway) OnError(err error, req *rest.Request) {
	g.WriteError("触发异常，信息：%v", err)
	g.Logger().Error(rest.ExceptionDetail(err, req))
}

// checkError 交易所业务错误（HTTP 200 但 status=error）
func (g *Gateway) checkError(e envelope, fn string) bool {
	if e.Status != "error" {
		return false
	}
	g.WriteError("%s请求出错，代码：%s,信息：%s", fn, e.ErrCode, e.ErrMsg)
	return true
}

func responseText(req *rest.Request) string {
	if req.Response == nil {
		return ""
	}
	return req.Response.String()
}
