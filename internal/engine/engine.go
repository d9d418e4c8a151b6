// Package engine 主引擎：持有事件总线、网关和功能引擎，把上层调用路由到指定网关。
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
	"github.com/betbot/fxcore/internal/gateway"
	"github.com/betbot/fxcore/internal/oms"
)

// ErrEngineNotFound 找不到功能引擎
var ErrEngineNotFound = errors.New("engine: not found")

// Engine 功能引擎
type Engine interface {
	Name() string
	Close() error
}

// Option MainEngine 选项
type Option func(*MainEngine)

// WithEmail 邮件引擎配置
func WithEmail(settings EmailSettings, mailer Mailer) Option {
	return func(m *MainEngine) {
		m.emailSettings = settings
		m.mailer = mailer
	}
}

// MainEngine 主引擎
type MainEngine struct {
	bus *events.Bus
	log *logrus.Entry

	mu           sync.RWMutex
	gateways     map[string]gateway.Gateway
	gatewayNames []string
	engines      map[string]Engine
	engineNames  []string
	exchanges    []domain.Exchange

	emailSettings EmailSettings
	mailer        Mailer

	oms   *oms.Store
	email *EmailEngine
}

// New 创建主引擎并启动总线；bus 为 nil 时新建一个默认总线。
// 默认引擎：log、oms、email。
func New(bus *events.Bus, opts ...Option) *MainEngine {
	if bus == nil {
		bus = events.NewBus()
	}
	m := &MainEngine{
		bus:      bus,
		log:      logrus.WithField("component", "main_engine"),
		gateways: make(map[string]gateway.Gateway),
		engines:  make(map[string]Engine),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.bus.Start()
	m.initEngines()
	return m
}

func (m *MainEngine) initEngines() {
	m.AddEngine(NewLogEngine(m.bus, nil))
	m.oms = oms.New(m.bus)
	m.AddEngine(m.oms)
	m.email = NewEmailEngine(m.emailSettings, m.mailer)
	m.AddEngine(m.email)
}

// Bus 事件总线
func (m *MainEngine) Bus() *events.Bus {
	return m.bus
}

// OMS 订单管理引擎
func (m *MainEngine) OMS() *oms.Store {
	return m.oms
}

// AddEngine 添加功能引擎，同名覆盖
func (m *MainEngine) AddEngine(e Engine) Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.engines[e.Name()]; !ok {
		m.engineNames = append(m.engineNames, e.Name())
	}
	m.engines[e.Name()] = e
	return e
}

// AddGateway 添加网关并合并其交易所列表
func (m *MainEngine) AddGateway(g gateway.Gateway) gateway.Gateway {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.gateways[g.Name()]; !ok {
		m.gatewayNames = append(m.gatewayNames, g.Name())
	}
	m.gateways[g.Name()] = g

	for _, ex := range g.Exchanges() {
		if !containsExchange(m.exchanges, ex) {
			m.exchanges = append(m.exchanges, ex)
		}
	}
	return g
}

func containsExchange(list []domain.Exchange, ex domain.Exchange) bool {
	for _, e := range list {
		if e == ex {
			return true
		}
	}
	return false
}

// WriteLog 通过总线投递一条日志
func (m *MainEngine) WriteLog(msg, source string) {
	m.bus.Put(events.New(events.EventLog, domain.NewLog(source, msg)))
}

// Gateway 按名称取网关，找不到时写日志并返回 ErrGatewayNotFound
func (m *MainEngine) Gateway(name string) (gateway.Gateway, error) {
	m.mu.RLock()
	g, ok := m.gateways[name]
	m.mu.RUnlock()
	if !ok {
		m.WriteLog(fmt.Sprintf("找不到底层接口：%s", name), "")
		return nil, fmt.Errorf("%w: %s", gateway.ErrGatewayNotFound, name)
	}
	return g, nil
}

// Engine 按名称取功能引擎
func (m *MainEngine) Engine(name string) (Engine, error) {
	m.mu.RLock()
	e, ok := m.engines[name]
	m.mu.RUnlock()
	if !ok {
		m.WriteLog(fmt.Sprintf("找不到引擎：%s", name), "")
		return nil, fmt.Errorf("%w: %s", ErrEngineNotFound, name)
	}
	return e, nil
}

// DefaultSetting 网关默认连接参数
func (m *MainEngine) DefaultSetting(gatewayName string) (gateway.Setting, error) {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	return g.DefaultSetting(), nil
}

// GatewayNames 按添加顺序返回网关名
func (m *MainEngine) GatewayNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.gatewayNames...)
}

// Exchanges 所有网关支持的交易所（去重）
func (m *MainEngine) Exchanges() []domain.Exchange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Exchange(nil), m.exchanges...)
}

// Connect 连接指定网关
func (m *MainEngine) Connect(setting gateway.Setting, gatewayName string) error {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return err
	}
	return g.Connect(setting)
}

// Subscribe 订阅行情
func (m *MainEngine) Subscribe(req domain.SubscribeRequest, gatewayName string) error {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return err
	}
	return g.Subscribe(req)
}

// SendOrder 下单，网关不存在时返回空字符串
func (m *MainEngine) SendOrder(req domain.OrderRequest, gatewayName string) string {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return ""
	}
	return g.SendOrder(req)
}

// CancelOrder 撤单
func (m *MainEngine) CancelOrder(req domain.CancelRequest, gatewayName string) {
	if g, err := m.Gateway(gatewayName); err == nil {
		g.CancelOrder(req)
	}
}

// SendOrders 批量下单，网关不存在时每个请求对应一个空字符串
func (m *MainEngine) SendOrders(reqs []domain.OrderRequest, gatewayName string) []string {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return make([]string, len(reqs))
	}
	return gateway.SendOrders(g, reqs)
}

// CancelOrders 批量撤单
func (m *MainEngine) CancelOrders(reqs []domain.CancelRequest, gatewayName string) {
	if g, err := m.Gateway(gatewayName); err == nil {
		gateway.CancelOrders(g, reqs)
	}
}

// QueryHistory 同步查询历史 K 线
func (m *MainEngine) QueryHistory(req domain.HistoryRequest, gatewayName string) ([]*domain.Bar, error) {
	g, err := m.Gateway(gatewayName)
	if err != nil {
		return nil, err
	}
	return g.QueryHistory(req)
}

// SendEmail 异步发送邮件，receiver 为空时使用默认收件人
func (m *MainEngine) SendEmail(subject, content, receiver string) error {
	return m.email.SendEmail(subject, content, receiver)
}

// Close 停止总线，依次关闭功能引擎和网关
func (m *MainEngine) Close() {
	m.bus.Stop()

	m.mu.RLock()
	engines := make([]Engine, 0, len(m.engineNames))
	for _, name := range m.engineNames {
		engines = append(engines, m.engines[name])
	}
	gateways := make([]gateway.Gateway, 0, len(m.gatewayNames))
	for _, name := range m.gatewayNames {
		gateways = append(gateways, m.gateways[name])
	}
	m.mu.RUnlock()

	for _, e := range engines {
		if err := e.Close(); err != nil {
			m.log.Warnf("关闭引擎 %s 失败: %v", e.Name(), err)
		}
	}
	for _, g := range gateways {
		g.Close()
	}
}
