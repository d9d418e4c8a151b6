package onetoken

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/pkg/rest"
	"github.com/betbot/fxcore/pkg/websocket"
)

// dataStream 1Token 行情 WebSocket：auth 成功后（重）订阅全部合约，推送的盘口按档位写入 Tick
type dataStream struct {
	gw     *Gateway
	client *websocket.Client

	mu         sync.Mutex
	subscribed map[string]domain.SubscribeRequest
	ticks      map[string]*domain.Tick // contract symbol -> 最新 tick
}

var _ websocket.Handler = (*dataStream)(nil)

func newDataStream(gw *Gateway) *dataStream {
	return &dataStream{
		gw:         gw,
		subscribed: make(map[string]domain.SubscribeRequest),
		ticks:      make(map[string]*domain.Tick),
	}
}

func (s *dataStream) connect(cfg websocket.Config) {
	s.client = websocket.New(cfg, s)
	s.client.SetLogger(s.gw.Logger().WithField("component", "onetoken_ws"))
	s.client.Start(context.Background())
}

func (s *dataStream) close() {
	if s.client == nil {
		return
	}
	s.client.Stop()
	s.client.Join()
}

func contractSymbol(req domain.SubscribeRequest) string {
	return fmt.Sprintf("%s/%s", strings.ToLower(string(req.Exchange)), strings.ToLower(req.Symbol))
}

// subscribe 记录订阅并发送；未连接时等 auth 后统一补发
func (s *dataStream) subscribe(req domain.SubscribeRequest) error {
	contract := contractSymbol(req)

	s.mu.Lock()
	s.subscribed[req.VtSymbol()] = req
	if _, ok := s.ticks[contract]; !ok {
		s.ticks[contract] = &domain.Tick{
			GatewayName: s.gw.Name(),
			Symbol:      req.Symbol,
			Exchange:    req.Exchange,
			Name:        req.Symbol,
			Datetime:    time.Now().In(chinaTZ),
		}
	}
	s.mu.Unlock()

	if s.client == nil || !s.client.Connected() {
		return nil
	}
	return s.client.SendPacket(map[string]any{
		"uri":      "subscribe-single-tick-verbose",
		"contract": contract,
	})
}

func (s *dataStream) ping() error {
	if s.client == nil {
		return websocket.ErrNotConnected
	}
	return s.client.SendPacket(map[string]any{"uri": "ping"})
}

func (s *dataStream) OnConnected() {
	s.gw.WriteLog("行情Websocket API连接成功")
	if err := s.client.SendPacket(map[string]any{"uri": "auth"}); err != nil {
		s.OnError(err)
	}
}

func (s *dataStream) OnDisconnected() {
	s.gw.WriteLog("行情Websocket API连接断开")
}

func (s *dataStream) OnPacket(packet map[string]any) {
	uri, _ := packet["uri"].(string)
	switch uri {
	case "auth":
		s.onLogin()
	case "single-tick-verbose":
		s.onTick(packet["data"])
	}
}

func (s *dataStream) OnError(err error) {
	s.gw.WriteError("行情Websocket触发异常，信息：%v", err)
}

func (s *dataStream) onLogin() {
	s.gw.WriteLog("行情Websocket API登录成功")

	s.mu.Lock()
	reqs := make([]domain.SubscribeRequest, 0, len(s.subscribed))
	for _, req := range s.subscribed {
		reqs = append(reqs, req)
	}
	s.mu.Unlock()

	for _, req := range reqs {
		if err := s.subscribe(req); err != nil {
			s.OnError(err)
		}
	}
}

func (s *dataStream) onTick(data any) {
	var d tickData
	if err := rest.Bind(data, &d); err != nil {
		s.OnError(err)
		return
	}

	s.mu.Lock()
	tick, ok := s.ticks[d.Contract]
	if !ok {
		s.mu.Unlock()
		return
	}
	tick.LastPrice = d.Last
	if !d.Volume.IsZero() {
		tick.Volume = d.Volume
	}
	tick.Datetime = parseTime(d.Time)
	for n, l := range d.Bids {
		tick.SetBid(n+1, l.Price, l.Volume)
	}
	for n, l := range d.Asks {
		tick.SetAsk(n+1, l.Price, l.Volume)
	}
	snapshot := *tick
	s.mu.Unlock()

	s.gw.OnTick(&snapshot)
}
