// Package server 只读控制面：通过 HTTP 暴露 OMS 中的行情、订单、成交、持仓、账户和合约快照。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/metrics"
)

// State 控制面读取的状态快照，由 oms.Store 实现
type State interface {
	Tick(vtSymbol string) (*domain.Tick, bool)
	Order(vtOrderID string) (*domain.Order, bool)
	Ticks() []*domain.Tick
	Orders() []*domain.Order
	Trades() []*domain.Trade
	Positions() []*domain.Position
	Accounts() []*domain.Account
	Contracts() []*domain.Contract
	ActiveOrders(vtSymbol string) []*domain.Order
}

type Config struct {
	Listen string
	// GatewayNames 可选，/healthz 中返回
	GatewayNames func() []string
}

type Server struct {
	cfg   Config
	state State
	log   *logrus.Entry

	mu   sync.Mutex
	http *http.Server
}

func New(cfg Config, state State) (*Server, error) {
	if state == nil {
		return nil, errors.New("state is required")
	}
	return &Server{
		cfg:   cfg,
		state: state,
		log:   logrus.WithField("component", "controlplane"),
	}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealthz)

	api := r.Group("/api")
	api.GET("/ticks", s.handleTicks)
	api.GET("/ticks/:vtSymbol", s.handleTick)
	api.GET("/orders", s.handleOrders)
	api.GET("/orders/active", s.handleActiveOrders)
	api.GET("/orders/:vtOrderID", s.handleOrder)
	api.GET("/trades", s.handleTrades)
	api.GET("/positions", s.handlePositions)
	api.GET("/accounts", s.handleAccounts)
	api.GET("/contracts", s.handleContracts)
	api.GET("/metrics", s.handleMetrics)

	return r
}

// Start 非阻塞启动 HTTP 服务，返回实际监听地址
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return "", err
	}
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("controlplane 退出: %v", err)
		}
	}()
	s.log.Infof("controlplane listening on %s", ln.Addr().String())
	return ln.Addr().String(), nil
}

// Close 优雅关闭 HTTP 服务
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	resp := gin.H{"status": "ok", "time": time.Now().UTC()}
	if s.cfg.GatewayNames != nil {
		resp["gateways"] = s.cfg.GatewayNames()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleTicks(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Ticks())
}

func (s *Server) handleTick(c *gin.Context) {
	tick, ok := s.state.Tick(c.Param("vtSymbol"))
	if !ok {
		notFound(c, "tick")
		return
	}
	c.JSON(http.StatusOK, tick)
}

func (s *Server) handleOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Orders())
}

func (s *Server) handleActiveOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.ActiveOrders(c.Query("vt_symbol")))
}

func (s *Server) handleOrder(c *gin.Context) {
	order, ok := s.state.Order(c.Param("vtOrderID"))
	if !ok {
		notFound(c, "order")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleTrades(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Trades())
}

func (s *Server) handlePositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Positions())
}

func (s *Server) handleAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Accounts())
}

func (s *Server) handleContracts(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Contracts())
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, metrics.Snapshot())
}

func notFound(c *gin.Context, what string) {
	c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
}
