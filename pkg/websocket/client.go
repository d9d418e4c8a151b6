// Package websocket 提供自动重连的 JSON WebSocket 客户端：
// 断线后按退避间隔重连，每次连上都回调 OnConnected，由上层重新登录和订阅。
package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultHandshakeTimeout  = 10 * time.Second
	defaultReconnectDelay    = 2 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultBufferSize        = 4096
)

// ErrNotConnected 当前没有可用连接
var ErrNotConnected = errors.New("websocket: not connected")

// Config 连接配置
type Config struct {
	URL       string
	ProxyHost string
	ProxyPort int

	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts 连续重连失败上限，0 表示不限
	MaxReconnectAttempts int
	// PingInterval 协议层 ping 间隔，0 表示不发送
	PingInterval time.Duration

	ReadBufferSize  int
	WriteBufferSize int
}

func (c *Config) withDefaults() {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = defaultMaxReconnectDelay
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = defaultBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = defaultBufferSize
	}
}

// Handler 连接事件回调，均在读取 goroutine 中调用
type Handler interface {
	OnConnected()
	OnDisconnected()
	// OnPacket 收到一个 JSON 数据包（数字保留为 json.Number）
	OnPacket(packet map[string]any)
	OnError(err error)
}

// Client 自动重连的 WebSocket 客户端
type Client struct {
	config  Config
	handler Handler
	log     *logrus.Entry

	connMu sync.Mutex
	conn   *websocket.Conn

	runningMu sync.Mutex
	running   bool
	cancel    context.CancelFunc
	doneCh    chan struct{}
}

// New 创建客户端，Start 之前不会建立连接
func New(config Config, handler Handler) *Client {
	config.withDefaults()
	return &Client{
		config:  config,
		handler: handler,
		log:     logrus.WithField("component", "websocket"),
	}
}

// SetLogger 替换 logger
func (c *Client) SetLogger(l *logrus.Entry) {
	if l != nil {
		c.log = l
	}
}

// URL 连接地址
func (c *Client) URL() string {
	return c.config.URL
}

// Start 启动连接循环；重复调用无效
func (c *Client) Start(ctx context.Context) {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	if c.running {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.doneCh = make(chan struct{})
	c.running = true

	go c.run(ctx, c.doneCh)
	if c.config.PingInterval > 0 {
		go c.pingLoop(ctx)
	}
}

// Stop 关闭连接并停止重连，不等待读取 goroutine 退出
func (c *Client) Stop() {
	c.runningMu.Lock()
	if !c.running {
		c.runningMu.Unlock()
		return
	}
	c.running = false
	c.cancel()
	c.runningMu.Unlock()

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()
}

// Join 等待读取 goroutine 退出
func (c *Client) Join() {
	c.runningMu.Lock()
	done := c.doneCh
	c.runningMu.Unlock()
	if done != nil {
		<-done
	}
}

// Active 是否已启动且未停止
func (c *Client) Active() bool {
	c.runningMu.Lock()
	defer c.runningMu.Unlock()
	return c.running
}

// Connected 当前是否有连接
func (c *Client) Connected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn != nil
}

// SendPacket 以 JSON 文本帧发送
func (c *Client) SendPacket(packet any) error {
	b, err := json.Marshal(packet)
	if err != nil {
		return errors.Wrap(err, "websocket: encode packet")
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrap(err, "websocket: write")
	}
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	if c.config.ProxyHost != "" && c.config.ProxyPort > 0 {
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(c.config.ProxyHost, strconv.Itoa(c.config.ProxyPort)),
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
	}
	conn, _, err := dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "websocket: dial %s", c.config.URL)
	}
	return conn, nil
}

// run 连接 -> 读取 -> 断线 -> 退避重连
func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempts := 0
	for ctx.Err() == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempts++
			c.safeCall(func() { c.handler.OnError(err) })
			if c.config.MaxReconnectAttempts > 0 && attempts >= c.config.MaxReconnectAttempts {
				c.log.Errorf("达到最大重连次数 (%d)，停止重连", c.config.MaxReconnectAttempts)
				return
			}
			if !c.backoff(ctx, attempts) {
				return
			}
			continue
		}
		attempts = 0

		c.connMu.Lock()
		// Stop 可能发生在拨号期间
		if ctx.Err() != nil {
			c.connMu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.connMu.Unlock()

		c.log.Infof("已连接 %s", c.config.URL)
		c.safeCall(c.handler.OnConnected)

		c.readLoop(conn)

		c.connMu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.connMu.Unlock()
		_ = conn.Close()

		c.safeCall(c.handler.OnDisconnected)
		if ctx.Err() != nil {
			return
		}
		if !c.backoff(ctx, 1) {
			return
		}
	}
}

// backoff 线性退避，返回 false 表示已停止
func (c *Client) backoff(ctx context.Context, attempts int) bool {
	delay := c.config.ReconnectDelay * time.Duration(attempts)
	if delay > c.config.MaxReconnectDelay {
		delay = c.config.MaxReconnectDelay
	}
	c.log.Debugf("%v 后重连 (第 %d 次)", delay, attempts)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && c.Active() {
				c.log.Warnf("读取错误: %v", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	trimmed := bytes.TrimSpace(message)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		c.log.Debugf("忽略非 JSON 消息: %.100s", trimmed)
		return
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var packet map[string]any
	if err := dec.Decode(&packet); err != nil {
		c.safeCall(func() { c.handler.OnError(errors.Wrapf(err, "websocket: decode %.100s", trimmed)) })
		return
	}
	c.safeCall(func() { c.handler.OnPacket(packet) })
}

// safeCall 回调 panic 转给 OnError，读取循环继续
func (c *Client) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.WithStack(fmt.Errorf("websocket: handler panic: %v", r))
			c.log.Errorf("%+v", err)
			func() {
				defer func() { _ = recover() }()
				c.handler.OnError(err)
			}()
		}
	}()
	fn()
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout)); err != nil {
					c.log.Warnf("ping 发送失败: %v", err)
				}
			}
			c.connMu.Unlock()
		}
	}
}
