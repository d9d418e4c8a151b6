// Package rest 是异步 REST 请求分发器：固定数量的 worker 各自持有一个 HTTP 会话，
// 从同一个 FIFO 队列取请求、签名、发送，并按结果调用请求上的回调。
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/metrics"
	"github.com/betbot/fxcore/pkg/queue"
	"github.com/betbot/fxcore/pkg/ratelimit"
	"github.com/betbot/fxcore/pkg/syncgroup"
)

const (
	// DefaultWorkers Start(n<=0) 时的 worker 数
	DefaultWorkers = 3
	// DefaultTimeout 单次 HTTP 调用超时
	DefaultTimeout = 30 * time.Second
	// DefaultPollInterval worker 空闲时出队的等待上限
	DefaultPollInterval = time.Second
)

// Signer 发送前对请求签名（补 header/参数/请求体）。会被多个 worker 并发调用。
type Signer interface {
	Sign(req *Request) (*Request, error)
}

// SignerFunc 函数形式的 Signer
type SignerFunc func(req *Request) (*Request, error)

// Sign 实现 Signer
func (f SignerFunc) Sign(req *Request) (*Request, error) {
	return f(req)
}

// FailedHandler 客户端级的非 2xx 处理器，请求自身没有 OnFailed 时使用
type FailedHandler interface {
	OnFailed(statusCode int, req *Request)
}

// ErrorHandler 客户端级的错误处理器，请求自身没有 OnError 时使用
type ErrorHandler interface {
	OnError(err error, req *Request)
}

type identitySigner struct{}

func (identitySigner) Sign(req *Request) (*Request, error) {
	return req, nil
}

// Option Client 构造选项
type Option func(*Client)

// WithSigner 设置签名器
func WithSigner(s Signer) Option {
	return func(c *Client) {
		if s != nil {
			c.signer = s
		}
	}
}

// WithFailedHandler 设置客户端级非 2xx 处理器
func WithFailedHandler(h FailedHandler) Option {
	return func(c *Client) {
		c.failedHandler = h
	}
}

// WithErrorHandler 设置客户端级错误处理器
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Client) {
		c.errorHandler = h
	}
}

// WithTimeout 设置单次 HTTP 调用超时
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval 设置 worker 空闲出队等待时间
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithRateLimiter 发送前等待限流器
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithLogger 替换默认 logger
func WithLogger(l *logrus.Entry) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client 异步 REST 客户端
type Client struct {
	signer        Signer
	failedHandler FailedHandler
	errorHandler  ErrorHandler
	limiter       ratelimit.RateLimiter
	timeout       time.Duration
	pollInterval  time.Duration
	log           *logrus.Entry

	queue *queue.Queue[*Request]

	mu        sync.Mutex
	baseURL   string
	proxyHost string
	proxyPort int
	active    bool
	workers   int
	cancel    context.CancelFunc
	sg        *syncgroup.SyncGroup
}

// New 创建客户端，需要 Configure 后 Start
func New(opts ...Option) *Client {
	c := &Client{
		signer:       identitySigner{},
		timeout:      DefaultTimeout,
		pollInterval: DefaultPollInterval,
		log:          logrus.WithField("component", "rest_client"),
		queue:        queue.New[*Request](0),
		sg:           syncgroup.NewSyncGroup(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configure 设置 base URL 与代理。代理 host 和 port 都设置时才启用。
func (c *Client) Configure(baseURL, proxyHost string, proxyPort int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.proxyHost = proxyHost
	c.proxyPort = proxyPort
}

// BaseURL 返回配置的 base URL
func (c *Client) BaseURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseURL
}

// Start 启动 n 个 worker（n<=0 时为 DefaultWorkers）。已启动时忽略。
func (c *Client) Start(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}
	if n <= 0 {
		n = DefaultWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.active = true
	c.workers = n

	for i := 0; i < n; i++ {
		session := c.newSessionLocked()
		id := i
		c.sg.Add(func() { c.run(ctx, id, session) })
	}
	c.sg.Run()
	c.log.Infof("REST 客户端已启动: workers=%d base=%s", n, c.baseURL)
}

// Stop 通知 worker 退出：正在处理的请求会完成，队列里的请求不会被取消或处理。
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	c.cancel()
	c.log.Infof("REST 客户端停止中，队列剩余 %d 个请求", c.queue.Len())
}

// Wait 等待所有 worker 退出（Stop 之后调用）
func (c *Client) Wait() {
	c.sg.Wait()
}

// Active 是否在运行
func (c *Client) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Workers 最近一次 Start 的 worker 数
func (c *Client) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workers
}

// Pending 队列中等待处理的请求数
func (c *Client) Pending() int {
	return c.queue.Len()
}

// Join 阻塞直到所有已提交的请求都处理完（含回调）
func (c *Client) Join() {
	c.queue.Join()
}

// Submit 提交异步请求，立即返回。
func (c *Client) Submit(method, path string, onSuccess SuccessFunc, opts ...RequestOption) *Request {
	req := NewRequest(method, path, onSuccess, opts...)
	c.queue.Put(req)
	metrics.RestRequestsSubmitted.Add(1)
	return req
}

// Request 同步请求：在调用方 goroutine 执行，不经过队列和 worker，但同样签名。
func (c *Client) Request(method, path string, opts ...RequestOption) (*resty.Response, error) {
	req := NewRequest(method, path, nil, opts...)

	c.mu.Lock()
	session := c.newSessionLocked()
	c.mu.Unlock()

	signed, err := c.signer.Sign(req)
	if err != nil {
		return nil, errors.Wrap(err, "rest: sign")
	}
	if signed == nil {
		signed = req
	}
	resp, err := c.send(session, signed)
	if err != nil {
		return resp, err
	}
	signed.Response = resp
	return resp, nil
}

func (c *Client) newSessionLocked() *resty.Client {
	session := resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetRetryCount(0)
	if c.proxyHost != "" && c.proxyPort > 0 {
		session.SetProxy(fmt.Sprintf("http://%s:%d", c.proxyHost, c.proxyPort))
	}
	return session
}

func (c *Client) run(ctx context.Context, id int, session *resty.Client) {
	log := c.log.WithField("worker", id)
	log.Debug("worker 已启动")
	defer log.Debug("worker 已退出")

	for {
		if ctx.Err() != nil {
			return
		}
		req, ok := c.queue.Get(ctx, c.pollInterval)
		if !ok {
			continue
		}
		c.process(session, req)
	}
}

// process 处理一个请求：签名 -> 发送 -> 按结果回调。
// 失败/错误回调里的 panic 由这里兜底，worker 继续运行。
func (c *Client) process(session *resty.Client, req *Request) {
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("request_id", req.ID).Errorf("请求回调 panic: %v\n%s", r, debug.Stack())
		}
		_ = c.queue.TaskDone()
	}()

	start := time.Now()
	data, err := c.execute(session, req)
	metrics.RestLatencyLastMs.Set(time.Since(start).Milliseconds())

	if err != nil {
		req.finish(StatusError)
		metrics.RestRequestsError.Add(1)
		c.onError(err, req)
		return
	}

	if req.Response.IsSuccess() {
		if err := c.callSuccess(req, data); err != nil {
			req.finish(StatusError)
			metrics.RestRequestsError.Add(1)
			c.onError(err, req)
			return
		}
		req.finish(StatusSuccess)
		metrics.RestRequestsSuccess.Add(1)
		return
	}

	req.finish(StatusFailed)
	metrics.RestRequestsFailed.Add(1)
	c.onFailed(req.Response.StatusCode(), req)
}

// execute 签名并发送，2xx 时解析响应体（204 不解析）
func (c *Client) execute(session *resty.Client, req *Request) (any, error) {
	if c.limiter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.limiter.Wait(ctx)
		cancel()
		if err != nil {
			return nil, errors.Wrap(err, "rest: rate limit")
		}
	}

	signed, err := c.signer.Sign(req)
	if err != nil {
		return nil, errors.Wrap(err, "rest: sign")
	}
	if signed == nil {
		signed = req
	}

	resp, err := c.send(session, signed)
	if err != nil {
		return nil, err
	}
	req.Response = resp

	if !resp.IsSuccess() || resp.StatusCode() == 204 {
		return nil, nil
	}
	data, err := decodeJSON(resp.Body())
	if err != nil {
		return nil, errors.Wrap(err, "rest: decode response")
	}
	return data, nil
}

func (c *Client) callSuccess(req *Request, data any) (err error) {
	if req.OnSuccess == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(&panicError{value: r})
		}
	}()
	req.OnSuccess(data, req)
	return nil
}

func (c *Client) onFailed(statusCode int, req *Request) {
	switch {
	case req.OnFailed != nil:
		req.OnFailed(statusCode, req)
	case c.failedHandler != nil:
		c.failedHandler.OnFailed(statusCode, req)
	default:
		c.log.WithField("request_id", req.ID).Errorf("请求失败: status=%d\n%s", statusCode, req)
	}
}

func (c *Client) onError(err error, req *Request) {
	switch {
	case req.OnError != nil:
		req.OnError(err, req)
	case c.errorHandler != nil:
		c.errorHandler.OnError(err, req)
	default:
		c.log.WithField("request_id", req.ID).Error(ExceptionDetail(err, req))
	}
}

// send 发出 HTTP 请求。传输层错误包装为 NetworkError。
func (c *Client) send(session *resty.Client, req *Request) (*resty.Response, error) {
	rc := session.R()
	rc.SetHeader("Accept", "application/json")
	for k, v := range req.Headers {
		rc.SetHeader(k, v)
	}
	if len(req.Params) > 0 {
		rc.SetQueryParamsFromValues(req.Params)
	}
	if req.Data != nil {
		switch b := req.Data.(type) {
		case string:
			rc.SetBody(b)
		case []byte:
			rc.SetBody(b)
		default:
			if _, ok := req.Headers["Content-Type"]; !ok {
				rc.SetHeader("Content-Type", "application/json")
			}
			rc.SetBody(req.Data)
		}
	}

	var (
		resp *resty.Response
		err  error
	)
	switch req.Method {
	case "GET":
		resp, err = rc.Get(req.Path)
	case "POST":
		resp, err = rc.Post(req.Path)
	case "PUT":
		resp, err = rc.Put(req.Path)
	case "DELETE":
		resp, err = rc.Delete(req.Path)
	case "PATCH":
		resp, err = rc.Patch(req.Path)
	default:
		return nil, errors.Wrapf(ErrUnsupportedMethod, "%s", req.Method)
	}
	if err != nil {
		return resp, errors.WithStack(&NetworkError{Err: err})
	}
	return resp, nil
}

func decodeJSON(b []byte) (any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bind 把回调收到的 data 转成具体结构体
func Bind(data any, out any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
