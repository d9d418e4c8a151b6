package rest

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Status 请求状态，只会从 Ready 变为一个终态一次
type Status int32

const (
	StatusReady Status = iota
	StatusSuccess
	StatusFailed
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s != StatusReady
}

// SuccessFunc 2xx 回调。data 为解析后的 JSON（204 时为 nil）。
type SuccessFunc func(data any, req *Request)

// FailedFunc 非 2xx 回调
type FailedFunc func(statusCode int, req *Request)

// ErrorFunc 签名/传输/解析出错或成功回调 panic 时的回调
type ErrorFunc func(err error, req *Request)

// Request 一次 REST 请求及其回调。
// 入队后由唯一一个 worker 处理；Extra 由调用方自由使用，分发器不读写。
type Request struct {
	ID      string
	Method  string
	Path    string
	Params  url.Values
	Data    any // string/[]byte 原样发送，其它类型按 JSON 编码
	Headers map[string]string

	OnSuccess SuccessFunc
	OnFailed  FailedFunc
	OnError   ErrorFunc
	Extra     any

	// Response 在回调前写入，回调及 Done() 之后可读
	Response *resty.Response

	status   atomic.Int32
	doneOnce sync.Once
	done     chan struct{}
}

// RequestOption Submit/Request 的可选参数
type RequestOption func(*Request)

// WithParams 设置查询参数
func WithParams(params url.Values) RequestOption {
	return func(r *Request) {
		r.Params = params
	}
}

// WithData 设置请求体
func WithData(data any) RequestOption {
	return func(r *Request) {
		r.Data = data
	}
}

// WithHeaders 设置请求头
func WithHeaders(headers map[string]string) RequestOption {
	return func(r *Request) {
		r.Headers = headers
	}
}

// OnFailed 设置本请求的非 2xx 回调
func OnFailed(fn FailedFunc) RequestOption {
	return func(r *Request) {
		r.OnFailed = fn
	}
}

// OnError 设置本请求的错误回调
func OnError(fn ErrorFunc) RequestOption {
	return func(r *Request) {
		r.OnError = fn
	}
}

// WithExtra 附带调用方上下文（例如对应的订单）
func WithExtra(extra any) RequestOption {
	return func(r *Request) {
		r.Extra = extra
	}
}

// NewRequest 创建请求，状态为 Ready
func NewRequest(method, path string, onSuccess SuccessFunc, opts ...RequestOption) *Request {
	r := &Request{
		ID:        uuid.NewString(),
		Method:    strings.ToUpper(method),
		Path:      path,
		OnSuccess: onSuccess,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Params == nil {
		r.Params = url.Values{}
	}
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	return r
}

// Status 当前状态，可并发读取
func (r *Request) Status() Status {
	return Status(r.status.Load())
}

// Done 请求进入终态时关闭
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// finish 记录终态，只有第一次调用生效
func (r *Request) finish(s Status) bool {
	if !r.status.CompareAndSwap(int32(StatusReady), int32(s)) {
		return false
	}
	r.doneOnce.Do(func() { close(r.done) })
	return true
}

// StatusCode 响应码，没有响应时为 0
func (r *Request) StatusCode() int {
	if r.Response == nil {
		return 0
	}
	return r.Response.StatusCode()
}

// String 输出请求报告，用于失败/错误日志
func (r *Request) String() string {
	code := "terminated"
	text := ""
	if r.Response != nil {
		code = fmt.Sprintf("%d", r.Response.StatusCode())
		text = r.Response.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "request : %s %s %s because %s: \n", r.Method, r.Path, r.Status(), code)
	fmt.Fprintf(&b, "id: %s\n", r.ID)
	fmt.Fprintf(&b, "headers: %v\n", r.Headers)
	fmt.Fprintf(&b, "params: %s\n", r.Params.Encode())
	fmt.Fprintf(&b, "data: %s\n", formatData(r.Data))
	fmt.Fprintf(&b, "response:%s\n", text)
	return b.String()
}

func formatData(data any) string {
	switch d := data.(type) {
	case nil:
		return ""
	case string:
		return d
	case []byte:
		return string(d)
	default:
		return fmt.Sprintf("%v", d)
	}
}
