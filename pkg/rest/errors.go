package rest

import (
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ErrUnsupportedMethod 不支持的 HTTP 方法
var ErrUnsupportedMethod = errors.New("rest: unsupported method")

// NetworkError 传输层错误（连接失败、超时、连接被重置）
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("rest: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError 判断是否为网络类错误。网关在下单/撤单时用它区分“网络抖动”和真正的异常。
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

// panicError 成功回调中的 panic
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("rest: callback panic: %v", e.value)
}

// ExceptionDetail 生成未处理错误的报告，包含请求信息和调用栈
func ExceptionDetail(err error, req *Request) string {
	var b []byte
	b = fmt.Appendf(b, "[%s]: Unhandled RestClient Error:%T\n", time.Now().Format(time.RFC3339), errors.Cause(err))
	b = fmt.Appendf(b, "request:%s\n", req)
	b = fmt.Appendf(b, "Exception trace: \n%+v\n", err)
	return string(b)
}
