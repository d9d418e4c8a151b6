package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"query":  r.URL.Query().Get("symbol"),
			"sig":    r.Header.Get("X-Sig"),
		})
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/fail", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"err":"maintenance"}`))
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	mux.HandleFunc("/garbage", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func startClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithPollInterval(20 * time.Millisecond), WithTimeout(2 * time.Second)}, opts...)
	c := New(opts...)
	c.Configure(baseURL, "", 0)
	c.Start(2)
	t.Cleanup(func() {
		c.Stop()
		c.Wait()
	})
	return c
}

func waitDone(t *testing.T, req *Request) {
	t.Helper()
	select {
	case <-req.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("request %s did not finish", req.Path)
	}
}

func TestClient_Success(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	var got map[string]any
	req := c.Submit("GET", "/ok", func(data any, req *Request) {
		got = data.(map[string]any)
	}, WithParams(url.Values{"symbol": {"btcusdt"}}))

	c.Join()
	waitDone(t, req)
	assert.Equal(t, StatusSuccess, req.Status())
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "btcusdt", got["query"])
	assert.Equal(t, 200, req.StatusCode())
}

func TestClient_NoContent(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	called := false
	var got any = "sentinel"
	req := c.Submit("DELETE", "/empty", func(data any, req *Request) {
		called = true
		got = data
	})

	c.Join()
	assert.Equal(t, StatusSuccess, req.Status())
	assert.True(t, called)
	assert.Nil(t, got)
}

func TestClient_FailedUsesRequestHandler(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	var successCalled atomic.Bool
	var code atomic.Int32
	req := c.Submit("GET", "/fail", func(any, *Request) { successCalled.Store(true) },
		OnFailed(func(statusCode int, req *Request) { code.Store(int32(statusCode)) }))

	c.Join()
	assert.Equal(t, StatusFailed, req.Status())
	assert.False(t, successCalled.Load())
	assert.Equal(t, int32(503), code.Load())
	assert.Contains(t, req.String(), "because 503")
	assert.Contains(t, req.String(), "maintenance")
}

type countingFailedHandler struct {
	n atomic.Int32
}

func (h *countingFailedHandler) OnFailed(int, *Request) { h.n.Add(1) }

func TestClient_FailedFallsBackToClientHandler(t *testing.T) {
	srv := newTestServer(t)
	h := &countingFailedHandler{}
	c := startClient(t, srv.URL, WithFailedHandler(h))

	c.Submit("GET", "/fail", nil)
	c.Submit("GET", "/fail", nil, OnFailed(func(int, *Request) {}))
	c.Join()

	assert.Equal(t, int32(1), h.n.Load())
}

func TestClient_DefaultFailedHandlerLogs(t *testing.T) {
	srv := newTestServer(t)
	logger, hook := logtest.NewNullLogger()
	c := startClient(t, srv.URL, WithLogger(logrus.NewEntry(logger)))

	var successCalls atomic.Int32
	req := c.Submit("GET", "/fail", func(any, *Request) { successCalls.Add(1) })
	c.Join()
	assert.Equal(t, StatusFailed, req.Status())
	assert.Equal(t, int32(0), successCalls.Load())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Contains(t, entry.Message, "GET /fail")
	assert.Contains(t, entry.Message, "maintenance")

	// worker 仍然可用
	req = c.Submit("GET", "/ok", func(any, *Request) { successCalls.Add(1) })
	c.Join()
	assert.Equal(t, StatusSuccess, req.Status())
	assert.Equal(t, int32(1), successCalls.Load())
}

func TestClient_TransportErrorIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := startClient(t, base)

	var gotErr error
	req := c.Submit("POST", "/v1/order", nil, OnError(func(err error, req *Request) { gotErr = err }))
	c.Join()

	assert.Equal(t, StatusError, req.Status())
	require.Error(t, gotErr)
	assert.True(t, IsNetworkError(gotErr))
	assert.Nil(t, req.Response)
	assert.Contains(t, req.String(), "because terminated")
}

func TestClient_SignErrorIsError(t *testing.T) {
	srv := newTestServer(t)
	signErr := errors.New("missing secret")
	c := startClient(t, srv.URL, WithSigner(SignerFunc(func(req *Request) (*Request, error) {
		return nil, signErr
	})))

	var gotErr error
	req := c.Submit("GET", "/ok", nil, OnError(func(err error, req *Request) { gotErr = err }))
	c.Join()

	assert.Equal(t, StatusError, req.Status())
	assert.ErrorIs(t, gotErr, signErr)
	assert.False(t, IsNetworkError(gotErr))
}

func TestClient_SuccessCallbackPanicBecomesError(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	var gotErr error
	req := c.Submit("GET", "/ok", func(any, *Request) { panic("bad payload") },
		OnError(func(err error, req *Request) { gotErr = err }))
	c.Join()

	assert.Equal(t, StatusError, req.Status())
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "bad payload")
}

func TestClient_DecodeErrorIsError(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	var successCalled atomic.Bool
	req := c.Submit("GET", "/garbage", func(any, *Request) { successCalled.Store(true) },
		OnError(func(error, *Request) {}))
	c.Join()

	assert.Equal(t, StatusError, req.Status())
	assert.False(t, successCalled.Load())
}

func TestClient_ErrorCallbackPanicKeepsWorkerAlive(t *testing.T) {
	srv := newTestServer(t)
	c := New(WithPollInterval(20 * time.Millisecond))
	c.Configure(srv.URL, "", 0)
	c.Start(1)
	defer func() {
		c.Stop()
		c.Wait()
	}()

	c.Submit("GET", "/fail", nil, OnFailed(func(int, *Request) { panic("handler bug") }))
	req := c.Submit("GET", "/ok", nil)
	c.Join()

	assert.Equal(t, StatusSuccess, req.Status())
}

func TestClient_SignerAppliedToQueuedAndSync(t *testing.T) {
	srv := newTestServer(t)
	var signed atomic.Int32
	signer := SignerFunc(func(req *Request) (*Request, error) {
		signed.Add(1)
		req.Headers["X-Sig"] = "signed-" + req.Method
		return req, nil
	})
	c := startClient(t, srv.URL, WithSigner(signer))

	var sig string
	c.Submit("GET", "/ok", func(data any, req *Request) {
		sig = data.(map[string]any)["sig"].(string)
	})
	c.Join()
	assert.Equal(t, "signed-GET", sig)

	resp, err := c.Request("GET", "/ok")
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, "signed-GET", body["sig"])
	assert.Equal(t, int32(2), signed.Load())
}

func TestClient_SyncRequestBypassesQueue(t *testing.T) {
	srv := newTestServer(t)
	c := New()
	c.Configure(srv.URL, "", 0)

	// 未 Start 也可以同步请求
	resp, err := c.Request("POST", "/echo", WithData(map[string]any{"a": 1}))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.JSONEq(t, `{"a":1}`, string(resp.Body()))
	assert.Equal(t, 0, c.Pending())
}

func TestClient_SyncRequestNilSignedFallsBack(t *testing.T) {
	srv := newTestServer(t)
	c := New(WithSigner(SignerFunc(func(*Request) (*Request, error) { return nil, nil })))
	c.Configure(srv.URL, "", 0)

	resp, err := c.Request("GET", "/ok", WithParams(url.Values{"symbol": {"btcusdt"}}))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, "btcusdt", body["query"])
}

func TestClient_JoinWaitsForAll(t *testing.T) {
	srv := newTestServer(t)
	c := startClient(t, srv.URL)

	const n = 30
	reqs := make([]*Request, 0, n)
	var mu sync.Mutex
	completed := 0
	for i := 0; i < n; i++ {
		path := "/ok"
		if i%3 == 0 {
			path = "/fail"
		}
		reqs = append(reqs, c.Submit("GET", path, func(any, *Request) {
			mu.Lock()
			completed++
			mu.Unlock()
		}, OnFailed(func(int, *Request) {
			mu.Lock()
			completed++
			mu.Unlock()
		})))
	}
	c.Join()

	for _, req := range reqs {
		assert.True(t, req.Status().Terminal())
	}
	mu.Lock()
	assert.Equal(t, n, completed)
	mu.Unlock()
}

func TestClient_StartIsIdempotent(t *testing.T) {
	c := New()
	c.Start(0)
	c.Start(8)
	assert.Equal(t, DefaultWorkers, c.Workers())
	assert.True(t, c.Active())

	c.Stop()
	c.Stop()
	c.Wait()
	assert.False(t, c.Active())
}

func TestClient_StopDoesNotDrainQueue(t *testing.T) {
	srv := newTestServer(t)
	c := New(WithPollInterval(20 * time.Millisecond))
	c.Configure(srv.URL, "", 0)
	c.Start(1)
	c.Stop()
	c.Wait()

	req := c.Submit("GET", "/ok", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatusReady, req.Status())
	assert.Equal(t, 1, c.Pending())
}

func TestRequest_FinishOnlyOnce(t *testing.T) {
	req := NewRequest("get", "/x", nil)
	assert.Equal(t, "GET", req.Method)
	assert.True(t, req.finish(StatusFailed))
	assert.False(t, req.finish(StatusSuccess))
	assert.Equal(t, StatusFailed, req.Status())
}

func TestBind(t *testing.T) {
	data, err := decodeJSON([]byte(`{"price":"8000.5","id":12345678901234567}`))
	require.NoError(t, err)

	var out struct {
		Price string      `json:"price"`
		ID    json.Number `json:"id"`
	}
	require.NoError(t, Bind(data, &out))
	assert.Equal(t, "8000.5", out.Price)
	assert.Equal(t, "12345678901234567", out.ID.String())
}
