// Package metrics 进程内计数器（expvar）与调试服务。
package metrics

import (
	"expvar"
	"sort"
)

var (
	BusEventsPut        = expvar.NewInt("bus_events_put")
	BusEventsDispatched = expvar.NewInt("bus_events_dispatched")
	BusHandlerFaults    = expvar.NewInt("bus_handler_faults")

	RestRequestsSubmitted = expvar.NewInt("rest_requests_submitted")
	RestRequestsSuccess   = expvar.NewInt("rest_requests_success")
	RestRequestsFailed    = expvar.NewInt("rest_requests_failed")
	RestRequestsError     = expvar.NewInt("rest_requests_error")
	RestLatencyLastMs     = expvar.NewInt("rest_latency_last_ms")

	OrdersActive = expvar.NewInt("oms_orders_active")

	RecorderWrites = expvar.NewInt("recorder_writes")
	RecorderErrors = expvar.NewInt("recorder_errors")
)

var counters = map[string]*expvar.Int{
	"bus_events_put":          BusEventsPut,
	"bus_events_dispatched":   BusEventsDispatched,
	"bus_handler_faults":      BusHandlerFaults,
	"rest_requests_submitted": RestRequestsSubmitted,
	"rest_requests_success":   RestRequestsSuccess,
	"rest_requests_failed":    RestRequestsFailed,
	"rest_requests_error":     RestRequestsError,
	"rest_latency_last_ms":    RestLatencyLastMs,
	"oms_orders_active":       OrdersActive,
	"recorder_writes":         RecorderWrites,
	"recorder_errors":         RecorderErrors,
}

// Snapshot 当前全部计数器的值
func Snapshot() map[string]int64 {
	out := make(map[string]int64, len(counters))
	for name, v := range counters {
		out[name] = v.Value()
	}
	return out
}

// Names 计数器名（排序）
func Names() []string {
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
