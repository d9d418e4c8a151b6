package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/betbot/fxcore/internal/domain"
	"github.com/betbot/fxcore/internal/events"
)

// LogEngine 把 EventLog 写到 logrus
type LogEngine struct {
	bus     *events.Bus
	log     *logrus.Entry
	handler events.Handler
}

// NewLogEngine 注册 EventLog 处理器；entry 为 nil 时使用全局 logrus
func NewLogEngine(bus *events.Bus, entry *logrus.Entry) *LogEngine {
	if entry == nil {
		entry = logrus.WithField("component", "log_engine")
	}
	e := &LogEngine{bus: bus, log: entry}
	e.handler = events.Func(e.processLogEvent)
	bus.Register(events.EventLog, e.handler)
	return e
}

// Name 引擎名
func (e *LogEngine) Name() string {
	return "log"
}

// Close 注销处理器
func (e *LogEngine) Close() error {
	e.bus.Unregister(events.EventLog, e.handler)
	return nil
}

func logrusLevel(l domain.LogLevel) logrus.Level {
	switch l {
	case domain.LogLevelDebug:
		return logrus.DebugLevel
	case domain.LogLevelWarn:
		return logrus.WarnLevel
	case domain.LogLevelError:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

func (e *LogEngine) processLogEvent(ev events.Event) {
	l, ok := ev.Data.(*domain.Log)
	if !ok {
		return
	}
	entry := e.log
	if l.GatewayName != "" {
		entry = entry.WithField("gateway", l.GatewayName)
	}
	entry.Log(logrusLevel(l.Level), l.Msg)
}
