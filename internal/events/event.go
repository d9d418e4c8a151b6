package events

// 事件类型。带点号结尾的基础类型可以拼接实体 key 做定向订阅，
// 例如 EventTick + "btcusdt.HUOBI" 只接收该合约的行情。
const (
	EventTimer    = "eTimer"
	EventTick     = "eTick."
	EventBar      = "eBar."
	EventTrade    = "eTrade."
	EventOrder    = "eOrder."
	EventPosition = "ePosition."
	EventAccount  = "eAccount."
	EventContract = "eContract."
	EventLog      = "eLog"
)

// Event 总线上传递的事件，构造后不可修改。Data 由事件类型决定具体类型。
type Event struct {
	Type string
	Data any
}

// New 创建事件
func New(eventType string, data any) Event {
	return Event{Type: eventType, Data: data}
}

// Handler 事件处理器。处理器按身份比较（指针），注册/注销需要传入同一个值。
type Handler interface {
	Handle(Event)
}

// FuncHandler 把普通函数包装成 Handler，返回的指针就是它的身份
type FuncHandler struct {
	fn func(Event)
}

// Func 包装函数。调用方需要保留返回值用于 Unregister。
func Func(fn func(Event)) *FuncHandler {
	return &FuncHandler{fn: fn}
}

// Handle 实现 Handler
func (h *FuncHandler) Handle(e Event) {
	h.fn(e)
}
