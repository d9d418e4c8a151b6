package queue

// signal 是一个非阻塞的信号 channel，只通知“有变化”，不传递数据。
// 缓冲为 1，多次 emit 会合并成一次唤醒。
type signal struct {
	c chan struct{}
}

func newSignal() *signal {
	return &signal{c: make(chan struct{}, 1)}
}

func (s *signal) emit() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

func (s *signal) wait() <-chan struct{} {
	return s.c
}
