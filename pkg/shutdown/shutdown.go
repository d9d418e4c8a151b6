package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/fxcore/pkg/logger"
)

// Handler 关闭处理函数
type Handler func(ctx context.Context) error

type callback struct {
	name    string
	handler Handler
}

// Manager 优雅关闭管理器：同一阶段的回调并发执行，阶段之间按注册顺序串行
type Manager struct {
	mu     sync.Mutex
	stages [][]callback
}

// NewManager 创建新的关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 在新阶段注册关闭回调（晚于之前注册的回调执行）
func (m *Manager) OnShutdown(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, []callback{{name: name, handler: handler}})
}

// OnShutdownParallel 注册到最后一个阶段，与该阶段其他回调并发执行
func (m *Manager) OnShutdownParallel(name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stages) == 0 {
		m.stages = append(m.stages, nil)
	}
	last := len(m.stages) - 1
	m.stages[last] = append(m.stages[last], callback{name: name, handler: handler})
}

// Shutdown 执行所有关闭回调（阻塞调用）。
// ctx 应该带超时；超时后不再等待剩余回调，返回 ctx.Err()。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	stages := m.stages
	m.mu.Unlock()

	if len(stages) == 0 {
		logger.Info("没有注册的关闭回调")
		return nil
	}
	logger.Infof("开始优雅关闭，共 %d 个阶段", len(stages))

	for _, stage := range stages {
		var wg sync.WaitGroup
		wg.Add(len(stage))
		for _, cb := range stage {
			go func(cb callback) {
				defer wg.Done()
				if err := cb.handler(ctx); err != nil {
					logger.Warnf("关闭 %s 失败: %v", cb.name, err)
				}
			}(cb)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			logger.Warnf("关闭超时: %v", ctx.Err())
			return ctx.Err()
		}
	}

	logger.Info("所有关闭回调已完成")
	return nil
}
