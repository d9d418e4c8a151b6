// Package syncgroup 包装 sync.WaitGroup，用于管理一组长期运行的后台 goroutine（分发循环、定时器、worker）。
package syncgroup

import (
	"sync"
)

// SyncGroup 先 Add 再 Run，Run 之后由 Wait/WaitAndClear 等待全部退出。
// 自动配对 Add()/Done()，避免遗漏 Done()。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	pending []func()
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 登记一个待启动的函数，nil 会被忽略
func (g *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}
	g.mu.Lock()
	g.pending = append(g.pending, fn)
	g.mu.Unlock()
}

// Run 启动所有已登记的函数，并清空登记列表（不会重复启动）
func (g *SyncGroup) Run() {
	g.mu.Lock()
	fns := g.pending
	g.pending = nil
	g.running += len(fns)
	g.wg.Add(len(fns))
	g.mu.Unlock()

	for _, fn := range fns {
		go func(do func()) {
			defer func() {
				g.mu.Lock()
				g.running--
				g.mu.Unlock()
				g.wg.Done()
			}()
			do()
		}(fn)
	}
}

// Running 返回仍在运行的 goroutine 数
func (g *SyncGroup) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Wait 等待所有已启动的 goroutine 退出
func (g *SyncGroup) Wait() {
	g.wg.Wait()
}

// WaitAndClear 等待退出并丢弃尚未 Run 的登记，之后可以重新 Add/Run
func (g *SyncGroup) WaitAndClear() {
	g.wg.Wait()

	g.mu.Lock()
	g.pending = nil
	g.mu.Unlock()
}
