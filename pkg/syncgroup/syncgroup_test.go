package syncgroup

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSyncGroup_RunAndWait(t *testing.T) {
	g := NewSyncGroup()
	var n atomic.Int32
	for i := 0; i < 3; i++ {
		g.Add(func() {
			time.Sleep(10 * time.Millisecond)
			n.Add(1)
		})
	}
	g.Add(nil)

	g.Run()
	g.Wait()

	assert.Equal(t, int32(3), n.Load())
	assert.Equal(t, 0, g.Running())
}

func TestSyncGroup_RestartAfterClear(t *testing.T) {
	g := NewSyncGroup()
	var n atomic.Int32

	g.Add(func() { n.Add(1) })
	g.Run()
	g.WaitAndClear()

	// 第二轮
	g.Add(func() { n.Add(10) })
	g.Run()
	g.Run() // 没有新登记，不会重复启动
	g.WaitAndClear()

	assert.Equal(t, int32(11), n.Load())
}
