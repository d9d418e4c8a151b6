package idgen

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_ConcurrentUnique(t *testing.T) {
	c := NewCounter(1_000_000)
	const goroutines, per = 50, 200

	var mu sync.Mutex
	seen := make(map[int64]bool, goroutines*per)

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, c.Next())
			}
			mu.Lock()
			for _, v := range local {
				seen[v] = true
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*per)
	assert.Equal(t, int64(1_000_000+goroutines*per), c.Current())

	// 无空洞
	values := make([]int64, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i, v := range values {
		assert.Equal(t, int64(1_000_001+i), v)
	}
}

func TestTimeOrderID(t *testing.T) {
	at := time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC)
	g := NewTimeOrderIDAt(at)
	assert.Equal(t, "20190304-050607-00000001", g.Next())
	assert.Equal(t, "20190304-050607-00000002", g.Next())
}

func TestTimeOrderID_ConcurrentUnique(t *testing.T) {
	g := NewTimeOrderID()
	ids := make(chan string, 500)

	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- g.Next()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, 500)
}

func TestNumericOrderID(t *testing.T) {
	base := ConnectTimeBase(time.Date(2019, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Equal(t, int64(190304050607), base)

	g := NewNumericOrderID(base)
	assert.Equal(t, int64(190304050607_000_001), g.Next())
	assert.Equal(t, int64(190304050607_000_002), g.Next())
}

func TestNonce_StrictlyIncreasing(t *testing.T) {
	n := NewNonce(time.Millisecond)
	fixed := time.Unix(1_700_000_000, 0)
	n.now = func() time.Time { return fixed }

	a := n.Next()
	b := n.Next()
	c := n.Next()
	assert.Equal(t, fixed.UnixMilli(), a)
	assert.Equal(t, a+1, b)
	assert.Equal(t, b+1, c)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]bool{}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := n.Next()
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 200)
}
