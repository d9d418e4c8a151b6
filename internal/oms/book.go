package oms

// book 保留插入顺序的 last-write-wins 映射：覆盖已有 key 不改变其位置。
// 本身不加锁，由 Store 的读写锁保护。
type book[T any] struct {
	keys  []string
	items map[string]T
}

func newBook[T any]() *book[T] {
	return &book[T]{items: make(map[string]T)}
}

func (b *book[T]) set(key string, v T) {
	if _, ok := b.items[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.items[key] = v
}

func (b *book[T]) get(key string) (T, bool) {
	v, ok := b.items[key]
	return v, ok
}

func (b *book[T]) len() int {
	return len(b.keys)
}

// list 按插入顺序返回快照
func (b *book[T]) list() []T {
	out := make([]T, 0, len(b.keys))
	for _, k := range b.keys {
		out = append(out, b.items[k])
	}
	return out
}

func (b *book[T]) delete(key string) bool {
	if _, ok := b.items[key]; !ok {
		return false
	}
	delete(b.items, key)
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i:i], b.keys[i+1:]...)
			break
		}
	}
	return true
}
