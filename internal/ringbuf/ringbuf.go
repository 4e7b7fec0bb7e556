// Package ringbuf 提供有界环形缓冲区
//
// 单写者约束：Append/Clear 只能由拥有该缓冲区的阶段调用；
// 其他阶段通过 Snapshot/Last 获取不可变拷贝读取，
// 不提供对底层存储的直接迭代
package ringbuf

import "sync"

// Buffer 有界环形缓冲区（FIFO 逐出，容量固定）
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int // 下一个写入位置
	size  int
}

// New 创建容量为 capacity 的环形缓冲区
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items: make([]T, capacity),
	}
}

// Append 追加一个元素，缓冲区已满时逐出最旧元素
func (b *Buffer[T]) Append(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Len 当前元素数量
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap 容量
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Snapshot 返回从旧到新排列的全部元素拷贝
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.copyLast(b.size)
}

// Last 返回最近 k 个元素的拷贝（从旧到新），不足 k 个时返回全部
func (b *Buffer[T]) Last(k int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if k > b.size {
		k = b.size
	}
	return b.copyLast(k)
}

// Latest 返回最新元素，缓冲区为空时 ok 为 false
func (b *Buffer[T]) Latest() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var zero T
	if b.size == 0 {
		return zero, false
	}
	idx := (b.head - 1 + len(b.items)) % len(b.items)
	return b.items[idx], true
}

// Clear 清空缓冲区（会话重置时调用）
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// copyLast 调用方需持有读锁
func (b *Buffer[T]) copyLast(k int) []T {
	out := make([]T, k)
	start := (b.head - k + len(b.items)*2) % len(b.items)
	for i := 0; i < k; i++ {
		out[i] = b.items[(start+i)%len(b.items)]
	}
	return out
}
