// Package dispatch 决策优先级分发队列
//
// 有界（容量 10）优先级容器：Critical > High > Medium > Low > Background，
// 同优先级按入队顺序（FIFO）。超出容量时逐出最低优先级中最旧的一条，
// 逐出静默完成，只计入指标
package dispatch

import (
	"container/heap"
	"sync"

	"wisefido-motion-coach/internal/models"
)

// Queue 优先级分发队列
type Queue struct {
	mu    sync.Mutex
	items decisionHeap
	cap   int
	seq   uint64
}

// NewQueue 创建容量为 capacity 的队列
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{cap: capacity}
}

// Push 入队；超出容量时返回被逐出的条目（否则为 nil）
func (q *Queue) Push(d *models.Decision) *models.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.items, &queueItem{decision: d, seq: q.seq})

	if q.items.Len() <= q.cap {
		return nil
	}

	// 逐出最低优先级中最旧的一条
	evictIdx := 0
	for i := 1; i < q.items.Len(); i++ {
		worst := q.items[evictIdx]
		cand := q.items[i]
		if cand.decision.Priority < worst.decision.Priority ||
			(cand.decision.Priority == worst.decision.Priority && cand.seq < worst.seq) {
			evictIdx = i
		}
	}
	evicted := heap.Remove(&q.items, evictIdx).(*queueItem)
	return evicted.decision
}

// Pop 出队最高优先级条目；队列为空时返回 nil
func (q *Queue) Pop() *models.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.items).(*queueItem)
	return item.decision
}

// Len 当前队列长度
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear 清空队列（会话重置时调用）
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.seq = 0
}

// ============================================
// container/heap 实现
// ============================================

type queueItem struct {
	decision *models.Decision
	seq      uint64 // 入队序号，同优先级 FIFO
	index    int
}

type decisionHeap []*queueItem

func (h decisionHeap) Len() int { return len(h) }

func (h decisionHeap) Less(i, j int) bool {
	if h[i].decision.Priority != h[j].decision.Priority {
		return h[i].decision.Priority > h[j].decision.Priority
	}
	return h[i].seq < h[j].seq
}

func (h decisionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *decisionHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *decisionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
