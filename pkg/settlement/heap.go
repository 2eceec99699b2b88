// Copyright 2025 Certen Protocol
//
// In-memory priority heap feeding each chain's worker loop: popped by
// priority (highest first), then by the time passed to Push (earliest
// first). The worker passes each request's next_attempt_at, which for a
// request not yet attempted is its enqueue time; a retried request is
// ordered by its rescheduled attempt time, not by when it was first
// enqueued. The durable queue of record is storexec.SettlementRepository; this
// heap is a per-process scheduling hint refreshed from DueForAttempt, not
// the source of truth (a restart simply re-populates it from the
// database).

package settlement

import (
	"container/heap"
	"time"
)

type queueItem struct {
	requestID   int64
	priority    uint8
	submittedAt time.Time
	index       int
}

// priorityHeap implements container/heap.Interface over queueItems, with
// higher priority popped first and FIFO among equal priorities.
type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].submittedAt.Before(h[j].submittedAt)
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// priorityQueue is a thread-unsafe wrapper the worker loop owns exclusively
// (single-writer per chain, per spec.md section 9).
type priorityQueue struct {
	h priorityHeap
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{h: priorityHeap{}}
	heap.Init(&pq.h)
	return pq
}

func (q *priorityQueue) Push(requestID int64, priority uint8, submittedAt time.Time) {
	heap.Push(&q.h, &queueItem{requestID: requestID, priority: priority, submittedAt: submittedAt})
}

func (q *priorityQueue) Pop() (*queueItem, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(&q.h).(*queueItem), true
}

func (q *priorityQueue) Len() int { return q.h.Len() }
