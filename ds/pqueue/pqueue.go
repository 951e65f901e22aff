// Package pqueue 带位置索引的最小堆, 支持按id O(log n)删除任意元素
package pqueue

import (
	"container/heap"
	"fmt"
)

type entry[T any] struct {
	v   T
	id  uint64
	seq uint64 // 插入序号, 同优先级先进先出
}

type innerHeap[T any] struct {
	items []*entry[T]
	pos   map[uint64]int // id -> items下标
	less  func(a, b T) bool
}

func (h *innerHeap[T]) Len() int { return len(h.items) }

func (h *innerHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if h.less(a.v, b.v) {
		return true
	}
	if h.less(b.v, a.v) {
		return false
	}
	return a.seq < b.seq
}

func (h *innerHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.pos[h.items[i].id] = i
	h.pos[h.items[j].id] = j
}

func (h *innerHeap[T]) Push(x any) {
	e := x.(*entry[T])
	h.pos[e.id] = len(h.items)
	h.items = append(h.items, e)
}

func (h *innerHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	delete(h.pos, e.id)
	return e
}

// Queue 非并发安全, 由调用方加锁
type Queue[T any] struct {
	h   innerHeap[T]
	id  func(T) uint64
	seq uint64
}

func New[T any](less func(a, b T) bool, id func(T) uint64) *Queue[T] {
	return &Queue[T]{
		h:  innerHeap[T]{pos: make(map[uint64]int), less: less},
		id: id,
	}
}

func (q *Queue[T]) Len() int {
	return q.h.Len()
}

// Push 同一id重复入队属于调用方bug
func (q *Queue[T]) Push(v T) {
	id := q.id(v)
	if _, ok := q.h.pos[id]; ok {
		panic(fmt.Sprintf("pqueue: duplicate id %d", id))
	}
	q.seq++
	heap.Push(&q.h, &entry[T]{v: v, id: id, seq: q.seq})
}

func (q *Queue[T]) Peek() (v T, ok bool) {
	if q.h.Len() == 0 {
		return
	}
	return q.h.items[0].v, true
}

func (q *Queue[T]) Pop() (v T, ok bool) {
	if q.h.Len() == 0 {
		return
	}
	e := heap.Pop(&q.h).(*entry[T])
	return e.v, true
}

func (q *Queue[T]) Get(id uint64) (v T, ok bool) {
	i, ok := q.h.pos[id]
	if !ok {
		return
	}
	return q.h.items[i].v, true
}

func (q *Queue[T]) Contains(id uint64) bool {
	_, ok := q.h.pos[id]
	return ok
}

func (q *Queue[T]) Remove(id uint64) (v T, ok bool) {
	i, ok := q.h.pos[id]
	if !ok {
		return
	}
	e := heap.Remove(&q.h, i).(*entry[T])
	return e.v, true
}
