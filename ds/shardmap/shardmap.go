// Package shardmap 分片并发map, 每个分片一把自旋锁, 多个写者互不阻塞全表
package shardmap

import (
	"github.com/cespare/xxhash/v2"
	"github.com/fixkme/timerd/lock"
)

const defaultShards = 32

type shard[K comparable, V comparable] struct {
	mu lock.SpinLock
	m  map[K]V
}

type Map[K comparable, V comparable] struct {
	shards []shard[K, V]
	mask   uint64
	hash   func(K) uint64
}

// New 分片数向上取2的幂
func New[K comparable, V comparable](n int, hash func(K) uint64) *Map[K, V] {
	if n <= 0 {
		n = defaultShards
	}
	size := 1
	for size < n {
		size <<= 1
	}
	m := &Map[K, V]{
		shards: make([]shard[K, V], size),
		mask:   uint64(size - 1),
		hash:   hash,
	}
	for i := range m.shards {
		m.shards[i].m = make(map[K]V)
	}
	return m
}

func NewString[V comparable](n int) *Map[string, V] {
	return New[string, V](n, xxhash.Sum64String)
}

// NewUint64 自增id用乘法散列打散
func NewUint64[V comparable](n int) *Map[uint64, V] {
	return New[uint64, V](n, func(k uint64) uint64 { return k * 0x9E3779B97F4A7C15 })
}

func (m *Map[K, V]) shardOf(key K) *shard[K, V] {
	return &m.shards[m.hash(key)&m.mask]
}

func (m *Map[K, V]) Load(key K) (v V, ok bool) {
	s := m.shardOf(key)
	s.mu.Lock()
	v, ok = s.m[key]
	s.mu.Unlock()
	return
}

func (m *Map[K, V]) Store(key K, v V) {
	s := m.shardOf(key)
	s.mu.Lock()
	s.m[key] = v
	s.mu.Unlock()
}

func (m *Map[K, V]) Delete(key K) {
	s := m.shardOf(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

// CompareAndSwap 仅当当前值为old时替换
func (m *Map[K, V]) CompareAndSwap(key K, old, next V) bool {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && cur == old {
		s.m[key] = next
		return true
	}
	return false
}

// CompareAndDelete 仅当当前值为old时删除
func (m *Map[K, V]) CompareAndDelete(key K, old V) bool {
	s := m.shardOf(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && cur == old {
		delete(s.m, key)
		return true
	}
	return false
}

func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.m)
		s.mu.Unlock()
	}
	return n
}

// Range 逐分片快照后回调, fn里可以再操作map
func (m *Map[K, V]) Range(fn func(key K, v V) bool) {
	type kv struct {
		k K
		v V
	}
	var buf []kv
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		buf = buf[:0]
		for k, v := range s.m {
			buf = append(buf, kv{k, v})
		}
		s.mu.Unlock()
		for _, e := range buf {
			if !fn(e.k, e.v) {
				return
			}
		}
	}
}

func (m *Map[K, V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		s.m = make(map[K]V)
		s.mu.Unlock()
	}
}
