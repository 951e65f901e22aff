package shardmap

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapBasic(t *testing.T) {
	m := NewString[int](0)
	m.Store("a", 1)
	m.Store("b", 2)

	v, ok := m.Load("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, m.Len())

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.Equal(t, 0, m.Len())
}

func TestMapCompare(t *testing.T) {
	type item struct{ n int }
	a, b := &item{1}, &item{2}
	m := NewUint64[*item](4)
	m.Store(7, a)

	assert.False(t, m.CompareAndSwap(7, b, b))
	assert.True(t, m.CompareAndSwap(7, a, b))
	assert.False(t, m.CompareAndDelete(7, a))
	assert.True(t, m.CompareAndDelete(7, b))
	assert.False(t, m.CompareAndSwap(8, a, b))
	assert.Equal(t, 0, m.Len())
}

func TestMapConcurrentWriters(t *testing.T) {
	m := NewUint64[int](8)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				id := uint64(w*1000 + i)
				m.Store(id, i)
				if i%2 == 0 {
					m.Delete(id)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 4*250, m.Len())
}

func TestMapRange(t *testing.T) {
	m := NewString[int](2)
	for i := 0; i < 10; i++ {
		m.Store(fmt.Sprintf("k%d", i), i)
	}
	sum := 0
	m.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 45, sum)

	seen := 0
	m.Range(func(k string, _ int) bool {
		m.Delete(k)
		seen++
		return seen < 3
	})
	assert.Equal(t, 3, seen)
	assert.Equal(t, 7, m.Len())
}
