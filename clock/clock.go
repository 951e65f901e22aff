// Package clock 墙上时钟来源, 实时定时器和剩余时间查询都从这里取时间
package clock

import (
	"math"
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type builtin struct {
	offset time.Duration
}

func (c builtin) Now() time.Time {
	now := time.Now()
	if c.offset != 0 {
		now = now.Add(c.offset)
	}
	return now
}

// Builtin 系统时钟
var Builtin Clock = builtin{}

// WithOffset 带偏移的系统时钟, 调时测试用
func WithOffset(offset time.Duration) Clock {
	return builtin{offset: offset}
}

// Manual 手动推进的时钟
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// MaxDeciseconds Duration能表示的最大十分之一秒数
const MaxDeciseconds = float64(math.MaxInt64) / float64(time.Second/10)

// Deciseconds 十分之一秒转Duration, 超出范围时取最大值
func Deciseconds(ds float64) time.Duration {
	if ds >= MaxDeciseconds {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ds * float64(time.Second) / 10)
}
