package timer

import (
	"math"
	"sync"
	"time"

	"github.com/fixkme/timerd/clock"
	"github.com/fixkme/timerd/ds/pqueue"
	"github.com/fixkme/timerd/errs"
)

// Timer 一个延迟回调. 只记录到期时间, 回调由宿主执行
type Timer struct {
	ID       uint64
	Key      string  // 去重key, 空表示无
	Callback string  // 宿主自己解释的回调标识
	Interval float64 // 循环间隔; 实时定时器单位是0.1秒
	Source   string
	Name     string
	Flags    Flag
	Due      float64   // 逻辑时间到期值
	RealDue  time.Time // 实时到期时间
}

func (t *Timer) IsRealTime() bool {
	return t.Flags.Has(RealTime)
}

func (t *Timer) clone() *Timer {
	c := *t
	return &c
}

// CreateRequest 创建参数
type CreateRequest struct {
	Key      string
	Callback string
	Due      float64
	Interval float64
	Source   string
	Name     string
	Flags    Flag
}

func (r *CreateRequest) validate() error {
	if !nonNegative(r.Due) {
		return errs.InvalidArg.Printf("due %v", r.Due)
	}
	if !nonNegative(r.Interval) {
		return errs.InvalidArg.Printf("interval %v", r.Interval)
	}
	// 实时间隔换算成Duration不能溢出
	if r.Flags.Has(RealTime) && r.Interval >= clock.MaxDeciseconds {
		return errs.InvalidArg.Printf("realtime interval %v", r.Interval)
	}
	if !r.Flags.Valid() {
		return errs.InvalidArg.Printf("flags %d", uint32(r.Flags))
	}
	return nil
}

func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Dispatched 一次派发结果中的一项, Looping表示该id已经续期
type Dispatched struct {
	ID      uint64
	Looping bool
}

type timerQueue struct {
	mu       sync.Mutex
	q        *pqueue.Queue[*Timer]
	realTime bool
}

func newTimerQueue(realTime bool) *timerQueue {
	less := func(a, b *Timer) bool { return a.Due < b.Due }
	if realTime {
		less = func(a, b *Timer) bool { return a.RealDue.Before(b.RealDue) }
	}
	return &timerQueue{
		q:        pqueue.New(less, func(t *Timer) uint64 { return t.ID }),
		realTime: realTime,
	}
}

func (tq *timerQueue) Len() int {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return tq.q.Len()
}
