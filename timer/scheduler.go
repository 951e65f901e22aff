// Package timer 由宿主按帧驱动的定时器调度.
//
// 定时器分两个时间域: 逻辑时间(宿主每次调用传入的world time)和实时(墙上时钟).
// 每个时间域一个最小堆, 另有按id和按去重key的两个并发索引.
// Dispatch 取出所有到期定时器作为一批返回给宿主, 宿主没处理完的部分通过 Recover 交还.
package timer

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fixkme/timerd/clock"
	"github.com/fixkme/timerd/ds/shardmap"
	"github.com/fixkme/timerd/mlog"
)

type Scheduler struct {
	ticks    *timerQueue
	realtime *timerQueue

	byID  *shardmap.Map[uint64, *Timer]
	byKey *shardmap.Map[string, *Timer]

	genID atomic.Uint64
	clock clock.Clock

	// dispatch和recover互斥, batch是最近一次派发的结果
	dispatchMu sync.Mutex
	batch      []*Timer
}

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithShards 索引分片数
func WithShards(n int) Option {
	return func(s *Scheduler) {
		s.byID = shardmap.NewUint64[*Timer](n)
		s.byKey = shardmap.NewString[*Timer](n)
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		ticks:    newTimerQueue(false),
		realtime: newTimerQueue(true),
		byID:     shardmap.NewUint64[*Timer](0),
		byKey:    shardmap.NewString[*Timer](0),
		clock:    clock.Builtin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) queueOf(t *Timer) *timerQueue {
	if t.IsRealTime() {
		return s.realtime
	}
	return s.ticks
}

// Create 创建定时器. ok=false表示被去重策略拒绝
func (s *Scheduler) Create(req CreateRequest) (id uint64, ok bool, err error) {
	if err = req.validate(); err != nil {
		return 0, false, err
	}
	t := &Timer{
		Key:      req.Key,
		Callback: req.Callback,
		Due:      req.Due,
		Interval: req.Interval,
		Source:   req.Source,
		Name:     req.Name,
		Flags:    req.Flags,
	}
	if t.IsRealTime() {
		t.RealDue = s.clock.Now().Add(clock.Deciseconds(t.Interval))
	}

	if t.Key != "" {
		if prev, exist := s.byKey.Load(t.Key); exist {
			if !t.Flags.Has(Override) {
				mlog.Debugf("timer create rejected, key:%s held by %d", t.Key, prev.ID)
				return 0, false, nil
			}
			// 不带Unique时旧的留在队列里, key索引指向新的
			if t.Flags.Has(Unique) && s.dequeue(prev) {
				t.ID = prev.ID
				mlog.Debugf("timer %d replaced in place, key:%s", t.ID, t.Key)
			}
		}
	}
	if t.ID == 0 {
		t.ID = s.genID.Add(1)
	}

	s.enqueue(t)
	return t.ID, true, nil
}

// 先更新索引再入堆, 都在队列锁内
func (s *Scheduler) enqueue(t *Timer) {
	q := s.queueOf(t)
	q.mu.Lock()
	defer q.mu.Unlock()
	s.byID.Store(t.ID, t)
	if t.Key != "" {
		s.byKey.Store(t.Key, t)
	}
	q.q.Push(t)
}

// dequeue t仍在队列中时移出队列和索引
func (s *Scheduler) dequeue(t *Timer) bool {
	q := s.queueOf(t)
	q.mu.Lock()
	defer q.mu.Unlock()
	if cur, ok := q.q.Get(t.ID); !ok || cur != t {
		return false
	}
	q.q.Remove(t.ID)
	s.unindex(t)
	return true
}

// 只删除仍指向t的索引项, 不影响同key更新的定时器
func (s *Scheduler) unindex(t *Timer) {
	s.byID.CompareAndDelete(t.ID, t)
	if t.Key != "" {
		s.byKey.CompareAndDelete(t.Key, t)
	}
}

// Cancel 只能取消带Stoppable的定时器
func (s *Scheduler) Cancel(id uint64) (uint64, bool) {
	t, ok := s.byID.Load(id)
	if !ok {
		return 0, false
	}
	return s.stop(t)
}

func (s *Scheduler) CancelByKey(key string) (uint64, bool) {
	if key == "" {
		return 0, false
	}
	t, ok := s.byKey.Load(key)
	if !ok {
		return 0, false
	}
	return s.stop(t)
}

func (s *Scheduler) stop(t *Timer) (uint64, bool) {
	if !t.Flags.Has(Stoppable) {
		return 0, false
	}
	if !s.dequeue(t) {
		return 0, false
	}
	return t.ID, true
}

// Invoke 立即触发, 不检查Stoppable. 宿主把返回的id当作已派发处理
func (s *Scheduler) Invoke(id uint64) (uint64, bool) {
	t, ok := s.byID.Load(id)
	if !ok || !s.dequeue(t) {
		return 0, false
	}
	return t.ID, true
}

// Remaining 剩余时间. 实时定时器返回0.1秒为单位的值
func (s *Scheduler) Remaining(now float64, id uint64) (float64, bool) {
	t, ok := s.byID.Load(id)
	if !ok {
		return 0, false
	}
	if t.IsRealTime() {
		return t.RealDue.Sub(s.clock.Now()).Seconds() * 10, true
	}
	return t.Due - now, true
}

// Lookup 返回定时器快照
func (s *Scheduler) Lookup(id uint64) (Timer, bool) {
	t, ok := s.byID.Load(id)
	if !ok {
		return Timer{}, false
	}
	return *t, true
}

func (s *Scheduler) Status() string {
	return fmt.Sprintf("Timers: %d, RWT: %d", s.ticks.Len(), s.realtime.Len())
}

type Stats struct {
	Timers    int    `json:"timers"`
	RealTime  int    `json:"realtime"`
	ByID      int    `json:"by_id"`
	ByKey     int    `json:"by_key"`
	LastBatch int    `json:"last_batch"`
	LastID    uint64 `json:"last_id"`
}

func (s *Scheduler) Stats() Stats {
	s.dispatchMu.Lock()
	lastBatch := len(s.batch)
	s.dispatchMu.Unlock()
	return Stats{
		Timers:    s.ticks.Len(),
		RealTime:  s.realtime.Len(),
		ByID:      s.byID.Len(),
		ByKey:     s.byKey.Len(),
		LastBatch: lastBatch,
		LastID:    s.genID.Load(),
	}
}
