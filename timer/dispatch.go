package timer

import (
	"github.com/fixkme/timerd/clock"
	"golang.org/x/sync/errgroup"
)

// Dispatch 取出两个时间域里所有到期的定时器.
// 逻辑时间域和now比较, 实时域和墙上时钟比较. 两个域并行收集, 全部完成后合并为一批,
// 先逻辑时间域后实时域, 各自按到期时间非递减. 结果替换上一批, 供Recover使用.
// 没有到期的返回nil.
func (s *Scheduler) Dispatch(now float64) []Dispatched {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	var tickFired, realFired []*Timer
	var g errgroup.Group
	g.Go(func() error {
		tickFired = s.drain(s.ticks,
			func(t *Timer) bool { return t.Due <= now },
			func(c *Timer) { c.Due = now + c.Interval })
		return nil
	})
	g.Go(func() error {
		wallNow := s.clock.Now()
		realFired = s.drain(s.realtime,
			func(t *Timer) bool { return !t.RealDue.After(wallNow) },
			func(c *Timer) { c.RealDue = wallNow.Add(clock.Deciseconds(c.Interval)) })
		return nil
	})
	_ = g.Wait()

	fired := make([]*Timer, 0, len(tickFired)+len(realFired))
	fired = append(fired, tickFired...)
	fired = append(fired, realFired...)
	s.batch = fired
	if len(fired) == 0 {
		return nil
	}

	out := make([]Dispatched, len(fired))
	for i, t := range fired {
		out[i] = Dispatched{ID: t.ID, Looping: t.Flags.Has(Loop)}
	}
	return out
}

// drain 弹出到期定时器. 循环定时器生成续期副本, 索引改指向副本;
// 副本在弹出结束后才入堆, 间隔为0的副本不会在同一次派发里再次到期
func (s *Scheduler) drain(q *timerQueue, due func(*Timer) bool, rearm func(*Timer)) []*Timer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fired, copies []*Timer
	for {
		t, ok := q.q.Peek()
		if !ok || !due(t) {
			break
		}
		q.q.Pop()
		if t.Flags.Has(Loop) {
			c := t.clone()
			rearm(c)
			copies = append(copies, c)
			s.byID.Store(c.ID, c)
			if c.Key != "" {
				s.byKey.CompareAndSwap(c.Key, t, c)
			}
		} else {
			s.unindex(t)
		}
		fired = append(fired, t)
	}
	for _, c := range copies {
		q.q.Push(c)
	}
	return fired
}

// LastBatch 最近一次派发的id, 诊断用
func (s *Scheduler) LastBatch() []Dispatched {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	out := make([]Dispatched, len(s.batch))
	for i, t := range s.batch {
		out[i] = Dispatched{ID: t.ID, Looping: t.Flags.Has(Loop)}
	}
	return out
}
