package timer

import (
	"fmt"

	"github.com/fixkme/timerd/mlog"
)

// Recover 宿主没处理完上一批时调用, id是第一个未处理的定时器.
// 从该项(含)开始到批次末尾全部放回队列; 循环定时器先撤掉派发时生成的续期副本.
// id不在上一批中时什么也不做. 返回放回的数量.
func (s *Scheduler) Recover(id uint64) int {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	idx := -1
	for i, t := range s.batch {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0
	}
	rest := s.batch[idx:]
	// 同一批只能交还一次
	s.batch = s.batch[:idx:idx]
	for _, t := range rest {
		s.restore(t)
	}
	mlog.Debugf("timer recover from %d, restored %d", id, len(rest))
	return len(rest)
}

func (s *Scheduler) restore(t *Timer) {
	if t.Flags.Has(Loop) {
		if cur, ok := s.byID.Load(t.ID); ok {
			s.dequeue(cur)
		}
	}
	// id不会复用, 走到这里说明索引和队列已经不一致
	if cur, ok := s.byID.Load(t.ID); ok && cur != t {
		panic(fmt.Sprintf("timer: restore %d but id still indexed to another timer", t.ID))
	}
	s.enqueue(t)
}
