package core

import (
	"context"
	"sync"
	"time"

	rdb "github.com/fixkme/timerd/db/redis"
	"github.com/fixkme/timerd/mlog"
	"github.com/fixkme/timerd/timer"
	"github.com/redis/go-redis/v9"
)

// StatusModule 定期把调度器统计写到redis hash, 过期时间是三个周期
type StatusModule struct {
	rdb      redis.Cmdable
	sched    *timer.Scheduler
	key      string
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopped  chan struct{}
	name     string
}

func NewStatusModule(name string, cli redis.Cmdable, sched *timer.Scheduler, group, node string, interval time.Duration) *StatusModule {
	ctx, cancel := context.WithCancel(context.Background())
	return &StatusModule{
		rdb:      cli,
		sched:    sched,
		key:      StatusKey(group, node),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
	}
}

func (m *StatusModule) OnInit() error {
	return m.publish(m.ctx)
}

func (m *StatusModule) Run() {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.stopped = make(chan struct{})
	m.mu.Unlock()
	defer close(m.stopped)
	rdb.Loop(m.ctx, m.name, m.interval, m.publish)
}

func (m *StatusModule) publish(ctx context.Context) error {
	st := m.sched.Stats()
	return rdb.PutHash(ctx, m.rdb, m.key, map[string]any{
		"status":     m.sched.Status(),
		"timers":     st.Timers,
		"realtime":   st.RealTime,
		"last_batch": st.LastBatch,
		"last_id":    st.LastID,
		"updated_at": time.Now().Unix(),
	}, 3*m.interval)
}

// Destroy 等最后一次写入结束再删除key
func (m *StatusModule) Destroy() {
	m.mu.Lock()
	m.cancel()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.rdb.Del(ctx, m.key).Err(); err != nil {
		mlog.Warnf("%s del %s error: %v", m.name, m.key, err)
	}
}

func (m *StatusModule) Name() string {
	return m.name
}
