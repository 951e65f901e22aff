package core

import (
	"context"
	"sync"
	"time"

	"github.com/fixkme/timerd/lock"
	"github.com/fixkme/timerd/mlog"
	"github.com/redis/go-redis/v9"
)

// LeaderModule 调度状态只在进程内, 同一个群组只允许一个节点对外服务.
// 初始化时抢锁, 运行中定期续期, 锁丢失时调用onLost
type LeaderModule struct {
	rl      *lock.RedLock
	key     string
	ttl     time.Duration
	onLost  func()
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped chan struct{} // Run退出时关闭, Run未执行时为nil
	name    string
}

const defaultLeaderTTL = 10 * time.Second

func NewLeaderModule(name string, rdb redis.Cmdable, group string, ttl time.Duration, onLost func()) *LeaderModule {
	if ttl <= 0 {
		ttl = defaultLeaderTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LeaderModule{
		rl:     lock.NewRedLock(rdb, ""),
		key:    LeaderKey(group),
		ttl:    ttl,
		onLost: onLost,
		ctx:    ctx,
		cancel: cancel,
		name:   name,
	}
}

// OnInit 最多等待一个ttl
func (m *LeaderModule) OnInit() error {
	if err := m.rl.Lock(m.ctx, m.key, m.ttl, m.ttl/10); err != nil {
		return err
	}
	mlog.Infof("%s acquired %s as %s", m.name, m.key, m.rl.Entity())
	return nil
}

func (m *LeaderModule) Run() {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	m.stopped = make(chan struct{})
	m.mu.Unlock()
	defer close(m.stopped)
	interval := m.ttl / 3
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
		}
		ok, err := m.rl.Refresh(m.ctx, m.key, m.ttl)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			// 网络抖动, 下次再试, 超过ttl后锁自然丢失
			mlog.Warnf("%s refresh %s error: %v", m.name, m.key, err)
			continue
		}
		if !ok {
			mlog.Errorf("%s lost %s", m.name, m.key)
			if m.onLost != nil {
				m.onLost()
			}
			return
		}
	}
}

func (m *LeaderModule) Destroy() {
	m.mu.Lock()
	m.cancel()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped != nil {
		<-stopped
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := m.rl.UnLock(ctx, m.key); err != nil {
		mlog.Warnf("%s unlock %s error: %v", m.name, m.key, err)
	}
}

func (m *LeaderModule) Name() string {
	return m.name
}
