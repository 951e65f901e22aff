package core

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/lock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.Cmdable) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNewHost(t *testing.T) {
	h := NewHost(&config.SchedulerConfig{SchedulerShards: 4, ClockOffsetMs: 1500})
	require.NotNil(t, h.Scheduler())

	data, ok, err := h.Call("create", "k", "cb", "5", "0", "", "", "0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", data)

	data, _, err = h.Call("status")
	require.NoError(t, err)
	assert.Equal(t, "Timers: 1, RWT: 0", data)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "grp:timerd:leader", LeaderKey("grp"))
	assert.Equal(t, "grp:timerd:status:n1", StatusKey("grp", "n1"))
}

func TestLeaderExclusive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ttl := 100 * time.Millisecond

	a := NewLeaderModule("leader", rdb, "grp", ttl, nil)
	require.NoError(t, a.OnInit())
	assert.True(t, mr.Exists(LeaderKey("grp")))

	b := NewLeaderModule("leader", rdb, "grp", ttl, nil)
	assert.ErrorIs(t, b.OnInit(), lock.ErrFailedLock)

	go a.Run()
	a.Destroy()
	assert.False(t, mr.Exists(LeaderKey("grp")))

	require.NoError(t, b.OnInit())
	go b.Run()
	b.Destroy()
}

func TestLeaderTinyTTL(t *testing.T) {
	_, rdb := newTestRedis(t)
	m := NewLeaderModule("leader", rdb, "grp", 0, nil)
	assert.Equal(t, defaultLeaderTTL, m.ttl)

	m = NewLeaderModule("leader", rdb, "grp2", 5*time.Nanosecond, nil)
	require.NotPanics(t, func() { _ = m.OnInit() })
	go m.Run()
	m.Destroy()
}

func TestLeaderLost(t *testing.T) {
	mr, rdb := newTestRedis(t)
	lost := make(chan struct{})
	m := NewLeaderModule("leader", rdb, "grp", 60*time.Millisecond, func() { close(lost) })
	require.NoError(t, m.OnInit())
	go m.Run()

	// 被其他实例抢占
	require.NoError(t, mr.Set(LeaderKey("grp"), "other"))
	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("lost callback not called")
	}
	m.Destroy()
	v, err := mr.Get(LeaderKey("grp"))
	require.NoError(t, err)
	assert.Equal(t, "other", v)
}

func TestLeaderRefresh(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ttl := 60 * time.Millisecond
	m := NewLeaderModule("leader", rdb, "grp", ttl, func() { t.Error("unexpected lost") })
	require.NoError(t, m.OnInit())
	go m.Run()
	defer m.Destroy()

	// 续期会把过期时间拉回ttl
	time.Sleep(3 * ttl)
	assert.True(t, mr.Exists(LeaderKey("grp")))
	assert.Greater(t, mr.TTL(LeaderKey("grp")), time.Duration(0))
}

func TestStatusPublish(t *testing.T) {
	mr, rdb := newTestRedis(t)
	h := NewHost(&config.SchedulerConfig{})
	_, _, err := h.Call("create", "k", "cb", "5", "0", "", "", "0")
	require.NoError(t, err)

	m := NewStatusModule("status", rdb, h.Scheduler(), "grp", "n1", 50*time.Millisecond)
	require.NoError(t, m.OnInit())
	key := StatusKey("grp", "n1")
	assert.Equal(t, "Timers: 1, RWT: 0", mr.HGet(key, "status"))
	assert.Equal(t, "1", mr.HGet(key, "timers"))
	assert.Equal(t, "1", mr.HGet(key, "last_id"))
	assert.Equal(t, 150*time.Millisecond, mr.TTL(key))

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()
	_, _, err = h.Call("fire", "5")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return mr.HGet(key, "status") == "Timers: 0, RWT: 0" && mr.HGet(key, "last_batch") == "1"
	}, 2*time.Second, 10*time.Millisecond)

	m.Destroy()
	<-done
	assert.False(t, mr.Exists(key))
}

func TestStatusInitError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()
	m := NewStatusModule("status", rdb, NewHost(&config.SchedulerConfig{}).Scheduler(), "grp", "n1", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, m.publish(ctx))
}
