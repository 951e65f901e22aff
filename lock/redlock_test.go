package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
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

func TestRedLockExclusive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	a := NewRedLock(rdb, "")
	b := NewRedLock(rdb, "")
	require.NotEqual(t, a.Entity(), b.Entity())

	ok, err := a.TryLock(ctx, "grp:timerd:leader", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = b.TryLock(ctx, "grp:timerd:leader", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者不能释放和续期
	released, err := b.UnLock(ctx, "grp:timerd:leader")
	require.NoError(t, err)
	assert.False(t, released)
	refreshed, err := b.Refresh(ctx, "grp:timerd:leader", time.Minute)
	require.NoError(t, err)
	assert.False(t, refreshed)

	refreshed, err = a.Refresh(ctx, "grp:timerd:leader", time.Minute)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, time.Minute, mr.TTL("grp:timerd:leader"))

	released, err = a.UnLock(ctx, "grp:timerd:leader")
	require.NoError(t, err)
	assert.True(t, released)
	assert.False(t, mr.Exists("grp:timerd:leader"))
}

func TestRedLockExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()
	a := NewRedLock(rdb, "a")
	b := NewRedLock(rdb, "b")

	require.NoError(t, a.Lock(ctx, "k", time.Second, 100*time.Millisecond))
	mr.FastForward(2 * time.Second)

	require.NoError(t, b.Lock(ctx, "k", time.Second, 100*time.Millisecond))
	refreshed, err := a.Refresh(ctx, "k", time.Second)
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestRedLockGivesUp(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	require.NoError(t, NewRedLock(rdb, "a").Lock(ctx, "k", time.Minute, time.Second))

	err := NewRedLock(rdb, "b").Lock(ctx, "k", 30*time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrFailedLock)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	err = NewRedLock(rdb, "b").Lock(cctx, "k", time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedLockZeroCheckInterval(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()
	require.NotPanics(t, func() {
		require.NoError(t, NewRedLock(rdb, "a").Lock(ctx, "k", time.Minute, 0))
	})
	// 间隔按1ms算, 5ms内重试若干次后放弃
	start := time.Now()
	err := NewRedLock(rdb, "b").Lock(ctx, "k", 5*time.Millisecond, 0)
	assert.ErrorIs(t, err, ErrFailedLock)
	assert.Less(t, time.Since(start), time.Second)
}
