package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisSingle(t *testing.T) {
	mr := miniredis.RunT(t)
	db, err := NewRedis(context.Background(), &Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	defer db.Stop()
	assert.NotNil(t, db.Client())
	assert.Nil(t, db.ClusterClient())
	assert.NotNil(t, db.GetCmdable())
}

func TestNewRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, &Options{Addrs: []string{addr}})
	assert.Error(t, err)
}

func TestPutHash(t *testing.T) {
	mr := miniredis.RunT(t)
	db, err := NewRedis(context.Background(), &Options{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	defer db.Stop()
	ctx := context.Background()

	mr.HSet("st", "stale", "1")
	require.NoError(t, PutHash(ctx, db.GetCmdable(), "st", map[string]any{"timers": 3, "status": "Timers: 3, RWT: 0"}, time.Minute))
	assert.Equal(t, "3", mr.HGet("st", "timers"))
	assert.Equal(t, "Timers: 3, RWT: 0", mr.HGet("st", "status"))
	assert.Equal(t, "", mr.HGet("st", "stale"))
	assert.Equal(t, time.Minute, mr.TTL("st"))
}

func TestLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		Loop(ctx, "test", time.Millisecond, func(context.Context) error {
			if n.Add(1) == 3 {
				cancel()
			}
			return errors.New("boom")
		})
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}
