package lock

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

var (
	ErrFailedLock = errors.New("failed to acquire lock")
)

const minCheckInterval = time.Millisecond

// RedLock 基于SETNX的单实例锁, entity标识持有者, 只有持有者能续期和释放
type RedLock struct {
	rdb    redis.Cmdable
	entity string //请求锁的唯一实例
}

func NewRedLock(rdb redis.Cmdable, entity string) *RedLock {
	if entity == "" {
		entity = GeneLockEntity()
	}
	return &RedLock{rdb: rdb, entity: entity}
}

func (l *RedLock) Entity() string {
	return l.entity
}

// lockKey:分布式锁, expiry:锁超时时间，checkInterval：检测锁的频率
func (l *RedLock) Lock(ctx context.Context, lockKey string, expiry time.Duration, checkInterval time.Duration) error {
	if checkInterval < minCheckInterval {
		checkInterval = minCheckInterval
	}
	lockTries := int(expiry/checkInterval) + 1
	for i := 0; i < lockTries; i++ {
		if i != 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(checkInterval):
			}
		}
		ok, err := l.TryLock(ctx, lockKey, expiry)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrFailedLock
}

// lockKey:分布式锁，expiry:锁超时时间
func (l *RedLock) TryLock(ctx context.Context, lockKey string, expiry time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, lockKey, l.entity, expiry).Result()
}

const (
	unlockScriptLua = `
		if redis.call("get",KEYS[1]) == ARGV[1] then
			return redis.call("del",KEYS[1])
		else
			return 0
		end
	`
	refreshScriptLua = `
		if redis.call("get",KEYS[1]) == ARGV[1] then
			return redis.call("pexpire",KEYS[1],ARGV[2])
		else
			return 0
		end
	`
)

var (
	unlockScript  = redis.NewScript(unlockScriptLua)
	refreshScript = redis.NewScript(refreshScriptLua)
)

// Refresh 仍持有锁时延长超时, 返回false表示锁已丢失
func (l *RedLock) Refresh(ctx context.Context, lockKey string, expiry time.Duration) (bool, error) {
	return runOwnerScript(ctx, l.rdb, refreshScript, lockKey, l.entity, expiry.Milliseconds())
}

// lockKey:分布式锁，entity:请求锁的唯一实例
func (l *RedLock) UnLock(ctx context.Context, lockKey string) (bool, error) {
	return runOwnerScript(ctx, l.rdb, unlockScript, lockKey, l.entity)
}

func runOwnerScript(ctx context.Context, rdb redis.Cmdable, script *redis.Script, key string, args ...any) (bool, error) {
	val, err := script.Run(ctx, rdb, []string{key}, args...).Result()
	if err != nil {
		return false, err
	}
	num, ok := val.(int64)
	if !ok {
		return false, errors.New("ret.Val.(int64) not ok")
	}
	return num != 0, nil
}

// 生成请求锁的唯一实例
func GeneLockEntity() string {
	return xid.New().String()
}
