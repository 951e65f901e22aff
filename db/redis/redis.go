package redis

import (
	"context"
	"time"

	"github.com/fixkme/timerd/mlog"
	"github.com/redis/go-redis/v9"
)

const (
	RedisMode_Single   = "single"
	RedisMode_Sentinel = "sentinel"
	RedisMode_Cluster  = "cluster"
)

type Options struct {
	Mode       string   `json:"mode" yaml:"mode"`
	Addrs      []string `json:"addrs" yaml:"addrs"`
	MasterName string   `json:"masterName" yaml:"masterName"` // sentinel模式
	Password   string   `json:"password" yaml:"password"`
	DB         int      `json:"db" yaml:"db"`
	PoolSize   int      `json:"poolSize" yaml:"poolSize"`
}

type RedisImpl struct {
	client  *redis.Client
	cluster *redis.ClusterClient
}

func NewRedis(ctx context.Context, opt *Options) (*RedisImpl, error) {
	db := &RedisImpl{}
	switch opt.Mode {
	case RedisMode_Cluster:
		db.cluster = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    opt.Addrs,
			Password: opt.Password,
			PoolSize: opt.PoolSize,
		})
	case RedisMode_Sentinel:
		db.client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    opt.MasterName,
			SentinelAddrs: opt.Addrs,
			Password:      opt.Password,
			DB:            opt.DB,
			PoolSize:      opt.PoolSize,
		})
	default: // 默认single模式
		addr := ""
		if len(opt.Addrs) > 0 {
			addr = opt.Addrs[0]
		}
		db.client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: opt.Password,
			DB:       opt.DB,
			PoolSize: opt.PoolSize,
		})
	}

	if err := db.GetCmdable().Ping(ctx).Err(); err != nil {
		db.Stop()
		return nil, err
	}
	return db, nil
}

func (db *RedisImpl) Client() *redis.Client {
	return db.client
}

func (db *RedisImpl) ClusterClient() *redis.ClusterClient {
	return db.cluster
}

func (db *RedisImpl) Stop() {
	if db.client != nil {
		db.client.Close()
	}
	if db.cluster != nil {
		db.cluster.Close()
	}
}

func (db *RedisImpl) GetCmdable() redis.Cmdable {
	if db.client != nil {
		return db.client
	}
	if db.cluster != nil {
		return db.cluster
	}
	return nil
}

// PutHash 整体写入一个hash并设置过期, ttl<=0时不过期
func PutHash(ctx context.Context, rdb redis.Cmdable, key string, fields map[string]any, ttl time.Duration) error {
	_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// Loop 每隔interval执行一次f, 直到ctx结束. f出错只记录日志
func Loop(ctx context.Context, name string, interval time.Duration, f func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("redis %s routine recover error %v", name, r)
		}
		mlog.Infof("redis %s routine quited", name)
	}()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := f(ctx); err != nil && ctx.Err() == nil {
			mlog.Warnf("redis %s error %v, retry after %s", name, err, interval)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
