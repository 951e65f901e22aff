package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rdb "github.com/fixkme/timerd/db/redis"
	"github.com/fixkme/timerd/framework/config"
)

var Redis *rdb.RedisImpl

func InitRedis(conf *config.RedisConfig) (err error) {
	if conf == nil {
		return errors.New("redis config is nil")
	}
	if conf.RedisAddr == "" {
		return fmt.Errorf("redis addr invalid (%s)", conf.RedisAddr)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	Redis, err = rdb.NewRedis(ctx, &rdb.Options{
		Mode:       conf.RedisMode,
		Addrs:      strings.Split(conf.RedisAddr, ","),
		MasterName: conf.RedisMasterName,
		Password:   conf.RedisPassword,
		DB:         conf.RedisDB,
	})
	return
}

func LeaderKey(group string) string {
	return group + ":timerd:leader"
}

func StatusKey(group, node string) string {
	return group + ":timerd:status:" + node
}
