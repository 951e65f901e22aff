package core

import (
	"time"

	"github.com/fixkme/timerd/clock"
	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/timer"
)

// NewHost 按配置创建调度器和调用入口, 各模块共用
func NewHost(conf *config.SchedulerConfig) *host.Host {
	var opts []timer.Option
	if conf.SchedulerShards > 0 {
		opts = append(opts, timer.WithShards(conf.SchedulerShards))
	}
	if conf.ClockOffsetMs != 0 {
		opts = append(opts, timer.WithClock(clock.WithOffset(time.Duration(conf.ClockOffsetMs)*time.Millisecond)))
	}
	return host.New(timer.New(opts...))
}
