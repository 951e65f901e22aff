package main

import (
	"context"
	"sync"
	"time"

	"github.com/fixkme/timerd/framework/app"
	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/framework/core"
	"github.com/fixkme/timerd/mlog"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run a scheduler node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file, json or yaml")
	return cmd
}

func serve(configFile string) error {
	if err := config.LoadConfig(configFile, config.LoadFromEnv); err != nil {
		return err
	}
	conf := config.Config

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	defer func() {
		cancel()
		wg.Wait()
	}()
	level := mlog.ParseLevel(conf.LogLevel)
	if conf.LogPath != "" {
		if err := mlog.UseDefaultLogger(ctx, wg, conf.LogPath, conf.LogName, level, conf.LogStdOut); err != nil {
			return err
		}
	} else if err := mlog.UseStdLogger(level); err != nil {
		return err
	}
	mlog.Infof("config:\n%s", conf.JsonFormat())

	h := core.NewHost(&conf.SchedulerConfig)
	node := app.DefaultApp()
	rpcMod := core.NewRpcModule("rpc", h, &conf.RpcConfig)

	var mods []app.Module
	if conf.RedisAddr != "" {
		if err := core.InitRedis(&conf.RedisConfig); err != nil {
			return err
		}
		defer core.Redis.Stop()
		// 先拿到锁再监听端口
		mods = append(mods, core.NewLeaderModule("leader", core.Redis.GetCmdable(), conf.RpcGroup, seconds(conf.LeaderLockTTL), node.Stop))
	}
	mods = append(mods, rpcMod)
	if conf.ApiListenAddr != "" {
		mods = append(mods, core.NewHttpApiModule("httpapi", h, &conf.HttpApiConfig, nil))
	}
	if conf.EtcdEndpoints != "" {
		mods = append(mods, core.NewDiscoveryModule("discovery", &conf.RpcConfig, rpcMod.AdvertiseAddr))
	}
	if conf.RedisAddr != "" {
		mods = append(mods, core.NewStatusModule("status", core.Redis.GetCmdable(), h.Scheduler(), conf.RpcGroup, conf.NodeName, seconds(conf.StatusInterval)))
	}
	return node.Run(mods...)
}

func seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}
