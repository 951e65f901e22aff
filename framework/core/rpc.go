package core

import (
	"context"
	"strings"
	"time"

	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/mlog"
	"github.com/fixkme/timerd/rpc"
	"github.com/panjf2000/gnet/v2"
)

type RpcModule struct {
	rpcConfig *config.RpcConfig
	serverOpt *rpc.ServerOpt
	host      *host.Host
	server    *rpc.Server
	name      string
}

func NewRpcModule(name string, h *host.Host, conf *config.RpcConfig) *RpcModule {
	listenAddr := conf.RpcListenAddr
	if !strings.Contains(listenAddr, "://") {
		listenAddr = "tcp://" + listenAddr
	}
	return &RpcModule{
		rpcConfig: conf,
		serverOpt: &rpc.ServerOpt{
			Options: gnet.Options{
				Multicore:    conf.RpcMulticore,
				TCPKeepAlive: time.Minute,
			},
			Addr:          listenAddr,
			ProcessorSize: conf.RpcProcessorNum,
		},
		host: h,
		name: name,
	}
}

func (m *RpcModule) OnInit() error {
	m.server = rpc.NewServer(m.host, m.serverOpt)
	return nil
}

func (m *RpcModule) Run() {
	if err := m.server.Run(); err != nil {
		panic(err)
	}
}

func (m *RpcModule) Destroy() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.server.Stop(ctx); err != nil {
		mlog.Errorf("%v module stop error: %v", m.name, err)
	}
}

func (m *RpcModule) Name() string {
	return m.name
}

// AdvertiseAddr 注册到etcd的地址, 未配置时由监听地址推导
func (m *RpcModule) AdvertiseAddr() string {
	if m.rpcConfig.RpcAddr != "" {
		return m.rpcConfig.RpcAddr
	}
	return rpc.AdvertiseAddr(m.rpcConfig.RpcListenAddr)
}
