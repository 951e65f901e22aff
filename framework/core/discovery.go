package core

import (
	"context"
	"strings"

	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/mlog"
	sd "github.com/fixkme/timerd/servicediscovery/discovery"
	"github.com/fixkme/timerd/servicediscovery/impl/etcd"
)

const ServiceName = "timerd"

// DiscoveryModule 把本节点的rpc地址注册到etcd, CLI据此找到节点
type DiscoveryModule struct {
	conf     *config.RpcConfig
	addr     func() string
	ctx      context.Context
	cancel   context.CancelFunc
	disc     sd.Discovery
	nodeName string
	name     string
}

func NewDiscoveryModule(name string, conf *config.RpcConfig, advertise func() string) *DiscoveryModule {
	ctx, cancel := context.WithCancel(context.Background())
	return &DiscoveryModule{conf: conf, addr: advertise, ctx: ctx, cancel: cancel, name: name}
}

func EtcdOptions(conf *config.RpcConfig) *etcd.EtcdOpt {
	return &etcd.EtcdOpt{
		Endpoints:            strings.Split(conf.EtcdEndpoints, ","),
		DialTimeout:          5,
		DialKeepAliveTime:    5,
		DialKeepAliveTimeout: 3,
		AutoSyncInterval:     15,
		LeaseTTL:             conf.EtcdLeaseTTL,
		ServiceGroup:         conf.RpcGroup,
	}
}

func (m *DiscoveryModule) OnInit() error {
	disc, err := etcd.NewEtcdDiscovery(m.ctx, EtcdOptions(m.conf))
	if err != nil {
		return err
	}
	m.disc = disc
	return nil
}

func (m *DiscoveryModule) Run() {
	errCh := m.disc.Start()
	nodeName, err := m.disc.RegisterService(ServiceName, m.addr())
	if err != nil {
		mlog.Errorf("%s register service failed: %v", m.name, err)
		return
	}
	m.nodeName = nodeName
	mlog.Infof("%s registered %s -> %s", m.name, nodeName, m.addr())
	if err := <-errCh; err != nil {
		mlog.Errorf("%s watch stopped: %v", m.name, err)
	}
}

func (m *DiscoveryModule) Destroy() {
	m.cancel()
	m.disc.Stop()
}

func (m *DiscoveryModule) Name() string {
	return m.name
}
