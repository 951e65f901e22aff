package discovery

// Discovery 服务注册与发现, 节点名格式 name:uuid
type Discovery interface {
	// Start 先同步拉取已注册的服务, 再在后台watch
	Start() <-chan error

	Stop()

	RegisterService(serviceName string, rpcAddr string) (nodeName string, err error)

	GetService(serviceName string) (rpcAddr string, err error)

	GetAllService(serviceName string) (rpcAddrs map[string]string, err error)
}
