package core

import (
	"sync/atomic"

	"github.com/fixkme/timerd/framework/config"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/httpapi"
	"github.com/fixkme/timerd/mlog"
	"github.com/gin-gonic/gin"
)

type HttpApiModule struct {
	router  *httpapi.Server
	conf    *config.HttpApiConfig
	opt     *httpapi.Options
	host    *host.Host
	name    string
	stopped atomic.Bool
}

func NewHttpApiModule(name string, h *host.Host, conf *config.HttpApiConfig, middlewares []gin.HandlerFunc) *HttpApiModule {
	return &HttpApiModule{
		conf: conf,
		opt: &httpapi.Options{
			ApiVersion:  conf.ApiVersion,
			Middlewares: middlewares,
		},
		host: h,
		name: name,
	}
}

func (s *HttpApiModule) OnInit() error {
	router, err := httpapi.NewWeb("tcp", s.conf.ApiListenAddr, s.host, s.opt)
	if err != nil {
		return err
	}
	s.router = router
	return nil
}

func (s *HttpApiModule) Run() {
	// 监听关闭后Run返回错误, 停止阶段忽略
	if err := s.router.Run(); err != nil && !s.stopped.Load() {
		mlog.Errorf("%s run error: %v", s.name, err)
	}
}

func (s *HttpApiModule) Destroy() {
	s.stopped.Store(true)
	s.router.Stop()
}

func (s *HttpApiModule) Name() string {
	return s.name
}
