package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/mlog"
	"github.com/gin-gonic/gin"
)

type Server struct {
	opt    *Options
	host   *host.Host
	Addr   string
	Ln     net.Listener
	Router *gin.Engine
}

type Options struct {
	// 版本号，可以为空
	ApiVersion string
	// Middlewares 里可以添加鉴权的逻辑
	Middlewares []gin.HandlerFunc
}

func NewWeb(network, addr string, h *host.Host, opt *Options) (*Server, error) {
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}
	s := NewHandler(h, opt)
	s.Addr = addr
	s.Ln = ln
	return s, nil
}

// NewHandler 不监听端口, 只构造路由
func NewHandler(h *host.Host, opt *Options) *Server {
	if opt == nil {
		opt = &Options{}
	}
	setMode()
	s := &Server{
		opt:    opt,
		host:   h,
		Router: gin.New(),
	}
	s.regWebRouter()
	return s
}

func setMode() {
	if mode := os.Getenv(gin.EnvGinMode); mode != "" {
		gin.SetMode(mode)
		return
	}
	gin.SetMode(gin.ReleaseMode)
}

func (s *Server) Start() {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				mlog.Warnf("web recover error: %v.", r)
			}
		}()
		if err := s.Run(); err != nil {
			mlog.Warnf("web run error: %v", err)
		}
	}()
}

func (s *Server) Run() (err error) {
	return s.Router.RunListener(s.Ln)
}

func (s *Server) Stop() {
	if err := s.Ln.Close(); err != nil {
		mlog.Warnf("web stop error %v", err)
	}
}

func (s *Server) regWebRouter() {
	s.Router.Use(gin.Recovery())

	v0 := s.Router.Group("/v0")
	v0.GET("/myip", s.clientIPHandler)
	v0.GET("/status", s.statusHandler)
	v0.GET("/ops", s.opsHandler)

	groupName := "/api"
	if s.opt.ApiVersion != "" {
		groupName = fmt.Sprintf("/api/%s", s.opt.ApiVersion)
	}
	apiGroup := s.Router.Group(groupName)
	if len(s.opt.Middlewares) > 0 {
		apiGroup.Use(s.opt.Middlewares...)
	}
	apiGroup.POST("/call/:op", s.callHandler)
}

// callHandler body是字符串数组形式的参数
func (s *Server) callHandler(c *gin.Context) {
	op := c.Param("op")
	var args []string
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&args); err != nil {
			mlog.Warnf("HTTP call %s bind json error: %s", op, err)
			ResponseError(c, http.StatusBadRequest, errs.Format.Printf("%v", err))
			return
		}
	}
	mlog.Debugf("httpHandler op:%s args:%v", op, args)

	rsp := s.host.Do(op, args...)
	if rsp.Code == host.Error {
		status := http.StatusBadRequest
		if rsp.ErrCode == errs.ErrCode_UnknownOp {
			status = http.StatusNotFound
		}
		ResponseError(c, status, errs.CreateCodeError(rsp.ErrCode, rsp.Error))
		return
	}
	ResponseSuccess(c, rsp)
}

func (s *Server) statusHandler(c *gin.Context) {
	ResponseSuccess(c, s.host.Scheduler().Stats())
}

type opInfo struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases,omitempty"`
}

func (s *Server) opsHandler(c *gin.Context) {
	names := s.host.Names()
	ops := make([]opInfo, 0, len(names))
	for _, name := range names {
		ops = append(ops, opInfo{Name: name, Aliases: s.host.Aliases(name)})
	}
	ResponseSuccess(c, ops)
}

type myIP struct {
	// IP 客户端连接IP
	IP string `json:"ip"`
}

// 回复客户端使用的IP
func (s *Server) clientIPHandler(c *gin.Context) {
	c.JSON(http.StatusOK, myIP{IP: c.ClientIP()})
}
