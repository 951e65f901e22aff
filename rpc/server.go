package rpc

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/mlog"
	"github.com/panjf2000/gnet/v2"
)

type ServerOpt struct {
	gnet.Options
	Addr string
	// 为0时在io协程里直接处理
	ProcessorSize     int
	ProcessorTaskSize int
}

// Server 把帧里的调用转给 host.Host.
// 同一个连接固定分到一个processor, 宿主的调用按发送顺序执行
type Server struct {
	gnet.BuiltinEventEngine
	eng        gnet.Engine
	host       *host.Host
	processors []*processor
	done       chan struct{}
	booted     chan struct{}
	opt        *ServerOpt
	stopOnce   sync.Once
	stopErr    error
}

type task struct {
	conn gnet.Conn
	req  *Request
}

func NewServer(h *host.Host, opt *ServerOpt) *Server {
	s := &Server{
		host:   h,
		done:   make(chan struct{}),
		booted: make(chan struct{}),
		opt:    opt,
	}
	if opt.ProcessorSize > 0 {
		if opt.ProcessorTaskSize <= 0 {
			opt.ProcessorTaskSize = 1024
		}
		for i := 0; i < opt.ProcessorSize; i++ {
			s.processors = append(s.processors, &processor{
				server: s,
				inChan: make(chan *task, opt.ProcessorTaskSize),
			})
		}
	}
	return s
}

func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.eng = eng
	close(s.booted)
	mlog.Infof("rpc server listening on %s", s.opt.Addr)
	return gnet.None
}

func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	mlog.Debugf("rpc conn open %s", c.RemoteAddr())
	return nil, gnet.None
}

func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	if err != nil {
		mlog.Warnf("rpc conn %s closed: %v", c.RemoteAddr(), err)
	}
	return gnet.None
}

func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	for {
		payload, err := nextFrame(c)
		if err != nil {
			mlog.Errorf("rpc conn %s bad frame: %v", c.RemoteAddr(), err)
			return gnet.Close
		}
		if payload == nil {
			return gnet.None
		}
		req, err := DecodeRequest(payload)
		if err != nil {
			mlog.Errorf("rpc conn %s decode: %v", c.RemoteAddr(), err)
			return gnet.Close
		}

		if pn := len(s.processors); pn > 0 {
			idx := int(xxhash.Sum64String(c.RemoteAddr().String()) % uint64(pn))
			s.processors[idx].inChan <- &task{conn: c, req: req}
		} else {
			s.handle(c, req, true)
		}
	}
}

func (s *Server) handle(c gnet.Conn, req *Request, sync bool) {
	rsp := s.call(req)
	buf, err := EncodeResponse(req.Seq, rsp)
	if err != nil {
		mlog.Errorf("rpc encode response seq:%d err:%v", req.Seq, err)
		return
	}
	if sync {
		_, err = c.Write(buf)
	} else {
		err = c.AsyncWrite(buf, func(_ gnet.Conn, werr error) error {
			if werr != nil {
				mlog.Warnf("rpc async write seq:%d err:%v", req.Seq, werr)
			}
			return nil
		})
	}
	if err != nil {
		mlog.Warnf("rpc write seq:%d err:%v", req.Seq, err)
	}
}

func (s *Server) call(req *Request) (rsp *host.Response) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("rpc handler panic, op:%s, %v\n%s", req.Op, r, debug.Stack())
			rsp = host.ErrorResponse(errs.Unknown.Printf("%v", r))
		}
	}()
	rsp = s.host.Do(req.Op, req.Args...)
	if rsp.Code == host.Error {
		mlog.Debugf("rpc call failed, op:%s, args:%v, err:%s", req.Op, req.Args, rsp.Error)
	}
	return rsp
}

// Run 阻塞直到Stop
func (s *Server) Run() error {
	for _, p := range s.processors {
		go p.run(s.done)
	}
	return gnet.Run(s, s.opt.Addr, gnet.WithOptions(s.opt.Options))
}

// Booted 监听成功后关闭
func (s *Server) Booted() <-chan struct{} {
	return s.booted
}

// Stop 可以重复调用, 只有第一次生效
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)
		select {
		case <-s.booted:
			s.stopErr = s.eng.Stop(ctx)
		default:
		}
	})
	return s.stopErr
}

type processor struct {
	server *Server
	inChan chan *task
}

func (p *processor) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case t := <-p.inChan:
			p.server.handle(t.conn, t.req, false)
		}
	}
}

// nextFrame 缓冲区里不够一帧时返回nil
func nextFrame(c gnet.Conn) ([]byte, error) {
	lenBuf, err := c.Peek(msgLenSize)
	if err != nil {
		return nil, nil
	}
	size := int(byteOrder.Uint32(lenBuf))
	if size > maxMsgSize {
		return nil, errs.Format.Printf("frame size %d", size)
	}
	if c.InboundBuffered() < msgLenSize+size {
		return nil, nil
	}
	if _, err = c.Discard(msgLenSize); err != nil {
		return nil, err
	}
	return c.Next(size)
}
