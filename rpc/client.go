package rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/host"
	"github.com/fixkme/timerd/mlog"
	"github.com/panjf2000/gnet/v2"
)

type ClientOpt struct {
	DialTimeout time.Duration
	CallTimeout time.Duration
}

type callResult struct {
	senderr error
	rsp     *host.Response
}

// Client 单连接客户端, 按seq匹配回应, 可并发调用
type Client struct {
	gnet.BuiltinEventEngine
	cli  *gnet.Client
	conn gnet.Conn
	opt  ClientOpt

	genSeq   atomic.Uint32
	mtx      sync.Mutex
	waitRsps map[uint32]chan *callResult
	closed   bool
}

func Dial(ctx context.Context, addr string, opt ClientOpt) (*Client, error) {
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = 3 * time.Second
	}
	c := &Client{
		opt:      opt,
		waitRsps: make(map[uint32]chan *callResult),
	}
	cli, err := gnet.NewClient(c)
	if err != nil {
		return nil, err
	}
	if err = cli.Start(); err != nil {
		return nil, err
	}
	type dialResult struct {
		conn gnet.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := cli.Dial("tcp", addr)
		ch <- dialResult{conn, err}
	}()
	dctx, cancel := context.WithTimeout(ctx, opt.DialTimeout)
	defer cancel()
	select {
	case r := <-ch:
		if r.err != nil {
			_ = cli.Stop()
			return nil, r.err
		}
		c.cli, c.conn = cli, r.conn
		return c, nil
	case <-dctx.Done():
		_ = cli.Stop()
		return nil, dctx.Err()
	}
}

// Call 同步调用, 返回的Response可以用Result()还原
func (c *Client) Call(ctx context.Context, op string, args ...string) (*host.Response, error) {
	seq := c.genSeq.Add(1)
	buf, err := EncodeRequest(&Request{Seq: seq, Op: op, Args: args})
	if err != nil {
		return nil, err
	}

	retCh := make(chan *callResult, 1)
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return nil, errs.Closed
	}
	c.waitRsps[seq] = retCh
	c.mtx.Unlock()
	defer func() {
		c.mtx.Lock()
		delete(c.waitRsps, seq)
		c.mtx.Unlock()
	}()

	err = c.conn.AsyncWrite(buf, func(_ gnet.Conn, serr error) error {
		if serr != nil {
			c.deliver(seq, &callResult{senderr: serr})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.opt.CallTimeout > 0 {
		subctx, cancel := context.WithTimeout(ctx, c.opt.CallTimeout)
		defer cancel()
		ctx = subctx
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ret := <-retCh:
		if ret.senderr != nil {
			return nil, ret.senderr
		}
		return ret.rsp, nil
	}
}

func (c *Client) deliver(seq uint32, ret *callResult) {
	c.mtx.Lock()
	rch, ok := c.waitRsps[seq]
	c.mtx.Unlock()
	if ok {
		select {
		case rch <- ret:
		default:
		}
	}
}

func (c *Client) OnTraffic(conn gnet.Conn) gnet.Action {
	for {
		payload, err := nextFrame(conn)
		if err != nil {
			mlog.Errorf("rpc client bad frame: %v", err)
			return gnet.Close
		}
		if payload == nil {
			return gnet.None
		}
		seq, rsp, err := DecodeResponse(payload)
		if err != nil {
			mlog.Errorf("rpc client decode: %v", err)
			return gnet.Close
		}
		c.deliver(seq, &callResult{rsp: rsp})
	}
}

func (c *Client) OnClose(_ gnet.Conn, err error) gnet.Action {
	c.mtx.Lock()
	c.closed = true
	waits := make([]chan *callResult, 0, len(c.waitRsps))
	for _, ch := range c.waitRsps {
		waits = append(waits, ch)
	}
	c.mtx.Unlock()
	senderr := errs.Closed
	if err != nil {
		senderr = errs.Closed.Printf("%v", err)
	}
	for _, ch := range waits {
		select {
		case ch <- &callResult{senderr: senderr}:
		default:
		}
	}
	return gnet.None
}

func (c *Client) Close() error {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	return c.cli.Stop()
}
