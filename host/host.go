// Package host 宿主调用入口. 参数和返回值都是字符串, 返回值可缺省.
// 进程内直接调用 Call, 跨进程时由 rpc 和 httpapi 转发到这里.
package host

import (
	"sort"
	"strings"

	"github.com/armon/go-radix"
	"github.com/fixkme/timerd/errs"
	"github.com/fixkme/timerd/mlog"
	"github.com/fixkme/timerd/timer"
)

// Handler 返回 ok=false 表示结果缺省
type Handler func(s *timer.Scheduler, args []string) (string, bool, error)

type opEntry struct {
	name   string
	nargs  int
	handle Handler
}

type Host struct {
	sched *timer.Scheduler
	ops   *radix.Tree
	names []string // 主名, 不含别名
}

func New(s *timer.Scheduler) *Host {
	h := &Host{
		sched: s,
		ops:   radix.New(),
	}
	for _, d := range builtinOps {
		h.Register(d.name, d.nargs, d.handle, d.aliases...)
	}
	return h
}

// Register 注册或覆盖一个操作
func (h *Host) Register(name string, nargs int, handle Handler, aliases ...string) {
	e := &opEntry{name: name, nargs: nargs, handle: handle}
	if _, replaced := h.ops.Insert(name, e); !replaced {
		h.names = append(h.names, name)
	}
	for _, alias := range aliases {
		h.ops.Insert(alias, e)
	}
}

func (h *Host) Scheduler() *timer.Scheduler {
	return h.sched
}

// Call 调用name对应的操作. 参数解析失败时不会改动调度器状态
func (h *Host) Call(name string, args ...string) (string, bool, error) {
	v, ok := h.ops.Get(name)
	if !ok {
		return "", false, errs.UnknownOp.Printf("op %s", name)
	}
	e := v.(*opEntry)
	if len(args) != e.nargs {
		return "", false, errs.Args.Printf("%s want %d got %d", e.name, e.nargs, len(args))
	}
	out, ok, err := e.handle(h.sched, args)
	if err != nil {
		mlog.Debugf("host call %s(%s) failed: %v", name, strings.Join(args, ","), err)
		return "", false, err
	}
	return out, ok, nil
}

// Do 调用并包装成 Response
func (h *Host) Do(name string, args ...string) *Response {
	out, ok, err := h.Call(name, args...)
	if err != nil {
		return ErrorResponse(err)
	}
	if !ok {
		return &Response{Code: Success}
	}
	return SuccessResponse(out)
}

// Ops 按前缀列出操作名, 包括别名
func (h *Host) Ops(prefix string) []string {
	var out []string
	h.ops.WalkPrefix(prefix, func(k string, _ any) bool {
		out = append(out, k)
		return false
	})
	return out
}

// Names 主操作名, 按注册顺序
func (h *Host) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Aliases name的所有别名, 已排序
func (h *Host) Aliases(name string) []string {
	v, ok := h.ops.Get(name)
	if !ok {
		return nil
	}
	target := v.(*opEntry)
	var out []string
	h.ops.Walk(func(k string, v any) bool {
		if v.(*opEntry) == target && k != target.name {
			out = append(out, k)
		}
		return false
	})
	sort.Strings(out)
	return out
}
