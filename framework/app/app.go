package app

import (
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/timerd/mlog"
)

// 节点全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在初始化中
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

// 单例
var defaultApp = New()

type Module interface {
	OnInit() error // 初始化
	Destroy()      // 销毁
	Run()          // 启动
	Name() string  // 名字
}

// mod 模块
type mod struct {
	mi Module
}

// DefaultApp 默认单例
func DefaultApp() *App {
	return defaultApp
}

// App 中的 modules 在初始化(通过 Start 或 Run) 之后不能变更
// App API 只有 GetState 和 Stop 是 goroutine safe 的
type App struct {
	mods  []*mod
	state int32
	sig   chan os.Signal
	wg    *sync.WaitGroup
}

func New() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

// SetState 设置状态
func (app *App) setState(s int32) {
	atomic.StoreInt32(&app.state, s)
}

// GetState 获取状态
func (app *App) GetState() int32 {
	return atomic.LoadInt32(&app.state)
}

// start 初始化失败时已初始化的模块按逆序销毁
func (app *App) start(mods ...Module) error {
	// 单个app不能启动两次
	if app.GetState() != AppStateNone || len(app.mods) != 0 {
		return fmt.Errorf("app mods cannot start twice")
	}
	mlog.Info("app starting up")
	app.setState(AppStateInit)
	app.wg = &sync.WaitGroup{}
	for _, mi := range mods {
		if err := mi.OnInit(); err != nil {
			app.stop()
			return fmt.Errorf("module %s init error: %w", mi.Name(), err)
		}
		app.mods = append(app.mods, &mod{mi: mi})
	}
	// 模块启动
	for _, m := range app.mods {
		app.wg.Add(1)
		go run(m, app.wg)
	}
	app.setState(AppStateRun)
	mlog.Info("app started")
	return nil
}

func (app *App) stop() {
	if app.GetState() == AppStateStop {
		return
	}
	mlog.Info("app stop begin")
	app.setState(AppStateStop)
	// 先进后出
	for i := len(app.mods) - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.mi.Name())
		destroy(m)
	}
	app.wg.Wait()
	app.mods = nil
	app.setState(AppStateNone)
	mlog.Info("app stoped")
}

func run(m *mod, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module run panic: %v\n%s", m.mi.Name(), r, debug.Stack())
		}
	}()
	m.mi.Run()
}

func destroy(m *mod) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module destroy panic: %v\n%s", m.mi.Name(), r, debug.Stack())
		}
	}()

	m.mi.Destroy()
}

// Run 启动所有模块并阻塞, 收到退出信号或Stop后逆序销毁
func (app *App) Run(mods ...Module) error {
	if err := app.start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	for {
		sig := <-app.sig
		mlog.Infof("server closing down (signal: %v)", sig)
		if sig != syscall.SIGHUP {
			break
		}
	}

	app.stop()
	return nil
}

// Stop 可以在任意协程调用, 重复调用无副作用
func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}
