package ctlplane

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/auth"
	"github.com/dep2p/go-ctlplane/internal/core/console"
	"github.com/dep2p/go-ctlplane/internal/core/control"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/debug/introspect"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
)

var log = logger.Logger("ctlplane")

const (
	// startTimeout 启动超时（Fx App Start）
	startTimeout = 30 * time.Second

	// stopTimeout 停止超时（Fx App Stop）
	stopTimeout = 15 * time.Second
)

// Harness 服务控制面
//
// 组装文本控制台、控制 RPC 服务器、认证网关、统计累加器与健康注册表，
// 以及可选的诊断服务。Start 之后控制台驱动循环按 UpdateInterval 运行。
//
// Start 只能成功调用一次；Stop 可以重复调用。
type Harness struct {
	cfg *config.Config
	app *fx.App

	// 由 Fx 注入
	health      *health.Registry
	accumulator *stats.Accumulator
	console     *console.Server
	control     *control.Server
	auth        *auth.Service
	introspect  *introspect.Server

	logFile *os.File

	mu      sync.Mutex
	started bool
	closed  bool
}

// New 创建控制面
//
// 选项按顺序应用。未提供配置时使用 config.NewConfig()。
func New(opts ...Option) (*Harness, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	cfg := o.config
	if cfg == nil {
		cfg = config.NewConfig()
	}

	h := &Harness{cfg: cfg}
	if err := h.applyLogConfig(); err != nil {
		return nil, err
	}

	app, err := buildFxApp(cfg, o, h)
	if err != nil {
		_ = h.closeLogFile()
		return nil, err
	}
	h.app = app
	return h, nil
}

// applyLogConfig 应用配置文件中的日志设置
//
// 环境变量 CTLPLANE_LOG_LEVEL 已设置时保留环境变量的级别。
func (h *Harness) applyLogConfig() error {
	level := h.cfg.Log.Level
	if os.Getenv("CTLPLANE_LOG_LEVEL") != "" {
		level = ""
	}
	if err := logger.Configure(level, h.cfg.Log.Format); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	if h.cfg.Log.File != "" {
		f, err := os.OpenFile(h.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		h.logFile = f
		logger.SetOutput(f)
	}
	return nil
}

// Start 启动所有组件
//
// 启动顺序：认证网关 → 控制 RPC → 控制台（含驱动循环）→ 诊断服务。
// 任一组件失败时已启动的组件会被回滚。
func (h *Harness) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHarnessClosed
	}
	if h.started {
		return ErrAlreadyStarted
	}

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()

	if err := h.app.Start(startCtx); err != nil {
		log.Error("控制面启动失败", "error", err)
		return fmt.Errorf("start failed: %w", err)
	}
	h.started = true

	log.Info("控制面已启动",
		"version", Version,
		"console", h.consoleAddrString(),
		"control", h.control.Endpoint(),
		"auth", h.auth.Endpoint())
	return nil
}

// Stop 停止所有组件并释放资源，可重复调用
//
// 按启动的逆序停止，错误合并返回。
func (h *Harness) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	var err error
	if h.started {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err = multierr.Append(err, h.app.Stop(stopCtx))
	}

	log.Info("控制面已停止")
	err = multierr.Append(err, h.closeLogFile())
	return err
}

func (h *Harness) closeLogFile() error {
	if h.logFile == nil {
		return nil
	}
	logger.SetOutput(os.Stderr)
	err := h.logFile.Close()
	h.logFile = nil
	return err
}

// ════════════════════════════════════════════════════════════════════════════
//                              访问器
// ════════════════════════════════════════════════════════════════════════════

// Config 返回生效的配置（只读）
func (h *Harness) Config() *config.Config {
	return h.cfg
}

// Console 返回控制台会话服务器
func (h *Harness) Console() *console.Server {
	return h.console
}

// Control 返回控制 RPC 服务器
func (h *Harness) Control() *control.Server {
	return h.control
}

// Auth 返回认证网关服务
func (h *Harness) Auth() *auth.Service {
	return h.auth
}

// Gateway 返回认证网关，可在运行期间修改许可列表
func (h *Harness) Gateway() *auth.Gateway {
	return h.auth.Gateway()
}

// Health 返回健康注册表
func (h *Harness) Health() *health.Registry {
	return h.health
}

// Stats 返回统计累加器
func (h *Harness) Stats() *stats.Accumulator {
	return h.accumulator
}

// Introspect 返回诊断服务，未启用时为 nil
func (h *Harness) Introspect() *introspect.Server {
	return h.introspect
}

// ConsoleAddr 返回控制台监听地址，未启动时为 nil
func (h *Harness) ConsoleAddr() net.Addr {
	return h.console.Addr()
}

// ControlEndpoint 返回控制 RPC 实际绑定的端点
func (h *Harness) ControlEndpoint() string {
	return h.control.Endpoint()
}

func (h *Harness) consoleAddrString() string {
	if addr := h.console.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}
