package ctlplane

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/auth"
	"github.com/dep2p/go-ctlplane/internal/core/commands"
	"github.com/dep2p/go-ctlplane/internal/core/console"
	"github.com/dep2p/go-ctlplane/internal/core/control"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/debug/introspect"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 基础：配置、指标注册器、时钟、健康注册表、统计累加器
//  2. 认证网关（控制服务器握手依赖它，先启动后停止）
//  3. 控制 RPC 服务器
//  4. 控制台命令处理器与会话服务器
//  5. 诊断服务（条件加载）
func buildFxApp(cfg *config.Config, o *options, h *Harness) (*fx.App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 1. 基础组件
	// ════════════════════════════════════════════════════════════════════════
	reg := o.registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	modules := []fx.Option{
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return reg }),
		health.Module(),
		stats.Module(),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		modules = append(modules, fx.Provide(func() prometheus.Gatherer { return g }))
	}
	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2-3. 认证网关与控制 RPC
	// ════════════════════════════════════════════════════════════════════════
	if o.dispatcher != nil {
		d := o.dispatcher
		modules = append(modules, fx.Provide(func() interfaces.Dispatcher { return d }))
	}
	modules = append(modules,
		auth.Module(),
		control.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 4. 控制台
	// ════════════════════════════════════════════════════════════════════════
	if o.consoleHandler != nil {
		handler := o.consoleHandler
		modules = append(modules, fx.Provide(func() interfaces.SessionHandler { return handler }))
	} else {
		for _, opt := range o.consoleCommands {
			opt := opt
			modules = append(modules, fx.Provide(fx.Annotate(
				func() commands.Option { return opt },
				fx.ResultTags(`group:"console_commands"`),
			)))
		}
		modules = append(modules, commands.Module())
	}
	modules = append(modules, console.Module())

	// ════════════════════════════════════════════════════════════════════════
	// 5. 诊断服务（条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if cfg.Diagnostics.EnableIntrospect {
		modules = append(modules, introspect.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 6. 用户扩展与组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, o.userFxOptions...)
	modules = append(modules, fx.Invoke(injectComponents(h)))

	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
	)

	app := fx.New(modules...)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("assemble components: %w", err)
	}
	return app, nil
}

// componentParams Harness 组件注入参数
type componentParams struct {
	fx.In

	Health      *health.Registry
	Accumulator *stats.Accumulator
	Console     *console.Server
	Control     *control.Server
	Auth        *auth.Service
	Introspect  *introspect.Server `optional:"true"`
}

// injectComponents 把装配好的组件写回 Harness
func injectComponents(h *Harness) func(componentParams) {
	return func(p componentParams) {
		h.health = p.Health
		h.accumulator = p.Accumulator
		h.console = p.Console
		h.control = p.Control
		h.auth = p.Auth
		h.introspect = p.Introspect
	}
}
