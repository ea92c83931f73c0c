package introspect

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/console"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
)

// Module 返回诊断服务 Fx 模块
func Module() fx.Option {
	return fx.Module("introspect",
		fx.Provide(NewFromParams),
		fx.Invoke(registerLifecycle),
	)
}

// IntrospectParams 诊断服务依赖参数
type IntrospectParams struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`

	Registerer   prometheus.Registerer `optional:"true"`
	Gatherer     prometheus.Gatherer   `optional:"true"`
	Health       *health.Registry      `optional:"true"`
	Accumulator  *stats.Accumulator    `optional:"true"`
	Console      *console.Server       `optional:"true"`
	ConsoleStats *stats.ConsoleStats   `optional:"true"`
	ControlStats *stats.ControlStats   `optional:"true"`
	AuthStats    *stats.AuthStats      `optional:"true"`
}

// IntrospectOutput 诊断服务输出
type IntrospectOutput struct {
	fx.Out

	Server *Server `optional:"true"`
}

// ConfigFromUnified 从统一配置创建诊断服务配置，禁用时返回 nil
func ConfigFromUnified(cfg *config.Config) *Config {
	if cfg == nil || !cfg.Diagnostics.EnableIntrospect {
		return nil
	}
	addr := cfg.Diagnostics.IntrospectAddr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Config{
		Addr: addr,
	}
}

// NewFromParams 从参数创建诊断服务
func NewFromParams(params IntrospectParams) (IntrospectOutput, error) {
	cfg := ConfigFromUnified(params.UnifiedCfg)
	if cfg == nil {
		return IntrospectOutput{}, nil
	}
	diag := params.UnifiedCfg.Diagnostics

	if diag.EnableProcessMetrics && params.Registerer != nil {
		if err := RegisterProcessCollectors(params.Registerer); err != nil {
			return IntrospectOutput{}, err
		}
	}

	if diag.EnableMetrics {
		cfg.Gatherer = gathererFor(params.Gatherer, params.Registerer)
	}
	cfg.Health = params.Health
	cfg.Accumulator = params.Accumulator
	if params.Console != nil {
		cfg.Console = params.Console
	}
	cfg.ConsoleStats = params.ConsoleStats
	cfg.ControlStats = params.ControlStats
	cfg.AuthStats = params.AuthStats

	return IntrospectOutput{
		Server: New(*cfg),
	}, nil
}

// RegisterProcessCollectors 注册进程与 Go 运行时采集器，已注册时忽略
func RegisterProcessCollectors(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// gathererFor 选择 /metrics 的指标来源
//
// 优先使用显式注入的 Gatherer，其次是同时实现 Gatherer 的注册器，
// 最后退回默认注册表。
func gathererFor(g prometheus.Gatherer, reg prometheus.Registerer) prometheus.Gatherer {
	if g != nil {
		return g
	}
	if rg, ok := reg.(prometheus.Gatherer); ok {
		return rg
	}
	return prometheus.DefaultGatherer
}

// registerLifecycle 注册生命周期钩子
func registerLifecycle(lc fx.Lifecycle, server *Server) {
	if server == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return server.Stop()
		},
	})
}
