package console

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config  *config.Config
	Handler interfaces.SessionHandler

	Stats  *stats.ConsoleStats `optional:"true"`
	Health *health.Registry    `optional:"true"`
	Clock  clock.Clock         `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Server *Server
	Driver *Driver
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	opts := []Option{WithStats(input.Stats), WithClock(input.Clock)}
	if input.Health != nil && input.Config.Console.Enable {
		flag, err := input.Health.Register(HealthFlagName)
		if err != nil {
			return ModuleOutput{}, err
		}
		opts = append(opts, WithHealthFlag(flag))
	}

	srv, err := NewServer(input.Config.Console, input.Handler, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{
		Server: srv,
		Driver: NewDriver(srv, input.Config.Console.UpdateInterval.Duration(), input.Clock),
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("console",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC     fx.Lifecycle
	Config *config.Config
	Server *Server
	Driver *Driver
}

// registerLifecycle 注册生命周期
//
// 控制台未启用时不监听，也不启动驱动循环。
func registerLifecycle(input lifecycleInput) {
	cfg := input.Config.Console
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !cfg.Enable {
				log.Info("控制台未启用")
				return nil
			}
			if err := input.Server.Initialise(cfg.Port, cfg.MaxSessions); err != nil {
				return err
			}
			input.Driver.Start()
			return nil
		},
		OnStop: func(_ context.Context) error {
			return input.Driver.Stop()
		},
	})
}
