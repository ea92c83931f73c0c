package control

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config

	Dispatcher interfaces.Dispatcher `optional:"true"`
	Stats      *stats.ControlStats   `optional:"true"`
	Health     *health.Registry      `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Server *Server
}

// ProvideServices 提供模块服务
//
// 未注入 Dispatcher 时使用内置命令表。Control.Authenticate 为真时，
// 握手经由 Auth.Endpoint 上的认证网关。
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config

	d := input.Dispatcher
	if d == nil {
		var opts []TableOption
		if input.Health != nil {
			opts = append(opts, WithHealth(input.Health))
		}
		d = NewCommandTable(opts...)
	}

	opts := []Option{WithStats(input.Stats), WithClock(input.Clock)}
	if input.Health != nil && cfg.Control.Enable {
		flag, err := input.Health.Register(HealthFlagName)
		if err != nil {
			return ModuleOutput{}, err
		}
		opts = append(opts, WithHealthFlag(flag))
	}
	if cfg.Control.Authenticate && cfg.Auth.Enable {
		opts = append(opts, WithAuthClient(wire.NewAuthClient(cfg.Auth.Endpoint, wire.DialOptions{
			Credentials: wire.Credentials{Identity: HealthFlagName},
			Limits:      wire.Limits{MaxParts: cfg.Control.MaxParts, MaxPartSize: cfg.Control.MaxPartSize},
		})))
	}

	srv, err := New(cfg.Control, d, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Server: srv}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("control",
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
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !input.Config.Control.Enable {
				log.Info("控制服务未启用")
				return nil
			}
			return input.Server.Initialise()
		},
		OnStop: func(_ context.Context) error {
			return input.Server.Shutdown()
		},
	})
}
