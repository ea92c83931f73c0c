package auth

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config

	Stats  *stats.AuthStats `optional:"true"`
	Health *health.Registry `optional:"true"`
	Clock  clock.Clock      `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Checker *Checker
	Gateway *Gateway
	Service *Service
}

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := input.Config.Auth

	checker, err := CheckerFromConfig(cfg)
	if err != nil {
		return ModuleOutput{}, err
	}
	gateway := NewGateway(checker)

	opts := []ServiceOption{WithStats(input.Stats), WithClock(input.Clock)}
	if input.Health != nil && cfg.Enable {
		flag, err := input.Health.Register(HealthFlagName)
		if err != nil {
			return ModuleOutput{}, err
		}
		opts = append(opts, WithHealthFlag(flag))
	}

	svc, err := NewService(cfg, gateway, opts...)
	if err != nil {
		return ModuleOutput{}, err
	}

	return ModuleOutput{
		Checker: checker,
		Gateway: gateway,
		Service: svc,
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
//
// 网关在控制服务器之前启动，控制服务器的握手依赖它。
func Module() fx.Option {
	return fx.Module("auth",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

// lifecycleInput 生命周期输入参数
type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Config  *config.Config
	Service *Service
}

// registerLifecycle 注册生命周期
func registerLifecycle(input lifecycleInput) {
	input.LC.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if !input.Config.Auth.Enable {
				log.Info("认证网关未启用")
				return nil
			}
			return input.Service.Start()
		},
		OnStop: func(_ context.Context) error {
			return input.Service.Stop()
		},
	})
}
