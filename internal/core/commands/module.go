package commands

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Health  *health.Registry `optional:"true"`
	Options []Option         `group:"console_commands"`
}

// ProvideHandler 提供控制台行处理器
func ProvideHandler(input ModuleInput) interfaces.SessionHandler {
	opts := append([]Option(nil), input.Options...)
	if input.Health != nil {
		opts = append([]Option{WithHealth(input.Health)}, opts...)
	}
	return NewHandler(opts...)
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("commands",
		fx.Provide(ProvideHandler),
	)
}
