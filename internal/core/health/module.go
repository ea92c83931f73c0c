package health

import "go.uber.org/fx"

// Module 返回健康注册表 Fx 模块
func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(NewRegistry),
	)
}
