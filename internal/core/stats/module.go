package stats

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
)

// Module 返回统计累加器 Fx 模块
func Module() fx.Option {
	return fx.Module("stats",
		fx.Provide(
			ProvideAccumulator,
			NewConsoleStats,
			NewControlStats,
			NewAuthStats,
		),
	)
}

// Params 累加器依赖参数
type Params struct {
	fx.In

	Config     *config.Config        `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
	Clock      clock.Clock           `optional:"true"`
}

// ProvideAccumulator 从统一配置创建累加器
func ProvideAccumulator(p Params) *Accumulator {
	cfg := config.DefaultStatsConfig()
	if p.Config != nil {
		cfg = p.Config.Stats
	}
	return NewAccumulator(p.Registerer, Options{
		Namespace:  cfg.Namespace,
		WindowSize: cfg.WindowSize,
		Clock:      p.Clock,
	})
}
