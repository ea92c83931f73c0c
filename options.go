package ctlplane

import (
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/commands"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ConsoleCommand 追加到内置控制台命令表的命令
type ConsoleCommand = commands.Command

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	config *config.Config

	consoleHandler  interfaces.SessionHandler
	consoleCommands []commands.Option
	dispatcher      interfaces.Dispatcher

	registerer prometheus.Registerer
	clock      clock.Clock

	// 用户自定义 Fx 选项
	userFxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{}
}

// WithConfig 使用完整配置
//
// 配置在构造时读取一次；调用方在 New 之后修改 cfg 不会生效。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("%w: config", ErrNilOption)
		}
		o.config = cfg.Clone()
		return nil
	}
}

// WithConfigFile 从 JSON 或 YAML 文件加载配置
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		o.config = cfg
		return nil
	}
}

// WithConsoleHandler 替换内置控制台命令处理器
func WithConsoleHandler(h interfaces.SessionHandler) Option {
	return func(o *options) error {
		if h == nil {
			return fmt.Errorf("%w: console handler", ErrNilOption)
		}
		o.consoleHandler = h
		return nil
	}
}

// WithConsoleCommand 向内置控制台命令处理器追加命令
//
// 使用 WithConsoleHandler 时无效。
func WithConsoleCommand(c ConsoleCommand) Option {
	return func(o *options) error {
		o.consoleCommands = append(o.consoleCommands, commands.WithCommand(c))
		return nil
	}
}

// WithDispatcher 替换内置控制 RPC 命令表
func WithDispatcher(d interfaces.Dispatcher) Option {
	return func(o *options) error {
		if d == nil {
			return fmt.Errorf("%w: dispatcher", ErrNilOption)
		}
		o.dispatcher = d
		return nil
	}
}

// WithRegisterer 指定 Prometheus 注册器
//
// 未指定时使用独立的注册表。注册器同时实现 prometheus.Gatherer 时，
// 诊断服务的 /metrics 从它读取。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		if reg == nil {
			return fmt.Errorf("%w: registerer", ErrNilOption)
		}
		o.registerer = reg
		return nil
	}
}

// WithClock 指定时钟，测试中使用 clock.NewMock()
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return fmt.Errorf("%w: clock", ErrNilOption)
		}
		o.clock = clk
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
