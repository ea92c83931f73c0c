package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
//
// Config.Validate() 的别名，额外处理 nil。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 非正数的超时 -> 使用默认值
//   - 历史上限或缓冲区为 0 -> 使用默认值
//   - 控制通道要求认证但网关禁用 -> 关闭认证
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	console := DefaultConsoleConfig()
	if c.Console.IdleTimeout <= 0 {
		c.Console.IdleTimeout = console.IdleTimeout
	}
	if c.Console.HistoryLimit <= 0 {
		c.Console.HistoryLimit = console.HistoryLimit
	}
	if c.Console.BufferSize <= 0 {
		c.Console.BufferSize = console.BufferSize
	}
	if c.Console.UpdateInterval <= 0 {
		c.Console.UpdateInterval = console.UpdateInterval
	}

	control := DefaultControlConfig()
	if c.Control.RecvTimeout <= 0 {
		c.Control.RecvTimeout = control.RecvTimeout
	}
	if c.Control.SendTimeout <= 0 {
		c.Control.SendTimeout = control.SendTimeout
	}

	auth := DefaultAuthConfig()
	if c.Auth.RecvTimeout <= 0 {
		c.Auth.RecvTimeout = auth.RecvTimeout
	}
	if c.Auth.SendTimeout <= 0 {
		c.Auth.SendTimeout = auth.SendTimeout
	}

	if c.Control.Authenticate && !c.Auth.Enable {
		c.Control.Authenticate = false
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}

	return c, nil
}

// ValidateSubConfig 子配置验证接口
type ValidateSubConfig interface {
	Validate() error
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}
}
