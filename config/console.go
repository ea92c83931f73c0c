package config

import (
	"errors"
	"time"
)

// ConsoleConfig 交互式文本控制台配置
//
// 控制台是一个类 telnet 的行协议服务：
//   - 连接数上限（超出时发送拒绝信息后立即关闭）
//   - 空闲超时驱逐
//   - 命令历史与 Tab 补全
type ConsoleConfig struct {
	// Enable 是否启用控制台
	Enable bool `json:"enable" yaml:"enable"`

	// ListenAddr 监听主机地址，空表示所有地址
	ListenAddr string `json:"listen_addr,omitempty" yaml:"listen_addr,omitempty"`

	// Port 监听端口，0 表示随机端口
	Port int `json:"port" yaml:"port"`

	// MaxSessions 最大并发会话数
	MaxSessions int `json:"max_sessions" yaml:"max_sessions"`

	// IdleTimeout 空闲超时（自最后一次收到数据起计算）
	IdleTimeout Duration `json:"idle_timeout" yaml:"idle_timeout"`

	// BufferSize 单次读取缓冲区大小
	BufferSize int `json:"buffer_size" yaml:"buffer_size"`

	// Prompt 提示符
	Prompt string `json:"prompt" yaml:"prompt"`

	// HistoryLimit 命令历史上限
	HistoryLimit int `json:"history_limit" yaml:"history_limit"`

	// Interactive 启用历史/补全等交互特性
	Interactive bool `json:"interactive" yaml:"interactive"`

	// ArrowCompensation 历史导航时发送反向方向键以抵消客户端本地回显
	ArrowCompensation bool `json:"arrow_compensation" yaml:"arrow_compensation"`

	// UpdateInterval 驱动循环调用 Update 的间隔
	UpdateInterval Duration `json:"update_interval" yaml:"update_interval"`

	// ReuseAddr 监听套接字设置 SO_REUSEADDR
	ReuseAddr bool `json:"reuse_addr" yaml:"reuse_addr"`
}

// DefaultConsoleConfig 返回默认控制台配置
func DefaultConsoleConfig() ConsoleConfig {
	return ConsoleConfig{
		// ════════════════════════════════════════════════════════════════════
		// 监听与连接限制
		// ════════════════════════════════════════════════════════════════════
		Enable:      true,
		ListenAddr:  "127.0.0.1",
		Port:        23232,
		MaxSessions: 5,

		// ════════════════════════════════════════════════════════════════════
		// 会话行为
		// ════════════════════════════════════════════════════════════════════
		IdleTimeout:       Duration(120 * time.Second),
		BufferSize:        512,
		Prompt:            "> ",
		HistoryLimit:      50,
		Interactive:       true,
		ArrowCompensation: true,

		// ════════════════════════════════════════════════════════════════════
		// 驱动循环
		// ════════════════════════════════════════════════════════════════════
		UpdateInterval: Duration(50 * time.Millisecond),
		ReuseAddr:      true,
	}
}

// Validate 验证控制台配置
func (c ConsoleConfig) Validate() error {
	if !c.Enable {
		return nil
	}

	if c.Port < 0 || c.Port > 65535 {
		return errors.New("port out of range")
	}

	if c.MaxSessions <= 0 {
		return errors.New("max sessions must be positive")
	}

	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}

	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be positive")
	}

	if c.UpdateInterval <= 0 {
		return errors.New("update interval must be positive")
	}

	return nil
}

// WithPort 设置监听端口
func (c ConsoleConfig) WithPort(port int) ConsoleConfig {
	c.Port = port
	return c
}

// WithMaxSessions 设置最大会话数
func (c ConsoleConfig) WithMaxSessions(n int) ConsoleConfig {
	c.MaxSessions = n
	return c
}

// WithIdleTimeout 设置空闲超时
func (c ConsoleConfig) WithIdleTimeout(d time.Duration) ConsoleConfig {
	c.IdleTimeout = Duration(d)
	return c
}

// WithPrompt 设置提示符
func (c ConsoleConfig) WithPrompt(prompt string) ConsoleConfig {
	c.Prompt = prompt
	return c
}

// WithArrowCompensation 设置方向键补偿
func (c ConsoleConfig) WithArrowCompensation(enable bool) ConsoleConfig {
	c.ArrowCompensation = enable
	return c
}
