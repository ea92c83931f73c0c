// Package config 提供控制面统一配置管理
//
// 本包沿用"主结构体嵌入子配置"的模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，提供 DefaultXxxConfig / Validate / WithXxx
//   - 支持从 JSON 或 YAML 加载和保存配置
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Console.Port = 2323
//
//	// 从文件加载（按扩展名选择 JSON / YAML）
//	cfg, err := config.LoadFile("ctlplane.yaml")
//
// 配置只在构造时读取一次，运行期间不做热加载。
package config

import (
	"encoding/json"
	"fmt"
)

// Config 是控制面的完整配置结构
//
// 配置按照组件组织：
//   - Console: 交互式文本控制台（会话服务器）
//   - Control: 结构化控制 RPC 服务器
//   - Auth: 对等认证网关
//   - Stats: 统计累加器
//   - Diagnostics: 诊断 HTTP 服务
//   - Log: 日志
type Config struct {
	// Console 文本控制台配置
	Console ConsoleConfig `json:"console" yaml:"console"`

	// Control 控制 RPC 配置
	Control ControlConfig `json:"control" yaml:"control"`

	// Auth 认证网关配置
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Stats 统计配置
	Stats StatsConfig `json:"stats" yaml:"stats"`

	// Diagnostics 诊断服务配置
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`

	// Log 日志配置
	Log LogConfig `json:"log" yaml:"log"`
}

// NewConfig 创建默认配置
//
// 返回的配置使用所有组件的默认值，适用于大多数部署。
func NewConfig() *Config {
	return &Config{
		Console:     DefaultConsoleConfig(),
		Control:     DefaultControlConfig(),
		Auth:        DefaultAuthConfig(),
		Stats:       DefaultStatsConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
		Log:         DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 依次验证所有子配置，返回第一个错误。
func (c *Config) Validate() error {
	if err := c.Console.Validate(); err != nil {
		return fmt.Errorf("console config: %w", err)
	}
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control config: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}
	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("stats config: %w", err)
	}
	if err := c.Diagnostics.Validate(); err != nil {
		return fmt.Errorf("diagnostics config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	// 控制通道要求认证时，网关必须启用
	if c.Control.Enable && c.Control.Authenticate && !c.Auth.Enable {
		return fmt.Errorf("control config: authentication requested but auth gateway disabled")
	}

	return nil
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		// 配置结构体只包含可序列化字段
		panic(fmt.Sprintf("config: clone failed: %v", err))
	}
	out := &Config{}
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("config: clone failed: %v", err))
	}
	return out
}
