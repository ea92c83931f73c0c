package config

import "errors"

// DiagnosticsConfig 诊断服务配置
type DiagnosticsConfig struct {
	// EnableIntrospect 启用自省 HTTP 服务
	EnableIntrospect bool `json:"enable_introspect" yaml:"enable_introspect"`

	// IntrospectAddr 自省服务监听地址
	// 默认 "127.0.0.1:6060"
	IntrospectAddr string `json:"introspect_addr" yaml:"introspect_addr"`

	// EnableMetrics 在自省服务上暴露 /metrics
	EnableMetrics bool `json:"enable_metrics" yaml:"enable_metrics"`

	// EnableProcessMetrics 注册进程与 Go 运行时采集器
	EnableProcessMetrics bool `json:"enable_process_metrics" yaml:"enable_process_metrics"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		EnableIntrospect:     false, // 默认禁用
		IntrospectAddr:       "127.0.0.1:6060",
		EnableMetrics:        true,
		EnableProcessMetrics: true,
	}
}

// Validate 验证诊断配置
func (c DiagnosticsConfig) Validate() error {
	if c.EnableIntrospect && c.IntrospectAddr == "" {
		return errors.New("introspect addr is required when introspect is enabled")
	}
	return nil
}
