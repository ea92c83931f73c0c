package config

import (
	"errors"
	"strings"
)

// LogConfig 日志配置
//
// 与 CTLPLANE_LOG_LEVEL / CTLPLANE_LOG_FORMAT 环境变量共同作用，
// 环境变量优先。
type LogConfig struct {
	// Level 默认级别：trace / debug / info / warn / error
	Level string `json:"level" yaml:"level"`

	// Format 输出格式：text / json
	Format string `json:"format" yaml:"format"`

	// File 日志文件路径，空表示 stderr
	File string `json:"file,omitempty" yaml:"file,omitempty"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("unknown log level")
	}

	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return errors.New("log format must be text or json")
	}

	return nil
}
