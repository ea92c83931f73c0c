// Package logger 提供统一的日志接口
//
// 支持通过环境变量配置日志级别：
//   - CTLPLANE_LOG_LEVEL: 设置日志级别，支持按子系统配置
//     格式: 子系统=级别,子系统=级别,默认级别
//     示例: core/console=trace,core/auth=warn,info
//   - CTLPLANE_LOG_FORMAT: 日志格式 (text 或 json)
//   - CTLPLANE_LOG_ADD_SOURCE: 是否输出源码位置
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelTrace 比 Debug 更详细的级别，对应 "enable log vvv"
const LevelTrace = slog.Level(-8)

// 环境变量名
const (
	EnvLogLevel     = "CTLPLANE_LOG_LEVEL"
	EnvLogFormat    = "CTLPLANE_LOG_FORMAT"
	EnvLogAddSource = "CTLPLANE_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各子系统的日志级别
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取指定子系统的日志级别
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.SubsystemLevels[subsystem]; ok {
		return level
	}
	return c.DefaultLevel
}

// configCache 缓存配置，避免重复解析
var (
	configCache *Config
	configOnce  sync.Once
	configMu    sync.RWMutex
)

// ConfigFromEnv 从环境变量解析配置
func ConfigFromEnv() *Config {
	configOnce.Do(func() {
		cfg := parseConfig()
		globalFormat.Store(int32(cfg.Format))
		configMu.Lock()
		configCache = cfg
		configMu.Unlock()
	})
	configMu.RLock()
	defer configMu.RUnlock()
	return configCache
}

// parseConfig 解析环境变量配置
func parseConfig() *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	if levelStr := os.Getenv(EnvLogLevel); levelStr != "" {
		parseLevelConfig(cfg, levelStr)
	}

	if formatStr := os.Getenv(EnvLogFormat); formatStr != "" {
		cfg.Format = ParseFormat(formatStr)
	}

	if addSourceStr := os.Getenv(EnvLogAddSource); addSourceStr != "" {
		cfg.AddSource = addSourceStr != "false" && addSourceStr != "0"
	}

	return cfg
}

// parseLevelConfig 解析日志级别配置字符串
// 格式: subsystem=level,subsystem=level,defaultLevel
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if subsystem, levelName, ok := strings.Cut(part, "="); ok {
			if level, ok := ParseLevel(strings.TrimSpace(levelName)); ok {
				cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
			}
			continue
		}

		if level, ok := ParseLevel(part); ok {
			cfg.DefaultLevel = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat 解析输出格式
func ParseFormat(name string) LogFormat {
	if strings.ToLower(name) == "json" {
		return FormatJSON
	}
	return FormatText
}

// ResetConfig 重置配置缓存（仅用于测试）
func ResetConfig() {
	configMu.Lock()
	configOnce = sync.Once{}
	configCache = nil
	configMu.Unlock()
}

// ReloadFromEnv 重新读取环境变量并应用到已创建的 Logger
//
// 进程启动后才加载 .env 文件时调用。
func ReloadFromEnv() {
	ResetConfig()
	cfg := ConfigFromEnv()

	handlers.Range(func(key, value any) bool {
		value.(*subsystemHandler).SetLevel(cfg.LevelForSubsystem(key.(string)))
		return true
	})
}
