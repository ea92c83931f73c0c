// Package logger 提供控制面的统一日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（CTLPLANE_LOG_LEVEL, CTLPLANE_LOG_FORMAT）
//   - 运行时切换详细程度（控制台 "enable log vv"、RPC LOGL 指令）
//
// 使用示例:
//
//	package console
//
//	import "github.com/dep2p/go-ctlplane/internal/util/logger"
//
//	var log = logger.Logger("core/console")
//
//	func foo() {
//	    log.Info("session accepted", "session", id, "remote", addr)
//	    log.Debug("chunk received", "bytes", n)
//	}
//
// 环境变量配置:
//
//	# 所有模块为 info，console 模块为 trace
//	CTLPLANE_LOG_LEVEL=core/console=trace,info
//
//	# 使用 JSON 格式输出
//	CTLPLANE_LOG_FORMAT=json
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler

	// globalLogger 全局默认 Logger
	globalLogger     *slog.Logger
	globalLoggerOnce sync.Once

	// override 运行时设置的全局级别，覆盖环境变量配置
	overrideMu sync.RWMutex
	override   *slog.Level
	verbosity  string
)

// ErrInvalidVerbosity 未知的详细程度
var ErrInvalidVerbosity = errors.New("logger: invalid verbosity, expected v, vv or vvv")

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同的 Logger 实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	level := ConfigFromEnv().LevelForSubsystem(subsystem)
	overrideMu.RLock()
	if override != nil {
		level = *override
	}
	overrideMu.RUnlock()

	handler := newHandler(subsystem, level)
	actual, loaded := loggers.LoadOrStore(subsystem, slog.New(handler))
	if !loaded {
		handlers.Store(subsystem, handler)
	}

	return actual.(*slog.Logger)
}

// GlobalLogger 返回全局 Logger
func GlobalLogger() *slog.Logger {
	globalLoggerOnce.Do(func() {
		globalLogger = Logger("ctlplane")
	})
	return globalLogger
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// GetLevel 返回子系统当前级别
func GetLevel(subsystem string) (slog.Level, bool) {
	if h, ok := handlers.Load(subsystem); ok {
		return h.(*subsystemHandler).Level(), true
	}
	return 0, false
}

// SetGlobalLevel 设置所有子系统的日志级别
//
// 之后创建的子系统同样使用该级别。
func SetGlobalLevel(level slog.Level) {
	overrideMu.Lock()
	override = &level
	overrideMu.Unlock()

	handlers.Range(func(_, value any) bool {
		value.(*subsystemHandler).SetLevel(level)
		return true
	})
}

// ============================================================================
//                              详细程度
// ============================================================================

// SetVerbosity 按详细程度切换全局级别
//
//	""    -> info（默认模式）
//	"v"   -> info
//	"vv"  -> debug
//	"vvv" -> trace
func SetVerbosity(v string) error {
	level, err := VerbosityLevel(v)
	if err != nil {
		return err
	}

	SetGlobalLevel(level)

	overrideMu.Lock()
	verbosity = v
	overrideMu.Unlock()
	return nil
}

// Verbosity 返回当前详细程度
func Verbosity() string {
	overrideMu.RLock()
	defer overrideMu.RUnlock()
	return verbosity
}

// VerbosityLevel 将详细程度映射为日志级别
func VerbosityLevel(v string) (slog.Level, error) {
	switch v {
	case "", "v":
		return slog.LevelInfo, nil
	case "vv":
		return slog.LevelDebug, nil
	case "vvv":
		return LevelTrace, nil
	default:
		return slog.LevelInfo, ErrInvalidVerbosity
	}
}

// ============================================================================
//                              输出配置
// ============================================================================

// Configure 按名称设置全局级别与格式
//
// 用于启动阶段应用配置文件中的日志设置，空字符串表示不修改。
func Configure(level, format string) error {
	if level != "" {
		lvl, ok := ParseLevel(level)
		if !ok {
			return errors.New("logger: unknown level " + level)
		}
		SetGlobalLevel(lvl)
	}
	if format != "" {
		SetFormat(ParseFormat(format))
	}
	return nil
}

// SetFormat 切换输出格式
func SetFormat(format LogFormat) {
	globalFormat.Store(int32(format))
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(DiscardHandler())
}

// With 创建带有预设属性的 Logger
func With(subsystem string, args ...any) *slog.Logger {
	return Logger(subsystem).With(args...)
}

// SetOutput 设置全局日志输出目标
//
// 已创建的 Logger 同样会重定向到新的 writer。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}

// Trace 以 LevelTrace 级别输出
//
// slog 没有 Trace 方法，逐条消息细节统一经由此函数输出。
func Trace(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelTrace, msg, args...)
}
