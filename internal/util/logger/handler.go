package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// globalOutput 全局日志输出目标，默认为 stderr
	globalOutput   io.Writer = os.Stderr
	globalOutputMu sync.RWMutex

	// globalFormat 当前输出格式，创建后切换同样生效
	globalFormat atomic.Int32
)

// dynamicWriter 每次写入时查找 globalOutput
// logger 创建后修改输出目标同样生效
type dynamicWriter struct{}

func (w *dynamicWriter) Write(p []byte) (n int, err error) {
	globalOutputMu.RLock()
	output := globalOutput
	globalOutputMu.RUnlock()
	return output.Write(p)
}

// subsystemHandler 支持子系统级别控制的 slog.Handler
//
// level 在 WithAttrs / WithGroup 派生的 handler 之间共享，
// SetLevel 对派生出的 logger 同样生效。
type subsystemHandler struct {
	subsystem string
	level     *slog.LevelVar
	text      slog.Handler
	json      slog.Handler
}

// newHandler 创建新的子系统 Handler
func newHandler(subsystem string, level slog.Level) *subsystemHandler {
	lv := &slog.LevelVar{}
	lv.Set(level)

	opts := &slog.HandlerOptions{
		// 过滤交给外层 Enabled，内层全部放行
		Level:     LevelTrace,
		AddSource: ConfigFromEnv().AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(levelToString(lvl))
				}
			}
			return a
		},
	}

	output := &dynamicWriter{}
	attrs := []slog.Attr{slog.String("subsystem", subsystem)}

	return &subsystemHandler{
		subsystem: subsystem,
		level:     lv,
		text:      slog.NewTextHandler(output, opts).WithAttrs(attrs),
		json:      slog.NewJSONHandler(output, opts).WithAttrs(attrs),
	}
}

// Enabled 检查是否启用指定级别
func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle 处理日志记录
func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	if LogFormat(globalFormat.Load()) == FormatJSON {
		return h.json.Handle(ctx, r)
	}
	return h.text.Handle(ctx, r)
}

// WithAttrs 添加属性
func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		text:      h.text.WithAttrs(attrs),
		json:      h.json.WithAttrs(attrs),
	}
}

// WithGroup 添加组
func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		text:      h.text.WithGroup(name),
		json:      h.json.WithGroup(name),
	}
}

// SetLevel 动态设置日志级别
func (h *subsystemHandler) SetLevel(level slog.Level) {
	h.level.Set(level)
}

// Level 返回当前级别
func (h *subsystemHandler) Level() slog.Level {
	return h.level.Level()
}

// levelToString 将日志级别转换为小写字符串
func levelToString(level slog.Level) string {
	switch {
	case level <= LevelTrace:
		return "trace"
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// discardHandler 丢弃所有日志的 Handler（用于测试）
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// DiscardHandler 返回一个丢弃所有日志的 Handler
func DiscardHandler() slog.Handler {
	return discardHandler{}
}
