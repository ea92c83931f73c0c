package wire

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// EventType 传输事件类型
type EventType int

const (
	// EventListening 开始监听
	EventListening EventType = iota
	// EventBindFailed 绑定失败
	EventBindFailed
	// EventAccepted 接受新连接
	EventAccepted
	// EventHandshakeSucceeded 握手与认证通过
	EventHandshakeSucceeded
	// EventHandshakeFailedAuth 认证拒绝
	EventHandshakeFailedAuth
	// EventHandshakeFailedProtocol 握手格式错误
	EventHandshakeFailedProtocol
	// EventDisconnected 对端断开
	EventDisconnected
	// EventClosed 套接字关闭
	EventClosed
)

// String 返回事件名
func (t EventType) String() string {
	switch t {
	case EventListening:
		return "listening"
	case EventBindFailed:
		return "bind_failed"
	case EventAccepted:
		return "accepted"
	case EventHandshakeSucceeded:
		return "handshake_succeeded"
	case EventHandshakeFailedAuth:
		return "handshake_failed_auth"
	case EventHandshakeFailedProtocol:
		return "handshake_failed_protocol"
	case EventDisconnected:
		return "disconnected"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event 传输事件
type Event struct {
	Type     EventType
	Endpoint string
	Peer     string
	Identity string
	Status   string
	Reason   string
	Err      error
}

// Monitor 传输事件观察者
//
// OnEvent 可能在多个连接 goroutine 中并发调用。
type Monitor interface {
	OnEvent(ev Event)
}

// MonitorFunc 函数形式的 Monitor
type MonitorFunc func(ev Event)

// OnEvent 实现 Monitor
func (f MonitorFunc) OnEvent(ev Event) {
	f(ev)
}

// LogMonitor 把传输事件写入日志
//
// 认证拒绝按 warn 输出并限速，避免恶意对端刷屏。
type LogMonitor struct {
	log     *slog.Logger
	name    string
	limiter *rate.Limiter
}

// NewLogMonitor 创建日志监视器
func NewLogMonitor(l *slog.Logger, name string) *LogMonitor {
	if l == nil {
		l = log
	}
	return &LogMonitor{
		log:     l,
		name:    name,
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// OnEvent 实现 Monitor
func (m *LogMonitor) OnEvent(ev Event) {
	args := []any{"socket", m.name, "event", ev.Type.String(), "endpoint", ev.Endpoint}
	if ev.Peer != "" {
		args = append(args, "peer", ev.Peer)
	}
	if ev.Identity != "" {
		args = append(args, "identity", ev.Identity)
	}
	if ev.Err != nil {
		args = append(args, "err", ev.Err)
	}

	switch ev.Type {
	case EventListening, EventClosed:
		m.log.Info("传输事件", args...)
	case EventBindFailed:
		m.log.Warn("传输事件", args...)
	case EventHandshakeFailedAuth:
		if m.limiter.Allow() {
			m.log.Warn("握手认证被拒绝", append(args, "status", ev.Status, "reason", ev.Reason)...)
		}
	case EventHandshakeFailedProtocol:
		if m.limiter.Allow() {
			m.log.Warn("握手格式错误", args...)
		}
	default:
		m.log.Debug("传输事件", args...)
	}
}

// multiMonitor 依次分发给多个 Monitor
type multiMonitor []Monitor

func (mm multiMonitor) OnEvent(ev Event) {
	for _, m := range mm {
		m.OnEvent(ev)
	}
}

// Monitors 组合多个 Monitor，忽略 nil
func Monitors(ms ...Monitor) Monitor {
	var out multiMonitor
	for _, m := range ms {
		if m != nil {
			out = append(out, m)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
