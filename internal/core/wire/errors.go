package wire

import (
	"errors"
	"fmt"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrTimeout 在超时内没有可处理的消息
	ErrTimeout = errors.New("wire: timeout")

	// ErrState 违反请求/应答交替顺序
	ErrState = errors.New("wire: operation not valid in current socket state")

	// ErrClosed 套接字已关闭
	ErrClosed = errors.New("wire: socket closed")

	// ErrNotBound 套接字尚未绑定
	ErrNotBound = errors.New("wire: socket not bound")

	// ErrAlreadyBound 套接字已绑定
	ErrAlreadyBound = errors.New("wire: socket already bound")

	// ErrProtocol 帧格式或握手格式错误
	ErrProtocol = errors.New("wire: protocol error")

	// ErrTooManyParts 消息帧数超过上限
	ErrTooManyParts = fmt.Errorf("%w: too many message parts", ErrProtocol)

	// ErrPartTooLarge 单帧超过大小上限
	ErrPartTooLarge = fmt.Errorf("%w: message part too large", ErrProtocol)

	// ErrEndpointInUse 进程内端点已被占用
	ErrEndpointInUse = errors.New("wire: inproc endpoint already bound")

	// ErrConnectionRefused 进程内端点不存在
	ErrConnectionRefused = errors.New("wire: connection refused")
)

// HandshakeError 握手被对端拒绝
type HandshakeError struct {
	// Status 认证状态码，如 "400"
	Status string
	// Reason 拒绝原因
	Reason string
}

// Error 实现 error
func (e *HandshakeError) Error() string {
	return fmt.Sprintf("wire: handshake rejected (%s): %s", e.Status, e.Reason)
}
