package console

import "errors"

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNilHandler 未提供行处理器
	ErrNilHandler = errors.New("console: nil session handler")

	// ErrAlreadyInitialised 服务器已在监听
	ErrAlreadyInitialised = errors.New("console: already initialised")

	// ErrServerClosed 服务器已关闭
	ErrServerClosed = errors.New("console: server closed")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("console: session closed")

	// ErrInvalidLimit 会话上限无效
	ErrInvalidLimit = errors.New("console: max sessions must be positive")
)
