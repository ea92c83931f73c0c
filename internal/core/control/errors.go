package control

import "errors"

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrNilDispatcher 未提供分发器
	ErrNilDispatcher = errors.New("control: nil dispatcher")

	// ErrAlreadyInitialised 服务器已绑定
	ErrAlreadyInitialised = errors.New("control: already initialised")

	// ErrServerClosed 服务器已关闭
	ErrServerClosed = errors.New("control: server closed")

	// ErrMalformedReply 应答不是 [状态, 内容] 两帧
	ErrMalformedReply = errors.New("control: malformed reply")
)
