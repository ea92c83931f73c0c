package ctlplane

import "errors"

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrAlreadyStarted 控制面已启动
	ErrAlreadyStarted = errors.New("ctlplane: already started")

	// ErrHarnessClosed 控制面已关闭，不能再次启动
	ErrHarnessClosed = errors.New("ctlplane: harness closed")

	// ────────────────────────────────────────────────────────────────────────
	// 选项错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNilOption 选项参数为 nil
	ErrNilOption = errors.New("ctlplane: nil option value")
)
