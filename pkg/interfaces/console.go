package interfaces

// Session 控制台会话
//
// 处理器只能在会话所属服务器的 Update 调用内使用会话。
type Session interface {
	// ID 会话唯一标识
	ID() string

	// RemoteAddr 对端地址
	RemoteAddr() string

	// SendLine 发送一行文本，随后重绘提示符与未完成输入
	SendLine(text string) error

	// Quit 请求在下一次 Update 时优雅关闭会话
	Quit()
}

// SessionHandler 控制台行处理器
type SessionHandler interface {
	// OnConnect 协商完成后调用，通常输出欢迎信息与命令列表
	OnConnect(s Session)

	// OnLine 处理一条完整命令行，返回结果是否成功
	OnLine(s Session, line string) bool

	// Complete 根据前缀返回补全结果，空字符串表示不替换
	Complete(s Session, prefix string) string
}
