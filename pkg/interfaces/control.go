package interfaces

import "context"

// Dispatcher 控制 RPC 分发器
//
// 收到的每条多帧请求调用一次 Dispatch。无论成功与否，
// 返回的 reply 都会原样发回客户端。
type Dispatcher interface {
	Dispatch(request [][]byte) (reply [][]byte, ok bool)
}

// DispatcherFunc 函数形式的 Dispatcher
type DispatcherFunc func(request [][]byte) ([][]byte, bool)

// Dispatch 实现 Dispatcher
func (f DispatcherFunc) Dispatch(request [][]byte) ([][]byte, bool) {
	return f(request)
}

// Authenticator 对端握手认证器
//
// request 至少 6 帧：版本、关联令牌、域、地址、身份、机制，其后为凭证帧。
// reply 固定 4 帧：版本、关联令牌、状态码、原因。
// 只有无法得到答复时才返回 error。
type Authenticator interface {
	Authenticate(ctx context.Context, request [][]byte) (reply [][]byte, err error)
}
