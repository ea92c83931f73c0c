package wire

import (
	"context"
	"sync"

	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// AuthClient 通过请求端套接字访问认证网关
//
// 握手可能在多个连接 goroutine 中同时发生，请求按互斥锁串行发出。
// 连接按需建立，请求失败后丢弃连接，下次调用时重新连接。
type AuthClient struct {
	endpoint string
	opts     DialOptions

	mu     sync.Mutex
	sock   *ReqSocket
	closed bool
}

var _ interfaces.Authenticator = (*AuthClient)(nil)

// NewAuthClient 创建认证客户端
func NewAuthClient(endpoint string, opts DialOptions) *AuthClient {
	return &AuthClient{endpoint: endpoint, opts: opts}
}

// Authenticate 实现 interfaces.Authenticator
func (c *AuthClient) Authenticate(ctx context.Context, request [][]byte) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.sock == nil {
		sock, err := Dial(ctx, c.endpoint, c.opts)
		if err != nil {
			return nil, err
		}
		c.sock = sock
	}

	reply, err := c.sock.Request(ctx, request)
	if err != nil {
		_ = c.sock.Close()
		c.sock = nil
		return nil, err
	}
	return reply, nil
}

// Close 关闭连接，可重复调用
func (c *AuthClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.sock == nil {
		return nil
	}
	err := c.sock.Close()
	c.sock = nil
	return err
}
