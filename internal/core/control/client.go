package control

import (
	"context"

	"github.com/dep2p/go-ctlplane/internal/core/wire"
)

// Response 控制命令应答
type Response struct {
	Status Tag
	Body   []byte
}

// OK 是否成功
func (r Response) OK() bool {
	return r.Status == StatusSucceeded
}

// Client 控制 RPC 客户端
//
// 同一时刻只允许一个调用在途，适合运维工具与测试。
type Client struct {
	sock *wire.ReqSocket
}

// Dial 连接控制服务器
func Dial(ctx context.Context, endpoint string, opts wire.DialOptions) (*Client, error) {
	sock, err := wire.Dial(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	return &Client{sock: sock}, nil
}

// Call 发送 [tag, body...] 并解析两帧应答
func (c *Client) Call(ctx context.Context, tag Tag, body ...[]byte) (Response, error) {
	request := append([][]byte{tag.Bytes()}, body...)
	reply, err := c.sock.Request(ctx, request)
	if err != nil {
		return Response{}, err
	}
	if len(reply) != 2 {
		return Response{}, ErrMalformedReply
	}
	status, ok := ParseTag(reply[0])
	if !ok {
		return Response{}, ErrMalformedReply
	}
	return Response{Status: status, Body: reply[1]}, nil
}

// Raw 发送任意请求，返回原始应答
func (c *Client) Raw(ctx context.Context, request [][]byte) ([][]byte, error) {
	return c.sock.Request(ctx, request)
}

// Close 关闭连接
func (c *Client) Close() error {
	return c.sock.Close()
}
