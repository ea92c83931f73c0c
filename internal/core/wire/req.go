package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/dep2p/go-ctlplane/internal/util/addrutil"
)

// DialOptions 请求端选项
type DialOptions struct {
	// Credentials 握手身份
	Credentials Credentials
	// Limits 帧限制
	Limits Limits
	// HandshakeTimeout 握手超时（ctx 没有更早的期限时使用）
	HandshakeTimeout time.Duration
}

// ReqSocket 请求端套接字
//
// 同一时刻只允许一个请求在途：并发调用 Request 返回 ErrState。
// 请求因超时或取消失败后，套接字不再可用。
type ReqSocket struct {
	conn     net.Conn
	br       *bufio.Reader
	limits   Limits
	endpoint string

	inflight sync.Mutex
	mu       sync.Mutex
	closed   bool
	broken   error
}

// Dial 连接端点并完成握手
func Dial(ctx context.Context, endpoint string, opts DialOptions) (*ReqSocket, error) {
	ep, err := addrutil.ParseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	opts.Limits = opts.Limits.withDefaults()

	conn, err := dial(ctx, ep)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	deadline := time.Now().Add(opts.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	br := bufio.NewReader(conn)
	if err := clientHandshake(conn, br, opts.Credentials, opts.Limits); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})

	return &ReqSocket{
		conn:     conn,
		br:       br,
		limits:   opts.Limits,
		endpoint: endpoint,
	}, nil
}

// Endpoint 返回连接的端点
func (r *ReqSocket) Endpoint() string {
	return r.endpoint
}

// Request 发送请求并等待应答
func (r *ReqSocket) Request(ctx context.Context, parts [][]byte) ([][]byte, error) {
	if !r.inflight.TryLock() {
		return nil, ErrState
	}
	defer r.inflight.Unlock()

	r.mu.Lock()
	closed, broken := r.closed, r.broken
	r.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if broken != nil {
		return nil, fmt.Errorf("%w: %v", ErrClosed, broken)
	}

	deadline, _ := ctx.Deadline()
	_ = r.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	reply, err := r.roundTrip(parts)
	if err != nil {
		// 连接期限可能早于 ctx 记录自身超时触发
		if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
			<-ctx.Done()
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		r.fail(err)
		return nil, err
	}
	return reply, nil
}

func (r *ReqSocket) roundTrip(parts [][]byte) ([][]byte, error) {
	if err := WriteMessage(r.conn, parts); err != nil {
		return nil, err
	}
	return ReadMessage(r.br, r.limits)
}

// fail 标记套接字不可用并关闭连接
func (r *ReqSocket) fail(err error) {
	r.mu.Lock()
	if r.broken == nil {
		r.broken = err
	}
	r.mu.Unlock()
	_ = r.conn.Close()
}

// Close 关闭连接，可重复调用
func (r *ReqSocket) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.broken != nil {
		return nil
	}
	return r.conn.Close()
}
