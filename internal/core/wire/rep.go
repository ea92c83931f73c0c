package wire

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/go-ctlplane/internal/util/addrutil"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// 包级别日志实例
var log = logger.Logger("core/wire")

// RepOptions 应答套接字选项
type RepOptions struct {
	// Domain 认证请求中的域
	Domain string
	// Authenticator 握手认证器，nil 表示接受所有对端
	Authenticator interfaces.Authenticator
	// Monitor 传输事件观察者
	Monitor Monitor
	// Limits 帧限制
	Limits Limits
	// HandshakeTimeout 握手超时
	HandshakeTimeout time.Duration
	// ReuseAddr tcp 监听设置 SO_REUSEADDR
	ReuseAddr bool
}

// request 等待应答的请求
type request struct {
	parts [][]byte
	peer  string
	reply chan response
}

type response struct {
	parts   [][]byte
	timeout time.Duration
}

// RepSocket 应答端套接字
//
// 多个对端的请求公平排队，Recv 每次取出一条；取出后必须 Send 一次应答
// 才能再次 Recv。Recv 与 Send 应由同一个工作 goroutine 调用。
type RepSocket struct {
	opts RepOptions

	mu       sync.Mutex
	listener net.Listener
	endpoint addrutil.Endpoint
	pending  *request
	closed   bool
	conns    map[net.Conn]struct{}

	requests chan *request
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRepSocket 创建应答套接字
func NewRepSocket(opts RepOptions) *RepSocket {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	opts.Limits = opts.Limits.withDefaults()
	return &RepSocket{
		opts:     opts,
		conns:    make(map[net.Conn]struct{}),
		requests: make(chan *request),
		done:     make(chan struct{}),
	}
}

// Bind 监听端点
func (s *RepSocket) Bind(endpoint string) error {
	ep, err := addrutil.ParseEndpoint(endpoint)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.listener != nil {
		return ErrAlreadyBound
	}

	ln, err := listen(context.Background(), ep, s.opts.ReuseAddr)
	if err != nil {
		s.emit(Event{Type: EventBindFailed, Endpoint: endpoint, Err: err})
		return err
	}
	s.listener = ln
	s.endpoint = ep.WithAddr(ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.emit(Event{Type: EventListening, Endpoint: s.endpoint.String()})
	return nil
}

// Endpoint 返回实际监听的端点（tcp 端口 0 已替换为实际端口）
func (s *RepSocket) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.endpoint.String()
}

// Recv 在 timeout 内取出一条请求
//
// 超时返回 ErrTimeout，表示本轮没有工作。
func (s *RepSocket) Recv(timeout time.Duration) ([][]byte, error) {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return nil, ErrClosed
	case s.listener == nil:
		s.mu.Unlock()
		return nil, ErrNotBound
	case s.pending != nil:
		s.mu.Unlock()
		return nil, ErrState
	}
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case req := <-s.requests:
		s.mu.Lock()
		s.pending = req
		s.mu.Unlock()
		return req.parts, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-s.done:
		return nil, ErrClosed
	}
}

// Send 应答最近一次 Recv 取出的请求
//
// timeout 作为写出应答的期限；对端已断开时应答被丢弃。
func (s *RepSocket) Send(parts [][]byte, timeout time.Duration) error {
	s.mu.Lock()
	req := s.pending
	s.pending = nil
	closed := s.closed
	s.mu.Unlock()

	if req == nil {
		return ErrState
	}
	if closed {
		return ErrClosed
	}
	req.reply <- response{parts: parts, timeout: timeout}
	return nil
}

// Close 关闭监听与所有连接，可重复调用
func (s *RepSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	close(s.done)

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, c := range conns {
		_ = c.Close()
	}
	s.wg.Wait()

	if ln != nil {
		s.emit(Event{Type: EventClosed, Endpoint: s.endpoint.String()})
	}
	return err
}

// ============================================================================
//                              连接处理
// ============================================================================

func (s *RepSocket) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Debug("接受连接失败", "endpoint", s.endpoint.String(), "err", err)
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-s.done:
				return
			}
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *RepSocket) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *RepSocket) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
}

// serve 处理一个对端：握手，然后逐条转发请求并写回应答
func (s *RepSocket) serve(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	ep := s.endpoint.String()
	address := addrutil.PeerAddress(s.endpoint.Transport, conn.RemoteAddr())
	s.emit(Event{Type: EventAccepted, Endpoint: ep, Peer: address})

	br := bufio.NewReader(conn)
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HandshakeTimeout)
	_ = conn.SetDeadline(time.Now().Add(s.opts.HandshakeTimeout))
	peer, err := serverHandshake(ctx, conn, br, address, s.opts)
	cancel()
	if err != nil {
		var herr *HandshakeError
		if errors.As(err, &herr) {
			s.emit(Event{Type: EventHandshakeFailedAuth, Endpoint: ep, Peer: address,
				Identity: peer.identity, Status: herr.Status, Reason: herr.Reason})
		} else {
			s.emit(Event{Type: EventHandshakeFailedProtocol, Endpoint: ep, Peer: address, Err: err})
		}
		return
	}
	_ = conn.SetDeadline(time.Time{})
	s.emit(Event{Type: EventHandshakeSucceeded, Endpoint: ep, Peer: address, Identity: peer.identity})

	for {
		parts, err := ReadMessage(br, s.opts.Limits)
		if err != nil {
			ev := Event{Type: EventDisconnected, Endpoint: ep, Peer: address, Identity: peer.identity}
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				ev.Err = err
			}
			s.emit(ev)
			return
		}

		req := &request{parts: parts, peer: address, reply: make(chan response, 1)}
		select {
		case s.requests <- req:
		case <-s.done:
			return
		}

		var rep response
		select {
		case rep = <-req.reply:
		case <-s.done:
			return
		}

		if rep.timeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(rep.timeout))
		}
		if err := WriteMessage(conn, rep.parts); err != nil {
			s.emit(Event{Type: EventDisconnected, Endpoint: ep, Peer: address, Identity: peer.identity, Err: err})
			return
		}
	}
}

func (s *RepSocket) emit(ev Event) {
	if s.opts.Monitor != nil {
		s.opts.Monitor.OnEvent(ev)
	}
}
