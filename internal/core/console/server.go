package console

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/internal/util/sockopt"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// 包级别日志实例
var log = logger.Logger("core/console")

// HealthFlagName 控制台在健康注册表中的标志名
const HealthFlagName = "console"

// rejectMessage 超出会话上限时发送给新连接
const rejectMessage = "Too many active connections. Please try again later. \r\nClosing..."

const (
	acceptBacklog   = 16
	broadcastQueue  = 64
	defaultWriteTTL = time.Second
)

// ============================================================================
//                              选项
// ============================================================================

// Option 服务器选项
type Option func(*Server)

// WithClock 设置时钟，测试中用于驱动空闲超时
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithStats 设置控制台指标
func WithStats(st *stats.ConsoleStats) Option {
	return func(s *Server) {
		if st != nil {
			s.stats = st
		}
	}
}

// WithHealthFlag 设置每次 Update 都会 Beat 的健康标志
func WithHealthFlag(f *health.Flag) Option {
	return func(s *Server) {
		s.flag = f
	}
}

// ============================================================================
//                              Server
// ============================================================================

// Server 控制台服务器
//
// Initialise、Update、Shutdown 必须由同一个驱动 goroutine 调用，
// Broadcast 和只读访问器可以在任意 goroutine 调用。
type Server struct {
	cfg     config.ConsoleConfig
	handler interfaces.SessionHandler
	clock   clock.Clock
	stats   *stats.ConsoleStats
	flag    *health.Flag

	mu          sync.Mutex
	listener    net.Listener
	maxSessions int
	closed      bool

	accepted  chan net.Conn
	broadcast chan string
	done      chan struct{}
	wg        sync.WaitGroup

	sessions []*Session
	count    atomic.Int64

	refusalLog *rate.Limiter
}

// NewServer 创建控制台服务器
func NewServer(cfg config.ConsoleConfig, handler interfaces.SessionHandler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	s := &Server{
		cfg:        cfg,
		handler:    handler,
		clock:      clock.New(),
		broadcast:  make(chan string, broadcastQueue),
		done:       make(chan struct{}),
		refusalLog: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = stats.NewConsoleStats(stats.NewAccumulator(nil, stats.Options{Clock: s.clock}))
	}
	return s, nil
}

// Initialise 监听 port 并开始接受连接
//
// 绑定失败返回错误，服务器保持未初始化状态，调用方可以重试。
func (s *Server) Initialise(port, maxSessions int) error {
	if maxSessions <= 0 {
		return ErrInvalidLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil {
		return ErrAlreadyInitialised
	}

	addr := net.JoinHostPort(s.cfg.ListenAddr, strconv.Itoa(port))
	ln, err := sockopt.Listen(context.Background(), "tcp", addr, s.cfg.ReuseAddr)
	if err != nil {
		log.Warn("控制台监听失败", "addr", addr, "err", err)
		return fmt.Errorf("console: listen %s: %w", addr, err)
	}

	s.listener = ln
	s.maxSessions = maxSessions
	s.accepted = make(chan net.Conn, acceptBacklog)

	s.wg.Add(1)
	go s.acceptLoop(ln, s.accepted)

	log.Info("控制台已启动", "addr", ln.Addr().String(), "max_sessions", maxSessions)
	return nil
}

// Addr 返回监听地址，未初始化时为 nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Sessions 返回当前会话数
func (s *Server) Sessions() int {
	return int(s.count.Load())
}

// Stats 返回控制台指标
func (s *Server) Stats() *stats.ConsoleStats {
	return s.stats
}

// Broadcast 向所有会话发送一行，在下一次 Update 时写出
func (s *Server) Broadcast(line string) {
	select {
	case s.broadcast <- line:
	default:
		log.Debug("广播队列已满，丢弃", "line", line)
	}
}

// Update 执行一轮不阻塞的处理
//
// 依次：接收新连接、写出广播、驱动每个会话、移除已结束的会话。
func (s *Server) Update() {
	s.mu.Lock()
	running := s.listener != nil && !s.closed
	s.mu.Unlock()
	if !running {
		return
	}

	s.flag.Beat()
	s.admitPending()
	s.flushBroadcast()

	now := s.clock.Now()
	for _, sess := range s.sessions {
		sess.update(now)
	}
	s.compact(now)
}

// Shutdown 关闭监听与所有会话，可重复调用
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	close(s.done)

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	s.wg.Wait()

	// 已接受但尚未处理的连接直接关闭
	if s.accepted != nil {
	pending:
		for {
			select {
			case conn := <-s.accepted:
				_ = conn.Close()
			default:
				break pending
			}
		}
	}

	now := s.clock.Now()
	for _, sess := range s.sessions {
		err = multierr.Append(err, s.remove(sess, now, "shutdown"))
	}
	s.sessions = nil
	s.count.Store(0)

	log.Info("控制台已关闭")
	return err
}

// ============================================================================
//                              内部实现
// ============================================================================

// acceptLoop 接受连接并交给 Update
func (s *Server) acceptLoop(ln net.Listener, out chan<- net.Conn) {
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
			log.Debug("接受连接失败", "err", err)
			select {
			case <-time.After(10 * time.Millisecond):
				continue
			case <-s.done:
				return
			}
		}
		select {
		case out <- conn:
		case <-s.done:
			_ = conn.Close()
			return
		}
	}
}

// admitPending 处理已接受的连接，超出上限的连接收到拒绝信息后被关闭
func (s *Server) admitPending() {
	for {
		select {
		case conn := <-s.accepted:
			if len(s.sessions) >= s.maxSessions {
				s.refuse(conn)
				continue
			}
			s.admit(conn)
		default:
			return
		}
	}
}

func (s *Server) admit(conn net.Conn) {
	sess := newSession(uuid.NewString(), conn, s.sessionOptions(), s.handler, s.clock, s.stats)
	s.sessions = append(s.sessions, sess)
	s.count.Store(int64(len(s.sessions)))
	s.stats.ConnectionAccepted()

	log.Info("控制台会话已建立", "session", sess.id, "remote", sess.remote)
	sess.start()
}

func (s *Server) refuse(conn net.Conn) {
	s.stats.ConnectionRefused()
	if s.refusalLog.Allow() {
		log.Warn("控制台会话数已达上限，拒绝连接",
			"remote", conn.RemoteAddr().String(),
			"max_sessions", s.maxSessions,
			"refused_total", s.stats.Snapshot().RefusedConnections)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTTL))
	n, _ := conn.Write([]byte(rejectMessage))
	s.stats.AddBytes(n, 0)
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = conn.Close()
}

func (s *Server) flushBroadcast() {
	for {
		select {
		case line := <-s.broadcast:
			for _, sess := range s.sessions {
				if sess.state == StateActive {
					_ = sess.SendLine(line)
				}
			}
		default:
			return
		}
	}
}

// compact 先标记后压缩：保留仍存活的会话，关闭其余会话
func (s *Server) compact(now time.Time) {
	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.expired(now) {
			if err := s.remove(sess, now, removalReason(sess)); err != nil {
				log.Debug("关闭会话出错", "session", sess.id, "err", err)
			}
			continue
		}
		kept = append(kept, sess)
	}
	for i := len(kept); i < len(s.sessions); i++ {
		s.sessions[i] = nil
	}
	s.sessions = kept
	s.count.Store(int64(len(kept)))
}

func removalReason(sess *Session) string {
	switch {
	case sess.quit:
		return "quit"
	case sess.state == StateActive:
		return "idle timeout"
	default:
		return "closed"
	}
}

func (s *Server) remove(sess *Session, now time.Time, reason string) error {
	err := sess.close()
	s.stats.ConnectionClosed(now.Sub(sess.created))
	log.Info("控制台会话已结束", "session", sess.id, "remote", sess.remote, "reason", reason)
	return err
}

func (s *Server) sessionOptions() sessionOptions {
	return sessionOptions{
		prompt:       s.cfg.Prompt,
		interactive:  s.cfg.Interactive,
		compensation: s.cfg.ArrowCompensation,
		historyLimit: s.cfg.HistoryLimit,
		idleTimeout:  s.cfg.IdleTimeout.Duration(),
		bufferSize:   s.cfg.BufferSize,
		writeTimeout: defaultWriteTTL,
	}
}
