package control

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// 包级别日志实例
var log = logger.Logger("core/control")

// HealthFlagName 控制服务器在健康注册表中的标志名
const HealthFlagName = "control"

// Recorder 记录每次请求应答
//
// Started 在分发前调用，Exchanged 在应答发出后调用。
type Recorder interface {
	Started()
	Exchanged(request, reply [][]byte, ok bool, elapsed time.Duration)
}

// statsRecorder 把结果写入 ControlStats
type statsRecorder struct {
	st *stats.ControlStats
}

func (r statsRecorder) Started() {
	r.st.CommandStarted()
}

func (r statsRecorder) Exchanged(request, reply [][]byte, ok bool, elapsed time.Duration) {
	r.st.CommandFinished(ok, elapsed)
	r.st.MessageExchanged(ok, request, reply)
}

// StatsRecorder 返回写入 ControlStats 的 Recorder
func StatsRecorder(st *stats.ControlStats) Recorder {
	return statsRecorder{st: st}
}

// ============================================================================
//                              选项
// ============================================================================

// Option 服务器选项
type Option func(*Server)

// WithName 设置日志与监视器中的服务器名
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithRecorder 设置结果记录器
func WithRecorder(r Recorder) Option {
	return func(s *Server) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithStats 把结果写入 ControlStats
func WithStats(st *stats.ControlStats) Option {
	return func(s *Server) {
		if st != nil {
			s.recorder = StatsRecorder(st)
		}
	}
}

// WithHealthFlag 设置工作循环每轮 Beat 的健康标志
func WithHealthFlag(f *health.Flag) Option {
	return func(s *Server) {
		s.flag = f
	}
}

// WithAuthenticator 新对端握手经由 a 认证
func WithAuthenticator(a interfaces.Authenticator) Option {
	return func(s *Server) {
		s.auth = a
	}
}

// WithAuthClient 经由认证网关认证，Shutdown 时关闭客户端
func WithAuthClient(c *wire.AuthClient) Option {
	return func(s *Server) {
		if c == nil {
			return
		}
		s.auth = c
		s.closers = append(s.closers, c)
	}
}

// WithMonitor 追加传输事件监视器
func WithMonitor(m wire.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// WithClock 设置计时时钟
func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// ============================================================================
//                              Server
// ============================================================================

// Server 控制 RPC 服务器
//
// 拥有一个应答套接字与一个工作 goroutine。工作循环每轮最多阻塞
// RecvTimeout，停止延迟以此为上界。
type Server struct {
	cfg        config.ControlConfig
	dispatcher interfaces.Dispatcher
	name       string
	recorder   Recorder
	flag       *health.Flag
	auth       interfaces.Authenticator
	monitor    wire.Monitor
	clock      clock.Clock
	closers    []io.Closer

	mu     sync.Mutex
	rep    *wire.RepSocket
	closed bool

	stop atomic.Bool
	wg   sync.WaitGroup
}

// New 创建控制 RPC 服务器
func New(cfg config.ControlConfig, d interfaces.Dispatcher, opts ...Option) (*Server, error) {
	if d == nil {
		return nil, ErrNilDispatcher
	}
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		name:       "control",
		clock:      clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.recorder == nil {
		acc := stats.NewAccumulator(nil, stats.Options{Clock: s.clock})
		s.recorder = StatsRecorder(stats.NewControlStats(acc))
	}
	return s, nil
}

// Initialise 绑定端点并启动工作循环
//
// 绑定失败返回错误，服务器保持未初始化状态，调用方可以重试。
func (s *Server) Initialise() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.rep != nil {
		return ErrAlreadyInitialised
	}

	rep := wire.NewRepSocket(wire.RepOptions{
		Domain:        s.cfg.Domain,
		Authenticator: s.auth,
		Monitor:       wire.Monitors(wire.NewLogMonitor(log, s.name), s.monitor),
		Limits:        wire.Limits{MaxParts: s.cfg.MaxParts, MaxPartSize: s.cfg.MaxPartSize},
		ReuseAddr:     true,
	})
	if err := rep.Bind(s.cfg.Endpoint); err != nil {
		_ = rep.Close()
		return fmt.Errorf("%s: bind %s: %w", s.name, s.cfg.Endpoint, err)
	}
	s.rep = rep

	s.wg.Add(1)
	go s.loop(rep)

	log.Info("控制服务已启动", "server", s.name, "endpoint", rep.Endpoint(), "authenticated", s.auth != nil)
	return nil
}

// Endpoint 返回实际绑定的端点，未初始化时为空
func (s *Server) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rep == nil {
		return ""
	}
	return s.rep.Endpoint()
}

// Shutdown 设置停止标志，等待工作循环退出后释放套接字，可重复调用
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rep := s.rep
	s.mu.Unlock()

	s.stop.Store(true)
	s.wg.Wait()

	var err error
	if rep != nil {
		err = multierr.Append(err, rep.Close())
	}
	for _, c := range s.closers {
		err = multierr.Append(err, c.Close())
	}

	log.Info("控制服务已关闭", "server", s.name)
	return err
}

// ============================================================================
//                              工作循环
// ============================================================================

func (s *Server) loop(rep *wire.RepSocket) {
	defer s.wg.Done()

	recvTimeout := s.cfg.RecvTimeout.Duration()
	for !s.stop.Load() {
		s.flag.Beat()

		request, err := rep.Recv(recvTimeout)
		switch {
		case err == nil:
		case errors.Is(err, wire.ErrTimeout):
			continue
		case errors.Is(err, wire.ErrClosed):
			return
		default:
			log.Warn("接收控制请求失败", "server", s.name, "err", err)
			continue
		}

		s.handle(rep, request)
	}
}

// handle 分发一条请求并总是发出应答
func (s *Server) handle(rep *wire.RepSocket, request [][]byte) {
	start := s.clock.Now()
	s.recorder.Started()

	reply, ok := s.dispatch(request)
	if err := rep.Send(reply, s.cfg.SendTimeout.Duration()); err != nil {
		log.Warn("发送控制应答失败", "server", s.name, "err", err)
	}

	s.recorder.Exchanged(request, reply, ok, s.clock.Since(start))
	logger.Trace(log, "控制请求已处理", "server", s.name, "parts", len(request), "ok", ok)
}

// dispatch 调用分发器，panic 转为失败应答
func (s *Server) dispatch(request [][]byte) (reply [][]byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("控制请求处理 panic", "server", s.name, "panic", r)
			reply, ok = Failure("internal error"), false
		}
	}()
	reply, ok = s.dispatcher.Dispatch(request)
	if reply == nil {
		reply = [][]byte{}
	}
	return reply, ok
}
