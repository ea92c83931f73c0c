package console

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/util/logger"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ============================================================================
//                              会话状态
// ============================================================================

// State 会话状态
type State int32

const (
	// StateConnecting 已接受，协商字节尚未发出
	StateConnecting State = iota
	// StateActive 正常收发
	StateActive
	// StateClosing 等待关闭（quit、空闲超时或传输错误）
	StateClosing
	// StateClosed 套接字已关闭
	StateClosed
)

// String 返回状态名
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// sessionOptions 会话行为参数
type sessionOptions struct {
	prompt       string
	interactive  bool
	compensation bool
	historyLimit int
	idleTimeout  time.Duration
	bufferSize   int
	writeTimeout time.Duration
}

// ============================================================================
//                              Session
// ============================================================================

// Session 单个控制台连接的协议引擎
//
// 除读取 goroutine 外，所有字段只在所属 Server 的 Update 调用内访问。
type Session struct {
	id      string
	conn    net.Conn
	remote  string
	opts    sessionOptions
	handler interfaces.SessionHandler
	clock   clock.Clock
	stats   *stats.ConsoleStats

	state      State
	buf        []byte
	hist       *history
	created    time.Time
	lastSeen   time.Time
	uploaded   uint64
	downloaded uint64
	quit       bool

	chunks  chan []byte
	readErr chan error
	done    chan struct{}
}

var _ interfaces.Session = (*Session)(nil)

func newSession(id string, conn net.Conn, opts sessionOptions, handler interfaces.SessionHandler,
	clk clock.Clock, st *stats.ConsoleStats) *Session {
	now := clk.Now()
	return &Session{
		id:       id,
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		opts:     opts,
		handler:  handler,
		clock:    clk,
		stats:    st,
		state:    StateConnecting,
		hist:     newHistory(opts.historyLimit),
		created:  now,
		lastSeen: now,
		chunks:   make(chan []byte, 16),
		readErr:  make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// ID 返回会话标识
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr 返回对端地址
func (s *Session) RemoteAddr() string {
	return s.remote
}

// State 返回当前状态
func (s *Session) State() State {
	return s.state
}

// Buffer 返回尚未形成完整行的输入
func (s *Session) Buffer() string {
	return string(s.editable())
}

// editable 返回去掉末尾未补齐协商序列后的编辑缓冲区
func (s *Session) editable() []byte {
	return s.buf[:len(s.buf)-pendingNegotiation(s.buf)]
}

// History 返回命令历史副本
func (s *Session) History() []string {
	return append([]string(nil), s.hist.entries...)
}

// Traffic 返回上下行字节数
func (s *Session) Traffic() (uploaded, downloaded uint64) {
	return s.uploaded, s.downloaded
}

// Quit 请求在下一次 Update 时关闭
func (s *Session) Quit() {
	s.quit = true
}

// SendLine 擦除当前行后发送 text，再重绘提示符与未完成输入
func (s *Session) SendLine(text string) error {
	if s.state != StateActive {
		return ErrSessionClosed
	}
	var out bytes.Buffer
	if s.opts.prompt != "" || len(s.buf) > 0 {
		out.Write(eraseLine)
	}
	out.WriteString(text)
	out.Write(crlf)
	out.WriteString(s.opts.prompt)
	out.Write(s.buf)
	return s.write(out.Bytes())
}

// ============================================================================
//                              生命周期
// ============================================================================

// start 发送协商序列，进入 Active 并启动读取 goroutine
func (s *Session) start() {
	if err := s.write(negotiation); err != nil {
		return
	}
	s.state = StateActive
	s.lastSeen = s.clock.Now()

	go s.readLoop()

	s.safely("connect", func() {
		s.handler.OnConnect(s)
	})
}

// readLoop 把读到的数据块交给 Update
func (s *Session) readLoop() {
	size := s.opts.bufferSize
	if size <= 0 {
		size = 512
	}
	for {
		b := make([]byte, size)
		n, err := s.conn.Read(b)
		if n > 0 {
			select {
			case s.chunks <- b[:n]:
			case <-s.done:
				return
			}
		}
		if err != nil {
			select {
			case s.readErr <- err:
			case <-s.done:
			}
			return
		}
	}
}

// update 处理读取 goroutine 交来的全部数据
func (s *Session) update(now time.Time) {
	for s.state == StateActive {
		select {
		case chunk := <-s.chunks:
			s.lastSeen = now
			s.process(chunk)
		case err := <-s.readErr:
			s.drain(now)
			log.Debug("会话读取结束", "session", s.id, "remote", s.remote, "err", err)
			s.state = StateClosing
		default:
			return
		}
	}
}

// drain 处理读取错误前已到达的数据
func (s *Session) drain(now time.Time) {
	for s.state == StateActive {
		select {
		case chunk := <-s.chunks:
			s.lastSeen = now
			s.process(chunk)
		default:
			return
		}
	}
}

// expired 会话是否应在本轮被移除
func (s *Session) expired(now time.Time) bool {
	if s.state != StateActive || s.quit {
		return true
	}
	return s.opts.idleTimeout > 0 && now.Sub(s.lastSeen) > s.opts.idleTimeout
}

// close 半关闭后关闭套接字，可重复调用
func (s *Session) close() error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosing
	close(s.done)

	var err error
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		err = multierr.Append(err, cw.CloseWrite())
	}
	err = multierr.Append(err, s.conn.Close())
	s.state = StateClosed
	return err
}

// ============================================================================
//                              输入处理
// ============================================================================

// process 对新读取的数据块执行完整的编辑流水线
func (s *Session) process(chunk []byte) {
	chunk = translateNUL(chunk)
	s.downloaded += uint64(len(chunk))
	s.stats.AddBytes(0, len(chunk))

	// 未补齐的协商序列既不回显也不重绘
	before := len(s.editable())
	s.buf = stripNegotiation(append(s.buf, chunk...))
	if echo := s.editable(); len(echo) > before {
		if err := s.write(echo[before:]); err != nil {
			return
		}
	}

	redraw := false
	if s.opts.interactive && s.navigate() {
		redraw = true
	}
	n := len(s.buf)
	s.buf = stripArrows(s.buf)
	redraw = redraw || len(s.buf) != n

	var changed bool
	s.buf, changed = applyBackspace(s.buf)
	redraw = redraw || changed

	var complete func(string) string
	if s.opts.interactive {
		complete = s.complete
	}
	s.buf, changed = applyTab(s.buf, complete)
	redraw = redraw || changed

	lines, rest := extractLines(s.buf)
	s.buf = rest
	for _, line := range lines {
		if s.state != StateActive || s.quit {
			break
		}
		s.handleLine(line)
		redraw = true
	}

	if redraw && s.state == StateActive && !s.quit {
		s.redraw()
	}
}

// navigate 按方向键在历史中移动，返回是否出现方向键
func (s *Session) navigate() bool {
	keys := arrowKeys(s.buf)
	if len(keys) == 0 {
		return false
	}

	var (
		recalled string
		moved    bool
	)
	for _, k := range keys {
		switch k {
		case keyUp:
			if entry, ok := s.hist.up(); ok {
				recalled, moved = entry, true
				if s.opts.compensation {
					_ = s.write(arrowDown)
				}
			}
		case keyDown:
			if entry, ok := s.hist.down(); ok {
				recalled, moved = entry, true
				if s.opts.compensation {
					_ = s.write(arrowUp)
				}
			}
		}
	}
	if moved {
		s.buf = []byte(recalled)
	}
	return true
}

func (s *Session) complete(prefix string) string {
	var match string
	s.safely("complete", func() {
		match = s.handler.Complete(s, prefix)
	})
	return match
}

// handleLine 把一行交给处理器，记录结果并写入历史
func (s *Session) handleLine(line string) {
	s.stats.CommandStarted()
	start := s.clock.Now()

	ok := false
	s.safely("line", func() {
		ok = s.handler.OnLine(s, line)
	})

	s.stats.CommandFinished(ok, s.clock.Since(start))
	s.hist.push(line)
	logger.Trace(log, "控制台命令", "session", s.id, "line", line, "ok", ok)
}

// redraw 擦除当前行并重发提示符与输入缓冲区
func (s *Session) redraw() {
	line := s.editable()
	out := make([]byte, 0, len(eraseLine)+len(s.opts.prompt)+len(line))
	out = append(out, eraseLine...)
	out = append(out, s.opts.prompt...)
	out = append(out, line...)
	_ = s.write(out)
}

// write 写出数据，失败时会话进入 Closing
func (s *Session) write(p []byte) error {
	if s.state == StateClosing || s.state == StateClosed {
		return ErrSessionClosed
	}
	if s.opts.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.writeTimeout))
	}
	n, err := s.conn.Write(p)
	s.uploaded += uint64(n)
	s.stats.AddBytes(n, 0)
	if err != nil {
		log.Debug("会话写入失败", "session", s.id, "remote", s.remote, "err", err)
		s.state = StateClosing
		return err
	}
	return nil
}

// safely 执行处理器回调，panic 被记录并关闭本会话
func (s *Session) safely(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("控制台处理器 panic", "session", s.id, "op", op, "panic", r)
			s.state = StateClosing
		}
	}()
	fn()
}
