package console

import (
	"bytes"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ============================================================================
//                              测试辅助
// ============================================================================

// fakeConn 记录写出的数据，Read 阻塞到关闭
type fakeConn struct {
	mu        sync.Mutex
	out       bytes.Buffer
	closeOnce sync.Once
	closed    chan struct{}
	failWrite bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) Read([]byte) (int, error) {
	<-c.closed
	return 0, io.EOF
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return 0, io.ErrClosedPipe
	}
	return c.out.Write(p)
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String()
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out.Reset()
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 23232}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// recordingHandler 记录回调
type recordingHandler struct {
	connected   int
	lines       []string
	completions map[string]string
	quitOn      string
	panicOn     string
}

func (h *recordingHandler) OnConnect(s interfaces.Session) {
	h.connected++
}

func (h *recordingHandler) OnLine(s interfaces.Session, line string) bool {
	if line == h.panicOn && h.panicOn != "" {
		panic("boom")
	}
	h.lines = append(h.lines, line)
	if line == h.quitOn {
		s.Quit()
	}
	return line != "bad"
}

func (h *recordingHandler) Complete(_ interfaces.Session, prefix string) string {
	return h.completions[prefix]
}

func defaultOptions() sessionOptions {
	return sessionOptions{
		prompt:       "> ",
		interactive:  true,
		compensation: true,
		historyLimit: 50,
		idleTimeout:  120 * time.Second,
		bufferSize:   512,
	}
}

func newTestSession(t *testing.T, opts sessionOptions, h *recordingHandler) (*Session, *fakeConn, *stats.ConsoleStats, *clock.Mock) {
	t.Helper()
	conn := newFakeConn()
	mock := clock.NewMock()
	st := stats.NewConsoleStats(stats.NewAccumulator(nil, stats.Options{Clock: mock}))
	s := newSession("test", conn, opts, h, mock, st)
	s.start()
	t.Cleanup(func() { _ = s.close() })
	return s, conn, st, mock
}

// ============================================================================
//                              连接与协商
// ============================================================================

func TestSession_Start(t *testing.T) {
	h := &recordingHandler{}
	s, conn, _, _ := newTestSession(t, defaultOptions(), h)

	assert.Equal(t, StateActive, s.State())
	assert.Equal(t, 1, h.connected)
	assert.True(t, bytes.HasPrefix([]byte(conn.written()), negotiation))
	assert.Equal(t, "127.0.0.1:40000", s.RemoteAddr())
}

func TestSession_StartWriteFailure(t *testing.T) {
	conn := newFakeConn()
	conn.failWrite = true
	h := &recordingHandler{}
	st := stats.NewConsoleStats(stats.NewAccumulator(nil, stats.Options{}))
	s := newSession("x", conn, defaultOptions(), h, clock.NewMock(), st)
	s.start()

	assert.Equal(t, StateClosing, s.State())
	assert.Zero(t, h.connected)
	assert.True(t, s.expired(time.Time{}))
	require.NoError(t, s.close())
}

// ============================================================================
//                              编辑流水线
// ============================================================================

func TestSession_Backspace(t *testing.T) {
	s, _, _, _ := newTestSession(t, defaultOptions(), &recordingHandler{})
	s.process([]byte("123455\x7f"))
	assert.Equal(t, "12345", s.Buffer())
}

func TestSession_LineExtraction(t *testing.T) {
	h := &recordingHandler{}
	s, _, st, _ := newTestSession(t, defaultOptions(), h)

	s.process([]byte("LINE1\r\nLINE2\r\nLINE3\r\n"))
	assert.Equal(t, []string{"LINE1", "LINE2", "LINE3"}, h.lines)
	assert.Empty(t, s.Buffer())
	assert.Equal(t, []string{"LINE1", "LINE2", "LINE3"}, s.History())

	snap := st.Snapshot()
	assert.Equal(t, uint64(3), snap.Commands.Success)
	assert.Equal(t, uint64(len("LINE1\r\nLINE2\r\nLINE3\r\n")), snap.DownloadedBytes)
}

func TestSession_FailedOutcome(t *testing.T) {
	h := &recordingHandler{}
	s, _, st, _ := newTestSession(t, defaultOptions(), h)

	s.process([]byte("bad\r\n"))
	assert.Equal(t, uint64(1), st.Snapshot().Commands.Fail)
}

func TestSession_NegotiationStripping(t *testing.T) {
	s, conn, _, _ := newTestSession(t, defaultOptions(), &recordingHandler{})
	conn.reset()

	chunk := append([]byte("12"), iac, optWill, optEcho)
	chunk = append(chunk, "345"...)
	s.process(chunk)
	assert.Equal(t, "12345", s.Buffer())

	// 以协商字节开头的数据块不回显
	conn.reset()
	s.process([]byte{iac, 0xFD, optSGA})
	assert.Empty(t, conn.written())
	assert.Equal(t, "12345", s.Buffer())
}

func TestSession_SplitNegotiationNotEchoed(t *testing.T) {
	h := &recordingHandler{}
	s, conn, _, _ := newTestSession(t, defaultOptions(), h)
	conn.reset()

	s.process(append([]byte("12"), iac, optWill))
	assert.Equal(t, "12", conn.written())
	assert.Equal(t, "12", s.Buffer())

	s.process(append([]byte{optEcho}, "345\r\n"...))
	assert.Equal(t, []string{"12345"}, h.lines)

	out := conn.written()
	assert.True(t, strings.HasPrefix(out, "12345\r\n"), "echo: %q", out)
	assert.NotContains(t, out, string([]byte{iac}))
	assert.NotContains(t, out, string([]byte{optWill, optEcho}))
}

func TestSession_NULAsLineTerminator(t *testing.T) {
	h := &recordingHandler{}
	s, _, _, _ := newTestSession(t, defaultOptions(), h)

	s.process([]byte("help\r\x00"))
	assert.Equal(t, []string{"help"}, h.lines)
}

func TestSession_Echo(t *testing.T) {
	s, conn, _, _ := newTestSession(t, defaultOptions(), &recordingHandler{})
	conn.reset()

	s.process([]byte("ab"))
	assert.Equal(t, "ab", conn.written())
}

func TestSession_HistoryNavigation(t *testing.T) {
	h := &recordingHandler{}
	s, conn, _, _ := newTestSession(t, defaultOptions(), h)
	s.process([]byte("one\r\ntwo\r\n"))

	conn.reset()
	s.process(arrowUp)
	assert.Equal(t, "two", s.Buffer())
	assert.Contains(t, conn.written(), string(arrowDown), "compensating arrow")
	assert.Contains(t, conn.written(), string(eraseLine)+"> two")

	s.process(arrowUp)
	assert.Equal(t, "one", s.Buffer())
	s.process(arrowUp)
	assert.Equal(t, "one", s.Buffer())

	s.process(arrowDown)
	assert.Equal(t, "two", s.Buffer())
	s.process(arrowDown)
	assert.Empty(t, s.Buffer())

	// 左右方向键只触发重绘
	s.process([]byte("ab"))
	s.process(arrowLeft)
	assert.Equal(t, "ab", s.Buffer())
}

func TestSession_NoArrowCompensation(t *testing.T) {
	opts := defaultOptions()
	opts.compensation = false
	s, conn, _, _ := newTestSession(t, opts, &recordingHandler{})
	s.process([]byte("one\r\n"))

	conn.reset()
	s.process(arrowUp)
	assert.Equal(t, "one", s.Buffer())
	assert.NotContains(t, conn.written(), string(arrowDown))
}

func TestSession_TabCompletion(t *testing.T) {
	h := &recordingHandler{completions: map[string]string{"he": "help"}}
	s, _, _, _ := newTestSession(t, defaultOptions(), h)

	s.process([]byte("he\t"))
	assert.Equal(t, "help", s.Buffer())

	s.process([]byte("\r\n"))
	assert.Equal(t, []string{"help"}, h.lines)
}

func TestSession_NonInteractive(t *testing.T) {
	opts := defaultOptions()
	opts.interactive = false
	h := &recordingHandler{completions: map[string]string{"he": "help"}}
	s, _, _, _ := newTestSession(t, opts, h)

	s.process([]byte("one\r\n"))
	s.process([]byte("he\t"))
	assert.Equal(t, "he", s.Buffer())

	s.process([]byte("\x1b[A"))
	assert.Equal(t, "he", s.Buffer(), "history recall disabled")
}

// ============================================================================
//                              输出与关闭
// ============================================================================

func TestSession_SendLineRedraws(t *testing.T) {
	s, conn, _, _ := newTestSession(t, defaultOptions(), &recordingHandler{})
	s.process([]byte("par"))

	conn.reset()
	require.NoError(t, s.SendLine("async event"))
	assert.Equal(t, string(eraseLine)+"async event\r\n> par", conn.written())
}

func TestSession_Quit(t *testing.T) {
	h := &recordingHandler{quitOn: "quit"}
	s, _, _, mock := newTestSession(t, defaultOptions(), h)

	s.process([]byte("quit\r\nignored\r\n"))
	assert.Equal(t, []string{"quit"}, h.lines)
	assert.True(t, s.expired(mock.Now()))
}

func TestSession_IdleTimeout(t *testing.T) {
	s, _, _, mock := newTestSession(t, defaultOptions(), &recordingHandler{})

	assert.False(t, s.expired(mock.Now().Add(119*time.Second)))
	assert.True(t, s.expired(mock.Now().Add(121*time.Second)))

	// 收到数据刷新活跃时间
	mock.Add(100 * time.Second)
	s.chunks <- []byte("x")
	s.update(mock.Now())
	assert.False(t, s.expired(mock.Now().Add(100*time.Second)))
}

func TestSession_HandlerPanicClosesSession(t *testing.T) {
	h := &recordingHandler{panicOn: "crash"}
	s, _, st, _ := newTestSession(t, defaultOptions(), h)

	assert.NotPanics(t, func() { s.process([]byte("crash\r\n")) })
	assert.Equal(t, StateClosing, s.State())
	assert.Equal(t, uint64(1), st.Snapshot().Commands.Fail)
}

func TestSession_CloseIdempotent(t *testing.T) {
	s, _, _, _ := newTestSession(t, defaultOptions(), &recordingHandler{})

	require.NoError(t, s.close())
	require.NoError(t, s.close())
	assert.Equal(t, StateClosed, s.State())
	assert.ErrorIs(t, s.SendLine("x"), ErrSessionClosed)
}
