package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              测试辅助
// ============================================================================

var inprocSeq atomic.Int64

func inprocEndpoint(t *testing.T) string {
	return fmt.Sprintf("inproc://%s-%d", strings.ReplaceAll(t.Name(), "/", "-"), inprocSeq.Add(1))
}

// bindRep 创建并绑定应答端，测试结束时关闭
func bindRep(t *testing.T, endpoint string, opts RepOptions) *RepSocket {
	t.Helper()
	rep := NewRepSocket(opts)
	require.NoError(t, rep.Bind(endpoint))
	t.Cleanup(func() { _ = rep.Close() })
	return rep
}

// serveEcho 在后台把每个请求原样返回，并在前面加上 prefix
func serveEcho(t *testing.T, rep *RepSocket, prefix string) {
	t.Helper()
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			req, err := rep.Recv(10 * time.Millisecond)
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if err != nil {
				return
			}
			reply := append(Parts(prefix), req...)
			if err := rep.Send(reply, time.Second); err != nil {
				return
			}
		}
	}()
	t.Cleanup(func() {
		close(done)
		wg.Wait()
	})
}

func dialReq(t *testing.T, endpoint string, opts DialOptions) *ReqSocket {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := Dial(ctx, endpoint, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = req.Close() })
	return req
}

func doRequest(t *testing.T, req *ReqSocket, parts ...string) [][]byte {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := req.Request(ctx, Parts(parts...))
	require.NoError(t, err)
	return reply
}

// recorder 记录传输事件
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) find(typ EventType) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == typ {
			return ev, true
		}
	}
	return Event{}, false
}

func (r *recorder) waitFor(t *testing.T, typ EventType) Event {
	t.Helper()
	var ev Event
	require.Eventually(t, func() bool {
		var ok bool
		ev, ok = r.find(typ)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "event %s", typ)
	return ev
}

// fakeAuth 按身份决定认证结果
type fakeAuth struct {
	mu       sync.Mutex
	requests [][][]byte
	allow    map[string]bool
	err      error
}

func (a *fakeAuth) Authenticate(_ context.Context, req [][]byte) ([][]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, req)
	if a.err != nil {
		return nil, a.err
	}
	identity := string(req[4])
	if a.allow[identity] {
		return [][]byte{req[0], req[1], []byte(StatusOK), []byte("OK")}, nil
	}
	return [][]byte{req[0], req[1], []byte(StatusRejected), []byte("Identity not allowed")}, nil
}

func (a *fakeAuth) last() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return nil
	}
	return a.requests[len(a.requests)-1]
}

// ============================================================================
//                              往返
// ============================================================================

// TestSocket_RoundTrip 测试三种传输方式的请求应答
func TestSocket_RoundTrip(t *testing.T) {
	cases := map[string]func(t *testing.T) string{
		"inproc": inprocEndpoint,
		"tcp":    func(t *testing.T) string { return "tcp://127.0.0.1:0" },
		"ipc": func(t *testing.T) string {
			return "ipc://" + filepath.Join(t.TempDir(), "ctl.sock")
		},
	}

	for name, endpoint := range cases {
		t.Run(name, func(t *testing.T) {
			rep := bindRep(t, endpoint(t), RepOptions{})
			serveEcho(t, rep, "echo")

			req := dialReq(t, rep.Endpoint(), DialOptions{})
			assert.Equal(t, Parts("echo", "PING"), doRequest(t, req, "PING"))
			assert.Equal(t, Parts("echo", "a", "", "c"), doRequest(t, req, "a", "", "c"))
		})
	}
}

// TestRepSocket_EndpointResolvesPort 测试端口 0 被替换为实际端口
func TestRepSocket_EndpointResolvesPort(t *testing.T) {
	rep := bindRep(t, "tcp://127.0.0.1:0", RepOptions{})
	ep := rep.Endpoint()
	assert.True(t, strings.HasPrefix(ep, "tcp://127.0.0.1:"))
	assert.NotEqual(t, "tcp://127.0.0.1:0", ep)
}

// TestRepSocket_FairQueue 测试多个对端的请求都能被取出
func TestRepSocket_FairQueue(t *testing.T) {
	rep := bindRep(t, inprocEndpoint(t), RepOptions{})
	serveEcho(t, rep, "r")

	const peers = 4
	var wg sync.WaitGroup
	for i := 0; i < peers; i++ {
		req := dialReq(t, rep.Endpoint(), DialOptions{})
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				body := fmt.Sprintf("%d-%d", i, j)
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				reply, err := req.Request(ctx, Parts(body))
				cancel()
				if assert.NoError(t, err) {
					assert.Equal(t, Parts("r", body), reply)
				}
			}
		}(i)
	}
	wg.Wait()
}

// ============================================================================
//                              状态机
// ============================================================================

// TestRepSocket_States 测试收发顺序约束
func TestRepSocket_States(t *testing.T) {
	t.Run("NotBound", func(t *testing.T) {
		rep := NewRepSocket(RepOptions{})
		_, err := rep.Recv(time.Millisecond)
		assert.ErrorIs(t, err, ErrNotBound)
		assert.Empty(t, rep.Endpoint())
	})

	t.Run("Timeout", func(t *testing.T) {
		rep := bindRep(t, inprocEndpoint(t), RepOptions{})
		start := time.Now()
		_, err := rep.Recv(20 * time.Millisecond)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	})

	t.Run("SendWithoutRecv", func(t *testing.T) {
		rep := bindRep(t, inprocEndpoint(t), RepOptions{})
		assert.ErrorIs(t, rep.Send(Parts("x"), time.Second), ErrState)
	})

	t.Run("RecvTwice", func(t *testing.T) {
		rep := bindRep(t, inprocEndpoint(t), RepOptions{})
		req := dialReq(t, rep.Endpoint(), DialOptions{})

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = req.Request(ctx, Parts("one"))
		}()

		got, err := rep.Recv(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, Parts("one"), got)

		_, err = rep.Recv(time.Millisecond)
		assert.ErrorIs(t, err, ErrState)
		require.NoError(t, rep.Send(Parts("done"), time.Second))
	})

	t.Run("BindTwice", func(t *testing.T) {
		rep := bindRep(t, inprocEndpoint(t), RepOptions{})
		assert.ErrorIs(t, rep.Bind(inprocEndpoint(t)), ErrAlreadyBound)
	})

	t.Run("EndpointInUse", func(t *testing.T) {
		ep := inprocEndpoint(t)
		bindRep(t, ep, RepOptions{})
		other := NewRepSocket(RepOptions{})
		assert.ErrorIs(t, other.Bind(ep), ErrEndpointInUse)
	})

	t.Run("BadEndpoint", func(t *testing.T) {
		rep := NewRepSocket(RepOptions{})
		assert.Error(t, rep.Bind("udp://127.0.0.1:1"))
	})
}

// TestReqSocket_OneInFlight 测试请求端同时只允许一个请求
func TestReqSocket_OneInFlight(t *testing.T) {
	rep := bindRep(t, inprocEndpoint(t), RepOptions{})
	req := dialReq(t, rep.Endpoint(), DialOptions{})

	first := make(chan [][]byte, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reply, _ := req.Request(ctx, Parts("first"))
		first <- reply
	}()

	_, err := rep.Recv(2 * time.Second)
	require.NoError(t, err)

	_, err = req.Request(context.Background(), Parts("second"))
	assert.ErrorIs(t, err, ErrState)

	require.NoError(t, rep.Send(Parts("reply"), time.Second))
	select {
	case reply := <-first:
		assert.Equal(t, Parts("reply"), reply)
	case <-time.After(2 * time.Second):
		t.Fatal("first request did not complete")
	}
}

// TestReqSocket_ContextDeadline 测试请求超时后套接字不可再用
func TestReqSocket_ContextDeadline(t *testing.T) {
	rep := bindRep(t, inprocEndpoint(t), RepOptions{})

	// 连接期限与 ctx 期限同时到达，错误始终是 ctx 的
	for i := 0; i < 20; i++ {
		req := dialReq(t, rep.Endpoint(), DialOptions{})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := req.Request(ctx, Parts("nobody answers"))
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded, "attempt %d", i)

		_, err = req.Request(context.Background(), Parts("again"))
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, req.Close())
	}
}

// TestReqSocket_ContextCanceled 测试取消进行中的请求
func TestReqSocket_ContextCanceled(t *testing.T) {
	rep := bindRep(t, inprocEndpoint(t), RepOptions{})
	req := dialReq(t, rep.Endpoint(), DialOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	_, err := req.Request(ctx, Parts("nobody answers"))
	assert.ErrorIs(t, err, context.Canceled)
}

// TestDial_Refused 测试连接不存在的端点
func TestDial_Refused(t *testing.T) {
	_, err := Dial(context.Background(), inprocEndpoint(t), DialOptions{})
	assert.ErrorIs(t, err, ErrConnectionRefused)
}

// TestRepSocket_Close 测试关闭
func TestRepSocket_Close(t *testing.T) {
	mon := &recorder{}
	rep := NewRepSocket(RepOptions{Monitor: mon})
	ep := inprocEndpoint(t)
	require.NoError(t, rep.Bind(ep))
	req := dialReq(t, rep.Endpoint(), DialOptions{})
	mon.waitFor(t, EventHandshakeSucceeded)

	require.NoError(t, rep.Close())
	require.NoError(t, rep.Close())

	_, err := rep.Recv(time.Millisecond)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, rep.Bind(ep), ErrClosed)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = req.Request(ctx, Parts("late"))
	assert.Error(t, err)

	mon.waitFor(t, EventClosed)

	// 端点已释放，可以重新绑定
	again := bindRep(t, ep, RepOptions{})
	assert.Equal(t, ep, again.Endpoint())
}

// ============================================================================
//                              握手
// ============================================================================

// TestHandshake_Authenticated 测试认证通过与拒绝
func TestHandshake_Authenticated(t *testing.T) {
	auth := &fakeAuth{allow: map[string]bool{"admin": true}}
	mon := &recorder{}
	rep := bindRep(t, inprocEndpoint(t), RepOptions{
		Domain:        "control",
		Authenticator: auth,
		Monitor:       mon,
	})
	serveEcho(t, rep, "ok")

	t.Run("Accepted", func(t *testing.T) {
		req := dialReq(t, rep.Endpoint(), DialOptions{
			Credentials: Credentials{Identity: "admin", Mechanism: "PLAIN", Secrets: Parts("user", "pass")},
		})
		assert.Equal(t, Parts("ok", "x"), doRequest(t, req, "x"))

		got := auth.last()
		require.Len(t, got, 8)
		assert.Equal(t, AuthVersion, string(got[0]))
		assert.NotEmpty(t, got[1])
		assert.Equal(t, "control", string(got[2]))
		assert.Equal(t, "inproc", string(got[3]))
		assert.Equal(t, "admin", string(got[4]))
		assert.Equal(t, "PLAIN", string(got[5]))
		assert.Equal(t, "user", string(got[6]))
		assert.Equal(t, "pass", string(got[7]))

		ev := mon.waitFor(t, EventHandshakeSucceeded)
		assert.Equal(t, "admin", ev.Identity)
	})

	t.Run("Rejected", func(t *testing.T) {
		_, err := Dial(context.Background(), rep.Endpoint(), DialOptions{
			Credentials: Credentials{Identity: "mallory"},
		})
		var herr *HandshakeError
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, StatusRejected, herr.Status)
		assert.Equal(t, "Identity not allowed", herr.Reason)

		assert.Equal(t, MechanismNull, string(auth.last()[5]))

		ev := mon.waitFor(t, EventHandshakeFailedAuth)
		assert.Equal(t, "mallory", ev.Identity)
		assert.Equal(t, StatusRejected, ev.Status)
	})
}

// TestHandshake_AuthenticatorError 测试认证器故障返回 500
func TestHandshake_AuthenticatorError(t *testing.T) {
	auth := &fakeAuth{err: errors.New("gateway down")}
	rep := bindRep(t, inprocEndpoint(t), RepOptions{Authenticator: auth})

	_, err := Dial(context.Background(), rep.Endpoint(), DialOptions{})
	var herr *HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, StatusInternal, herr.Status)
}

// TestHandshake_Malformed 测试格式错误的问候
func TestHandshake_Malformed(t *testing.T) {
	mon := &recorder{}
	rep := bindRep(t, inprocEndpoint(t), RepOptions{Monitor: mon})

	conn, err := dialInproc(context.Background(), strings.TrimPrefix(rep.Endpoint(), "inproc://"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteMessage(conn, Parts("HELLO")))
	reply, err := ReadMessage(bufio.NewReader(conn), Limits{})
	require.NoError(t, err)
	assert.Equal(t, Parts("ERR", StatusRejected, "malformed greeting"), reply)
	mon.waitFor(t, EventHandshakeFailedProtocol)
}

// ============================================================================
//                              认证客户端
// ============================================================================

// TestAuthClient 测试经由网关端点认证
func TestAuthClient(t *testing.T) {
	gateway := bindRep(t, inprocEndpoint(t), RepOptions{})
	auth := &fakeAuth{allow: map[string]bool{"svc": true}}
	go func() {
		for {
			req, err := gateway.Recv(10 * time.Millisecond)
			if errors.Is(err, ErrTimeout) {
				continue
			}
			if err != nil {
				return
			}
			reply, _ := auth.Authenticate(context.Background(), req)
			if err := gateway.Send(reply, time.Second); err != nil {
				return
			}
		}
	}()

	client := NewAuthClient(gateway.Endpoint(), DialOptions{})
	defer client.Close()

	rep := bindRep(t, inprocEndpoint(t), RepOptions{Domain: "control", Authenticator: client})
	serveEcho(t, rep, "svc")

	req := dialReq(t, rep.Endpoint(), DialOptions{Credentials: Credentials{Identity: "svc"}})
	assert.Equal(t, Parts("svc", "hello"), doRequest(t, req, "hello"))

	_, err := Dial(context.Background(), rep.Endpoint(), DialOptions{Credentials: Credentials{Identity: "other"}})
	var herr *HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, StatusRejected, herr.Status)

	require.NoError(t, client.Close())
	_, err = client.Authenticate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClosed)
}

// TestAuthClient_Unreachable 测试网关不可达
func TestAuthClient_Unreachable(t *testing.T) {
	client := NewAuthClient(inprocEndpoint(t), DialOptions{})
	_, err := client.Authenticate(context.Background(), Parts("1.0"))
	assert.ErrorIs(t, err, ErrConnectionRefused)
	assert.NoError(t, client.Close())
}

// TestMonitors 测试监视器组合
func TestMonitors(t *testing.T) {
	var a, b int
	m := Monitors(nil, MonitorFunc(func(Event) { a++ }), MonitorFunc(func(Event) { b++ }))
	m.OnEvent(Event{Type: EventAccepted})
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)

	assert.Equal(t, "handshake_failed_auth", EventHandshakeFailedAuth.String())
	assert.Equal(t, "event(99)", EventType(99).String())

	// LogMonitor 不应 panic
	NewLogMonitor(nil, "test").OnEvent(Event{Type: EventHandshakeFailedAuth, Status: StatusRejected})
}
