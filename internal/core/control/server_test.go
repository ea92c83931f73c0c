package control

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// ============================================================================
//                              测试辅助
// ============================================================================

var endpointSeq atomic.Int64

func testConfig(t *testing.T) config.ControlConfig {
	cfg := config.DefaultControlConfig()
	cfg.Endpoint = fmt.Sprintf("inproc://%s-%d", strings.ReplaceAll(t.Name(), "/", "-"), endpointSeq.Add(1))
	cfg.Authenticate = false
	cfg.RecvTimeout = config.Duration(10 * time.Millisecond)
	return cfg
}

func startServer(t *testing.T, cfg config.ControlConfig, d interfaces.Dispatcher, opts ...Option) *Server {
	t.Helper()
	srv, err := New(cfg, d, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Initialise())
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func dialClient(t *testing.T, endpoint string, creds wire.Credentials) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := Dial(ctx, endpoint, wire.DialOptions{Credentials: creds})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func call(t *testing.T, c *Client, tag Tag, body ...string) Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	parts := make([][]byte, len(body))
	for i, b := range body {
		parts[i] = []byte(b)
	}
	resp, err := c.Call(ctx, tag, parts...)
	require.NoError(t, err)
	return resp
}

// panicDispatcher 第一次调用 panic，之后转交给内置命令表
type panicDispatcher struct {
	calls atomic.Int64
	next  interfaces.Dispatcher
}

func (p *panicDispatcher) Dispatch(request [][]byte) ([][]byte, bool) {
	if p.calls.Add(1) == 1 {
		panic("boom")
	}
	return p.next.Dispatch(request)
}

// denyAll 拒绝所有握手
type denyAll struct{}

func (denyAll) Authenticate(_ context.Context, req [][]byte) ([][]byte, error) {
	return [][]byte{req[0], req[1], []byte(wire.StatusRejected), []byte("denied")}, nil
}

// ============================================================================
//                              测试
// ============================================================================

// TestNew_NilDispatcher 测试缺少分发器
func TestNew_NilDispatcher(t *testing.T) {
	_, err := New(config.DefaultControlConfig(), nil)
	assert.ErrorIs(t, err, ErrNilDispatcher)
}

// TestServer_BuiltinCommands 测试内置命令往返
func TestServer_BuiltinCommands(t *testing.T) {
	srv := startServer(t, testConfig(t), NewCommandTable(WithVersion("ctlplane v-test")))
	c := dialClient(t, srv.Endpoint(), wire.Credentials{})

	resp := call(t, c, TagVersion)
	assert.True(t, resp.OK())
	assert.Equal(t, "ctlplane v-test", string(resp.Body))

	resp = call(t, c, TagPing)
	assert.Equal(t, "PONG", string(resp.Body))

	// 未知标签返回同样两帧形状的失败应答
	resp = call(t, c, MakeTag("NOPE"))
	assert.False(t, resp.OK())
	assert.Equal(t, StatusFailed, resp.Status)

	// 帧数不符
	resp = call(t, c, TagVersion, "unexpected")
	assert.Equal(t, StatusFailed, resp.Status)

	// 服务器继续工作
	resp = call(t, c, TagPing)
	assert.True(t, resp.OK())
}

// TestServer_RawRequests 测试格式错误的原始请求
func TestServer_RawRequests(t *testing.T) {
	srv := startServer(t, testConfig(t), NewCommandTable())
	c := dialClient(t, srv.Endpoint(), wire.Credentials{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	reply, err := c.Raw(ctx, [][]byte{[]byte("V")})
	require.NoError(t, err)
	require.Len(t, reply, 2)
	assert.Equal(t, StatusFailed.Bytes(), reply[0])

	reply, err = c.Raw(ctx, nil)
	require.NoError(t, err)
	require.Len(t, reply, 2)
	assert.Equal(t, StatusFailed.Bytes(), reply[0])
}

// TestServer_PanicRecovered 测试分发器 panic 不终止工作循环
func TestServer_PanicRecovered(t *testing.T) {
	d := &panicDispatcher{next: NewCommandTable()}
	srv := startServer(t, testConfig(t), d)
	c := dialClient(t, srv.Endpoint(), wire.Credentials{})

	resp := call(t, c, TagPing)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "internal error", string(resp.Body))

	resp = call(t, c, TagPing)
	assert.True(t, resp.OK())
}

// TestServer_Stats 测试结果与字节统计
func TestServer_Stats(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := stats.NewControlStats(stats.NewAccumulator(reg, stats.Options{Namespace: "test"}))
	srv := startServer(t, testConfig(t), NewCommandTable(), WithStats(st))
	c := dialClient(t, srv.Endpoint(), wire.Credentials{})

	call(t, c, TagPing)              // 成功：下行 4 字节，上行 4+4 字节
	call(t, c, MakeTag("NOPE"), "x") // 失败：2 帧

	require.Eventually(t, func() bool {
		return st.Snapshot().Commands.Total == 2
	}, 2*time.Second, 5*time.Millisecond)

	snap := st.Snapshot()
	assert.Equal(t, uint64(1), snap.Commands.Success)
	assert.Equal(t, uint64(1), snap.Commands.Fail)
	assert.Equal(t, int64(0), snap.Commands.Active)
	assert.Equal(t, uint64(1), snap.SucceededParts)
	assert.Equal(t, uint64(2), snap.FailedParts)
	assert.Equal(t, uint64(4+5), snap.DownloadedBytes)
	assert.GreaterOrEqual(t, snap.UploadedBytes, uint64(8))

	n, err := testutil.GatherAndCount(reg, "test_control_uploaded_bytes", "test_control_commands_total_event_ctr")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestServer_Lifecycle 测试初始化与关闭的状态约束
func TestServer_Lifecycle(t *testing.T) {
	cfg := testConfig(t)
	srv, err := New(cfg, NewCommandTable())
	require.NoError(t, err)
	assert.Empty(t, srv.Endpoint())

	require.NoError(t, srv.Initialise())
	assert.ErrorIs(t, srv.Initialise(), ErrAlreadyInitialised)
	assert.Equal(t, cfg.Endpoint, srv.Endpoint())

	start := time.Now()
	require.NoError(t, srv.Shutdown())
	assert.Less(t, time.Since(start), time.Second)
	require.NoError(t, srv.Shutdown())

	assert.ErrorIs(t, srv.Initialise(), ErrServerClosed)
}

// TestServer_ShutdownWithoutInitialise 测试未初始化时关闭
func TestServer_ShutdownWithoutInitialise(t *testing.T) {
	srv, err := New(testConfig(t), NewCommandTable())
	require.NoError(t, err)
	assert.NoError(t, srv.Shutdown())
	assert.NoError(t, srv.Shutdown())
}

// TestServer_BindFailureRetry 测试绑定失败后可以重试
func TestServer_BindFailureRetry(t *testing.T) {
	cfg := testConfig(t)
	first := startServer(t, cfg, NewCommandTable())

	second, err := New(cfg, NewCommandTable())
	require.NoError(t, err)
	err = second.Initialise()
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrEndpointInUse)

	require.NoError(t, first.Shutdown())
	require.NoError(t, second.Initialise())
	require.NoError(t, second.Shutdown())
}

// TestServer_TCP 测试 TCP 端点
func TestServer_TCP(t *testing.T) {
	cfg := testConfig(t)
	cfg.Endpoint = "tcp://127.0.0.1:0"
	srv := startServer(t, cfg, NewCommandTable())
	assert.NotEqual(t, cfg.Endpoint, srv.Endpoint())

	c := dialClient(t, srv.Endpoint(), wire.Credentials{})
	assert.Equal(t, "PONG", string(call(t, c, TagPing).Body))
}

// TestServer_HealthFlag 测试工作循环 Beat 健康标志
func TestServer_HealthFlag(t *testing.T) {
	reg := health.NewRegistry()
	flag, err := reg.Register(HealthFlagName)
	require.NoError(t, err)

	startServer(t, testConfig(t), NewCommandTable(), WithHealthFlag(flag))

	require.Eventually(t, func() bool {
		return reg.Snapshot()[HealthFlagName] == 1
	}, 2*time.Second, 5*time.Millisecond)
}

// TestServer_Authenticated 测试握手经由认证器
func TestServer_Authenticated(t *testing.T) {
	var events atomic.Int64
	mon := wire.MonitorFunc(func(ev wire.Event) {
		if ev.Type == wire.EventHandshakeFailedAuth {
			events.Add(1)
		}
	})
	srv := startServer(t, testConfig(t), NewCommandTable(), WithAuthenticator(denyAll{}), WithMonitor(mon))

	_, err := Dial(context.Background(), srv.Endpoint(), wire.DialOptions{})
	var herr *wire.HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, wire.StatusRejected, herr.Status)
	assert.Equal(t, "denied", herr.Reason)

	require.Eventually(t, func() bool { return events.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
}

// TestModule 测试 fx 模块装配
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Control = testConfig(t)
	cfg.Auth.Enable = false

	var srv *Server
	app := fxtest.New(t,
		fx.Supply(cfg),
		health.Module(),
		stats.Module(),
		Module(),
		fx.Populate(&srv),
	)
	app.RequireStart()

	c := dialClient(t, srv.Endpoint(), wire.Credentials{})
	resp := call(t, c, TagStatus)
	assert.True(t, resp.OK())
	assert.Contains(t, string(resp.Body), `"control"`)

	app.RequireStop()
}

// TestModule_Disabled 测试禁用时不绑定
func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Control = testConfig(t)
	cfg.Control.Enable = false

	var srv *Server
	var reg *health.Registry
	app := fxtest.New(t,
		fx.Supply(cfg),
		health.Module(),
		Module(),
		fx.Populate(&srv, &reg),
	)
	app.RequireStart()
	assert.Empty(t, srv.Endpoint())
	assert.NotContains(t, reg.Names(), HealthFlagName, "disabled control server has no health flag")
	assert.True(t, reg.Healthy())
	app.RequireStop()
}
