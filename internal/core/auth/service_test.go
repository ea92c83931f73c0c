package auth

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
	"github.com/dep2p/go-ctlplane/internal/core/control"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
)

var endpointSeq atomic.Int64

func inprocEndpoint(t *testing.T, role string) string {
	name := strings.ReplaceAll(t.Name(), "/", "-")
	return fmt.Sprintf("inproc://%s-%s-%d", name, role, endpointSeq.Add(1))
}

func testAuthConfig(t *testing.T) config.AuthConfig {
	cfg := config.DefaultAuthConfig().
		WithEndpoint(inprocEndpoint(t, "zap")).
		WithIdentities(false, "alice")
	cfg.RecvTimeout = config.Duration(10 * time.Millisecond)
	return cfg
}

func testControlConfig(t *testing.T) config.ControlConfig {
	cfg := config.DefaultControlConfig()
	cfg.Endpoint = inprocEndpoint(t, "ctl")
	cfg.RecvTimeout = config.Duration(10 * time.Millisecond)
	return cfg
}

func dial(endpoint, identity string) (*control.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return control.Dial(ctx, endpoint, wire.DialOptions{
		Credentials: wire.Credentials{Identity: identity},
	})
}

// TestService_EndToEnd 测试控制服务器经由网关认证
func TestService_EndToEnd(t *testing.T) {
	reg := prometheus.NewRegistry()
	st := stats.NewAuthStats(stats.NewAccumulator(reg, stats.Options{Namespace: "test"}))

	authCfg := testAuthConfig(t)
	checker, err := CheckerFromConfig(authCfg)
	require.NoError(t, err)
	svc, err := NewService(authCfg, NewGateway(checker), WithStats(st))
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	assert.Equal(t, authCfg.Endpoint, svc.Endpoint())

	srv, err := control.New(testControlConfig(t), control.NewCommandTable(),
		control.WithAuthClient(wire.NewAuthClient(svc.Endpoint(), wire.DialOptions{})))
	require.NoError(t, err)
	require.NoError(t, srv.Initialise())
	t.Cleanup(func() { _ = srv.Shutdown() })

	c, err := dial(srv.Endpoint(), "alice")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := c.Call(ctx, control.TagPing)
	require.NoError(t, err)
	assert.Equal(t, "PONG", string(resp.Body))

	_, err = dial(srv.Endpoint(), "mallory")
	var herr *wire.HandshakeError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, wire.StatusRejected, herr.Status)
	assert.Equal(t, "Identity not allowed for mallory (inproc): mallory", herr.Reason)

	require.Eventually(t, func() bool {
		return st.Snapshot().Commands.Total == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(st.StatusCount(wire.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(st.StatusCount(wire.StatusRejected)))
}

// TestService_Stop 测试重复停止
func TestService_Stop(t *testing.T) {
	authCfg := testAuthConfig(t)
	svc, err := NewService(authCfg, newTestGateway())
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	require.NoError(t, svc.Stop())
	require.NoError(t, svc.Stop())
	assert.Error(t, svc.Start())
}

// TestModule 测试 fx 装配网关与控制服务器
func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Auth = testAuthConfig(t)
	cfg.Control = testControlConfig(t)

	var (
		srv *control.Server
		svc *Service
		reg *health.Registry
	)
	app := fxtest.New(t,
		fx.Supply(cfg),
		health.Module(),
		stats.Module(),
		Module(),
		control.Module(),
		fx.Populate(&srv, &svc, &reg),
	)
	app.RequireStart()

	c, err := dial(srv.Endpoint(), "alice")
	require.NoError(t, err)
	_ = c.Close()

	_, err = dial(srv.Endpoint(), "mallory")
	assert.Error(t, err)

	assert.Contains(t, reg.Names(), HealthFlagName)
	app.RequireStop()
}

// TestModule_Disabled 测试禁用时不绑定
func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Auth = testAuthConfig(t)
	cfg.Auth.Enable = false

	var svc *Service
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&svc),
	)
	app.RequireStart()
	assert.Empty(t, svc.Endpoint())
	app.RequireStop()
}
