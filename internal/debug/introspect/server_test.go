package introspect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
)

func startServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	cfg.Addr = "127.0.0.1:0"
	server := New(cfg)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func get(t *testing.T, server *Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

type fixedSessions int

func (n fixedSessions) Sessions() int { return int(n) }

func TestNew(t *testing.T) {
	server := New(Config{})
	assert.Equal(t, DefaultAddr, server.config.Addr)

	server = New(Config{Addr: "127.0.0.1:8080"})
	assert.Equal(t, "127.0.0.1:8080", server.Addr())
}

func TestServer_StartStop(t *testing.T) {
	server := New(Config{Addr: "127.0.0.1:0"})

	ctx := context.Background()
	require.NoError(t, server.Start(ctx))
	assert.True(t, server.running)

	addr := server.Addr()
	assert.NotEqual(t, "127.0.0.1:0", addr)
	assert.Contains(t, addr, "127.0.0.1:")

	// 重复启动无效
	require.NoError(t, server.Start(ctx))

	require.NoError(t, server.Stop())
	assert.False(t, server.running)
	require.NoError(t, server.Stop())
}

func TestServer_Health(t *testing.T) {
	reg := health.NewRegistry()
	console, err := reg.Register("console")
	require.NoError(t, err)
	control, err := reg.Register("control")
	require.NoError(t, err)

	server := startServer(t, Config{Health: reg})

	console.Beat()
	control.Beat()
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(get(t, server, "/health").Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]int{"console": 1, "control": 1}, resp.Flags)

	// 探测会重置标志；只有 console 再次 Beat
	console.Beat()
	resp = HealthResponse{}
	require.NoError(t, json.NewDecoder(get(t, server, "/health").Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, 0, resp.Flags["control"])
}

func TestServer_Health_NoRegistry(t *testing.T) {
	server := startServer(t, Config{})

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(get(t, server, "/health").Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.NotEmpty(t, resp.Uptime)
}

func TestServer_Introspect(t *testing.T) {
	acc := stats.NewAccumulator(nil, stats.Options{})
	ctl := stats.NewControlStats(acc)
	ctl.CommandStarted()
	ctl.CommandFinished(true, 0)

	server := startServer(t, Config{
		Console:      fixedSessions(3),
		ConsoleStats: stats.NewConsoleStats(acc),
		ControlStats: ctl,
	})

	resp := get(t, server, "/debug/introspect")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body IntrospectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body.Version)
	require.NotNil(t, body.Console)
	assert.Equal(t, 3, body.Console.Sessions)
	require.NotNil(t, body.Control)
	assert.Equal(t, uint64(1), body.Control.Commands.Success)
	assert.Nil(t, body.Auth)
	require.NotNil(t, body.Runtime)
	assert.Greater(t, body.Runtime.NumGoroutine, 0)
}

func TestServer_Stats(t *testing.T) {
	server := startServer(t, Config{})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, server, "/debug/introspect/stats").StatusCode)

	acc := stats.NewAccumulator(nil, stats.Options{})
	acc.Status("probe").Success()
	server = startServer(t, Config{Accumulator: acc})

	var snap stats.Snapshot
	require.NoError(t, json.NewDecoder(get(t, server, "/debug/introspect/stats").Body).Decode(&snap))
	assert.Equal(t, uint64(1), snap.Statuses["probe"].Success)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	acc := stats.NewAccumulator(reg, stats.Options{Namespace: "diag"})
	acc.Status("probe").Success()

	server := startServer(t, Config{Gatherer: reg})
	resp := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "diag_probe_success_event_ctr 1")

	// 未配置来源时不注册 /metrics
	bare := startServer(t, Config{})
	assert.Equal(t, http.StatusNotFound, get(t, bare, "/metrics").StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := startServer(t, Config{})

	resp, err := http.Post("http://"+server.Addr()+"/health", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_CustomHandlers(t *testing.T) {
	server := startServer(t, Config{
		CustomHandlers: map[string]http.HandlerFunc{
			"/custom": func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("custom response"))
			},
		},
	})

	body, err := io.ReadAll(get(t, server, "/custom").Body)
	require.NoError(t, err)
	assert.Equal(t, "custom response", string(body))
}

func TestServer_PprofEndpoint(t *testing.T) {
	server := startServer(t, Config{})
	assert.Equal(t, http.StatusOK, get(t, server, "/debug/pprof/").StatusCode)
}

func TestRegisterProcessCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterProcessCollectors(reg))
	// 重复注册被忽略
	require.NoError(t, RegisterProcessCollectors(reg))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}

func TestModule(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Diagnostics.EnableIntrospect = true
	cfg.Diagnostics.IntrospectAddr = "127.0.0.1:0"
	reg := prometheus.NewRegistry()

	var server *Server
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() prometheus.Registerer { return reg }),
		health.Module(),
		stats.Module(),
		Module(),
		fx.Populate(&server),
	)
	app.RequireStart()
	require.NotNil(t, server)

	assert.Equal(t, http.StatusOK, get(t, server, "/metrics").StatusCode)
	assert.Equal(t, http.StatusOK, get(t, server, "/debug/introspect").StatusCode)

	app.RequireStop()
}

func TestModule_Disabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Diagnostics.EnableIntrospect = false

	var server *Server
	app := fxtest.New(t,
		fx.Supply(cfg),
		Module(),
		fx.Populate(&server),
	)
	app.RequireStart()
	assert.Nil(t, server)
	app.RequireStop()
}
