package auth

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/control"
	"github.com/dep2p/go-ctlplane/internal/core/health"
	"github.com/dep2p/go-ctlplane/internal/core/stats"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
)

// HealthFlagName 认证网关在健康注册表中的标志名
const HealthFlagName = "auth"

// statsRecorder 按应答状态码写入 AuthStats
type statsRecorder struct {
	st *stats.AuthStats
}

func (r statsRecorder) Started() {
	r.st.CommandStarted()
}

func (r statsRecorder) Exchanged(_, reply [][]byte, _ bool, elapsed time.Duration) {
	status := wire.StatusInternal
	if len(reply) == replyParts {
		status = string(reply[2])
	}
	r.st.HandshakeFinished(status, elapsed)
}

// ServiceOption 服务选项
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	stats *stats.AuthStats
	flag  *health.Flag
	clock clock.Clock
}

// WithStats 把握手结论写入 AuthStats
func WithStats(st *stats.AuthStats) ServiceOption {
	return func(o *serviceOptions) {
		o.stats = st
	}
}

// WithHealthFlag 设置工作循环每轮 Beat 的健康标志
func WithHealthFlag(f *health.Flag) ServiceOption {
	return func(o *serviceOptions) {
		o.flag = f
	}
}

// WithClock 设置计时时钟
func WithClock(clk clock.Clock) ServiceOption {
	return func(o *serviceOptions) {
		o.clock = clk
	}
}

// Service 认证网关服务
//
// 在 AuthConfig.Endpoint 上运行一个应答服务器，请求交给 Gateway。
// 网关自身的握手不经过认证。
type Service struct {
	gateway *Gateway
	server  *control.Server
}

// NewService 创建认证网关服务
func NewService(cfg config.AuthConfig, g *Gateway, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	serverOpts := []control.Option{
		control.WithName(HealthFlagName),
		control.WithHealthFlag(o.flag),
		control.WithClock(o.clock),
	}
	if o.stats != nil {
		serverOpts = append(serverOpts, control.WithRecorder(statsRecorder{st: o.stats}))
	}

	srv, err := control.New(serverConfig(cfg), g, serverOpts...)
	if err != nil {
		return nil, err
	}
	return &Service{gateway: g, server: srv}, nil
}

// serverConfig 把网关配置转换为应答服务器配置
func serverConfig(cfg config.AuthConfig) config.ControlConfig {
	sc := config.DefaultControlConfig()
	sc.Enable = true
	sc.Endpoint = cfg.Endpoint
	sc.Domain = ""
	sc.Authenticate = false
	sc.RecvTimeout = cfg.RecvTimeout
	sc.SendTimeout = cfg.SendTimeout
	return sc
}

// Gateway 返回认证网关
func (s *Service) Gateway() *Gateway {
	return s.gateway
}

// Start 绑定端点并开始处理请求
func (s *Service) Start() error {
	return s.server.Initialise()
}

// Stop 停止服务，可重复调用
func (s *Service) Stop() error {
	return s.server.Shutdown()
}

// Endpoint 返回实际绑定的端点
func (s *Service) Endpoint() string {
	return s.server.Endpoint()
}
