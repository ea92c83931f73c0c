package config

import (
	"errors"
	"strings"
	"time"
)

// ControlConfig 控制 RPC 服务配置
type ControlConfig struct {
	// Enable 是否启用控制 RPC
	Enable bool `json:"enable" yaml:"enable"`

	// Endpoint 绑定端点
	// 支持 tcp://host:port、ipc:///path.sock、inproc://name
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Domain 认证域（发送给认证网关）
	Domain string `json:"domain" yaml:"domain"`

	// Authenticate 新对端握手是否经由认证网关
	Authenticate bool `json:"authenticate" yaml:"authenticate"`

	// RecvTimeout 接收超时，超时仅表示本轮无工作
	RecvTimeout Duration `json:"recv_timeout" yaml:"recv_timeout"`

	// SendTimeout 发送超时
	SendTimeout Duration `json:"send_timeout" yaml:"send_timeout"`

	// MaxParts 单条消息最大分片数
	MaxParts int `json:"max_parts" yaml:"max_parts"`

	// MaxPartSize 单个分片最大字节数
	MaxPartSize int `json:"max_part_size" yaml:"max_part_size"`
}

// DefaultControlConfig 返回默认控制 RPC 配置
func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		Enable:       true,
		Endpoint:     "tcp://127.0.0.1:5555",
		Domain:       "control",
		Authenticate: true,
		RecvTimeout:  Duration(50 * time.Millisecond), // 停止延迟上界
		SendTimeout:  Duration(1 * time.Second),
		MaxParts:     16,
		MaxPartSize:  1 << 20,
	}
}

// Validate 验证控制 RPC 配置
func (c ControlConfig) Validate() error {
	if !c.Enable {
		return nil
	}

	if err := validateEndpoint(c.Endpoint); err != nil {
		return err
	}

	if c.RecvTimeout <= 0 {
		return errors.New("recv timeout must be positive")
	}

	if c.SendTimeout <= 0 {
		return errors.New("send timeout must be positive")
	}

	if c.MaxParts <= 0 {
		return errors.New("max parts must be positive")
	}

	if c.MaxPartSize <= 0 {
		return errors.New("max part size must be positive")
	}

	return nil
}

// WithEndpoint 设置绑定端点
func (c ControlConfig) WithEndpoint(endpoint string) ControlConfig {
	c.Endpoint = endpoint
	return c
}

// WithAuthenticate 设置是否认证
func (c ControlConfig) WithAuthenticate(enable bool) ControlConfig {
	c.Authenticate = enable
	return c
}

// WithTimeouts 设置收发超时
func (c ControlConfig) WithTimeouts(recv, send time.Duration) ControlConfig {
	c.RecvTimeout = Duration(recv)
	c.SendTimeout = Duration(send)
	return c
}

// validateEndpoint 检查端点格式
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	for _, scheme := range []string{"tcp://", "ipc://", "inproc://"} {
		if strings.HasPrefix(endpoint, scheme) && len(endpoint) > len(scheme) {
			return nil
		}
	}
	return errors.New("endpoint must use tcp://, ipc:// or inproc://")
}
