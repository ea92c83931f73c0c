package config

import (
	"errors"
	"fmt"
	"time"
)

// PermissionListConfig 单个许可列表配置
type PermissionListConfig struct {
	// File 行分隔的列表文件，启动时加载
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	// AllowUnknown 是否放行未列出的条目
	AllowUnknown bool `json:"allow_unknown" yaml:"allow_unknown"`

	// Entries 内联条目
	Entries []string `json:"entries,omitempty" yaml:"entries,omitempty"`
}

// AuthConfig 对等认证网关配置
//
// 网关按以下顺序检查新对端握手：
//
//	版本 → 机制 → 身份 → 域 → 地址 → 凭证
type AuthConfig struct {
	// Enable 是否启用认证网关
	Enable bool `json:"enable" yaml:"enable"`

	// Endpoint 网关绑定端点
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// RecvTimeout 接收超时
	RecvTimeout Duration `json:"recv_timeout" yaml:"recv_timeout"`

	// SendTimeout 发送超时
	SendTimeout Duration `json:"send_timeout" yaml:"send_timeout"`

	// Domains 允许的域
	Domains PermissionListConfig `json:"domains" yaml:"domains"`

	// Addresses 允许的网络地址
	Addresses PermissionListConfig `json:"addresses" yaml:"addresses"`

	// Identities 允许的身份
	Identities PermissionListConfig `json:"identities" yaml:"identities"`

	// Mechanisms 允许的认证机制（NULL / PLAIN / CURVE）
	Mechanisms PermissionListConfig `json:"mechanisms" yaml:"mechanisms"`

	// CredentialsFile PLAIN 凭证文件，每行 "用户名:argon2 哈希"
	CredentialsFile string `json:"credentials_file,omitempty" yaml:"credentials_file,omitempty"`

	// CurveKeysFile CURVE 公钥文件，每行一个 base58 编码公钥
	CurveKeysFile string `json:"curve_keys_file,omitempty" yaml:"curve_keys_file,omitempty"`

	// CredentialCacheSize 已验证凭证缓存容量
	CredentialCacheSize int `json:"credential_cache_size" yaml:"credential_cache_size"`
}

// DefaultAuthConfig 返回默认认证网关配置
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enable:      true,
		Endpoint:    "inproc://ctlplane.zap.01",
		RecvTimeout: Duration(50 * time.Millisecond),
		SendTimeout: Duration(1 * time.Second),

		// ════════════════════════════════════════════════════════════════════
		// 许可列表（默认拒绝未知条目）
		// ════════════════════════════════════════════════════════════════════
		Domains: PermissionListConfig{
			Entries: []string{"control"},
		},
		Addresses: PermissionListConfig{
			Entries: []string{"127.0.0.1", "::1", "inproc", "ipc"},
		},
		Identities: PermissionListConfig{
			AllowUnknown: true, // 身份默认放行，部署时收紧
		},
		Mechanisms: PermissionListConfig{
			Entries: []string{"NULL", "PLAIN"},
		},

		CredentialCacheSize: 128,
	}
}

// Validate 验证认证网关配置
func (c AuthConfig) Validate() error {
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

	if c.CredentialCacheSize <= 0 {
		return errors.New("credential cache size must be positive")
	}

	for _, m := range c.Mechanisms.Entries {
		switch m {
		case "NULL", "PLAIN", "CURVE":
		default:
			return fmt.Errorf("unknown mechanism %q", m)
		}
	}

	return nil
}

// WithEndpoint 设置网关端点
func (c AuthConfig) WithEndpoint(endpoint string) AuthConfig {
	c.Endpoint = endpoint
	return c
}

// WithIdentities 设置身份列表
func (c AuthConfig) WithIdentities(allowUnknown bool, entries ...string) AuthConfig {
	c.Identities = PermissionListConfig{AllowUnknown: allowUnknown, Entries: entries}
	return c
}

// WithMechanisms 设置允许的机制
func (c AuthConfig) WithMechanisms(mechanisms ...string) AuthConfig {
	c.Mechanisms.Entries = mechanisms
	return c
}
