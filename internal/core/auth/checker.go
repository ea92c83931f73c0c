package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dep2p/go-ctlplane/config"
	"github.com/dep2p/go-ctlplane/internal/core/wire"
)

// minRequestParts 认证请求至少包含的帧数
const minRequestParts = 6

// Request 解析后的认证请求
type Request struct {
	Version     string
	Token       string
	Domain      string
	Address     string
	Identity    string
	Mechanism   string
	Credentials [][]byte
}

// ParseRequest 按帧顺序解析认证请求
//
// 帧顺序：版本、关联令牌、域、地址、身份、机制、凭证...
func ParseRequest(parts [][]byte) (Request, error) {
	if len(parts) < minRequestParts {
		return Request{}, &Rejection{Reason: "Received unknown number of messages for authentication"}
	}
	return Request{
		Version:     string(parts[0]),
		Token:       string(parts[1]),
		Domain:      string(parts[2]),
		Address:     string(parts[3]),
		Identity:    string(parts[4]),
		Mechanism:   string(parts[5]),
		Credentials: parts[6:],
	}, nil
}

// ============================================================================
//                              Checker
// ============================================================================

// Checker 认证策略
//
// 按以下顺序检查，第一个失败项决定拒绝原因：
//
//	版本 → 机制 → 身份 → 域 → 地址 → 凭证
//
// 列表为 nil 时对应检查放行。
type Checker struct {
	Domains    *PermissionList
	Addresses  *PermissionList
	Identities *PermissionList
	Mechanisms *PermissionList

	mu        sync.RWMutex
	verifiers map[string]Verifier
}

// NewChecker 创建认证策略，默认只注册 NULL 校验器
func NewChecker(domains, addresses, identities, mechanisms *PermissionList) *Checker {
	return &Checker{
		Domains:    domains,
		Addresses:  addresses,
		Identities: identities,
		Mechanisms: mechanisms,
		verifiers: map[string]Verifier{
			MechanismNull: NullVerifier{},
		},
	}
}

// CheckerFromConfig 按配置创建认证策略
//
// 同时注册 PLAIN 与 CURVE 校验器，并加载配置中的凭证文件。
func CheckerFromConfig(cfg config.AuthConfig) (*Checker, error) {
	domains, err := PermissionListFromConfig(cfg.Domains)
	if err != nil {
		return nil, fmt.Errorf("domains: %w", err)
	}
	addresses, err := PermissionListFromConfig(cfg.Addresses)
	if err != nil {
		return nil, fmt.Errorf("addresses: %w", err)
	}
	identities, err := PermissionListFromConfig(cfg.Identities)
	if err != nil {
		return nil, fmt.Errorf("identities: %w", err)
	}
	mechanisms, err := PermissionListFromConfig(cfg.Mechanisms)
	if err != nil {
		return nil, fmt.Errorf("mechanisms: %w", err)
	}
	c := NewChecker(domains, addresses, identities, mechanisms)

	plain, err := NewPlainVerifier(cfg.CredentialCacheSize)
	if err != nil {
		return nil, err
	}
	if cfg.CredentialsFile != "" {
		n, err := plain.LoadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("credentials file: %w", err)
		}
		log.Info("已加载 PLAIN 凭证", "file", cfg.CredentialsFile, "users", n)
	}
	c.SetVerifier(MechanismPlain, plain)

	curve := NewCurveVerifier()
	if cfg.CurveKeysFile != "" {
		n, err := curve.LoadFile(cfg.CurveKeysFile)
		if err != nil {
			return nil, fmt.Errorf("curve keys file: %w", err)
		}
		log.Info("已加载 CURVE 公钥", "file", cfg.CurveKeysFile, "keys", n)
	}
	c.SetVerifier(MechanismCurve, curve)

	return c, nil
}

// SetVerifier 注册机制的校验器，v 为 nil 时删除
func (c *Checker) SetVerifier(mechanism string, v Verifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		delete(c.verifiers, mechanism)
		return
	}
	c.verifiers[mechanism] = v
}

// Verifier 返回机制的校验器
func (c *Checker) Verifier(mechanism string) (Verifier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.verifiers[mechanism]
	return v, ok
}

// Check 检查认证请求
//
// 通过返回 nil；策略拒绝返回 *Rejection；其他错误表示内部故障。
func (c *Checker) Check(req Request) error {
	if req.Version != wire.AuthVersion {
		return reject("Unsupported authentication version", req, req.Version)
	}
	if !allowed(c.Mechanisms, req.Mechanism) {
		return reject("Mechanism not allowed", req, req.Mechanism)
	}
	if !allowed(c.Identities, req.Identity) {
		return reject("Identity not allowed", req, req.Identity)
	}
	if !allowed(c.Domains, req.Domain) {
		return reject("Domain not allowed", req, req.Domain)
	}
	if !allowed(c.Addresses, req.Address) {
		return reject("Address not allowed", req, req.Address)
	}

	v, ok := c.Verifier(req.Mechanism)
	if !ok {
		return reject("Mechanism not supported", req, req.Mechanism)
	}
	if err := v.Verify(req.Identity, req.Credentials); err != nil {
		if errors.Is(err, ErrCredentialsRejected) {
			return &Rejection{Reason: fmt.Sprintf("Credentials rejected for %s (%s)", req.Identity, req.Address)}
		}
		return fmt.Errorf("verify %s credentials: %w", req.Mechanism, err)
	}
	return nil
}

func allowed(l *PermissionList, entry string) bool {
	return l == nil || l.Allowed(entry)
}
