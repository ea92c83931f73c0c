package wire

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-ctlplane/pkg/interfaces"
)

// 握手常量
const (
	// greetingMagic 问候消息第 0 帧
	greetingMagic = "CTL"
	// greetingVersion 问候消息第 1 帧
	greetingVersion = "1"

	// AuthVersion 认证请求版本，网关只接受该版本
	AuthVersion = "1.0"

	// MechanismNull 不携带凭证的机制
	MechanismNull = "NULL"

	// StatusOK 认证通过
	StatusOK = "200"
	// StatusRejected 策略拒绝或格式错误
	StatusRejected = "400"
	// StatusInternal 认证内部错误
	StatusInternal = "500"

	replyOK  = "OK"
	replyErr = "ERR"

	// DefaultHandshakeTimeout 握手超时
	DefaultHandshakeTimeout = 5 * time.Second
)

// Credentials 客户端握手身份
type Credentials struct {
	// Identity 身份标识
	Identity string
	// Mechanism 认证机制：NULL、PLAIN、CURVE
	Mechanism string
	// Secrets 凭证帧（PLAIN 为用户名与密码，CURVE 为公钥）
	Secrets [][]byte
}

func (c Credentials) greeting() [][]byte {
	mech := c.Mechanism
	if mech == "" {
		mech = MechanismNull
	}
	parts := [][]byte{[]byte(greetingMagic), []byte(greetingVersion), []byte(c.Identity), []byte(mech)}
	return append(parts, c.Secrets...)
}

// AuthRequest 构造发给认证器的请求
//
// 帧顺序：版本、关联令牌、域、地址、身份、机制、凭证...
func AuthRequest(token, domain, address, identity, mechanism string, creds ...[]byte) [][]byte {
	parts := Parts(AuthVersion, token, domain, address, identity, mechanism)
	return append(parts, creds...)
}

// clientHandshake 发送问候并等待结果
func clientHandshake(conn net.Conn, br *bufio.Reader, creds Credentials, limits Limits) error {
	if err := WriteMessage(conn, creds.greeting()); err != nil {
		return err
	}
	reply, err := ReadMessage(br, limits)
	if err != nil {
		return err
	}
	switch {
	case len(reply) == 1 && string(reply[0]) == replyOK:
		return nil
	case len(reply) == 3 && string(reply[0]) == replyErr:
		return &HandshakeError{Status: string(reply[1]), Reason: string(reply[2])}
	default:
		return fmt.Errorf("%w: unexpected handshake reply", ErrProtocol)
	}
}

// peerInfo 通过握手的对端
type peerInfo struct {
	address   string
	identity  string
	mechanism string
}

// serverHandshake 读取问候，经认证器决定是否接受
//
// 被拒绝时先回复 ERR 再返回 *HandshakeError。
func serverHandshake(ctx context.Context, conn net.Conn, br *bufio.Reader, address string, opts RepOptions) (peerInfo, error) {
	peer := peerInfo{address: address}

	greeting, err := ReadMessage(br, opts.Limits)
	if err != nil {
		return peer, err
	}
	if len(greeting) < 4 || string(greeting[0]) != greetingMagic || string(greeting[1]) != greetingVersion {
		_ = WriteMessage(conn, Parts(replyErr, StatusRejected, "malformed greeting"))
		return peer, fmt.Errorf("%w: malformed greeting", ErrProtocol)
	}
	peer.identity = string(greeting[2])
	peer.mechanism = string(greeting[3])

	if opts.Authenticator != nil {
		status, reason := authenticate(ctx, opts.Authenticator, opts.Domain, peer, greeting[4:])
		if status != StatusOK {
			_ = WriteMessage(conn, Parts(replyErr, status, reason))
			return peer, &HandshakeError{Status: status, Reason: reason}
		}
	}

	if err := WriteMessage(conn, Parts(replyOK)); err != nil {
		return peer, err
	}
	return peer, nil
}

// authenticate 调用认证器，返回状态码与原因
func authenticate(ctx context.Context, a interfaces.Authenticator, domain string, peer peerInfo, creds [][]byte) (string, string) {
	token := uuid.NewString()
	req := AuthRequest(token, domain, peer.address, peer.identity, peer.mechanism, creds...)

	reply, err := a.Authenticate(ctx, req)
	if err != nil {
		log.Warn("认证器不可用", "peer", peer.address, "identity", peer.identity, "err", err)
		return StatusInternal, "authentication unavailable"
	}
	if len(reply) != 4 || string(reply[1]) != token {
		log.Warn("认证应答格式错误", "peer", peer.address, "parts", len(reply))
		return StatusInternal, "malformed authentication reply"
	}
	return string(reply[2]), string(reply[3])
}
