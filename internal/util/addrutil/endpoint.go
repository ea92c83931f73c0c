// Package addrutil 提供端点与对端地址解析工具
//
// 端点格式：
//
//	tcp://<host>:<port>      TCP 监听/拨号
//	ipc://<path>             Unix 域套接字
//	inproc://<name>          进程内管道
package addrutil

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrEmptyEndpoint 空端点
	ErrEmptyEndpoint = errors.New("empty endpoint")

	// ErrUnknownTransport 不支持的传输方式
	ErrUnknownTransport = errors.New("unknown endpoint transport: expected tcp://, ipc:// or inproc://")

	// ErrMissingAddress 传输方式之后缺少地址
	ErrMissingAddress = errors.New("endpoint address is empty")
)

// 传输方式
const (
	TransportTCP    = "tcp"
	TransportIPC    = "ipc"
	TransportInproc = "inproc"
)

// ============================================================================
//                              端点解析
// ============================================================================

// Endpoint 解析后的端点
type Endpoint struct {
	// Transport 传输方式：tcp、ipc、inproc
	Transport string
	// Address 传输方式之后的部分
	Address string
}

// ParseEndpoint 解析端点字符串
//
// 示例：
//
//	ep, _ := ParseEndpoint("tcp://127.0.0.1:5555")
//	// ep.Transport = "tcp", ep.Address = "127.0.0.1:5555"
func ParseEndpoint(s string) (Endpoint, error) {
	if s == "" {
		return Endpoint{}, ErrEmptyEndpoint
	}
	transport, address, ok := strings.Cut(s, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownTransport, s)
	}
	switch transport {
	case TransportTCP, TransportIPC, TransportInproc:
	default:
		return Endpoint{}, fmt.Errorf("%w: %q", ErrUnknownTransport, s)
	}
	if address == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrMissingAddress, s)
	}
	if transport == TransportTCP {
		if _, _, err := net.SplitHostPort(address); err != nil {
			return Endpoint{}, fmt.Errorf("invalid tcp endpoint %q: %w", s, err)
		}
	}
	return Endpoint{Transport: transport, Address: address}, nil
}

// MustParseEndpoint 解析端点，失败时 panic
//
// 仅用于测试或常量端点。
func MustParseEndpoint(s string) Endpoint {
	ep, err := ParseEndpoint(s)
	if err != nil {
		panic(err)
	}
	return ep
}

// String 返回端点字符串
func (e Endpoint) String() string {
	return e.Transport + "://" + e.Address
}

// Network 返回 net 包使用的网络名；inproc 返回空字符串
func (e Endpoint) Network() string {
	switch e.Transport {
	case TransportTCP:
		return "tcp"
	case TransportIPC:
		return "unix"
	default:
		return ""
	}
}

// WithAddr 用实际监听地址替换地址部分（tcp 端口 0 绑定后使用）
func (e Endpoint) WithAddr(addr net.Addr) Endpoint {
	if e.Transport == TransportTCP && addr != nil {
		e.Address = addr.String()
	}
	return e
}
